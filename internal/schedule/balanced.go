package schedule

import (
	"errors"
	"fmt"
	"time"

	"planline/internal/domain"
)

// defaultBalanceWindowDays is the spread window when a task has no deadline.
const defaultBalanceWindowDays = 13

// balancedStrategy spreads each task evenly across its window instead of
// front-loading. The per-day target is duration divided by the window's
// workday count; days that cannot absorb their target are not compensated
// elsewhere, so a congested window fails the task.
type balancedStrategy struct{}

func (balancedStrategy) Name() string { return "balanced" }

func (balancedStrategy) Order(tasks []domain.Task, byID map[string]domain.Task, now time.Time) []domain.Task {
	return OrderByDeadlinePriority(tasks, byID, now)
}

func (balancedStrategy) Allocate(t domain.Task, byID map[string]domain.Task, led *Ledger) (domain.Task, error) {
	if t.EstimatedHours == nil || *t.EstimatedHours <= 0 {
		return domain.Task{}, errors.New("no estimated duration")
	}
	windowStart := StartOfDay(led.StartDate)
	windowEnd := windowStart.AddDate(0, 0, defaultBalanceWindowDays)
	deadline := EffectiveDeadline(t, byID)
	if deadline != nil {
		windowEnd = StartOfDay(*deadline)
	}
	if windowEnd.Before(windowStart) {
		return domain.Task{}, fmt.Errorf("%w %s", ErrPastDeadline, deadline.Format(DayKeyFormat))
	}
	workdays := CountWorkdays(windowStart, windowEnd, led.Holidays)
	if workdays == 0 {
		return domain.Task{}, errors.New("no workdays in scheduling window")
	}
	target := *t.EstimatedHours / float64(workdays)

	remaining := *t.EstimatedHours
	att := led.Begin()
	var first, last time.Time
	for day := windowStart; !day.After(windowEnd) && remaining > hoursEpsilon; day = day.AddDate(0, 0, 1) {
		if !IsWorkday(day, led.Holidays) {
			continue
		}
		hours := target
		if remaining < hours {
			hours = remaining
		}
		if avail := led.AvailableHours(day); avail < hours {
			hours = avail
		}
		if hours <= hoursEpsilon {
			continue
		}
		led.CommitAttempt(att, day, hours)
		if first.IsZero() {
			first = day
		}
		last = day
		remaining -= hours
	}
	if remaining > hoursTolerance {
		led.Rollback(att)
		if deadline != nil {
			return domain.Task{}, fmt.Errorf("%w %s", ErrPastDeadline, deadline.Format(DayKeyFormat))
		}
		return domain.Task{}, errors.New("insufficient capacity in scheduling window")
	}
	return withPlacement(t, att.Hours, first, last, led), nil
}

// hoursTolerance absorbs float drift when a target-split allocation sums back
// to the estimate.
const hoursTolerance = 1e-5
