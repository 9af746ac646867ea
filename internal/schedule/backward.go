package schedule

import (
	"errors"
	"fmt"
	"time"

	"planline/internal/domain"
)

// defaultBackwardWindowDays is how far ahead the walk anchors when a task has
// no deadline.
const defaultBackwardWindowDays = 7

// backwardStrategy schedules just-in-time: it walks backward from the
// effective deadline filling each workday's remaining capacity, so work lands
// as late as possible while still finishing on time.
type backwardStrategy struct{}

func (backwardStrategy) Name() string { return "backward" }

func (backwardStrategy) Order(tasks []domain.Task, byID map[string]domain.Task, now time.Time) []domain.Task {
	return OrderByDeadlinePriority(tasks, byID, now)
}

func (backwardStrategy) Allocate(t domain.Task, byID map[string]domain.Task, led *Ledger) (domain.Task, error) {
	if t.EstimatedHours == nil || *t.EstimatedHours <= 0 {
		return domain.Task{}, errors.New("no estimated duration")
	}
	windowStart := StartOfDay(led.StartDate)
	anchor := windowStart.AddDate(0, 0, defaultBackwardWindowDays)
	deadline := EffectiveDeadline(t, byID)
	if deadline != nil {
		anchor = StartOfDay(*deadline)
	}

	remaining := *t.EstimatedHours
	att := led.Begin()
	var first, last time.Time
	for day := anchor; remaining > hoursEpsilon; day = day.AddDate(0, 0, -1) {
		if day.Before(windowStart) {
			led.Rollback(att)
			if deadline != nil {
				return domain.Task{}, fmt.Errorf("%w %s", ErrPastDeadline, deadline.Format(DayKeyFormat))
			}
			return domain.Task{}, errors.New("insufficient capacity in scheduling window")
		}
		if !IsWorkday(day, led.Holidays) {
			continue
		}
		hours := remaining
		if avail := led.AvailableHours(day); avail < hours {
			hours = avail
		}
		if hours <= hoursEpsilon {
			continue
		}
		led.CommitAttempt(att, day, hours)
		// Walking backward, the current day is always the earliest so far.
		first = day
		if last.IsZero() {
			last = day
		}
		remaining -= hours
	}
	return withPlacement(t, att.Hours, first, last, led), nil
}
