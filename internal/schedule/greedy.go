package schedule

import (
	"errors"
	"fmt"
	"time"

	"planline/internal/domain"
)

// ErrPastDeadline marks failures caused by a deadline too tight for the
// remaining capacity; the summary counts these as deadline conflicts.
var ErrPastDeadline = errors.New("insufficient capacity before deadline")

// horizonDays bounds forward walks so a zero-capacity calendar cannot loop
// forever.
const horizonDays = 3650

// allocateForward walks days forward from the ledger start, skipping
// non-workdays and filling each day to capacity until the full estimate is
// placed. All-or-nothing: on failure every commit made here is rolled back.
func allocateForward(t domain.Task, deadline *time.Time, led *Ledger) (domain.Task, error) {
	if t.EstimatedHours == nil || *t.EstimatedHours <= 0 {
		return domain.Task{}, errors.New("no estimated duration")
	}
	remaining := *t.EstimatedHours
	att := led.Begin()
	var first, last time.Time
	day := StartOfDay(led.StartDate)
	for i := 0; remaining > hoursEpsilon; i++ {
		if i > horizonDays {
			led.Rollback(att)
			return domain.Task{}, errors.New("no capacity within scheduling horizon")
		}
		if deadline != nil && StartOfDay(day).After(StartOfDay(*deadline)) {
			led.Rollback(att)
			return domain.Task{}, fmt.Errorf("%w %s", ErrPastDeadline, deadline.Format(DayKeyFormat))
		}
		if !IsWorkday(day, led.Holidays) {
			day = day.AddDate(0, 0, 1)
			continue
		}
		hours := remaining
		if avail := led.AvailableHours(day); avail < hours {
			hours = avail
		}
		if hours > hoursEpsilon {
			led.CommitAttempt(att, day, hours)
			if first.IsZero() {
				first = day
			}
			last = day
			remaining -= hours
		}
		day = day.AddDate(0, 0, 1)
	}
	return withPlacement(t, att.Hours, first, last, led), nil
}

// withPlacement returns a copy of the task carrying the committed allocation
// and the derived planned span.
func withPlacement(t domain.Task, alloc map[string]float64, first, last time.Time, led *Ledger) domain.Task {
	out := t.Clone()
	out.DailyAllocations = make(map[string]float64, len(alloc))
	for k, v := range alloc {
		out.DailyAllocations[k] = v
	}
	s := led.StartDate
	start := time.Date(first.Year(), first.Month(), first.Day(), s.Hour(), s.Minute(), 0, 0, s.Location())
	end := time.Date(last.Year(), last.Month(), last.Day(), led.EndOfDayHour, 0, 0, 0, s.Location())
	out.PlannedStart = &start
	out.PlannedEnd = &end
	return out
}

// greedyStrategy front-loads: deadline-then-priority order, forward
// allocation filling each day to capacity.
type greedyStrategy struct{}

func (greedyStrategy) Name() string { return "greedy" }

func (greedyStrategy) Order(tasks []domain.Task, byID map[string]domain.Task, now time.Time) []domain.Task {
	return OrderByDeadlinePriority(tasks, byID, now)
}

func (greedyStrategy) Allocate(t domain.Task, byID map[string]domain.Task, led *Ledger) (domain.Task, error) {
	return allocateForward(t, EffectiveDeadline(t, byID), led)
}
