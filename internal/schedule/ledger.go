package schedule

import (
	"time"

	"planline/internal/domain"
)

// Ledger is the per-run record of committed hours per calendar day. It is
// shared by every task in one optimization run and discarded afterwards.
type Ledger struct {
	// StartDate keeps the caller's clock time; planned_start timestamps use
	// it, day walking truncates to midnight.
	StartDate      time.Time
	MaxHoursPerDay float64
	Holidays       HolidayChecker
	Now            *time.Time

	// EndOfDayHour is the hour used for planned_end timestamps.
	EndOfDayHour int

	// Committed maps day keys to hours already promised on that day, across
	// all tasks in the run plus the pre-existing commitments seeded in.
	Committed map[string]float64

	Failures []domain.SchedulingFailure

	// seededOverload marks days that exceeded the cap at seed time (from
	// in-progress work that is not rescheduled). Strategies never add to them.
	seededOverload map[string]bool
}

// DefaultEndOfDayHour ends planned work at 5pm unless configured otherwise.
const DefaultEndOfDayHour = 17

// NewLedger builds an empty ledger for one run.
func NewLedger(start time.Time, maxHoursPerDay float64, holidays HolidayChecker) *Ledger {
	return &Ledger{
		StartDate:      start,
		MaxHoursPerDay: maxHoursPerDay,
		Holidays:       holidays,
		EndOfDayHour:   DefaultEndOfDayHour,
		Committed:      map[string]float64{},
		seededOverload: map[string]bool{},
	}
}

// Seed adds the daily allocations of every task that keeps its existing
// placement, so new work never oversubscribes days already promised.
// Skipped: parent tasks (their hours live on children), completed tasks, and
// tasks about to be rescheduled in this run.
func (l *Ledger) Seed(tasks []domain.Task, rescheduling map[string]bool, parents map[string]bool) {
	for _, t := range tasks {
		if parents[t.ID] {
			continue
		}
		if t.Status == domain.StatusCompleted {
			continue
		}
		if rescheduling[t.ID] {
			continue
		}
		if t.PlannedStart == nil || t.EstimatedHours == nil {
			continue
		}
		for day, hours := range t.DailyAllocations {
			l.Committed[day] += hours
			if l.Committed[day] > l.MaxHoursPerDay+hoursEpsilon {
				l.seededOverload[day] = true
			}
		}
	}
}

const hoursEpsilon = 1e-9

// AvailableHours returns the remaining capacity on a day, never negative.
func (l *Ledger) AvailableHours(day time.Time) float64 {
	avail := l.MaxHoursPerDay - l.Committed[DayKey(day)]
	if avail < 0 {
		return 0
	}
	return avail
}

// Commit books hours against a day.
func (l *Ledger) Commit(day time.Time, hours float64) {
	if hours <= 0 {
		return
	}
	l.Committed[DayKey(day)] += hours
}

// Attempt tracks one task's in-flight allocation: the hours placed per day
// plus each touched day's committed value before the first commit. A failed
// attempt restores those prior values instead of subtracting, which would
// leave float drift on days that already held hours.
type Attempt struct {
	Hours map[string]float64
	prior map[string]float64
}

// Begin opens an empty attempt against the ledger.
func (l *Ledger) Begin() *Attempt {
	return &Attempt{Hours: map[string]float64{}, prior: map[string]float64{}}
}

// CommitAttempt books hours against a day and records the day's pre-attempt
// value on first touch.
func (l *Ledger) CommitAttempt(a *Attempt, day time.Time, hours float64) {
	if hours <= 0 {
		return
	}
	key := DayKey(day)
	if _, ok := a.prior[key]; !ok {
		a.prior[key] = l.Committed[key]
	}
	l.Committed[key] += hours
	a.Hours[key] += hours
}

// Rollback restores every day the attempt touched to its exact pre-attempt
// hours. Days that held nothing before are removed so the map compares equal
// to its state before the attempt.
func (l *Ledger) Rollback(a *Attempt) {
	for day, hours := range a.prior {
		if hours == 0 {
			delete(l.Committed, day)
			continue
		}
		l.Committed[day] = hours
	}
	a.Hours = map[string]float64{}
	a.prior = map[string]float64{}
}

// Withdraw subtracts an attempt's placed hours without restoring snapshots,
// for strategies that interleave several tasks on shared days: a snapshot
// restore there would clobber the peers' commits. Days drained to zero are
// removed.
func (l *Ledger) Withdraw(a *Attempt) {
	for day, hours := range a.Hours {
		l.Committed[day] -= hours
		if l.Committed[day] <= hoursEpsilon {
			delete(l.Committed, day)
		}
	}
	a.Hours = map[string]float64{}
	a.prior = map[string]float64{}
}

// RecordFailure appends a per-task failure; failures are never removed during
// a run.
func (l *Ledger) RecordFailure(t domain.Task, reason string) {
	l.Failures = append(l.Failures, domain.SchedulingFailure{
		TaskID:   t.ID,
		TaskName: t.Name,
		Reason:   reason,
	})
}

// OverloadedDays lists days whose committed hours exceed the cap. By
// construction these only arise from seeded in-progress work.
func (l *Ledger) OverloadedDays() []string {
	var days []string
	for day, hours := range l.Committed {
		if hours > l.MaxHoursPerDay+hoursEpsilon {
			days = append(days, day)
		}
	}
	return days
}

// snapshot copies the committed map, used by search strategies to restore
// state between candidate evaluations.
func (l *Ledger) snapshot() map[string]float64 {
	c := make(map[string]float64, len(l.Committed))
	for k, v := range l.Committed {
		c[k] = v
	}
	return c
}

func (l *Ledger) restore(committed map[string]float64) {
	l.Committed = committed
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return *l.Now
	}
	return l.StartDate
}
