package schedule

import (
	"fmt"
	"time"

	"planline/internal/domain"
)

// roundRobinSliceHours bounds how much of a day one task may take per turn,
// so several tasks advance through the calendar together.
const roundRobinSliceHours = 2.0

// roundRobinStrategy interleaves tasks instead of fully placing one before
// the next: each workday's remaining capacity is handed out in bounded slices
// across every still-unfinished task in rotation.
type roundRobinStrategy struct{}

func (*roundRobinStrategy) Name() string { return "round_robin" }

func (*roundRobinStrategy) Order(tasks []domain.Task, byID map[string]domain.Task, now time.Time) []domain.Task {
	return OrderByDeadlinePriority(tasks, byID, now)
}

// Allocate falls back to forward allocation; the orchestrator uses Run.
func (*roundRobinStrategy) Allocate(t domain.Task, byID map[string]domain.Task, led *Ledger) (domain.Task, error) {
	return allocateForward(t, EffectiveDeadline(t, byID), led)
}

type rotationSlot struct {
	task      domain.Task
	deadline  *time.Time
	remaining float64
	att       *Attempt
	first     time.Time
	last      time.Time
}

func (s *roundRobinStrategy) Run(tasks []domain.Task, byID map[string]domain.Task, led *Ledger) []domain.Task {
	ordered := s.Order(tasks, byID, led.now())

	var active []*rotationSlot
	for _, t := range ordered {
		if t.EstimatedHours == nil || *t.EstimatedHours <= 0 {
			led.RecordFailure(t, "no estimated duration")
			continue
		}
		active = append(active, &rotationSlot{
			task:      t,
			deadline:  EffectiveDeadline(t, byID),
			remaining: *t.EstimatedHours,
			att:       led.Begin(),
		})
	}

	var placed []domain.Task
	day := StartOfDay(led.StartDate)
	for i := 0; len(active) > 0; i++ {
		if i > horizonDays {
			for _, slot := range active {
				led.Withdraw(slot.att)
				led.RecordFailure(slot.task, "no capacity within scheduling horizon")
			}
			break
		}

		// Drop tasks whose effective deadline is now behind the walk. Peer
		// slots keep committing to the same days, so the drop withdraws this
		// slot's hours rather than restoring a snapshot.
		keep := active[:0]
		for _, slot := range active {
			if slot.deadline != nil && day.After(StartOfDay(*slot.deadline)) {
				led.Withdraw(slot.att)
				led.RecordFailure(slot.task, fmt.Sprintf("%s %s", ErrPastDeadline.Error(), slot.deadline.Format(DayKeyFormat)))
				continue
			}
			keep = append(keep, slot)
		}
		active = keep
		if len(active) == 0 {
			break
		}

		if IsWorkday(day, led.Holidays) {
			// Rotate bounded slices through the day until it is full or no
			// task can take more.
			for progress := true; progress; {
				progress = false
				remaining := active[:0]
				for _, slot := range active {
					hours := roundRobinSliceHours
					if slot.remaining < hours {
						hours = slot.remaining
					}
					if avail := led.AvailableHours(day); avail < hours {
						hours = avail
					}
					if hours > hoursEpsilon {
						led.CommitAttempt(slot.att, day, hours)
						if slot.first.IsZero() {
							slot.first = day
						}
						slot.last = day
						slot.remaining -= hours
						progress = true
					}
					if slot.remaining <= hoursEpsilon {
						placed = append(placed, withPlacement(slot.task, slot.att.Hours, slot.first, slot.last, led))
						continue
					}
					remaining = append(remaining, slot)
				}
				active = remaining
				if len(active) == 0 {
					break
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return placed
}
