package schedule

import (
	"errors"
	"time"

	"planline/internal/domain"
)

// Candidate scoring shared by the search strategies. Lower is better.
// Unplaced tasks dominate, deadline misses weigh extra on top of that, day
// overload next, and among feasible candidates a shorter makespan wins.
const (
	fitnessUnplacedPenalty = 1000.0
	fitnessDeadlinePenalty = 250.0
	fitnessOverloadPenalty = 50.0
)

// evaluateOrdering trial-allocates a candidate ordering against the ledger,
// scores the outcome, and restores the ledger to its pre-trial state before
// returning. No trace of the candidate's commits survives.
func evaluateOrdering(order []domain.Task, byID map[string]domain.Task, led *Ledger) float64 {
	saved := led.snapshot()
	defer led.restore(saved)

	var unplaced, misses int
	var first, last time.Time
	for _, t := range order {
		out, err := allocateForward(t, EffectiveDeadline(t, byID), led)
		if err != nil {
			unplaced++
			if errors.Is(err, ErrPastDeadline) {
				misses++
			}
			continue
		}
		if first.IsZero() || out.PlannedStart.Before(first) {
			first = *out.PlannedStart
		}
		if last.IsZero() || out.PlannedEnd.After(last) {
			last = *out.PlannedEnd
		}
	}

	score := fitnessUnplacedPenalty*float64(unplaced) + fitnessDeadlinePenalty*float64(misses)
	score += fitnessOverloadPenalty * float64(len(led.OverloadedDays()))
	if !first.IsZero() {
		score += last.Sub(first).Hours() / 24
	}
	return score
}

// replayOrdering allocates a winning ordering for real, recording per-task
// failures on the ledger and returning the placed copies.
func replayOrdering(order []domain.Task, byID map[string]domain.Task, led *Ledger) []domain.Task {
	var placed []domain.Task
	for _, t := range order {
		out, err := allocateForward(t, EffectiveDeadline(t, byID), led)
		if err != nil {
			led.RecordFailure(t, err.Error())
			continue
		}
		placed = append(placed, out)
	}
	return placed
}
