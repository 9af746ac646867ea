package schedule

import (
	"time"

	"planline/internal/domain"
)

// The strategies here share the greedy forward allocator and differ only in
// processing order.

// edfStrategy is earliest-deadline-first: pure deadline order, priority has
// zero influence.
type edfStrategy struct{}

func (edfStrategy) Name() string { return "earliest_deadline" }

func (edfStrategy) Order(tasks []domain.Task, byID map[string]domain.Task, _ time.Time) []domain.Task {
	return OrderByDeadline(tasks, byID)
}

func (edfStrategy) Allocate(t domain.Task, byID map[string]domain.Task, led *Ledger) (domain.Task, error) {
	return allocateForward(t, EffectiveDeadline(t, byID), led)
}

// priorityFirstStrategy places the highest-priority tasks first regardless of
// deadlines.
type priorityFirstStrategy struct{}

func (priorityFirstStrategy) Name() string { return "priority_first" }

func (priorityFirstStrategy) Order(tasks []domain.Task, _ map[string]domain.Task, _ time.Time) []domain.Task {
	return OrderByPriority(tasks)
}

func (priorityFirstStrategy) Allocate(t domain.Task, byID map[string]domain.Task, led *Ledger) (domain.Task, error) {
	return allocateForward(t, EffectiveDeadline(t, byID), led)
}

// dependencyAwareStrategy places prerequisite work before anything that
// depends on it, in the manner of critical-path scheduling.
type dependencyAwareStrategy struct{}

func (dependencyAwareStrategy) Name() string { return "dependency_aware" }

func (dependencyAwareStrategy) Order(tasks []domain.Task, byID map[string]domain.Task, now time.Time) []domain.Task {
	return OrderByDependencyDepth(tasks, byID, now)
}

func (dependencyAwareStrategy) Allocate(t domain.Task, byID map[string]domain.Task, led *Ledger) (domain.Task, error) {
	return allocateForward(t, EffectiveDeadline(t, byID), led)
}
