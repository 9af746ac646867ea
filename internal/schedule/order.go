package schedule

import (
	"sort"
	"time"

	"planline/internal/domain"
)

// Orderings produce the processing order a strategy allocates in. Every
// ordering breaks remaining ties on task id so runs are reproducible.

// OrderByDeadlinePriority sorts by days until effective deadline ascending
// (tasks without a deadline last), then priority descending, then id.
func OrderByDeadlinePriority(tasks []domain.Task, byID map[string]domain.Task, now time.Time) []domain.Task {
	out := append([]domain.Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		di := EffectiveDeadline(out[i], byID)
		dj := EffectiveDeadline(out[j], byID)
		switch {
		case di != nil && dj != nil:
			a, b := daysUntil(now, *di), daysUntil(now, *dj)
			if a != b {
				return a < b
			}
		case di != nil:
			return true
		case dj != nil:
			return false
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// OrderByDeadline sorts by effective deadline alone; priority has no
// influence. Tasks without a deadline sort last.
func OrderByDeadline(tasks []domain.Task, byID map[string]domain.Task) []domain.Task {
	out := append([]domain.Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		di := EffectiveDeadline(out[i], byID)
		dj := EffectiveDeadline(out[j], byID)
		switch {
		case di != nil && dj != nil:
			if !di.Equal(*dj) {
				return di.Before(*dj)
			}
		case di != nil:
			return true
		case dj != nil:
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// OrderByPriority sorts by the priority field alone, highest first.
func OrderByPriority(tasks []domain.Task) []domain.Task {
	out := append([]domain.Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// OrderByDependencyDepth sorts prerequisites before the tasks that depend on
// them: a task with no dependencies has depth 0, otherwise depth is one more
// than its deepest dependency. Deadline then priority then id break ties
// within a depth level. Cycles are tolerated; the walk terminates and cycle
// members stay schedulable.
func OrderByDependencyDepth(tasks []domain.Task, byID map[string]domain.Task, now time.Time) []domain.Task {
	depth := dependencyDepths(tasks)
	out := append([]domain.Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		if depth[out[i].ID] != depth[out[j].ID] {
			return depth[out[i].ID] < depth[out[j].ID]
		}
		di := EffectiveDeadline(out[i], byID)
		dj := EffectiveDeadline(out[j], byID)
		switch {
		case di != nil && dj != nil:
			a, b := daysUntil(now, *di), daysUntil(now, *dj)
			if a != b {
				return a < b
			}
		case di != nil:
			return true
		case dj != nil:
			return false
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func dependencyDepths(tasks []domain.Task) map[string]int {
	inSet := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		inSet[t.ID] = t
	}
	depth := make(map[string]int, len(tasks))
	var resolve func(id string, trail map[string]bool) int
	resolve = func(id string, trail map[string]bool) int {
		if d, ok := depth[id]; ok {
			return d
		}
		if trail[id] {
			return 0
		}
		trail[id] = true
		defer delete(trail, id)
		t, ok := inSet[id]
		if !ok {
			return 0
		}
		max := 0
		for _, dep := range t.DependsOn {
			if _, present := inSet[dep]; !present {
				continue
			}
			if d := resolve(dep, trail) + 1; d > max {
				max = d
			}
		}
		depth[id] = max
		return max
	}
	for _, t := range tasks {
		resolve(t.ID, map[string]bool{})
	}
	return depth
}
