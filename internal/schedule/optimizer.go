package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"planline/internal/domain"
)

// TaskSource is the narrow repository capability the optimizer consumes.
type TaskSource interface {
	GetAll(ctx context.Context) ([]domain.Task, error)
	GetChildren(ctx context.Context, id string) ([]domain.Task, error)
	GetByID(ctx context.Context, id string) (domain.Task, error)
}

// ErrNoSchedulableTasks is returned when the eligible set is empty before any
// allocation work begins.
var ErrNoSchedulableTasks = errors.New("no schedulable tasks")

// Request parametrizes one optimization run.
type Request struct {
	StartDate      time.Time
	MaxHoursPerDay float64
	Algorithm      string
	ForceOverride  bool
	// TaskIDs restricts the run to the named tasks when non-empty.
	TaskIDs      []string
	EndOfDayHour int
	// Now anchors deadline-distance ordering; defaults to StartDate.
	Now     *time.Time
	Options Options
}

// Result carries the updated task copies; nothing is persisted here.
type Result struct {
	Scheduled []domain.Task              `json:"successful_tasks"`
	Failed    []domain.SchedulingFailure `json:"failed_tasks,omitempty"`
	Summary   domain.OptimizationSummary `json:"summary"`
}

// Optimizer computes calendar placements for a batch of tasks. One run
// operates entirely in memory on task copies; the caller persists the result.
type Optimizer struct {
	Source   TaskSource
	Holidays HolidayChecker
}

// Run executes one optimization pass: select eligible tasks, seed the ledger
// from kept commitments, order, allocate, propagate parent spans, reconcile
// stale schedules (force mode), and summarize.
func (o Optimizer) Run(ctx context.Context, req Request) (Result, error) {
	strategy, err := New(req.Algorithm, req.Options)
	if err != nil {
		return Result{}, err
	}
	if req.MaxHoursPerDay <= 0 {
		return Result{}, errors.New("max hours per day must be positive")
	}

	all, err := o.Source.GetAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load tasks: %w", err)
	}
	byID := make(map[string]domain.Task, len(all))
	parents := map[string]bool{}
	for _, t := range all {
		byID[t.ID] = t
		if t.ParentID != nil {
			parents[*t.ParentID] = true
		}
	}

	eligible := selectEligible(all, parents, req)
	if len(eligible) == 0 {
		return Result{}, ErrNoSchedulableTasks
	}
	rescheduling := make(map[string]bool, len(eligible))
	for _, t := range eligible {
		rescheduling[t.ID] = true
	}

	led := NewLedger(req.StartDate, req.MaxHoursPerDay, o.Holidays)
	if req.EndOfDayHour > 0 {
		led.EndOfDayHour = req.EndOfDayHour
	}
	led.Now = req.Now
	led.Seed(all, rescheduling, parents)

	now := req.StartDate
	if req.Now != nil {
		now = *req.Now
	}

	var updated []domain.Task
	if batch, ok := strategy.(BatchStrategy); ok {
		updated = batch.Run(eligible, byID, led)
	} else {
		for _, t := range strategy.Order(eligible, byID, now) {
			out, err := strategy.Allocate(t, byID, led)
			if err != nil {
				led.RecordFailure(t, err.Error())
				continue
			}
			updated = append(updated, out)
		}
	}

	updated = append(updated, propagateSpans(all, byID, updated)...)
	if req.ForceOverride {
		updated = append(updated, reconcileStale(eligible, updated)...)
	}

	summary := summarize(byID, updated, led)
	return Result{Scheduled: updated, Failed: led.Failures, Summary: summary}, nil
}

// selectEligible filters to tasks a strategy may place: pending, not fixed,
// not composite, and not already scheduled unless force-override.
func selectEligible(all []domain.Task, parents map[string]bool, req Request) []domain.Task {
	requested := map[string]bool{}
	for _, id := range req.TaskIDs {
		requested[id] = true
	}
	var eligible []domain.Task
	for _, t := range all {
		if len(requested) > 0 && !requested[t.ID] {
			continue
		}
		if parents[t.ID] || t.IsFixed {
			continue
		}
		if t.Status != domain.StatusPending {
			continue
		}
		if t.HasSchedule() && !req.ForceOverride {
			continue
		}
		eligible = append(eligible, t)
	}
	return eligible
}

// propagateSpans recomputes composite-task spans bottom-up: every updated
// task with a parent dirties that parent, whose span becomes the envelope of
// its children's planned spans; changed parents dirty their own parents in
// turn. Archived parents are skipped. The walk runs over an id-indexed merged
// view, not live object references.
func propagateSpans(all []domain.Task, byID map[string]domain.Task, updated []domain.Task) []domain.Task {
	merged := make(map[string]domain.Task, len(byID))
	for id, t := range byID {
		merged[id] = t
	}
	childrenOf := map[string][]string{}
	for _, t := range all {
		if t.ParentID != nil {
			childrenOf[*t.ParentID] = append(childrenOf[*t.ParentID], t.ID)
		}
	}

	var queue []string
	queued := map[string]bool{}
	enqueue := func(t domain.Task) {
		if t.ParentID == nil || queued[*t.ParentID] {
			return
		}
		queued[*t.ParentID] = true
		queue = append(queue, *t.ParentID)
	}
	for _, t := range updated {
		merged[t.ID] = t
		enqueue(t)
	}

	var out []domain.Task
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		queued[id] = false
		parent, ok := merged[id]
		if !ok || parent.Status == domain.StatusArchived {
			continue
		}
		var start, end *time.Time
		for _, childID := range childrenOf[id] {
			c := merged[childID]
			if c.PlannedStart == nil || c.PlannedEnd == nil {
				continue
			}
			if start == nil || c.PlannedStart.Before(*start) {
				s := *c.PlannedStart
				start = &s
			}
			if end == nil || c.PlannedEnd.After(*end) {
				e := *c.PlannedEnd
				end = &e
			}
		}
		if start == nil {
			continue
		}
		span := parent.Clone()
		span.PlannedStart = start
		span.PlannedEnd = end
		merged[id] = span
		out = append(out, span)
		enqueue(span)
	}
	return out
}

// reconcileStale clears the schedule of any force-rescheduled task that was
// not successfully placed in this run, so no stale commitment survives.
// In-progress tasks are never eligible, so they are untouched.
func reconcileStale(eligible, updated []domain.Task) []domain.Task {
	placed := make(map[string]bool, len(updated))
	for _, t := range updated {
		placed[t.ID] = true
	}
	var cleared []domain.Task
	for _, t := range eligible {
		if placed[t.ID] || !t.HasSchedule() {
			continue
		}
		c := t.Clone()
		c.ClearSchedule()
		cleared = append(cleared, c)
	}
	return cleared
}

// summarize derives run statistics from before/after task states and the
// final ledger.
func summarize(before map[string]domain.Task, updated []domain.Task, led *Ledger) domain.OptimizationSummary {
	s := domain.OptimizationSummary{UnscheduledTasks: len(led.Failures)}
	for _, t := range updated {
		if len(t.DailyAllocations) == 0 {
			continue
		}
		s.TotalHours += t.AllocatedHours()
		if prev, ok := before[t.ID]; ok && prev.HasSchedule() {
			s.RescheduledCount++
		} else {
			s.NewCount++
		}
	}
	for _, f := range led.Failures {
		if strings.Contains(f.Reason, "deadline") {
			s.DeadlineConflicts++
		}
	}
	var first, last string
	for day := range led.Committed {
		if first == "" || day < first {
			first = day
		}
		if day > last {
			last = day
		}
	}
	if first != "" {
		from, _ := ParseDayKey(first)
		to, _ := ParseDayKey(last)
		s.DaysSpan = int(to.Sub(from).Hours()/24) + 1
	}
	s.OverloadedDays = led.OverloadedDays()
	sort.Strings(s.OverloadedDays)
	return s
}
