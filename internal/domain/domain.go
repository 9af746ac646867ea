package domain

import "time"

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusCanceled   TaskStatus = "canceled"
	StatusArchived   TaskStatus = "archived"
)

// Terminal reports whether a task in this status can no longer be scheduled.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusArchived
}

type Task struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Priority       int        `json:"priority"`
	Status         TaskStatus `json:"status" enum:"pending,in_progress,completed,canceled,archived"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
	Deadline       *time.Time `json:"deadline,omitempty" format:"date-time"`
	PlannedStart   *time.Time `json:"planned_start,omitempty" format:"date-time"`
	PlannedEnd     *time.Time `json:"planned_end,omitempty" format:"date-time"`
	// DailyAllocations maps YYYY-MM-DD day keys to scheduled hours. It is the
	// source of truth for per-day workload reporting.
	DailyAllocations map[string]float64 `json:"daily_allocations,omitempty"`
	DependsOn        []string           `json:"depends_on,omitempty"`
	IsFixed          bool               `json:"is_fixed,omitempty"`
	ParentID         *string            `json:"parent_id,omitempty"`
	CreatedAt        time.Time          `json:"created_at" format:"date-time"`
	UpdatedAt        time.Time          `json:"updated_at" format:"date-time"`
}

// Clone returns a deep copy. The optimizer mutates copies only; callers keep
// their originals until results are committed.
func (t Task) Clone() Task {
	c := t
	if t.DailyAllocations != nil {
		c.DailyAllocations = make(map[string]float64, len(t.DailyAllocations))
		for k, v := range t.DailyAllocations {
			c.DailyAllocations[k] = v
		}
	}
	if t.DependsOn != nil {
		c.DependsOn = append([]string(nil), t.DependsOn...)
	}
	return c
}

// HasSchedule reports whether the task already holds a committed placement.
func (t Task) HasSchedule() bool {
	return t.PlannedStart != nil && len(t.DailyAllocations) > 0
}

// ClearSchedule removes all scheduler-written fields.
func (t *Task) ClearSchedule() {
	t.PlannedStart = nil
	t.PlannedEnd = nil
	t.DailyAllocations = nil
}

// AllocatedHours sums the task's daily allocations.
func (t Task) AllocatedHours() float64 {
	var total float64
	for _, h := range t.DailyAllocations {
		total += h
	}
	return total
}

// SchedulingFailure records one task the optimizer could not place.
type SchedulingFailure struct {
	TaskID   string `json:"task_id"`
	TaskName string `json:"task_name"`
	Reason   string `json:"reason"`
}

// OptimizationSummary is derived after a run from before/after task states and
// the final ledger.
type OptimizationSummary struct {
	NewCount          int      `json:"new_count"`
	RescheduledCount  int      `json:"rescheduled_count"`
	TotalHours        float64  `json:"total_hours"`
	DeadlineConflicts int      `json:"deadline_conflicts"`
	DaysSpan          int      `json:"days_span"`
	UnscheduledTasks  int      `json:"unscheduled_tasks"`
	OverloadedDays    []string `json:"overloaded_days,omitempty"`
}

type Note struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
