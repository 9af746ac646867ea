package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
	"planline/internal/schedule"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID             string
	Name           string
	Description    string
	Priority       int
	EstimatedHours *float64
	Deadline       *time.Time
	DependsOn      []string
	ParentID       string
	IsFixed        bool
	ActorID        string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if e.Config == nil {
		return domain.Task{}, errors.New("config not loaded")
	}
	if opts.Name == "" {
		return domain.Task{}, errors.New("name is required")
	}
	if opts.EstimatedHours != nil && *opts.EstimatedHours <= 0 {
		return domain.Task{}, errors.New("estimated hours must be positive")
	}
	if opts.Priority == 0 {
		opts.Priority = 1
	}
	if opts.Priority < 1 {
		return domain.Task{}, errors.New("priority must be >= 1")
	}
	if opts.ParentID != "" {
		if _, err := e.Repo.GetTask(ctx, opts.ParentID); err != nil {
			return domain.Task{}, fmt.Errorf("parent %s: %w", opts.ParentID, err)
		}
		if err := e.ensureNoCycle(ctx, opts.ParentID, opts.ID); err != nil {
			return domain.Task{}, err
		}
	}
	for _, dep := range opts.DependsOn {
		if _, err := e.Repo.GetTask(ctx, dep); err != nil {
			return domain.Task{}, fmt.Errorf("dependency %s: %w", dep, err)
		}
	}
	id := opts.ID
	now := e.now().UTC()
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.Name+"|"+now.Format(time.RFC3339Nano))).String()
	}
	t := domain.Task{
		ID:             id,
		Name:           opts.Name,
		Description:    opts.Description,
		Priority:       opts.Priority,
		Status:         domain.StatusPending,
		EstimatedHours: opts.EstimatedHours,
		Deadline:       opts.Deadline,
		IsFixed:        opts.IsFixed,
		ParentID:       optionalString(opts.ParentID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if len(opts.DependsOn) > 0 {
		if err := e.Repo.AddDependencies(ctx, tx, t.ID, opts.DependsOn); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", t.ID, opts.ActorID, events.EventPayload{"name": t.Name, "status": t.Status}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	t.DependsOn = opts.DependsOn
	return t, nil
}

func (e Engine) ensureNoCycle(ctx context.Context, parentID, childID string) error {
	// climb up parent chain to ensure no cycle
	cur := parentID
	for cur != "" {
		if cur == childID {
			return errors.New("task hierarchy cycle detected")
		}
		t, err := e.Repo.GetTask(ctx, cur)
		if err != nil {
			return err
		}
		if t.ParentID == nil {
			return nil
		}
		cur = *t.ParentID
	}
	return nil
}

// TaskUpdateOptions encapsulates allowed updates. Nil pointers leave the
// corresponding field untouched.
type TaskUpdateOptions struct {
	ID             string
	Name           *string
	Description    *string
	Priority       *int
	Status         string
	EstimatedHours *float64
	Deadline       *time.Time
	ClearDeadline  bool
	AddDeps        []string
	RemoveDeps     []string
	SetParent      *string
	SetFixed       *bool
	ActorID        string
	Force          bool
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	if e.Config == nil {
		return domain.Task{}, errors.New("config not loaded")
	}
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	original := t
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if opts.Name != nil {
		if *opts.Name == "" {
			return t, errors.New("name cannot be empty")
		}
		t.Name = *opts.Name
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Priority != nil {
		if *opts.Priority < 1 {
			return t, errors.New("priority must be >= 1")
		}
		t.Priority = *opts.Priority
	}
	if opts.EstimatedHours != nil {
		if *opts.EstimatedHours <= 0 {
			return t, errors.New("estimated hours must be positive")
		}
		t.EstimatedHours = opts.EstimatedHours
	}
	if opts.Deadline != nil {
		t.Deadline = opts.Deadline
	}
	if opts.ClearDeadline {
		t.Deadline = nil
	}
	if opts.SetParent != nil {
		if *opts.SetParent == "" {
			t.ParentID = nil
		} else {
			if _, err := e.Repo.GetTask(ctx, *opts.SetParent); err != nil {
				return t, fmt.Errorf("parent %s: %w", *opts.SetParent, err)
			}
			if err := e.ensureNoCycle(ctx, *opts.SetParent, t.ID); err != nil {
				return t, err
			}
			t.ParentID = opts.SetParent
		}
	}
	if opts.SetFixed != nil {
		t.IsFixed = *opts.SetFixed
	}
	if opts.Status != "" && domain.TaskStatus(opts.Status) != t.Status {
		next := domain.TaskStatus(opts.Status)
		if err := ensureTaskTransition(t.Status, next, opts.Force); err != nil {
			return t, err
		}
		if next == domain.StatusCompleted && !opts.Force {
			if err := e.ensureDependenciesCompleted(ctx, t.ID); err != nil {
				return t, err
			}
		}
		t.Status = next
	}
	t.UpdatedAt = e.now().UTC()

	if len(opts.AddDeps) > 0 {
		for _, dep := range opts.AddDeps {
			if _, err := e.Repo.GetTask(ctx, dep); err != nil {
				return t, fmt.Errorf("dependency %s: %w", dep, err)
			}
		}
		if err := e.Repo.AddDependencies(ctx, tx, t.ID, opts.AddDeps); err != nil {
			return t, err
		}
	}
	if len(opts.RemoveDeps) > 0 {
		if err := e.Repo.RemoveDependencies(ctx, tx, t.ID, opts.RemoveDeps); err != nil {
			return t, err
		}
	}
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "task", t.ID, opts.ActorID, events.EventPayload{
		"from_status": original.Status,
		"to_status":   t.Status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	t.DependsOn, _ = e.Repo.ListTaskDependencies(ctx, t.ID)
	return t, nil
}

func ensureTaskTransition(oldStatus, newStatus domain.TaskStatus, force bool) error {
	if force {
		return nil
	}
	switch oldStatus {
	case domain.StatusPending:
		if newStatus == domain.StatusInProgress || newStatus == domain.StatusCanceled || newStatus == domain.StatusArchived {
			return nil
		}
	case domain.StatusInProgress:
		if newStatus == domain.StatusCompleted || newStatus == domain.StatusCanceled || newStatus == domain.StatusPending {
			return nil
		}
	case domain.StatusCompleted:
		if newStatus == domain.StatusArchived {
			return nil
		}
	case domain.StatusCanceled:
		if newStatus == domain.StatusPending || newStatus == domain.StatusArchived {
			return nil
		}
	}
	return fmt.Errorf("invalid task status transition %s -> %s", oldStatus, newStatus)
}

// CompleteTask marks a task completed after checking its dependencies.
func (e Engine) CompleteTask(ctx context.Context, taskID, actorID string, force bool) (domain.Task, error) {
	if e.Config == nil {
		return domain.Task{}, errors.New("config not loaded")
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return t, err
	}
	if !force {
		if err := e.ensureDependenciesCompleted(ctx, t.ID); err != nil {
			return t, err
		}
	}
	if err := ensureTaskTransition(t.Status, domain.StatusCompleted, force || t.Status == domain.StatusPending); err != nil {
		return t, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	t.Status = domain.StatusCompleted
	t.UpdatedAt = e.now().UTC()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.completed", "task", t.ID, actorID, events.EventPayload{"status": t.Status}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) ensureDependenciesCompleted(ctx context.Context, taskID string) error {
	deps, err := e.Repo.ListTaskDependencies(ctx, taskID)
	if err != nil {
		return err
	}
	for _, d := range deps {
		t, err := e.Repo.GetTask(ctx, d)
		if err != nil {
			return err
		}
		if t.Status != domain.StatusCompleted {
			return fmt.Errorf("dependency %s not completed", d)
		}
	}
	return nil
}

func (e Engine) DeleteTask(ctx context.Context, taskID, actorID string) error {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	children, err := e.Repo.ListChildren(ctx, taskID)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return fmt.Errorf("task %s has %d subtasks; delete or reparent them first", taskID, len(children))
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	// Row and audit event go together; a failed append keeps the task.
	if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", "task", t.ID, actorID, events.EventPayload{"name": t.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// AddNote attaches a free-form note to an existing task.
func (e Engine) AddNote(ctx context.Context, taskID, body, actorID string) (domain.Note, error) {
	if body == "" {
		return domain.Note{}, errors.New("note body is required")
	}
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return domain.Note{}, err
	}
	n := domain.Note{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Body:      body,
		CreatedAt: e.now().UTC(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return n, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertNote(ctx, tx, n); err != nil {
		return n, err
	}
	if err := e.Events.Append(ctx, tx, "note.added", "note", n.ID, actorID, events.EventPayload{"task_id": taskID}); err != nil {
		return n, err
	}
	if err := tx.Commit(); err != nil {
		return n, err
	}
	return n, nil
}

// CreateAPIKey mints a raw key, stores only its hash, and returns both.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	raw := uuid.New().String() + uuid.New().String()
	k := domain.APIKey{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, k); err != nil {
		return k, "", err
	}
	return k, raw, nil
}

// OptimizeRequest parametrizes a persisted optimization run.
type OptimizeRequest struct {
	StartDate      time.Time
	MaxHoursPerDay float64
	Algorithm      string
	ForceOverride  bool
	TaskIDs        []string
	Seed           int64
	Iterations     int
	ActorID        string
}

// Optimize runs the scheduler over the stored task set and persists the
// resulting placements in one transaction.
func (e Engine) Optimize(ctx context.Context, req OptimizeRequest) (schedule.Result, error) {
	if e.Config == nil {
		return schedule.Result{}, errors.New("config not loaded")
	}
	algorithm := req.Algorithm
	if algorithm == "" {
		algorithm = e.Config.Scheduling.DefaultAlgorithm
	}
	maxHours := req.MaxHoursPerDay
	if maxHours <= 0 {
		maxHours = e.Config.Scheduling.MaxHoursPerDay
	}
	start := req.StartDate
	if start.IsZero() {
		start = e.now()
	}

	opt := schedule.Optimizer{
		Source:   repo.TaskSource{Repo: e.Repo},
		Holidays: e.Config.Holidays(),
	}
	result, err := opt.Run(ctx, schedule.Request{
		StartDate:      start,
		MaxHoursPerDay: maxHours,
		Algorithm:      algorithm,
		ForceOverride:  req.ForceOverride,
		TaskIDs:        req.TaskIDs,
		EndOfDayHour:   e.Config.Scheduling.EndOfDayHour,
		Options:        schedule.Options{Seed: req.Seed, Iterations: req.Iterations},
	})
	if err != nil {
		return result, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer tx.Rollback()

	now := e.now().UTC()
	for _, t := range result.Scheduled {
		if err := e.Repo.UpdateSchedule(ctx, tx, t, now); err != nil {
			return result, fmt.Errorf("persist schedule for %s: %w", t.ID, err)
		}
	}
	if err := e.Events.Append(ctx, tx, "schedule.optimized", "schedule", "", req.ActorID, events.EventPayload{
		"algorithm":   algorithm,
		"scheduled":   len(result.Scheduled),
		"failed":      len(result.Failed),
		"total_hours": result.Summary.TotalHours,
	}); err != nil {
		return result, err
	}
	if err := tx.Commit(); err != nil {
		return result, err
	}
	return result, nil
}

// DayLoad is one row of the workload report.
type DayLoad struct {
	Day   string             `json:"day"`
	Hours float64            `json:"hours"`
	Tasks map[string]float64 `json:"tasks"`
}

// WorkloadReport aggregates stored daily allocations into per-day totals.
// Stored allocations are the single source of truth; nothing is recomputed.
func (e Engine) WorkloadReport(ctx context.Context) ([]DayLoad, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return nil, err
	}
	byDay := map[string]*DayLoad{}
	for _, t := range tasks {
		if t.Status.Terminal() {
			continue
		}
		for day, hours := range t.DailyAllocations {
			d, ok := byDay[day]
			if !ok {
				d = &DayLoad{Day: day, Tasks: map[string]float64{}}
				byDay[day] = d
			}
			d.Hours += hours
			d.Tasks[t.ID] += hours
		}
	}
	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)
	out := make([]DayLoad, 0, len(days))
	for _, day := range days {
		out = append(out, *byDay[day])
	}
	return out, nil
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
