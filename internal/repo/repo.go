package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"planline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,name,COALESCE(description,'') AS description,priority,status,estimated_hours,deadline,planned_start,planned_end,daily_allocations_json,is_fixed,parent_id,created_at,updated_at`

func scanTask(scan func(...any) error) (domain.Task, error) {
	var t domain.Task
	var estimated sql.NullFloat64
	var deadline, plannedStart, plannedEnd, allocJSON, parentID sql.NullString
	var isFixed int
	var createdAt, updatedAt string
	err := scan(&t.ID, &t.Name, &t.Description, &t.Priority, &t.Status,
		&estimated, &deadline, &plannedStart, &plannedEnd, &allocJSON, &isFixed, &parentID,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if estimated.Valid {
		t.EstimatedHours = &estimated.Float64
	}
	t.Deadline = parseTime(deadline)
	t.PlannedStart = parseTime(plannedStart)
	t.PlannedEnd = parseTime(plannedEnd)
	if allocJSON.Valid && allocJSON.String != "" {
		_ = json.Unmarshal([]byte(allocJSON.String), &t.DailyAllocations)
	}
	t.IsFixed = isFixed != 0
	if parentID.Valid && parentID.String != "" {
		t.ParentID = &parentID.String
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	alloc, err := marshalAllocations(t.DailyAllocations)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks(id,name,description,priority,status,estimated_hours,deadline,planned_start,planned_end,daily_allocations_json,is_fixed,parent_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, nullable(t.Description), t.Priority, t.Status,
		nullableFloat(t.EstimatedHours), fmtTime(t.Deadline), fmtTime(t.PlannedStart), fmtTime(t.PlannedEnd),
		alloc, boolInt(t.IsFixed), nullablePtr(t.ParentID),
		t.CreatedAt.UTC().Format(time.RFC3339), t.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err != nil {
		return t, err
	}
	t.DependsOn, err = r.ListTaskDependencies(ctx, id)
	return t, err
}

type TaskFilters struct {
	Status string
	Parent string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Parent != "" {
		clauses = append(clauses, "parent_id=?")
		args = append(args, f.Parent)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.attachDependencies(ctx, tasks)
}

// attachDependencies fills DependsOn for a batch with one query.
func (r Repo) attachDependencies(ctx context.Context, tasks []domain.Task) ([]domain.Task, error) {
	if len(tasks) == 0 {
		return tasks, nil
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT task_id, depends_on FROM task_dependencies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	deps := map[string][]string{}
	for rows.Next() {
		var taskID, dep string
		if err := rows.Scan(&taskID, &dep); err != nil {
			return nil, err
		}
		deps[taskID] = append(deps[taskID], dep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range tasks {
		d := deps[tasks[i].ID]
		sort.Strings(d)
		tasks[i].DependsOn = d
	}
	return tasks, nil
}

func (r Repo) ListChildren(ctx context.Context, id string) ([]domain.Task, error) {
	return r.ListTasks(ctx, TaskFilters{Parent: id})
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	alloc, err := marshalAllocations(t.DailyAllocations)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET name=?, description=?, priority=?, status=?, estimated_hours=?, deadline=?, planned_start=?, planned_end=?, daily_allocations_json=?, is_fixed=?, parent_id=?, updated_at=? WHERE id=?`,
		t.Name, nullable(t.Description), t.Priority, t.Status,
		nullableFloat(t.EstimatedHours), fmtTime(t.Deadline), fmtTime(t.PlannedStart), fmtTime(t.PlannedEnd),
		alloc, boolInt(t.IsFixed), nullablePtr(t.ParentID),
		t.UpdatedAt.UTC().Format(time.RFC3339), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSchedule writes only the scheduler-owned fields of a task.
func (r Repo) UpdateSchedule(ctx context.Context, tx *sql.Tx, t domain.Task, now time.Time) error {
	alloc, err := marshalAllocations(t.DailyAllocations)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET planned_start=?, planned_end=?, daily_allocations_json=?, updated_at=? WHERE id=?`,
		fmtTime(t.PlannedStart), fmtTime(t.PlannedEnd), alloc, now.UTC().Format(time.RFC3339), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AddDependencies(ctx context.Context, tx *sql.Tx, taskID string, deps []string) error {
	for _, dep := range deps {
		if dep == taskID {
			return fmt.Errorf("task %s cannot depend on itself", taskID)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_dependencies(task_id, depends_on) VALUES (?,?)`, taskID, dep); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) RemoveDependencies(ctx context.Context, tx *sql.Tx, taskID string, deps []string) error {
	for _, dep := range deps {
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id=? AND depends_on=?`, taskID, dep); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListTaskDependencies(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT depends_on FROM task_dependencies WHERE task_id=? ORDER BY depends_on`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deps []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

func (r Repo) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, n int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if n <= 0 {
		n = 20
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- helpers ---

func marshalAllocations(alloc map[string]float64) (any, error) {
	if len(alloc) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(alloc)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func fmtTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
