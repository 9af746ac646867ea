package server

import (
	"time"

	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/schedule"
)

type CreateTaskRequest struct {
	ID             *string  `json:"id,omitempty"`
	Name           string   `json:"name"`
	Description    *string  `json:"description,omitempty"`
	Priority       *int     `json:"priority,omitempty" minimum:"1"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	Deadline       *string  `json:"deadline,omitempty" format:"date-time"`
	DependsOn      []string `json:"depends_on,omitempty"`
	ParentID       *string  `json:"parent_id,omitempty"`
	IsFixed        *bool    `json:"is_fixed,omitempty"`
}

type UpdateTaskRequest struct {
	Name           *string  `json:"name,omitempty"`
	Description    *string  `json:"description,omitempty"`
	Priority       *int     `json:"priority,omitempty" minimum:"1"`
	Status         string   `json:"status,omitempty" enum:",pending,in_progress,completed,canceled,archived"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	Deadline       *string  `json:"deadline,omitempty" format:"date-time"`
	ClearDeadline  bool     `json:"clear_deadline,omitempty"`
	AddDeps        []string `json:"add_deps,omitempty"`
	RemoveDeps     []string `json:"remove_deps,omitempty"`
	ParentID       *string  `json:"parent_id,omitempty"`
	IsFixed        *bool    `json:"is_fixed,omitempty"`
	Force          bool     `json:"force,omitempty"`
}

type TaskResponse struct {
	domain.Task
	AllocatedHours float64 `json:"allocated_hours"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{Task: t, AllocatedHours: t.AllocatedHours()}
}

func mapTasks(in []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(in))
	for _, t := range in {
		out = append(out, taskResponse(t))
	}
	return out
}

type AddNoteRequest struct {
	Body string `json:"body"`
}

type OptimizeRequest struct {
	Algorithm      string   `json:"algorithm,omitempty"`
	StartDate      *string  `json:"start_date,omitempty" format:"date-time"`
	MaxHoursPerDay *float64 `json:"max_hours_per_day,omitempty"`
	Force          bool     `json:"force,omitempty"`
	TaskIDs        []string `json:"task_ids,omitempty"`
	Seed           int64    `json:"seed,omitempty"`
	Iterations     int      `json:"iterations,omitempty"`
}

type OptimizeResponse struct {
	SuccessfulTasks []TaskResponse             `json:"successful_tasks"`
	FailedTasks     []domain.SchedulingFailure `json:"failed_tasks,omitempty"`
	Summary         domain.OptimizationSummary `json:"summary"`
}

func optimizeResponse(res schedule.Result) OptimizeResponse {
	return OptimizeResponse{
		SuccessfulTasks: mapTasks(res.Scheduled),
		FailedTasks:     res.Failed,
		Summary:         res.Summary,
	}
}

type AlgorithmResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

func mapAlgorithms(in []schedule.AlgorithmInfo) []AlgorithmResponse {
	out := make([]AlgorithmResponse, 0, len(in))
	for _, a := range in {
		out = append(out, AlgorithmResponse{ID: a.ID, DisplayName: a.DisplayName, Description: a.Description})
	}
	return out
}

type ScheduleResponse struct {
	Days []engine.DayLoad `json:"days"`
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
