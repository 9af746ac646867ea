package repo

import (
	"context"

	"planline/internal/domain"
)

// TaskSource adapts Repo to the optimizer's read-only view of tasks.
type TaskSource struct {
	Repo Repo
}

func (s TaskSource) GetAll(ctx context.Context) ([]domain.Task, error) {
	return s.Repo.ListTasks(ctx, TaskFilters{})
}

func (s TaskSource) GetChildren(ctx context.Context, id string) ([]domain.Task, error) {
	return s.Repo.ListChildren(ctx, id)
}

func (s TaskSource) GetByID(ctx context.Context, id string) (domain.Task, error) {
	return s.Repo.GetTask(ctx, id)
}
