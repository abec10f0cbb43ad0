package repository

import (
	"context"

	"github.com/sakif/sandboxd/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type ExecutionRepository interface {
	Create(ctx context.Context, execution *model.Execution) error
	GetByID(ctx context.Context, id string) (*model.Execution, error)
	List(ctx context.Context, opts ListOptions) ([]model.Execution, error)
}
