package store

import (
	"context"

	"github.com/slipway-sh/slipway/internal/core/domain"
)

// Store defines the persistence interface for stacks and their resources.
type Store interface {
	// Stacks
	CreateStack(ctx context.Context, stack *domain.Stack) error
	GetStack(ctx context.Context, referenceID string) (*domain.Stack, error)
	GetStackByName(ctx context.Context, name string) (*domain.Stack, error)
	ListStacks(ctx context.Context) ([]domain.Stack, error)
	UpdateStack(ctx context.Context, stack *domain.Stack) error

	// Resources, recorded in apply order so destroy can walk them backwards.
	AddResources(ctx context.Context, stackRefID string, resources []domain.Resource) error
	ListResources(ctx context.Context, stackRefID string) ([]domain.Resource, error)
	DeleteResources(ctx context.Context, stackRefID string) error

	Close() error
}
