package domain

import "context"

// Action names an entity lifecycle event carried on a binding stream.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// EntityStore persists entities of one model. Implementations must assign the
// primary key on Create and return entities newest id first from List.
type EntityStore[T any] interface {
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, pk int64) (T, error)
	Create(ctx context.Context, entity T) (T, error)
	Update(ctx context.Context, pk int64, entity T) (T, error)
	Delete(ctx context.Context, pk int64) error
}
