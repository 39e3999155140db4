package timeline

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Append inserts e and fills in the store-assigned ID and CreatedAt.
	Append(ctx context.Context, e *Entry) error
	ListByCase(ctx context.Context, caseID uuid.UUID, order Order, limit, offset int) ([]*Entry, int, error)
}
