package referral

import (
	"context"

	"github.com/google/uuid"
)

type CaseRepository interface {
	// Create inserts c and fills its id and store-assigned timestamps.
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)
	List(ctx context.Context, f CaseFilter, limit, offset int) ([]*Case, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, ch StatusChange) (*Case, error)
}

type DocumentRepository interface {
	// CreateBatch inserts all docs or none.
	CreateBatch(ctx context.Context, docs []*Document) error
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*Document, error)
}

type ResponseRepository interface {
	// Create inserts r and fills its id and timestamps.
	Create(ctx context.Context, r *Response) error
	// ListByCase returns newest first. Drafts are included only when
	// includeDrafts is set.
	ListByCase(ctx context.Context, caseID uuid.UUID, includeDrafts bool) ([]*Response, error)
}
