package timeline

import (
	"time"

	"github.com/google/uuid"
)

// Known actions. The column is free text; these are the values the service
// itself writes.
const (
	ActionCaseSubmitted     = "case_submitted"
	ActionAccepted          = "accepted"
	ActionDeclined          = "declined"
	ActionStarted           = "started"
	ActionCompleted         = "completed"
	ActionFollowUpRequested = "follow_up_requested"
	ActionDocumentsAttached = "documents_attached"
	ActionResponseSubmitted = "response_submitted"
)

var serviceActions = map[string]bool{
	ActionCaseSubmitted:     true,
	ActionAccepted:          true,
	ActionDeclined:          true,
	ActionStarted:           true,
	ActionCompleted:         true,
	ActionFollowUpRequested: true,
	ActionDocumentsAttached: true,
	ActionResponseSubmitted: true,
}

// IsServiceAction reports whether action is written only by the case
// services as a side effect of the operation it names.
func IsServiceAction(action string) bool { return serviceActions[action] }

// Entry maps to the case_timeline table. Entries are append-only.
type Entry struct {
	ID          uuid.UUID              `db:"id" json:"id"`
	CaseID      uuid.UUID              `db:"case_id" json:"case_id"`
	ActorID     uuid.UUID              `db:"user_id" json:"user_id"`
	Action      string                 `db:"action" json:"action"`
	Description *string                `db:"description" json:"description,omitempty"`
	Metadata    map[string]interface{} `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
}

// Order selects how entries are read back: newest first for display,
// oldest first to replay a case's history.
type Order string

const (
	NewestFirst Order = "desc"
	OldestFirst Order = "asc"
)

// ParseOrder maps "asc"/"desc" to an Order, defaulting to NewestFirst.
func ParseOrder(s string) Order {
	if Order(s) == OldestFirst {
		return OldestFirst
	}
	return NewestFirst
}
