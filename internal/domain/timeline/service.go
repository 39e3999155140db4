package timeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vetref/vetref/internal/platform/auth"
	"github.com/vetref/vetref/internal/platform/events"
)

var (
	ErrCaseRequired   = errors.New("case id is required")
	ErrActionRequired = errors.New("action is required")
	ErrCaseNotFound   = errors.New("case not found")
	ErrForbidden      = errors.New("not allowed to view this case")
)

// CaseAccess decides whether actor may see a case's timeline. It returns
// nil, or an error wrapping ErrCaseNotFound or ErrForbidden.
type CaseAccess interface {
	CheckCaseAccess(ctx context.Context, actor auth.Actor, caseID uuid.UUID) error
}

// Service appends and reads case timeline entries. After a successful
// append the entry is published as an event; publish failures are logged
// and never surface to the caller.
type Service struct {
	repo      Repository
	publisher events.Publisher
	logger    zerolog.Logger
}

func NewService(repo Repository, publisher events.Publisher, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{repo: repo, publisher: publisher, logger: logger}
}

// Record appends an entry on behalf of actor. description may be empty and
// metadata nil.
func (s *Service) Record(ctx context.Context, actor auth.Actor, caseID uuid.UUID, action, description string, metadata map[string]interface{}) (*Entry, error) {
	if actor.IsZero() {
		return nil, auth.ErrUnauthenticated
	}
	if caseID == uuid.Nil {
		return nil, ErrCaseRequired
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, ErrActionRequired
	}

	e := &Entry{
		CaseID:   caseID,
		ActorID:  actor.ID,
		Action:   action,
		Metadata: metadata,
	}
	if d := strings.TrimSpace(description); d != "" {
		e.Description = &d
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("record %s for case %s: %w", action, caseID, err)
	}

	s.publish(ctx, e)
	return e, nil
}

func (s *Service) publish(ctx context.Context, e *Entry) {
	evt := events.Event{
		ID:         e.ID,
		Type:       e.Action,
		CaseID:     e.CaseID,
		ActorID:    e.ActorID,
		Metadata:   e.Metadata,
		OccurredAt: e.CreatedAt,
	}
	if e.Description != nil {
		evt.Description = *e.Description
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).
			Str("case_id", e.CaseID.String()).
			Str("action", e.Action).
			Msg("timeline event not published")
	}
}

// List returns a page of a case's entries in the requested order.
func (s *Service) List(ctx context.Context, caseID uuid.UUID, order Order, limit, offset int) ([]*Entry, int, error) {
	if caseID == uuid.Nil {
		return nil, 0, ErrCaseRequired
	}
	return s.repo.ListByCase(ctx, caseID, order, limit, offset)
}
