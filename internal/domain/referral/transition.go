package referral

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vetref/vetref/internal/domain/timeline"
	"github.com/vetref/vetref/internal/platform/auth"
)

// Action is a status change a specialist can request.
type Action string

const (
	ActionAccept          Action = "accept"
	ActionDecline         Action = "decline"
	ActionStart           Action = "start"
	ActionComplete        Action = "complete"
	ActionRequestFollowUp Action = "follow_up"
)

type transition struct {
	from        []Status
	to          Status
	assign      bool // the acting specialist takes the case
	ownerOnly   bool // only the assigned specialist may act
	event       string
	description string
}

var transitions = map[Action]transition{
	ActionAccept: {
		from: []Status{StatusSubmitted}, to: StatusReviewing, assign: true,
		event: timeline.ActionAccepted, description: "Case accepted for review",
	},
	ActionDecline: {
		from: []Status{StatusSubmitted}, to: StatusDeclined,
		event: timeline.ActionDeclined, description: "Case declined",
	},
	ActionStart: {
		from: []Status{StatusReviewing, StatusFollowUpNeeded}, to: StatusInProgress, ownerOnly: true,
		event: timeline.ActionStarted, description: "Specialist review started",
	},
	ActionComplete: {
		from: []Status{StatusInProgress}, to: StatusCompleted, ownerOnly: true,
		event: timeline.ActionCompleted, description: "Case completed",
	},
	ActionRequestFollowUp: {
		from: []Status{StatusReviewing, StatusInProgress, StatusCompleted}, to: StatusFollowUpNeeded, ownerOnly: true,
		event: timeline.ActionFollowUpRequested, description: "Follow-up requested",
	},
}

func ParseAction(s string) (Action, bool) {
	a := Action(s)
	_, ok := transitions[a]
	return a, ok
}

func (t transition) allowedFrom(s Status) bool {
	for _, f := range t.from {
		if f == s {
			return true
		}
	}
	return false
}

// Transition moves a case through its lifecycle on behalf of a specialist
// and records the change on the timeline. The current status is read and
// then overwritten; two specialists racing on one case resolve as last
// write wins.
func (s *Service) Transition(ctx context.Context, actor auth.Actor, caseID uuid.UUID, action Action, note string) (*Case, error) {
	if actor.IsZero() {
		return nil, auth.ErrUnauthenticated
	}
	if !actor.HasRole(auth.RoleSpecialist) {
		return nil, ErrForbidden
	}
	t, ok := transitions[action]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}

	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !t.allowedFrom(c.Status) {
		return nil, fmt.Errorf("%w: cannot %s a case that is %s", ErrInvalidTransition, action, c.Status)
	}
	if t.ownerOnly && c.SpecialistID != nil && *c.SpecialistID != actor.ID && !actor.HasRole(auth.RoleAdmin) {
		return nil, ErrForbidden
	}

	ch := StatusChange{
		Status:       t.to,
		MarkAccepted: action == ActionAccept,
		MarkComplete: t.to == StatusCompleted,
	}
	if t.assign {
		id := actor.ID
		ch.SpecialistID = &id
	}
	updated, err := s.cases.UpdateStatus(ctx, caseID, ch)
	if err != nil {
		return nil, fmt.Errorf("update case %s status: %w", caseID, err)
	}

	desc := t.description
	if n := strings.TrimSpace(note); n != "" {
		desc += ": " + n
	}
	s.record(ctx, actor, caseID, t.event, desc, map[string]interface{}{
		"from": string(c.Status),
		"to":   string(t.to),
	})
	return updated, nil
}
