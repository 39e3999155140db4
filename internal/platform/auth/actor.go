package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

const (
	RoleReferringVet = "referring_vet"
	RoleSpecialist   = "specialist"
	RoleAdmin        = "admin"
)

// DevUserID is the profile every unauthenticated request acts as in
// development mode.
var DevUserID = uuid.MustParse("6f1e3c2a-9b4d-4e7a-8c1f-0d2b5a7e9c31")

// ErrUnauthenticated is returned by every mutating operation invoked without
// an actor.
var ErrUnauthenticated = errors.New("authentication required")

// Actor is the authenticated identity on whose behalf an operation runs.
// Services take it as an explicit parameter instead of reading a session.
type Actor struct {
	ID    uuid.UUID
	Roles []string
}

func (a Actor) IsZero() bool { return a.ID == uuid.Nil }

// HasRole reports whether the actor holds role. Admins hold every role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

// ActorFromContext builds the Actor placed on ctx by the auth middleware. A
// missing or non-uuid subject yields ErrUnauthenticated.
func ActorFromContext(ctx context.Context) (Actor, error) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil || id == uuid.Nil {
		return Actor{}, ErrUnauthenticated
	}
	return Actor{ID: id, Roles: RolesFromContext(ctx)}, nil
}

// WithActor stores a on ctx in the same shape the middleware uses.
func WithActor(ctx context.Context, a Actor) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, a.ID.String())
	return context.WithValue(ctx, UserRolesKey, a.Roles)
}
