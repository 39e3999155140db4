package referral

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/vetref/vetref/internal/domain/timeline"
	"github.com/vetref/vetref/internal/platform/auth"
)

// acceptedCase returns a case assigned to specialistActor.
func acceptedCase(t *testing.T, env *testEnv) uuid.UUID {
	t.Helper()
	id := submittedCase(t, env)
	if _, err := env.svc.Transition(context.Background(), specialistActor, id, ActionAccept, ""); err != nil {
		t.Fatalf("accept: %v", err)
	}
	env.recorder.entries = nil
	return id
}

func TestRespond_Final(t *testing.T) {
	env := newTestEnv()
	id := acceptedCase(t, env)

	r, err := env.svc.Respond(context.Background(), specialistActor, id, &ResponseInput{
		ResponseText:   "  Grade II mitral murmur; start pimobendan.  ",
		Diagnosis:      "Myxomatous mitral valve disease",
		Prognosis:      " ",
		FollowUpNeeded: true,
		FollowUpDate:   "2026-11-20",
		IsFinal:        true,
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if r.ID == uuid.Nil || r.SpecialistID != specialistActor.ID || !r.IsFinal || r.IsDraft {
		t.Errorf("unexpected response %+v", r)
	}
	if r.ResponseText != "Grade II mitral murmur; start pimobendan." {
		t.Errorf("response text not trimmed: %q", r.ResponseText)
	}
	if r.Prognosis != nil || r.Diagnosis == nil {
		t.Errorf("blank optional fields must be nil, got prognosis=%v diagnosis=%v", r.Prognosis, r.Diagnosis)
	}
	if r.FollowUpDate == nil || r.FollowUpDate.Format("2006-01-02") != "2026-11-20" {
		t.Errorf("unexpected follow-up date %v", r.FollowUpDate)
	}

	if len(env.recorder.entries) != 1 {
		t.Fatalf("expected one timeline entry, got %d", len(env.recorder.entries))
	}
	e := env.recorder.entries[0]
	if e.action != timeline.ActionResponseSubmitted || e.desc != "Final specialist response submitted" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.metadata["responseId"] != r.ID.String() || e.metadata["isFinal"] != true {
		t.Errorf("unexpected metadata %v", e.metadata)
	}
}

func TestRespond_DraftIsNeverFinalAndNotRecorded(t *testing.T) {
	env := newTestEnv()
	id := acceptedCase(t, env)

	r, err := env.svc.Respond(context.Background(), specialistActor, id, &ResponseInput{
		ResponseText: "Working notes", IsFinal: true, Draft: true,
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !r.IsDraft || r.IsFinal {
		t.Errorf("draft must not be final: %+v", r)
	}
	if len(env.recorder.entries) != 0 {
		t.Errorf("drafts must not reach the timeline, got %+v", env.recorder.entries)
	}
}

func TestRespond_Validation(t *testing.T) {
	env := newTestEnv()
	id := acceptedCase(t, env)

	tests := []struct {
		name string
		in   *ResponseInput
		want []string
	}{
		{"nil input", nil, []string{msgResponseMissing}},
		{"blank text", &ResponseInput{ResponseText: " \n "}, []string{msgResponseMissing}},
		{"bad date", &ResponseInput{ResponseText: "ok", FollowUpDate: "20/11/2026"}, []string{"Follow-up date must be formatted as YYYY-MM-DD"}},
		{"both", &ResponseInput{FollowUpDate: "soon"}, []string{msgResponseMissing, "Follow-up date must be formatted as YYYY-MM-DD"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Respond(context.Background(), specialistActor, id, tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(verr.Errors) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, verr.Errors)
			}
			for i := range tt.want {
				if verr.Errors[i] != tt.want[i] {
					t.Errorf("error %d: expected %q, got %q", i, tt.want[i], verr.Errors[i])
				}
			}
		})
	}
	if len(env.responses.responses) != 0 {
		t.Errorf("invalid input must not be stored, got %d", len(env.responses.responses))
	}
}

func TestRespond_Permissions(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	in := &ResponseInput{ResponseText: "Recommend echocardiogram"}

	unassigned := submittedCase(t, env)
	if _, err := env.svc.Respond(ctx, specialistActor, unassigned, in); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("responding before accepting should conflict, got %v", err)
	}

	id := acceptedCase(t, env)
	if _, err := env.svc.Respond(ctx, auth.Actor{}, id, in); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := env.svc.Respond(ctx, vetActor, id, in); !errors.Is(err, ErrForbidden) {
		t.Errorf("referring vets cannot respond, got %v", err)
	}
	other := auth.Actor{ID: uuid.New(), Roles: []string{auth.RoleSpecialist}}
	if _, err := env.svc.Respond(ctx, other, id, in); !errors.Is(err, ErrForbidden) {
		t.Errorf("only the assigned specialist may respond, got %v", err)
	}
	admin := auth.Actor{ID: uuid.New(), Roles: []string{auth.RoleAdmin}}
	if _, err := env.svc.Respond(ctx, admin, id, in); err != nil {
		t.Errorf("admins may respond on any case: %v", err)
	}
	if _, err := env.svc.Respond(ctx, specialistActor, uuid.New(), in); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRespond_StoreFailureAndTimelineFailure(t *testing.T) {
	env := newTestEnv()
	id := acceptedCase(t, env)
	in := &ResponseInput{ResponseText: "Surgery recommended"}

	env.responses.err = errors.New("connection reset")
	if _, err := env.svc.Respond(context.Background(), specialistActor, id, in); err == nil {
		t.Fatal("expected the store error to surface")
	}
	if len(env.recorder.entries) != 0 {
		t.Error("nothing may be recorded when the response was not stored")
	}

	env.responses.err = nil
	env.recorder.err = errors.New("timeline unavailable")
	if _, err := env.svc.Respond(context.Background(), specialistActor, id, in); err != nil {
		t.Fatalf("timeline failure must not fail the response: %v", err)
	}
}

func TestResponses_DraftsHiddenFromReferringVet(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := acceptedCase(t, env)

	env.svc.Respond(ctx, specialistActor, id, &ResponseInput{ResponseText: "Initial assessment"})
	env.svc.Respond(ctx, specialistActor, id, &ResponseInput{ResponseText: "Draft plan", Draft: true})

	vetView, err := env.svc.Responses(ctx, vetActor, id)
	if err != nil {
		t.Fatalf("Responses: %v", err)
	}
	if len(vetView) != 1 || vetView[0].ResponseText != "Initial assessment" {
		t.Errorf("referring vet should see only submitted responses, got %+v", vetView)
	}

	specView, _ := env.svc.Responses(ctx, specialistActor, id)
	if len(specView) != 2 || specView[0].ResponseText != "Draft plan" {
		t.Errorf("specialist should see drafts newest first, got %+v", specView)
	}

	stranger := auth.Actor{ID: uuid.New(), Roles: []string{auth.RoleReferringVet}}
	if _, err := env.svc.Responses(ctx, stranger, id); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}
