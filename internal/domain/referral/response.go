package referral

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vetref/vetref/internal/domain/timeline"
	"github.com/vetref/vetref/internal/platform/auth"
)

// Response is a specialist's written consultation on a case. Drafts are
// kept alongside submitted responses but only specialists can read them.
type Response struct {
	ID                       uuid.UUID  `db:"id" json:"id"`
	CaseID                   uuid.UUID  `db:"case_id" json:"case_id"`
	SpecialistID             uuid.UUID  `db:"specialist_id" json:"specialist_id"`
	ResponseText             string     `db:"response_text" json:"response_text"`
	Diagnosis                *string    `db:"diagnosis" json:"diagnosis,omitempty"`
	TreatmentRecommendations *string    `db:"treatment_recommendations" json:"treatment_recommendations,omitempty"`
	Prognosis                *string    `db:"prognosis" json:"prognosis,omitempty"`
	FollowUpNeeded           bool       `db:"follow_up_needed" json:"follow_up_needed"`
	FollowUpDate             *time.Time `db:"follow_up_date" json:"follow_up_date,omitempty"`
	ReferralRecommendations  *string    `db:"referral_recommendations" json:"referral_recommendations,omitempty"`
	IsDraft                  bool       `db:"is_draft" json:"is_draft"`
	IsFinal                  bool       `db:"is_final_response" json:"is_final_response"`
	CreatedAt                time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time  `db:"updated_at" json:"updated_at"`
}

// ResponseInput is the response editor payload. FollowUpDate is a calendar
// date (YYYY-MM-DD). A draft is never final.
type ResponseInput struct {
	ResponseText             string `json:"response_text"`
	Diagnosis                string `json:"diagnosis"`
	TreatmentRecommendations string `json:"treatment_recommendations"`
	Prognosis                string `json:"prognosis"`
	FollowUpNeeded           bool   `json:"follow_up_needed"`
	FollowUpDate             string `json:"follow_up_date"`
	ReferralRecommendations  string `json:"referral_recommendations"`
	IsFinal                  bool   `json:"is_final_response"`
	Draft                    bool   `json:"draft"`
}

const (
	followUpDateLayout = "2006-01-02"
	msgResponseMissing = "Please provide a response before submitting"
)

func (in *ResponseInput) validate() (*time.Time, error) {
	var errs []string
	if strings.TrimSpace(in.ResponseText) == "" {
		errs = append(errs, msgResponseMissing)
	}
	var date *time.Time
	if d := strings.TrimSpace(in.FollowUpDate); d != "" {
		t, err := time.Parse(followUpDateLayout, d)
		if err != nil {
			errs = append(errs, "Follow-up date must be formatted as YYYY-MM-DD")
		} else {
			date = &t
		}
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return date, nil
}

// Respond stores a response from the specialist assigned to the case.
// Submitted responses append a response_submitted timeline entry; drafts do
// not. A failed timeline write is logged and the response is still returned.
func (s *Service) Respond(ctx context.Context, actor auth.Actor, caseID uuid.UUID, in *ResponseInput) (*Response, error) {
	if actor.IsZero() {
		return nil, auth.ErrUnauthenticated
	}
	if !actor.HasRole(auth.RoleSpecialist) {
		return nil, ErrForbidden
	}
	if in == nil {
		return nil, &ValidationError{Errors: []string{msgResponseMissing}}
	}
	date, err := in.validate()
	if err != nil {
		return nil, err
	}

	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.SpecialistID == nil {
		return nil, fmt.Errorf("%w: accept the case before responding", ErrInvalidTransition)
	}
	if *c.SpecialistID != actor.ID && !actor.HasRole(auth.RoleAdmin) {
		return nil, ErrForbidden
	}

	r := &Response{
		CaseID:                   caseID,
		SpecialistID:             actor.ID,
		ResponseText:             strings.TrimSpace(in.ResponseText),
		Diagnosis:                optional(in.Diagnosis),
		TreatmentRecommendations: optional(in.TreatmentRecommendations),
		Prognosis:                optional(in.Prognosis),
		FollowUpNeeded:           in.FollowUpNeeded,
		FollowUpDate:             date,
		ReferralRecommendations:  optional(in.ReferralRecommendations),
		IsDraft:                  in.Draft,
		IsFinal:                  in.IsFinal && !in.Draft,
	}
	if err := s.responses.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create response for case %s: %w", caseID, err)
	}

	if !r.IsDraft {
		desc := "Specialist response submitted"
		if r.IsFinal {
			desc = "Final specialist response submitted"
		}
		s.record(ctx, actor, caseID, timeline.ActionResponseSubmitted, desc, map[string]interface{}{
			"responseId":     r.ID.String(),
			"isFinal":        r.IsFinal,
			"followUpNeeded": r.FollowUpNeeded,
		})
	}
	return r, nil
}

// Responses lists a case's responses newest first. Only specialists see
// drafts.
func (s *Service) Responses(ctx context.Context, actor auth.Actor, caseID uuid.UUID) ([]*Response, error) {
	if _, err := s.Get(ctx, actor, caseID); err != nil {
		return nil, err
	}
	return s.responses.ListByCase(ctx, caseID, actor.HasRole(auth.RoleSpecialist))
}
