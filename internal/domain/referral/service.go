package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vetref/vetref/internal/domain/attachment"
	"github.com/vetref/vetref/internal/domain/timeline"
	"github.com/vetref/vetref/internal/platform/auth"
	"github.com/vetref/vetref/internal/platform/blobstore"
)

var (
	ErrNotFound          = errors.New("case not found")
	ErrCaseCreate        = errors.New("failed to create case")
	ErrForbidden         = errors.New("not allowed to act on this case")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoDocuments       = errors.New("no uploaded files to link")
)

// TimelineRecorder appends audit entries. *timeline.Service satisfies it.
type TimelineRecorder interface {
	Record(ctx context.Context, actor auth.Actor, caseID uuid.UUID, action, description string, metadata map[string]interface{}) (*timeline.Entry, error)
}

// Outcome is the result of a successful submission. The case exists
// whenever an Outcome is returned; DocumentLinkWarnings lists attachments
// that could not be linked to it.
type Outcome struct {
	CaseID               uuid.UUID `json:"case_id"`
	DocumentsLinked      int       `json:"documents_linked"`
	DocumentLinkWarnings []string  `json:"document_link_warnings,omitempty"`
}

// Degraded reports whether the case was created without all of its
// attachments.
func (o *Outcome) Degraded() bool { return len(o.DocumentLinkWarnings) > 0 }

type Service struct {
	cases     CaseRepository
	docs      DocumentRepository
	responses ResponseRepository
	store     blobstore.ObjectStore
	recorder  TimelineRecorder
	logger    zerolog.Logger
	urlTTL    time.Duration
}

func NewService(cases CaseRepository, docs DocumentRepository, responses ResponseRepository, store blobstore.ObjectStore, recorder TimelineRecorder, logger zerolog.Logger, urlTTL time.Duration) *Service {
	if urlTTL <= 0 {
		urlTTL = time.Hour
	}
	return &Service{cases: cases, docs: docs, responses: responses, store: store, recorder: recorder, logger: logger, urlTTL: urlTTL}
}

// Submit creates a case from a referring vet's intake. Authentication,
// validation and case creation fail closed: on error nothing was written.
// Linking the uploaded files is best effort and reported through the
// outcome's warnings; the case is never rolled back for it.
func (s *Service) Submit(ctx context.Context, actor auth.Actor, sub *Submission) (*Outcome, error) {
	if actor.IsZero() {
		return nil, auth.ErrUnauthenticated
	}
	if sub == nil {
		return nil, &ValidationError{Errors: []string{"Submission is required"}}
	}
	if res := ValidateSubmission(sub); !res.IsValid {
		return nil, &ValidationError{Errors: res.Errors}
	}

	c := sub.newCase(actor.ID)
	if err := s.cases.Create(ctx, c); err != nil {
		s.logger.Error().Err(err).Str("actor", actor.ID.String()).Msg("case creation failed")
		return nil, fmt.Errorf("%w: %w", ErrCaseCreate, err)
	}

	out := &Outcome{CaseID: c.ID}
	docs, warnings := documentsFor(c.ID, actor.ID, attachment.BloodTests, sub.BloodTestFiles)
	more, w := documentsFor(c.ID, actor.ID, attachment.MedicalRecords, sub.MedicalRecordFiles)
	docs, warnings = append(docs, more...), append(warnings, w...)

	if err := s.link(ctx, docs); err != nil {
		s.logger.Error().Err(err).
			Str("case_id", c.ID.String()).
			Int("documents", len(docs)).
			Msg("case created but documents were not linked")
		warnings = append(warnings, fmt.Sprintf("%d document(s) not linked: %v", len(docs), err))
	} else {
		out.DocumentsLinked = len(docs)
	}
	out.DocumentLinkWarnings = warnings
	return out, nil
}

// link inserts docs in one transaction. A panic below the repository is
// reported as an error so the already-created case is still returned.
func (s *Service) link(ctx context.Context, docs []*Document) (err error) {
	if len(docs) == 0 {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected error: %v", r)
		}
	}()
	return s.docs.CreateBatch(ctx, docs)
}

var documentDescriptions = map[attachment.Category]string{
	attachment.CategoryBloodTest:     "Blood test image",
	attachment.CategoryMedicalRecord: "Medical record document",
}

// documentsFor turns the successful upload results of one category into
// case documents. Failed uploads were already reported to the user and are
// skipped silently; references the uploader does not own, or that point at
// another category's bucket, are skipped with a warning.
func documentsFor(caseID, uploader uuid.UUID, p attachment.Policy, refs []attachment.Result) ([]*Document, []string) {
	var docs []*Document
	var warnings []string
	desc := documentDescriptions[p.Category]
	for _, r := range refs {
		if !r.Success || r.URL == "" || r.Name == "" {
			continue
		}
		switch {
		case r.Path == "":
			warnings = append(warnings, fmt.Sprintf("%s: missing storage path", r.Name))
			continue
		case r.Bucket != "" && r.Bucket != p.Bucket:
			warnings = append(warnings, fmt.Sprintf("%s: stored in %q, expected %q", r.Name, r.Bucket, p.Bucket))
			continue
		case !attachment.OwnedBy(r.Path, uploader):
			warnings = append(warnings, fmt.Sprintf("%s: not uploaded by the submitting user", r.Name))
			continue
		}
		d := &Document{
			CaseID:      caseID,
			FileName:    r.Name,
			Bucket:      p.Bucket,
			FilePath:    r.Path,
			FileURL:     r.URL,
			FileType:    string(p.Category),
			FileSize:    r.Size,
			Description: &desc,
			UploadedBy:  uploader,
		}
		if r.ContentType != "" {
			ct := r.ContentType
			d.MimeType = &ct
		}
		docs = append(docs, d)
	}
	return docs, warnings
}

// RecordSubmitted appends the case_submitted timeline entry for a finished
// submission. It is called by the caller after Submit; failures are logged
// and otherwise ignored.
func (s *Service) RecordSubmitted(ctx context.Context, actor auth.Actor, out *Outcome, sub *Submission) {
	if s.recorder == nil || out == nil {
		return
	}
	meta := map[string]interface{}{
		"filesUploaded": map[string]interface{}{
			"bloodTests":     countSuccessful(sub.BloodTestFiles),
			"medicalRecords": countSuccessful(sub.MedicalRecordFiles),
		},
	}
	if out.Degraded() {
		meta["documentLinkWarnings"] = out.DocumentLinkWarnings
	}
	s.record(ctx, actor, out.CaseID, timeline.ActionCaseSubmitted, "Case submitted for specialist review", meta)
}

func countSuccessful(refs []attachment.Result) int {
	n := 0
	for _, r := range refs {
		if r.Success {
			n++
		}
	}
	return n
}

func (s *Service) record(ctx context.Context, actor auth.Actor, caseID uuid.UUID, action, description string, meta map[string]interface{}) {
	if s.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("case_id", caseID.String()).Str("action", action).Msg("timeline entry not recorded")
		}
	}()
	if _, err := s.recorder.Record(ctx, actor, caseID, action, description, meta); err != nil {
		s.logger.Warn().Err(err).Str("case_id", caseID.String()).Str("action", action).Msg("timeline entry not recorded")
	}
}

// Attach links further uploads to an existing case. Unlike Submit, the
// documents are the point of the call, so a linking failure is an error.
func (s *Service) Attach(ctx context.Context, actor auth.Actor, caseID uuid.UUID, category attachment.Category, refs []attachment.Result) (*Outcome, error) {
	c, err := s.Get(ctx, actor, caseID)
	if err != nil {
		return nil, err
	}
	p, ok := attachment.PolicyFor(category)
	if !ok {
		return nil, fmt.Errorf("unknown document category %q", category)
	}

	docs, warnings := documentsFor(c.ID, actor.ID, p, refs)
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	if err := s.link(ctx, docs); err != nil {
		return nil, fmt.Errorf("link documents to case %s: %w", c.ID, err)
	}

	s.record(ctx, actor, c.ID, timeline.ActionDocumentsAttached, fmt.Sprintf("%d document(s) attached", len(docs)),
		map[string]interface{}{"category": string(category), "count": len(docs)})
	return &Outcome{CaseID: c.ID, DocumentsLinked: len(docs), DocumentLinkWarnings: warnings}, nil
}

// canView reports whether actor may read c: its referring vet, any
// specialist, or an admin.
func canView(actor auth.Actor, c *Case) bool {
	return c.ReferringVetID == actor.ID || actor.HasRole(auth.RoleSpecialist)
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Case, error) {
	if actor.IsZero() {
		return nil, auth.ErrUnauthenticated
	}
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, c) {
		return nil, ErrForbidden
	}
	return c, nil
}

// CheckCaseAccess applies the Get visibility rule for the case timeline.
func (s *Service) CheckCaseAccess(ctx context.Context, actor auth.Actor, caseID uuid.UUID) error {
	_, err := s.Get(ctx, actor, caseID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %w", timeline.ErrCaseNotFound, err)
	case errors.Is(err, ErrForbidden):
		return fmt.Errorf("%w: %w", timeline.ErrForbidden, err)
	default:
		return err
	}
}

// List returns a page of cases. Callers without the specialist role only
// ever see their own referrals.
func (s *Service) List(ctx context.Context, actor auth.Actor, f CaseFilter, limit, offset int) ([]*Case, int, error) {
	if actor.IsZero() {
		return nil, 0, auth.ErrUnauthenticated
	}
	if !actor.HasRole(auth.RoleSpecialist) {
		id := actor.ID
		f.ReferringVetID = &id
	}
	return s.cases.List(ctx, f, limit, offset)
}

// Documents lists a case's documents, each with a time-limited signed URL.
// A URL that cannot be signed is left empty.
func (s *Service) Documents(ctx context.Context, actor auth.Actor, caseID uuid.UUID) ([]*Document, error) {
	if _, err := s.Get(ctx, actor, caseID); err != nil {
		return nil, err
	}
	docs, err := s.docs.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return docs, nil
	}
	for _, d := range docs {
		u, err := s.store.SignedURL(ctx, d.Bucket, d.FilePath, s.urlTTL)
		if err != nil {
			s.logger.Warn().Err(err).Str("document_id", d.ID.String()).Msg("signed url not created")
			continue
		}
		d.SignedURL = u
	}
	return docs, nil
}
