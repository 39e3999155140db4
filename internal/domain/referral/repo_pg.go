package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vetref/vetref/internal/platform/db"
)

// =========== Case Repository ===========

type caseRepoPG struct{ pool *pgxpool.Pool }

func NewCaseRepoPG(pool *pgxpool.Pool) CaseRepository { return &caseRepoPG{pool: pool} }

func (r *caseRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const caseCols = `id, referring_vet_id, patient_name, species, other_species_type, breed,
	age_years, age_months, weight_kg, spay_neuter_status,
	chief_complaint, presenting_complaint,
	anesthesia_history, physical_examination, vital_signs, current_medications,
	status, urgency, specialty_requested, specialist_id,
	submitted_at, accepted_at, completed_at, created_at, updated_at`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.ReferringVetID, &c.PatientName, &c.Species, &c.OtherSpeciesType, &c.Breed,
		&c.AgeYears, &c.AgeMonths, &c.WeightKg, &c.SpayNeuterStatus,
		&c.ChiefComplaint, &c.PresentingComplaint,
		&c.AnesthesiaHistory, &c.PhysicalExamination, &c.VitalSigns, &c.CurrentMedications,
		&c.Status, &c.Urgency, &c.SpecialtyRequested, &c.SpecialistID,
		&c.SubmittedAt, &c.AcceptedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (r *caseRepoPG) Create(ctx context.Context, c *Case) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO cases (referring_vet_id, patient_name, species, other_species_type, breed,
			age_years, age_months, weight_kg, spay_neuter_status,
			chief_complaint, presenting_complaint,
			anesthesia_history, physical_examination, vital_signs, current_medications,
			status, urgency, specialty_requested)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id, submitted_at, created_at, updated_at`,
		c.ReferringVetID, c.PatientName, c.Species, c.OtherSpeciesType, c.Breed,
		c.AgeYears, c.AgeMonths, c.WeightKg, c.SpayNeuterStatus,
		c.ChiefComplaint, c.PresentingComplaint,
		c.AnesthesiaHistory, c.PhysicalExamination, c.VitalSigns, c.CurrentMedications,
		c.Status, c.Urgency, c.SpecialtyRequested,
	).Scan(&c.ID, &c.SubmittedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (r *caseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM cases WHERE id = $1`, id))
}

func caseWhere(f CaseFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.ReferringVetID != nil {
		add("referring_vet_id = $%d", *f.ReferringVetID)
	}
	if f.SpecialistID != nil {
		add("specialist_id = $%d", *f.SpecialistID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Urgency != "" {
		add("urgency = $%d", f.Urgency)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		add(`(patient_name ILIKE $%[1]d ESCAPE '\' OR chief_complaint ILIKE $%[1]d ESCAPE '\')`, "%"+escapeLike(s)+"%")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string { return likeEscaper.Replace(s) }

func (r *caseRepoPG) List(ctx context.Context, f CaseFilter, limit, offset int) ([]*Case, int, error) {
	where, args := caseWhere(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM cases`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cases: %w", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT `+caseCols+` FROM cases%s ORDER BY submitted_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, n+1, n+2),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var items []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan case: %w", err)
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *caseRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, ch StatusChange) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx, `
		UPDATE cases SET
			status = $2,
			specialist_id = COALESCE($3, specialist_id),
			accepted_at = CASE WHEN $4 THEN NOW() ELSE accepted_at END,
			completed_at = CASE WHEN $5 THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+caseCols,
		id, ch.Status, ch.SpecialistID, ch.MarkAccepted, ch.MarkComplete))
}

// =========== Document Repository ===========

type documentRepoPG struct{ pool *pgxpool.Pool }

func NewDocumentRepoPG(pool *pgxpool.Pool) DocumentRepository { return &documentRepoPG{pool: pool} }

func (r *documentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const documentCols = `id, case_id, file_name, bucket, file_path, file_url, file_type,
	mime_type, file_size, description, is_primary, uploaded_by, created_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.CaseID, &d.FileName, &d.Bucket, &d.FilePath, &d.FileURL, &d.FileType,
		&d.MimeType, &d.FileSize, &d.Description, &d.IsPrimary, &d.UploadedBy, &d.CreatedAt)
	return &d, err
}

func (r *documentRepoPG) CreateBatch(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		batch := &pgx.Batch{}
		for _, d := range docs {
			d := d
			batch.Queue(`
				INSERT INTO case_documents (case_id, file_name, bucket, file_path, file_url, file_type,
					mime_type, file_size, description, is_primary, uploaded_by)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
				RETURNING id, created_at`,
				d.CaseID, d.FileName, d.Bucket, d.FilePath, d.FileURL, d.FileType,
				d.MimeType, d.FileSize, d.Description, d.IsPrimary, d.UploadedBy,
			).QueryRow(func(row pgx.Row) error {
				return row.Scan(&d.ID, &d.CreatedAt)
			})
		}
		return r.conn(ctx).SendBatch(ctx, batch).Close()
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("insert case documents: %w", ErrNotFound)
		}
		return fmt.Errorf("insert case documents: %w", err)
	}
	return nil
}

func (r *documentRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*Document, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+documentCols+` FROM case_documents WHERE case_id = $1 ORDER BY created_at, id`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list case documents: %w", err)
	}
	defer rows.Close()

	var items []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case document: %w", err)
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// =========== Response Repository ===========

type responseRepoPG struct{ pool *pgxpool.Pool }

func NewResponseRepoPG(pool *pgxpool.Pool) ResponseRepository { return &responseRepoPG{pool: pool} }

func (r *responseRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const responseCols = `id, case_id, specialist_id, response_text, diagnosis, treatment_recommendations,
	prognosis, follow_up_needed, follow_up_date, referral_recommendations,
	is_draft, is_final_response, created_at, updated_at`

func scanResponse(row pgx.Row) (*Response, error) {
	var x Response
	err := row.Scan(&x.ID, &x.CaseID, &x.SpecialistID, &x.ResponseText, &x.Diagnosis, &x.TreatmentRecommendations,
		&x.Prognosis, &x.FollowUpNeeded, &x.FollowUpDate, &x.ReferralRecommendations,
		&x.IsDraft, &x.IsFinal, &x.CreatedAt, &x.UpdatedAt)
	return &x, err
}

func (r *responseRepoPG) Create(ctx context.Context, x *Response) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO case_responses (case_id, specialist_id, response_text, diagnosis, treatment_recommendations,
			prognosis, follow_up_needed, follow_up_date, referral_recommendations, is_draft, is_final_response)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at, updated_at`,
		x.CaseID, x.SpecialistID, x.ResponseText, x.Diagnosis, x.TreatmentRecommendations,
		x.Prognosis, x.FollowUpNeeded, x.FollowUpDate, x.ReferralRecommendations, x.IsDraft, x.IsFinal,
	).Scan(&x.ID, &x.CreatedAt, &x.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("insert case response: %w", ErrNotFound)
		}
		return fmt.Errorf("insert case response: %w", err)
	}
	return nil
}

func (r *responseRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, includeDrafts bool) ([]*Response, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+responseCols+` FROM case_responses
		WHERE case_id = $1 AND ($2 OR NOT is_draft)
		ORDER BY created_at DESC, id DESC`, caseID, includeDrafts)
	if err != nil {
		return nil, fmt.Errorf("list case responses: %w", err)
	}
	defer rows.Close()

	var items []*Response
	for rows.Next() {
		x, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case response: %w", err)
		}
		items = append(items, x)
	}
	return items, rows.Err()
}
