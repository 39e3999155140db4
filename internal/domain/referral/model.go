package referral

import (
	"time"

	"github.com/google/uuid"
)

type Species string

const (
	SpeciesDog    Species = "dog"
	SpeciesCat    Species = "cat"
	SpeciesHorse  Species = "horse"
	SpeciesBird   Species = "bird"
	SpeciesRabbit Species = "rabbit"
	SpeciesOther  Species = "other"
)

var validSpecies = map[Species]bool{
	SpeciesDog: true, SpeciesCat: true, SpeciesHorse: true,
	SpeciesBird: true, SpeciesRabbit: true, SpeciesOther: true,
}

type SpayNeuterStatus string

const (
	Spayed   SpayNeuterStatus = "spayed"
	Neutered SpayNeuterStatus = "neutered"
	Intact   SpayNeuterStatus = "intact"
)

var validSpayNeuter = map[SpayNeuterStatus]bool{Spayed: true, Neutered: true, Intact: true}

type Status string

const (
	StatusSubmitted      Status = "submitted"
	StatusReviewing      Status = "reviewing"
	StatusInProgress     Status = "in_progress"
	StatusCompleted      Status = "completed"
	StatusFollowUpNeeded Status = "follow_up_needed"
	StatusDeclined       Status = "declined"
)

var validStatuses = map[Status]bool{
	StatusSubmitted: true, StatusReviewing: true, StatusInProgress: true,
	StatusCompleted: true, StatusFollowUpNeeded: true, StatusDeclined: true,
}

type Urgency string

const (
	UrgencyRoutine   Urgency = "routine"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

var validUrgencies = map[Urgency]bool{UrgencyRoutine: true, UrgencyUrgent: true, UrgencyEmergency: true}

type Specialty string

const (
	SpecialtyAnesthesia       Specialty = "anesthesia"
	SpecialtyCardiology       Specialty = "cardiology"
	SpecialtyDermatology      Specialty = "dermatology"
	SpecialtyEmergency        Specialty = "emergency"
	SpecialtyInternalMedicine Specialty = "internal_medicine"
	SpecialtyNeurology        Specialty = "neurology"
	SpecialtyOncology         Specialty = "oncology"
	SpecialtyOphthalmology    Specialty = "ophthalmology"
	SpecialtyOrthopedics      Specialty = "orthopedics"
	SpecialtySurgery          Specialty = "surgery"
)

var validSpecialties = map[Specialty]bool{
	SpecialtyAnesthesia: true, SpecialtyCardiology: true, SpecialtyDermatology: true,
	SpecialtyEmergency: true, SpecialtyInternalMedicine: true, SpecialtyNeurology: true,
	SpecialtyOncology: true, SpecialtyOphthalmology: true, SpecialtyOrthopedics: true,
	SpecialtySurgery: true,
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, validStatuses[st]
}

func ParseUrgency(s string) (Urgency, bool) {
	u := Urgency(s)
	return u, validUrgencies[u]
}

// Case maps to the cases table. Identity and signalment columns are written
// once at submission; afterwards only status, assignment and the
// accepted/completed stamps change. Timestamps are assigned by the store.
type Case struct {
	ID                  uuid.UUID          `db:"id" json:"id"`
	ReferringVetID      uuid.UUID          `db:"referring_vet_id" json:"referring_vet_id"`
	PatientName         string             `db:"patient_name" json:"patient_name"`
	Species             Species            `db:"species" json:"species"`
	OtherSpeciesType    *string            `db:"other_species_type" json:"other_species_type,omitempty"`
	Breed               *string            `db:"breed" json:"breed,omitempty"`
	AgeYears            *int               `db:"age_years" json:"age_years,omitempty"`
	AgeMonths           *int               `db:"age_months" json:"age_months,omitempty"`
	WeightKg            float64            `db:"weight_kg" json:"weight_kg"`
	SpayNeuterStatus    SpayNeuterStatus   `db:"spay_neuter_status" json:"spay_neuter_status"`
	ChiefComplaint      string             `db:"chief_complaint" json:"chief_complaint"`
	PresentingComplaint string             `db:"presenting_complaint" json:"presenting_complaint"`
	AnesthesiaHistory   *AnesthesiaHistory `db:"anesthesia_history" json:"anesthesia_history,omitempty"`
	PhysicalExamination *PhysicalExam      `db:"physical_examination" json:"physical_examination,omitempty"`
	VitalSigns          *VitalSigns        `db:"vital_signs" json:"vital_signs,omitempty"`
	CurrentMedications  []Medication       `db:"current_medications" json:"current_medications"`
	Status              Status             `db:"status" json:"status"`
	Urgency             Urgency            `db:"urgency" json:"urgency"`
	SpecialtyRequested  Specialty          `db:"specialty_requested" json:"specialty_requested"`
	SpecialistID        *uuid.UUID         `db:"specialist_id" json:"specialist_id,omitempty"`
	SubmittedAt         time.Time          `db:"submitted_at" json:"submitted_at"`
	AcceptedAt          *time.Time         `db:"accepted_at" json:"accepted_at,omitempty"`
	CompletedAt         *time.Time         `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt           time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `db:"updated_at" json:"updated_at"`
}

// Document maps to case_documents: an uploaded file linked to a case.
// SignedURL is filled on read and never stored.
type Document struct {
	ID          uuid.UUID `db:"id" json:"id"`
	CaseID      uuid.UUID `db:"case_id" json:"case_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	Bucket      string    `db:"bucket" json:"bucket"`
	FilePath    string    `db:"file_path" json:"file_path"`
	FileURL     string    `db:"file_url" json:"file_url"`
	FileType    string    `db:"file_type" json:"file_type"`
	MimeType    *string   `db:"mime_type" json:"mime_type,omitempty"`
	FileSize    int64     `db:"file_size" json:"file_size"`
	Description *string   `db:"description" json:"description,omitempty"`
	IsPrimary   bool      `db:"is_primary" json:"is_primary"`
	UploadedBy  uuid.UUID `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	SignedURL   string    `db:"-" json:"signed_url,omitempty"`
}

// CaseFilter narrows List. Zero fields are ignored.
type CaseFilter struct {
	ReferringVetID *uuid.UUID
	SpecialistID   *uuid.UUID
	Status         Status
	Urgency        Urgency
	Search         string
}

// StatusChange is the patch applied by a status transition.
type StatusChange struct {
	Status       Status
	SpecialistID *uuid.UUID
	MarkAccepted bool
	MarkComplete bool
}
