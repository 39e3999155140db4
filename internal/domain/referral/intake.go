package referral

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/vetref/vetref/internal/domain/attachment"
)

// Submission is the full intake form as posted by a referring vet, together
// with the results of the uploads made for it beforehand.
type Submission struct {
	Signalment         Signalment          `json:"signalment"`
	ChiefComplaint     string              `json:"chief_complaint"`
	AnesthesiaHistory  AnesthesiaHistory   `json:"anesthesia_history"`
	Examination        Examination         `json:"medical_examination"`
	Medications        []MedicationInput   `json:"medications"`
	Urgency            Urgency             `json:"urgency,omitempty"`
	SpecialtyRequested Specialty           `json:"specialty_requested,omitempty"`
	BloodTestFiles     []attachment.Result `json:"blood_test_files"`
	MedicalRecordFiles []attachment.Result `json:"medical_record_files"`
}

type Signalment struct {
	Species          Species          `json:"species"`
	OtherSpeciesType string           `json:"other_species_type,omitempty"`
	Breed            string           `json:"breed,omitempty"`
	AgeYears         *int             `json:"age_years"`
	AgeMonths        *int             `json:"age_months,omitempty"`
	Weight           float64          `json:"weight"`
	SpayNeuterStatus SpayNeuterStatus `json:"spay_neuter_status"`
	PatientName      string           `json:"patient_name"`
}

type AnesthesiaHistory struct {
	HadAnesthesia *bool  `json:"had_anesthesia"`
	HadProblems   bool   `json:"had_problems"`
	ProblemsNotes string `json:"problems_notes,omitempty"`
}

type SystemExam struct {
	HasIssues bool   `json:"has_issues"`
	Notes     string `json:"notes"`
}

// TPR holds temperature, pulse and respiration as typed by the vet.
type TPR struct {
	Temperature string `json:"temperature"`
	Pulse       string `json:"pulse"`
	Respiratory string `json:"respiratory"`
}

// Examination is the system-by-system exam as entered on the form.
type Examination struct {
	TPR              TPR        `json:"tpr"`
	Cardiovascular   SystemExam `json:"cardiovascular"`
	Auscultation     string     `json:"auscultation,omitempty"`
	Respiratory      SystemExam `json:"respiratory"`
	Gastrointestinal SystemExam `json:"gastrointestinal"`
	Urogenital       SystemExam `json:"urogenital"`
	Renal            SystemExam `json:"renal"`
	Hepatic          SystemExam `json:"hepatic"`
	Musculoskeletal  SystemExam `json:"musculoskeletal"`
	Neurological     SystemExam `json:"neurological"`
	Dermatological   SystemExam `json:"dermatological"`
	Ophthalmic       SystemExam `json:"ophthalmic"`
	OralDental       SystemExam `json:"oral_dental"`
	Lymphatic        SystemExam `json:"lymphatic"`
	Endocrine        SystemExam `json:"endocrine"`
	OtherSystem      struct {
		Checked bool   `json:"checked"`
		Notes   string `json:"notes"`
	} `json:"other_system"`
}

type MedicationInput struct {
	DrugName string `json:"drug_name"`
	Dose     string `json:"dose"`
	Unit     string `json:"unit"`
}

// Stored forms of the clinical sections.

type CardiovascularExam struct {
	SystemExam
	Auscultation *string `json:"auscultation"`
}

type ExamSystems struct {
	Cardiovascular   CardiovascularExam `json:"cardiovascular"`
	Respiratory      SystemExam         `json:"respiratory"`
	Gastrointestinal SystemExam         `json:"gastrointestinal"`
	Urogenital       SystemExam         `json:"urogenital"`
	Renal            SystemExam         `json:"renal"`
	Hepatic          SystemExam         `json:"hepatic"`
	Musculoskeletal  SystemExam         `json:"musculoskeletal"`
	Neurological     SystemExam         `json:"neurological"`
	Dermatological   SystemExam         `json:"dermatological"`
	Ophthalmic       SystemExam         `json:"ophthalmic"`
	OralDental       SystemExam         `json:"oral_dental"`
	Lymphatic        SystemExam         `json:"lymphatic"`
	Endocrine        SystemExam         `json:"endocrine"`
	Other            *string            `json:"other"`
}

type PhysicalExam struct {
	TPR     TPR         `json:"tpr"`
	Systems ExamSystems `json:"systems"`
}

// VitalSigns are the parsed TPR values; anything unparseable is null.
type VitalSigns struct {
	Temperature *float64 `json:"temperature"`
	Pulse       *int     `json:"pulse"`
	Respiratory *int     `json:"respiratory"`
}

type Medication struct {
	DrugName string  `json:"drug_name"`
	Dose     float64 `json:"dose"`
	Unit     string  `json:"unit"`
}

// ValidationResult lists every rule the submission breaks.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// ValidationError is returned by Submit when the intake is incomplete.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Errors, ", ")
}

// MaxWeightKg is the exclusive upper bound on patient weight. weight_kg is
// NUMERIC(7,2), so heavier values could not be stored.
const MaxWeightKg = 10000

// ValidateSubmission checks the required and conditional intake fields and
// reports all violations at once.
func ValidateSubmission(s *Submission) ValidationResult {
	var errs []string
	sig := s.Signalment

	switch {
	case sig.Species == "":
		errs = append(errs, "Species is required")
	case !validSpecies[sig.Species]:
		errs = append(errs, fmt.Sprintf("Species %q is not supported", sig.Species))
	}
	if sig.Species == SpeciesOther && strings.TrimSpace(sig.OtherSpeciesType) == "" {
		errs = append(errs, `Please specify the species type when "Other" is selected`)
	}

	switch {
	case sig.AgeYears == nil:
		errs = append(errs, "Age is required")
	case *sig.AgeYears < 0:
		errs = append(errs, "Age cannot be negative")
	case *sig.AgeYears == 0 && (sig.AgeMonths == nil || *sig.AgeMonths == 0):
		errs = append(errs, "Age in months is required when age is 0 years")
	}
	if sig.AgeMonths != nil && (*sig.AgeMonths < 0 || *sig.AgeMonths > 11) {
		errs = append(errs, "Age in months must be between 0 and 11")
	}

	switch {
	case sig.Weight <= 0:
		errs = append(errs, "Weight is required and must be greater than 0")
	case sig.Weight >= MaxWeightKg:
		errs = append(errs, fmt.Sprintf("Weight must be less than %d kg", MaxWeightKg))
	}

	switch {
	case sig.SpayNeuterStatus == "":
		errs = append(errs, "Reproductive status is required")
	case !validSpayNeuter[sig.SpayNeuterStatus]:
		errs = append(errs, fmt.Sprintf("Reproductive status %q is not valid", sig.SpayNeuterStatus))
	}

	if strings.TrimSpace(sig.PatientName) == "" {
		errs = append(errs, "Patient name is required")
	}
	if strings.TrimSpace(s.ChiefComplaint) == "" {
		errs = append(errs, "Chief complaint / Surgery type is required")
	}

	if s.Urgency != "" && !validUrgencies[s.Urgency] {
		errs = append(errs, fmt.Sprintf("Urgency %q is not valid", s.Urgency))
	}
	if s.SpecialtyRequested != "" && !validSpecialties[s.SpecialtyRequested] {
		errs = append(errs, fmt.Sprintf("Specialty %q is not valid", s.SpecialtyRequested))
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// NormalizeExam groups the per-system findings under "systems". The
// auscultation note travels with the cardiovascular system and "other" is
// kept only when ticked.
func NormalizeExam(e Examination) *PhysicalExam {
	pe := &PhysicalExam{
		TPR: e.TPR,
		Systems: ExamSystems{
			Cardiovascular:   CardiovascularExam{SystemExam: e.Cardiovascular, Auscultation: optional(e.Auscultation)},
			Respiratory:      e.Respiratory,
			Gastrointestinal: e.Gastrointestinal,
			Urogenital:       e.Urogenital,
			Renal:            e.Renal,
			Hepatic:          e.Hepatic,
			Musculoskeletal:  e.Musculoskeletal,
			Neurological:     e.Neurological,
			Dermatological:   e.Dermatological,
			Ophthalmic:       e.Ophthalmic,
			OralDental:       e.OralDental,
			Lymphatic:        e.Lymphatic,
			Endocrine:        e.Endocrine,
		},
	}
	if e.OtherSystem.Checked {
		notes := e.OtherSystem.Notes
		pe.Systems.Other = &notes
	}
	return pe
}

// NormalizeVitals parses TPR text leniently: a leading number is taken
// ("38.5C" is 38.5) and anything else becomes null.
func NormalizeVitals(t TPR) *VitalSigns {
	return &VitalSigns{
		Temperature: leadingFloat(t.Temperature),
		Pulse:       leadingInt(t.Pulse),
		Respiratory: leadingInt(t.Respiratory),
	}
}

// NormalizeMedications drops rows without a drug name or dose and turns the
// dose into a number, 0 when it cannot be read.
func NormalizeMedications(in []MedicationInput) []Medication {
	out := []Medication{}
	for _, m := range in {
		name := strings.TrimSpace(m.DrugName)
		if name == "" || strings.TrimSpace(m.Dose) == "" {
			continue
		}
		var dose float64
		if v := leadingFloat(m.Dose); v != nil {
			dose = *v
		}
		out = append(out, Medication{DrugName: name, Dose: dose, Unit: m.Unit})
	}
	return out
}

var (
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
)

func leadingFloat(s string) *float64 {
	m := floatPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

func leadingInt(s string) *int {
	m := intPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return nil
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &v
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// newCase builds the row inserted for a valid submission. Status and
// defaults are fixed here; timestamps are left to the store.
func (s *Submission) newCase(referringVet uuid.UUID) *Case {
	sig := s.Signalment
	c := &Case{
		ReferringVetID:      referringVet,
		PatientName:         strings.TrimSpace(sig.PatientName),
		Species:             sig.Species,
		OtherSpeciesType:    optional(sig.OtherSpeciesType),
		Breed:               optional(sig.Breed),
		AgeYears:            sig.AgeYears,
		WeightKg:            sig.Weight,
		SpayNeuterStatus:    sig.SpayNeuterStatus,
		ChiefComplaint:      strings.TrimSpace(s.ChiefComplaint),
		PresentingComplaint: strings.TrimSpace(s.ChiefComplaint),
		PhysicalExamination: NormalizeExam(s.Examination),
		VitalSigns:          NormalizeVitals(s.Examination.TPR),
		CurrentMedications:  NormalizeMedications(s.Medications),
		Status:              StatusSubmitted,
		Urgency:             s.Urgency,
		SpecialtyRequested:  s.SpecialtyRequested,
	}
	if sig.AgeMonths != nil && *sig.AgeMonths > 0 {
		c.AgeMonths = sig.AgeMonths
	}
	ah := s.AnesthesiaHistory
	c.AnesthesiaHistory = &ah
	if c.Urgency == "" {
		c.Urgency = UrgencyRoutine
	}
	if c.SpecialtyRequested == "" {
		c.SpecialtyRequested = SpecialtyInternalMedicine
	}
	return c
}
