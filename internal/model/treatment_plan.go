package model

import "time"

// PlanStatus is the lifecycle state of a treatment plan.
type PlanStatus string

const (
	PlanActive    PlanStatus = "Active"
	PlanCompleted PlanStatus = "Completed"
	PlanCanceled  PlanStatus = "Canceled"
)

// Duration bounds for a plan, in weeks.
const (
	MinPlanWeeks = 1
	MaxPlanWeeks = 52
)

// TreatmentPlan is authored by a therapist for a patient and names the
// disorder it treats. DisorderName is a label: it existed when the plan
// was created but may since have been removed from the knowledge graph.
type TreatmentPlan struct {
	ID              uint64     `json:"id"`
	PatientUserID   uint64     `json:"patient_user_id"`
	TherapistUserID uint64     `json:"therapist_user_id"`
	DisorderName    string     `json:"disorder_name"`
	PlanText        string     `json:"plan_text"`
	DurationWeeks   int        `json:"duration_weeks"`
	Status          PlanStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewTreatmentPlan is the input to plan creation.
type NewTreatmentPlan struct {
	PatientUserID   uint64 `json:"patient_user_id"`
	TherapistUserID uint64 `json:"therapist_user_id"`
	DisorderName    string `json:"disorder_name"`
	PlanText        string `json:"plan_text"`
	DurationWeeks   int    `json:"duration_weeks"`
}

// PlanFilter scopes plan listings. Zero values match everything the
// caller is allowed to read.
type PlanFilter struct {
	PatientUserID   uint64
	TherapistUserID uint64
	Status          PlanStatus
}
