package model

import "time"

// Review is a therapist's written assessment of a patient. Reviews are
// immutable once created.
type Review struct {
	ID              uint64    `json:"id"`
	TherapistUserID uint64    `json:"therapist_user_id"`
	PatientUserID   uint64    `json:"patient_user_id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	DisorderName    string    `json:"disorder_name"`
	Specialty       string    `json:"specialty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewReview is the input to review creation.
type NewReview struct {
	PatientUserID uint64 `json:"patient_user_id"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	DisorderName  string `json:"disorder_name"`
	Specialty     string `json:"specialty"`
}

// ReviewFilter narrows review listings.
type ReviewFilter struct {
	DisorderName  string
	PatientUserID uint64
}
