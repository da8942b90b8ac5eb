package model

import "time"

// ApplicationStatus is the review state of a therapist application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// TherapistApplication is a user's request to be granted the therapist
// role. There is at most one per applicant.
type TherapistApplication struct {
	ID                uint64            `json:"id"`
	ApplicantUserID   uint64            `json:"applicant_user_id"`
	FullName          string            `json:"full_name"`
	Email             string            `json:"email"`
	Specialty         string            `json:"specialty"`
	LicenseNumber     string            `json:"license_number"`
	Certification     string            `json:"certification"`
	ExperienceYears   int               `json:"experience_years"`
	DocumentReference string            `json:"document_reference,omitempty"`
	Status            ApplicationStatus `json:"status"`
	// PromotedRole records the role granted by the most recent approval so a
	// reset can tell whether the applicant's current role came from it.
	PromotedRole Role      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ApplicationFields carries the professional details supplied at submission.
type ApplicationFields struct {
	FullName          string `json:"full_name"`
	Email             string `json:"email"`
	Specialty         string `json:"specialty"`
	LicenseNumber     string `json:"license_number"`
	Certification     string `json:"certification"`
	ExperienceYears   int    `json:"experience_years"`
	DocumentReference string `json:"document_reference"`
}

// ApplicationFilter narrows reviewer listings. An empty Status matches all.
type ApplicationFilter struct {
	Status ApplicationStatus
	Skip   int
	Limit  int
}
