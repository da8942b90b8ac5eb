package model

import "time"

// ReportStatus is the triage state of a problem report.
type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportInProgress ReportStatus = "in_progress"
	ReportResolved   ReportStatus = "resolved"
	ReportClosed     ReportStatus = "closed"
)

// ReportCategory classifies a problem report.
type ReportCategory string

const (
	CategoryTechnical  ReportCategory = "technical"
	CategoryContent    ReportCategory = "content"
	CategorySuggestion ReportCategory = "suggestion"
	CategoryOther      ReportCategory = "other"
)

// Valid reports whether c is a known category.
func (c ReportCategory) Valid() bool {
	switch c {
	case CategoryTechnical, CategoryContent, CategorySuggestion, CategoryOther:
		return true
	}
	return false
}

// ProblemReport is a user-filed issue triaged by staff.
type ProblemReport struct {
	ID             uint64         `json:"id"`
	ReporterUserID uint64         `json:"reporter_user_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Category       ReportCategory `json:"category"`
	Status         ReportStatus   `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewProblemReport is the input to report creation.
type NewProblemReport struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    ReportCategory `json:"category"`
}

// ReportFilter narrows staff listings. ReporterUserID restricts results
// to a single reporter.
type ReportFilter struct {
	ReporterUserID uint64
	Status         ReportStatus
	Category       ReportCategory
	Skip           int
	Limit          int
}
