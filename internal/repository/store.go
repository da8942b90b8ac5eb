package repository

import (
	"context"
	"time"

	"github.com/iliyamo/mindwell/internal/model"
)

// The interfaces below are implemented by the MySQL repositories in this
// package and by memstore. Mutations of workflow entities go through
// Transition/Update callbacks that run while the entity is locked, so the
// decision and the write see the same state.

// UserStore is the identity and role store.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	List(ctx context.Context, f model.UserFilter) ([]model.User, int, error)
	// Update locks the user, lets fn mutate role/active and persists the result.
	// A role change clears PromotedRole on the user's application, so a
	// later reset never reverts a role that was set here.
	Update(ctx context.Context, id uint64, fn func(u *model.User) error) (*model.User, error)
	TouchLogin(ctx context.Context, id uint64, at time.Time) error
}

// TokenStore keeps hashed refresh tokens.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// SubmitFunc decides what to persist for an applicant given the current
// application (nil when none exists) and the locked applicant record.
type SubmitFunc func(cur *model.TherapistApplication, applicant *model.User) (*model.TherapistApplication, error)

// ApplicationTransitionFunc mutates a locked application and its applicant.
type ApplicationTransitionFunc func(app *model.TherapistApplication, applicant *model.User) error

// ApplicationStore persists therapist applications. Transition commits the
// application status and any applicant role change as one unit.
type ApplicationStore interface {
	Submit(ctx context.Context, applicantID uint64, fn SubmitFunc) (*model.TherapistApplication, error)
	GetByID(ctx context.Context, id uint64) (*model.TherapistApplication, error)
	GetByApplicant(ctx context.Context, userID uint64) (*model.TherapistApplication, error)
	List(ctx context.Context, f model.ApplicationFilter) ([]model.TherapistApplication, int, error)
	Transition(ctx context.Context, id uint64, fn ApplicationTransitionFunc) (*model.TherapistApplication, *model.User, error)
}

// PlanStore persists treatment plans. Create fails with a not-found error
// when the plan's disorder is absent from the knowledge graph.
type PlanStore interface {
	Create(ctx context.Context, p *model.TreatmentPlan) error
	GetByID(ctx context.Context, id uint64) (*model.TreatmentPlan, error)
	List(ctx context.Context, f model.PlanFilter) ([]model.TreatmentPlan, error)
	Transition(ctx context.Context, id uint64, fn func(p *model.TreatmentPlan) error) (*model.TreatmentPlan, error)
}

// ReportStore persists problem reports.
type ReportStore interface {
	Create(ctx context.Context, r *model.ProblemReport) error
	GetByID(ctx context.Context, id uint64) (*model.ProblemReport, error)
	List(ctx context.Context, f model.ReportFilter) ([]model.ProblemReport, int, error)
	Transition(ctx context.Context, id uint64, fn func(r *model.ProblemReport) error) (*model.ProblemReport, error)
}

// ReviewStore persists immutable reviews.
type ReviewStore interface {
	Create(ctx context.Context, r *model.Review) error
	GetByID(ctx context.Context, id uint64) (*model.Review, error)
	List(ctx context.Context, f model.ReviewFilter) ([]model.Review, error)
}

// KnowledgeStore is the disorder/symptom graph. Deletes cascade to links
// in the same unit of work.
type KnowledgeStore interface {
	AddDisorder(ctx context.Context, name string) error
	AddSymptom(ctx context.Context, name string) error
	Link(ctx context.Context, disorder, symptom string) error
	Unlink(ctx context.Context, disorder, symptom string) error
	// DeleteDisorder removes the disorder and its links. With restrict set,
	// a disorder still named by a plan or review is kept and a conflict
	// is returned.
	DeleteDisorder(ctx context.Context, name string, restrict bool) error
	DeleteSymptom(ctx context.Context, name string) error
	DisorderExists(ctx context.Context, name string) (bool, error)
	ListDisorders(ctx context.Context) ([]model.Disorder, error)
	// ListSymptoms returns every symptom, or only those linked to disorder
	// when it is non-empty. An unknown disorder yields an empty list.
	ListSymptoms(ctx context.Context, disorder string) ([]model.Symptom, error)
	LinksForSymptoms(ctx context.Context, symptoms []string) ([]model.DisorderSymptomLink, error)
}
