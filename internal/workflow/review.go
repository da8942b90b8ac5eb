package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
	"github.com/iliyamo/mindwell/internal/policy"
	"github.com/iliyamo/mindwell/internal/queue"
)

// CreateReview stores a therapist's review of a patient. Reviews have no
// lifecycle; they are never updated after creation.
func (e *Engine) CreateReview(ctx context.Context, a policy.Actor, in model.NewReview) (*model.Review, error) {
	defer observe("create_review", time.Now())
	if err := policy.Authorize(a, model.RoleTherapist); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.DisorderName = strings.TrimSpace(in.DisorderName)
	in.Specialty = strings.TrimSpace(in.Specialty)
	switch {
	case in.PatientUserID == 0:
		return nil, apperr.Validation("patient_user_id is required")
	case in.Title == "":
		return nil, apperr.Validation("title is required")
	case in.Content == "":
		return nil, apperr.Validation("content is required")
	case in.DisorderName == "":
		return nil, apperr.Validation("disorder_name is required")
	}

	r := &model.Review{
		TherapistUserID: a.UserID,
		PatientUserID:   in.PatientUserID,
		Title:           in.Title,
		Content:         in.Content,
		DisorderName:    in.DisorderName,
		Specialty:       in.Specialty,
		CreatedAt:       e.now(),
	}
	if err := e.reviews.Create(ctx, r); err != nil {
		e.logFailure("create_review", err)
		return nil, err
	}

	ev := e.event(a, queue.EventReviewCreated, r.ID)
	ev.Data = map[string]string{"patient_user_id": uintStr(r.PatientUserID), "disorder_name": r.DisorderName}
	e.emit(ctx, ev)
	return r, nil
}

// GetReview returns a review to its patient or to staff.
func (e *Engine) GetReview(ctx context.Context, a policy.Actor, id uint64) (*model.Review, error) {
	if err := policy.Authorize(a, model.RoleUser); err != nil {
		return nil, err
	}
	r, err := e.reviews.GetByID(ctx, id)
	if err != nil {
		e.logFailure("get_review", err)
		return nil, err
	}
	if r.PatientUserID != a.UserID && !policy.IsStaff(a) {
		return nil, apperr.NotFound("review %d", id)
	}
	return r, nil
}

// ListReviews lists reviews. Plain users only ever see reviews about
// themselves, whatever the filter asks for.
func (e *Engine) ListReviews(ctx context.Context, a policy.Actor, f model.ReviewFilter) ([]model.Review, error) {
	if err := policy.Authorize(a, model.RoleUser); err != nil {
		return nil, err
	}
	if !policy.IsStaff(a) {
		f.PatientUserID = a.UserID
	}
	f.DisorderName = strings.TrimSpace(f.DisorderName)
	reviews, err := e.reviews.List(ctx, f)
	e.logFailure("list_reviews", err)
	return reviews, err
}
