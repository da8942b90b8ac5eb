package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
)

func TestReviews(t *testing.T) {
	f := newFixture(t)
	doc := f.user(t, "doc", model.RoleTherapist)
	pat := f.user(t, "pat", model.RoleUser)
	other := f.user(t, "other", model.RoleUser)

	in := model.NewReview{PatientUserID: pat.UserID, Title: "Intake", Content: "Notes", DisorderName: "Anxiety", Specialty: "CBT"}

	_, err := f.engine.CreateReview(f.ctx, pat, in)
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)

	bad := in
	bad.Content = " "
	_, err = f.engine.CreateReview(f.ctx, doc, bad)
	require.ErrorIs(t, err, apperr.ErrValidation)

	r, err := f.engine.CreateReview(f.ctx, doc, in)
	require.NoError(t, err)
	assert.Equal(t, doc.UserID, r.TherapistUserID)

	_, err = f.engine.GetReview(f.ctx, pat, r.ID)
	require.NoError(t, err)
	_, err = f.engine.GetReview(f.ctx, other, r.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	// A plain user's filter is always narrowed to their own reviews.
	got, err := f.engine.ListReviews(f.ctx, other, model.ReviewFilter{PatientUserID: pat.UserID})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = f.engine.ListReviews(f.ctx, doc, model.ReviewFilter{DisorderName: "Anxiety"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
