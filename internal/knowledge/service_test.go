package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
	"github.com/iliyamo/mindwell/internal/policy"
	"github.com/iliyamo/mindwell/internal/queue"
	"github.com/iliyamo/mindwell/internal/repository/memstore"
)

var (
	therapist = policy.Actor{UserID: 2, Role: model.RoleTherapist}
	patient   = policy.Actor{UserID: 3, Role: model.RoleUser}
)

type countingCache struct{ n int }

func (c *countingCache) Invalidate(context.Context) error { c.n++; return nil }

type capturePublisher struct{ events []queue.WorkflowEvent }

func (p *capturePublisher) Publish(_ context.Context, ev queue.WorkflowEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func newService(t *testing.T, opts ...Option) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	return NewService(st.Knowledge, zaptest.NewLogger(t), opts...), st
}

func seed(t *testing.T, s *Service, graph map[string][]string) {
	t.Helper()
	ctx := context.Background()
	symptoms := map[string]bool{}
	for d, syms := range graph {
		_, err := s.AddDisorder(ctx, therapist, d)
		require.NoError(t, err)
		for _, sym := range syms {
			if !symptoms[sym] {
				_, err := s.AddSymptom(ctx, therapist, sym)
				require.NoError(t, err)
				symptoms[sym] = true
			}
			_, err := s.LinkSymptom(ctx, therapist, d, sym)
			require.NoError(t, err)
		}
	}
}

func TestAddDisorder_DuplicateIsConflict(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.AddDisorder(ctx, therapist, "Anxiety")
	require.NoError(t, err)
	_, err = s.AddDisorder(ctx, therapist, "Anxiety")
	require.ErrorIs(t, err, apperr.ErrConflict)

	// Case-sensitive uniqueness; surrounding whitespace is not significant.
	_, err = s.AddDisorder(ctx, therapist, "anxiety")
	require.NoError(t, err)
	_, err = s.AddDisorder(ctx, therapist, "  Anxiety ")
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestMutations_RequireTherapist(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.AddDisorder(ctx, patient, "X")
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)
	_, err = s.AddSymptom(ctx, patient, "Y")
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)
	_, err = s.LinkSymptom(ctx, patient, "X", "Y")
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)
	require.ErrorIs(t, s.UnlinkSymptom(ctx, patient, "X", "Y"), apperr.ErrPermissionDenied)
	require.ErrorIs(t, s.DeleteDisorder(ctx, patient, "X"), apperr.ErrPermissionDenied)
	require.ErrorIs(t, s.DeleteSymptom(ctx, patient, "Y"), apperr.ErrPermissionDenied)

	_, err = s.ListDisorders(ctx, policy.Actor{UserID: 9})
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)
}

func TestNames_Validated(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.AddDisorder(ctx, therapist, "   ")
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = s.AddSymptom(ctx, therapist, "")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLinking(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	seed(t, s, map[string][]string{"Depression": {"Fatigue"}})

	_, err := s.LinkSymptom(ctx, therapist, "Depression", "Fatigue")
	require.ErrorIs(t, err, apperr.ErrConflict)
	_, err = s.LinkSymptom(ctx, therapist, "Depression", "Ghost")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.LinkSymptom(ctx, therapist, "Ghost", "Fatigue")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, s.UnlinkSymptom(ctx, therapist, "Depression", "Fatigue"))
	require.ErrorIs(t, s.UnlinkSymptom(ctx, therapist, "Depression", "Fatigue"), apperr.ErrNotFound)

	syms, err := s.ListSymptoms(ctx, patient, "")
	require.NoError(t, err)
	assert.Equal(t, []model.Symptom{{Name: "Fatigue"}}, syms)
}

func TestDeleteDisorder_CascadesLinks(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	seed(t, s, map[string][]string{
		"Depression": {"Fatigue", "Sadness"},
		"Insomnia":   {"Fatigue"},
	})

	require.NoError(t, s.DeleteDisorder(ctx, therapist, "Depression"))

	syms, err := s.ListSymptoms(ctx, patient, "Depression")
	require.NoError(t, err)
	assert.Empty(t, syms)

	// Symptoms themselves survive; other disorders keep their links.
	all, err := s.ListSymptoms(ctx, patient, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	ins, err := s.ListSymptoms(ctx, patient, "Insomnia")
	require.NoError(t, err)
	assert.Equal(t, []model.Symptom{{Name: "Fatigue"}}, ins)

	// Re-adding the name starts with no links.
	_, err = s.AddDisorder(ctx, therapist, "Depression")
	require.NoError(t, err)
	syms, err = s.ListSymptoms(ctx, patient, "Depression")
	require.NoError(t, err)
	assert.Empty(t, syms)

	require.ErrorIs(t, s.DeleteDisorder(ctx, therapist, "Nope"), apperr.ErrNotFound)
}

func TestDeleteSymptom_CascadesLinks(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	seed(t, s, map[string][]string{
		"Depression": {"Fatigue", "Sadness"},
		"Insomnia":   {"Fatigue"},
	})

	require.NoError(t, s.DeleteSymptom(ctx, therapist, "Fatigue"))

	dep, err := s.ListSymptoms(ctx, patient, "Depression")
	require.NoError(t, err)
	assert.Equal(t, []model.Symptom{{Name: "Sadness"}}, dep)
	ins, err := s.ListSymptoms(ctx, patient, "Insomnia")
	require.NoError(t, err)
	assert.Empty(t, ins)

	require.ErrorIs(t, s.DeleteSymptom(ctx, therapist, "Fatigue"), apperr.ErrNotFound)
}

func TestDeleteDisorder_RestrictPolicy(t *testing.T) {
	s, st := newService(t, WithRestrictedDelete(true))
	ctx := context.Background()
	seed(t, s, map[string][]string{"Anxiety": {"Worry"}, "Phobia": {"Worry"}})

	doc := &model.User{Username: "doc", Email: "doc@x.io", Role: model.RoleTherapist, IsActive: true}
	pat := &model.User{Username: "pat", Email: "pat@x.io", Role: model.RoleUser, IsActive: true}
	require.NoError(t, st.Users.Create(ctx, doc))
	require.NoError(t, st.Users.Create(ctx, pat))
	require.NoError(t, st.Plans.Create(ctx, &model.TreatmentPlan{
		PatientUserID: pat.ID, TherapistUserID: doc.ID, DisorderName: "Anxiety",
		PlanText: "p", DurationWeeks: 3, Status: model.PlanActive,
	}))

	require.ErrorIs(t, s.DeleteDisorder(ctx, therapist, "Anxiety"), apperr.ErrConflict)
	links, err := s.ListSymptoms(ctx, patient, "Anxiety")
	require.NoError(t, err)
	assert.Len(t, links, 1, "refused delete must leave links intact")

	require.NoError(t, s.DeleteDisorder(ctx, therapist, "Phobia"))
}

func TestListDisorders_Sorted(t *testing.T) {
	s, _ := newService(t)
	seed(t, s, map[string][]string{"PTSD": nil, "ADHD": nil, "Bipolar": nil})

	got, err := s.ListDisorders(context.Background(), patient)
	require.NoError(t, err)
	assert.Equal(t, []model.Disorder{{Name: "ADHD"}, {Name: "Bipolar"}, {Name: "PTSD"}}, got)
}

func TestDiagnose(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	seed(t, s, map[string][]string{
		"Depression": {"Fatigue", "Sadness", "Insomnia"},
		"Anxiety":    {"Worry", "Insomnia"},
		"ADHD":       {"Restlessness"},
	})

	got, err := s.Diagnose(ctx, patient, []string{"Insomnia", " Sadness ", "Insomnia", "Unknown"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Depression", got[0].Disorder)
	assert.Equal(t, []string{"Insomnia", "Sadness"}, got[0].MatchedSymptoms)
	assert.InDelta(t, 200.0/3, got[0].Score, 1e-9)

	assert.Equal(t, "Anxiety", got[1].Disorder)
	assert.InDelta(t, 100.0/3, got[1].Score, 1e-9)

	_, err = s.Diagnose(ctx, patient, []string{" ", ""})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDiagnose_TiesSortByName(t *testing.T) {
	s, _ := newService(t)
	seed(t, s, map[string][]string{"Beta": {"S"}, "Alpha": {"S"}})

	got, err := s.Diagnose(context.Background(), patient, []string{"S"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Alpha", got[0].Disorder)
	assert.Equal(t, 100.0, got[0].Score)
	assert.Equal(t, "Beta", got[1].Disorder)
}

func TestMutations_InvalidateAndPublish(t *testing.T) {
	cache := &countingCache{}
	pub := &capturePublisher{}
	s, _ := newService(t, WithInvalidator(cache), WithPublisher(pub))
	ctx := context.Background()

	_, err := s.AddDisorder(ctx, therapist, "Anxiety")
	require.NoError(t, err)
	_, err = s.AddDisorder(ctx, therapist, "Anxiety")
	require.Error(t, err)

	assert.Equal(t, 1, cache.n, "failed mutation must not invalidate")
	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, queue.EventKnowledgeChanged, ev.Type)
	assert.Equal(t, "Anxiety", ev.EntityID)
	assert.Equal(t, "add_disorder", ev.Data["operation"])
}

type failingStore struct{ *memstore.Knowledge }

func (failingStore) ListDisorders(context.Context) ([]model.Disorder, error) {
	return nil, errors.New("connection reset")
}

func TestInternalErrorsPassThrough(t *testing.T) {
	st := memstore.New()
	s := NewService(failingStore{st.Knowledge}, zaptest.NewLogger(t))
	_, err := s.ListDisorders(context.Background(), patient)
	require.Error(t, err)
	assert.Nil(t, apperr.Kind(err))
}
