package knowledge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/repository"
)

// SeedEntry is one disorder with the symptoms linked to it.
type SeedEntry struct {
	Disorder string
	Symptoms []string
}

// DefaultGraph is the starter knowledge graph loaded by cmd/seed.
var DefaultGraph = []SeedEntry{
	{"Anxiety", []string{"Excessive worry", "Restlessness", "Difficulty concentrating", "Sleep problems", "Muscle tension"}},
	{"Depression", []string{"Persistent sadness", "Loss of interest", "Changes in appetite", "Sleep disturbances", "Fatigue"}},
	{"Generalized Anxiety Disorder", []string{"Chronic worry", "Difficulty controlling worry", "Physical tension", "Sleep disturbances", "Irritability"}},
	{"Major Depressive Disorder", []string{"Severe depression", "Hopelessness", "Loss of pleasure", "Weight changes", "Suicidal thoughts"}},
	{"Panic Disorder", []string{"Panic attacks", "Fear of panic attacks", "Avoidance behavior", "Heart palpitations", "Sweating"}},
	{"Bipolar Disorder", []string{"Mood swings", "Manic episodes", "Depressive episodes", "Changes in energy", "Impulsivity"}},
	{"Post-Traumatic Stress Disorder", []string{"Flashbacks", "Nightmares", "Avoidance", "Hypervigilance", "Emotional numbness"}},
	{"Obsessive-Compulsive Disorder", []string{"Intrusive thoughts", "Compulsive behaviors", "Anxiety about rituals", "Time-consuming rituals", "Distress when rituals interrupted"}},
}

// SeedStats counts what Seed actually created.
type SeedStats struct {
	Disorders int
	Symptoms  int
	Links     int
}

// Seed loads entries into store. Existing disorders, symptoms and links are
// skipped, so running it twice is harmless.
func Seed(ctx context.Context, store repository.KnowledgeStore, entries []SeedEntry, log *zap.Logger) (SeedStats, error) {
	var st SeedStats
	created := func(err error, n *int) error {
		switch {
		case err == nil:
			*n++
			return nil
		case errors.Is(err, apperr.ErrConflict):
			return nil
		default:
			return err
		}
	}
	for _, e := range entries {
		if err := created(store.AddDisorder(ctx, e.Disorder), &st.Disorders); err != nil {
			return st, fmt.Errorf("seed disorder %q: %w", e.Disorder, err)
		}
		for _, sym := range e.Symptoms {
			if err := created(store.AddSymptom(ctx, sym), &st.Symptoms); err != nil {
				return st, fmt.Errorf("seed symptom %q: %w", sym, err)
			}
			if err := created(store.Link(ctx, e.Disorder, sym), &st.Links); err != nil {
				return st, fmt.Errorf("seed link %q-%q: %w", e.Disorder, sym, err)
			}
		}
	}
	log.Info("knowledge graph seeded",
		zap.Int("disorders", st.Disorders), zap.Int("symptoms", st.Symptoms), zap.Int("links", st.Links))
	return st, nil
}
