package memstore

import (
	"context"
	"sort"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
)

// Knowledge keeps the graph as two node sets and an adjacency map. Each
// mutation, cascades included, runs inside one write critical section.
type Knowledge struct{ s *state }

func (k *Knowledge) AddDisorder(_ context.Context, name string) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	if _, ok := k.s.disorders[name]; ok {
		return apperr.Conflict("disorder %q already exists", name)
	}
	k.s.disorders[name] = struct{}{}
	return nil
}

func (k *Knowledge) AddSymptom(_ context.Context, name string) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	if _, ok := k.s.symptoms[name]; ok {
		return apperr.Conflict("symptom %q already exists", name)
	}
	k.s.symptoms[name] = struct{}{}
	return nil
}

func (k *Knowledge) Link(_ context.Context, disorder, symptom string) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	if _, ok := k.s.disorders[disorder]; !ok {
		return apperr.NotFound("disorder %q", disorder)
	}
	if _, ok := k.s.symptoms[symptom]; !ok {
		return apperr.NotFound("symptom %q", symptom)
	}
	set := k.s.links[disorder]
	if set == nil {
		set = map[string]struct{}{}
		k.s.links[disorder] = set
	}
	if _, ok := set[symptom]; ok {
		return apperr.Conflict("%q is already linked to %q", symptom, disorder)
	}
	set[symptom] = struct{}{}
	return nil
}

func (k *Knowledge) Unlink(_ context.Context, disorder, symptom string) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	set := k.s.links[disorder]
	if _, ok := set[symptom]; !ok {
		return apperr.NotFound("link %q -> %q", disorder, symptom)
	}
	delete(set, symptom)
	if len(set) == 0 {
		delete(k.s.links, disorder)
	}
	return nil
}

func (k *Knowledge) DeleteDisorder(_ context.Context, name string, restrict bool) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	if _, ok := k.s.disorders[name]; !ok {
		return apperr.NotFound("disorder %q", name)
	}
	if restrict && k.s.disorderReferenced(name) {
		return apperr.Conflict("disorder %q is referenced by treatment plans or reviews", name)
	}
	delete(k.s.links, name)
	delete(k.s.disorders, name)
	return nil
}

// disorderReferenced must be called with s.mu held.
func (s *state) disorderReferenced(name string) bool {
	for _, p := range s.plans {
		if p.DisorderName == name {
			return true
		}
	}
	for _, v := range s.reviews {
		if v.DisorderName == name {
			return true
		}
	}
	return false
}

func (k *Knowledge) DeleteSymptom(_ context.Context, name string) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	if _, ok := k.s.symptoms[name]; !ok {
		return apperr.NotFound("symptom %q", name)
	}
	for d, set := range k.s.links {
		delete(set, name)
		if len(set) == 0 {
			delete(k.s.links, d)
		}
	}
	delete(k.s.symptoms, name)
	return nil
}

func (k *Knowledge) DisorderExists(_ context.Context, name string) (bool, error) {
	k.s.mu.RLock()
	defer k.s.mu.RUnlock()
	_, ok := k.s.disorders[name]
	return ok, nil
}

func (k *Knowledge) ListDisorders(_ context.Context) ([]model.Disorder, error) {
	k.s.mu.RLock()
	names := sortedKeys(k.s.disorders)
	k.s.mu.RUnlock()
	out := make([]model.Disorder, 0, len(names))
	for _, n := range names {
		out = append(out, model.Disorder{Name: n})
	}
	return out, nil
}

func (k *Knowledge) ListSymptoms(_ context.Context, disorder string) ([]model.Symptom, error) {
	k.s.mu.RLock()
	var names []string
	if disorder == "" {
		names = sortedKeys(k.s.symptoms)
	} else {
		names = sortedKeys(k.s.links[disorder])
	}
	k.s.mu.RUnlock()
	out := make([]model.Symptom, 0, len(names))
	for _, n := range names {
		out = append(out, model.Symptom{Name: n})
	}
	return out, nil
}

func (k *Knowledge) LinksForSymptoms(_ context.Context, symptoms []string) ([]model.DisorderSymptomLink, error) {
	want := make(map[string]struct{}, len(symptoms))
	for _, s := range symptoms {
		want[s] = struct{}{}
	}
	k.s.mu.RLock()
	out := []model.DisorderSymptomLink{}
	for d, set := range k.s.links {
		for s := range set {
			if _, ok := want[s]; ok {
				out = append(out, model.DisorderSymptomLink{Disorder: d, Symptom: s})
			}
		}
	}
	k.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Disorder != out[j].Disorder {
			return out[i].Disorder < out[j].Disorder
		}
		return out[i].Symptom < out[j].Symptom
	})
	return out, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
