// Package knowledge manages the disorder/symptom graph that treatment plans,
// reviews and the diagnostic lookup depend on.
package knowledge

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
	"github.com/iliyamo/mindwell/internal/policy"
	"github.com/iliyamo/mindwell/internal/queue"
	"github.com/iliyamo/mindwell/internal/repository"
)

const maxNameLength = 191

// EventPublisher receives knowledge.changed events after a mutation commits.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.WorkflowEvent) error
}

// Invalidator drops cached read responses for the graph.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Service struct {
	store          repository.KnowledgeStore
	events         EventPublisher
	cache          Invalidator
	log            *zap.Logger
	restrictDelete bool
}

type Option func(*Service)

func WithPublisher(p EventPublisher) Option { return func(s *Service) { s.events = p } }

func WithInvalidator(i Invalidator) Option { return func(s *Service) { s.cache = i } }

// WithRestrictedDelete makes DeleteDisorder refuse disorders that plans or
// reviews still name.
func WithRestrictedDelete(on bool) Option { return func(s *Service) { s.restrictDelete = on } }

func NewService(store repository.KnowledgeStore, log *zap.Logger, opts ...Option) *Service {
	s := &Service{store: store, events: queue.NopPublisher{}, log: log}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// normalize trims a node name. Names stay case-sensitive.
func normalize(kind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("%s name is required", kind)
	}
	if len(name) > maxNameLength {
		return "", apperr.Validation("%s name exceeds %d characters", kind, maxNameLength)
	}
	return name, nil
}

func (s *Service) AddDisorder(ctx context.Context, a policy.Actor, name string) (*model.Disorder, error) {
	if err := policy.Authorize(a, model.RoleTherapist); err != nil {
		return nil, err
	}
	name, err := normalize("disorder", name)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddDisorder(ctx, name); err != nil {
		return nil, s.fail("add_disorder", err)
	}
	s.changed(ctx, a, "add_disorder", map[string]string{"disorder": name})
	return &model.Disorder{Name: name}, nil
}

func (s *Service) AddSymptom(ctx context.Context, a policy.Actor, name string) (*model.Symptom, error) {
	if err := policy.Authorize(a, model.RoleTherapist); err != nil {
		return nil, err
	}
	name, err := normalize("symptom", name)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddSymptom(ctx, name); err != nil {
		return nil, s.fail("add_symptom", err)
	}
	s.changed(ctx, a, "add_symptom", map[string]string{"symptom": name})
	return &model.Symptom{Name: name}, nil
}

// LinkSymptom connects an existing symptom to an existing disorder.
func (s *Service) LinkSymptom(ctx context.Context, a policy.Actor, disorder, symptom string) (*model.DisorderSymptomLink, error) {
	if err := policy.Authorize(a, model.RoleTherapist); err != nil {
		return nil, err
	}
	d, sym, err := normalizePair(disorder, symptom)
	if err != nil {
		return nil, err
	}
	if err := s.store.Link(ctx, d, sym); err != nil {
		return nil, s.fail("link_symptom", err)
	}
	s.changed(ctx, a, "link", map[string]string{"disorder": d, "symptom": sym})
	return &model.DisorderSymptomLink{Disorder: d, Symptom: sym}, nil
}

func (s *Service) UnlinkSymptom(ctx context.Context, a policy.Actor, disorder, symptom string) error {
	if err := policy.Authorize(a, model.RoleTherapist); err != nil {
		return err
	}
	d, sym, err := normalizePair(disorder, symptom)
	if err != nil {
		return err
	}
	if err := s.store.Unlink(ctx, d, sym); err != nil {
		return s.fail("unlink_symptom", err)
	}
	s.changed(ctx, a, "unlink", map[string]string{"disorder": d, "symptom": sym})
	return nil
}

// DeleteDisorder removes a disorder and all of its links. Plans and reviews
// naming it keep the label unless restricted deletion is on, in which case
// the delete is refused with a conflict.
func (s *Service) DeleteDisorder(ctx context.Context, a policy.Actor, name string) error {
	if err := policy.Authorize(a, model.RoleTherapist); err != nil {
		return err
	}
	name, err := normalize("disorder", name)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDisorder(ctx, name, s.restrictDelete); err != nil {
		return s.fail("delete_disorder", err)
	}
	s.changed(ctx, a, "delete_disorder", map[string]string{"disorder": name})
	return nil
}

func (s *Service) DeleteSymptom(ctx context.Context, a policy.Actor, name string) error {
	if err := policy.Authorize(a, model.RoleTherapist); err != nil {
		return err
	}
	name, err := normalize("symptom", name)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSymptom(ctx, name); err != nil {
		return s.fail("delete_symptom", err)
	}
	s.changed(ctx, a, "delete_symptom", map[string]string{"symptom": name})
	return nil
}

func (s *Service) ListDisorders(ctx context.Context, a policy.Actor) ([]model.Disorder, error) {
	if err := policy.Authorize(a, model.RoleUser); err != nil {
		return nil, err
	}
	out, err := s.store.ListDisorders(ctx)
	if err != nil {
		return nil, s.fail("list_disorders", err)
	}
	return out, nil
}

// ListSymptoms returns every symptom, or those linked to disorder when it
// is set. An unknown disorder yields an empty list.
func (s *Service) ListSymptoms(ctx context.Context, a policy.Actor, disorder string) ([]model.Symptom, error) {
	if err := policy.Authorize(a, model.RoleUser); err != nil {
		return nil, err
	}
	out, err := s.store.ListSymptoms(ctx, strings.TrimSpace(disorder))
	if err != nil {
		return nil, s.fail("list_symptoms", err)
	}
	return out, nil
}

// Diagnose ranks disorders by the share of the given symptoms linked to
// them. Disorders matching none of the symptoms are omitted.
func (s *Service) Diagnose(ctx context.Context, a policy.Actor, symptoms []string) ([]model.Diagnosis, error) {
	if err := policy.Authorize(a, model.RoleUser); err != nil {
		return nil, err
	}
	wanted := lo.Uniq(lo.FilterMap(symptoms, func(sym string, _ int) (string, bool) {
		sym = strings.TrimSpace(sym)
		return sym, sym != ""
	}))
	if len(wanted) == 0 {
		return nil, apperr.Validation("at least one symptom is required")
	}

	links, err := s.store.LinksForSymptoms(ctx, wanted)
	if err != nil {
		return nil, s.fail("diagnose", err)
	}
	byDisorder := lo.GroupBy(links, func(l model.DisorderSymptomLink) string { return l.Disorder })
	out := lo.MapToSlice(byDisorder, func(disorder string, ls []model.DisorderSymptomLink) model.Diagnosis {
		matched := lo.Uniq(lo.Map(ls, func(l model.DisorderSymptomLink, _ int) string { return l.Symptom }))
		sort.Strings(matched)
		return model.Diagnosis{
			Disorder:        disorder,
			MatchedSymptoms: matched,
			Score:           score(len(matched), len(wanted)),
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Disorder < out[j].Disorder
	})
	return out, nil
}

func score(matched, total int) float64 {
	v := float64(matched) / float64(total) * 100
	if v > 100 {
		return 100
	}
	return v
}

func normalizePair(disorder, symptom string) (string, string, error) {
	d, err := normalize("disorder", disorder)
	if err != nil {
		return "", "", err
	}
	sym, err := normalize("symptom", symptom)
	if err != nil {
		return "", "", err
	}
	return d, sym, nil
}

func (s *Service) fail(op string, err error) error {
	if apperr.Kind(err) == nil {
		s.log.Error("knowledge operation failed", zap.String("operation", op), zap.Error(err))
	}
	return err
}

// changed runs after a committed mutation: it drops cached reads and
// publishes an event. Neither failure is returned to the caller.
func (s *Service) changed(ctx context.Context, a policy.Actor, op string, data map[string]string) {
	s.log.Info("knowledge graph changed",
		zap.String("operation", op), zap.Any("data", data), zap.Uint64("actor_id", a.UserID))

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if s.cache != nil {
		if err := s.cache.Invalidate(bg); err != nil {
			s.log.Warn("knowledge cache invalidation failed", zap.Error(err))
		}
	}

	entity := data["disorder"]
	if entity == "" {
		entity = data["symptom"]
	}
	ev := queue.NewEvent(queue.EventKnowledgeChanged, entity, a.UserID, string(a.Role))
	ev.Data = lo.Assign(map[string]string{"operation": op}, data)
	if err := s.events.Publish(bg, ev); err != nil {
		s.log.Warn("publish knowledge event failed", zap.String("operation", op), zap.Error(err))
	}
}
