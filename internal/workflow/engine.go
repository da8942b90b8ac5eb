// Package workflow executes the clinical state machines. Every mutating
// operation follows the same order: check the actor's capability, check
// the edge against the entity's current state under its lock, apply the
// change and any cascade in one unit, then publish an event.
package workflow

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/policy"
	"github.com/iliyamo/mindwell/internal/queue"
	"github.com/iliyamo/mindwell/internal/repository"
)

// EventPublisher receives events after their mutation has committed.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.WorkflowEvent) error
}

// ResetPolicy controls what happens to an applicant's role when a decided
// application is put back to pending.
type ResetPolicy string

const (
	// ResetDemote reverts a role granted by the application's approval.
	ResetDemote ResetPolicy = "demote"
	// ResetKeepRole leaves the role untouched.
	ResetKeepRole ResetPolicy = "keep"
)

// ParseResetPolicy maps a config value to a ResetPolicy, defaulting to demote.
func ParseResetPolicy(s string) ResetPolicy {
	if ResetPolicy(s) == ResetKeepRole {
		return ResetKeepRole
	}
	return ResetDemote
}

// Stores groups the persistence dependencies of the engine.
type Stores struct {
	Users        repository.UserStore
	Applications repository.ApplicationStore
	Plans        repository.PlanStore
	Reports      repository.ReportStore
	Reviews      repository.ReviewStore
}

type Engine struct {
	users        repository.UserStore
	applications repository.ApplicationStore
	plans        repository.PlanStore
	reports      repository.ReportStore
	reviews      repository.ReviewStore

	events      EventPublisher
	log         *zap.Logger
	resetPolicy ResetPolicy
	now         func() time.Time
}

type Option func(*Engine)

func WithPublisher(p EventPublisher) Option { return func(e *Engine) { e.events = p } }

func WithResetPolicy(p ResetPolicy) Option { return func(e *Engine) { e.resetPolicy = p } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(s Stores, log *zap.Logger, opts ...Option) *Engine {
	if s.Users == nil || s.Applications == nil || s.Plans == nil || s.Reports == nil || s.Reviews == nil {
		panic("nil store passed to workflow.New")
	}
	e := &Engine{
		users:        s.Users,
		applications: s.Applications,
		plans:        s.Plans,
		reports:      s.Reports,
		reviews:      s.Reviews,
		events:       queue.NopPublisher{},
		log:          log,
		resetPolicy:  ResetDemote,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// emit publishes ev on a context detached from the request so a client
// disconnect after commit does not drop the event.
func (e *Engine) emit(ctx context.Context, ev queue.WorkflowEvent) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := e.events.Publish(pctx, ev); err != nil {
		e.log.Warn("publish workflow event failed",
			zap.String("type", ev.Type), zap.String("entity_id", ev.EntityID), zap.Error(err))
	}
}

func (e *Engine) event(a policy.Actor, eventType string, id uint64) queue.WorkflowEvent {
	return queue.NewEvent(eventType, uintStr(id), a.UserID, string(a.Role))
}

func uintStr(v uint64) string { return strconv.FormatUint(v, 10) }

// recordTransition updates metrics and logs the attempt at a level that
// matches its outcome.
func (e *Engine) recordTransition(machine, from, to string, a policy.Actor, id uint64, err error) {
	transitionsTotal.WithLabelValues(machine, from, to, outcome(err)).Inc()
	fields := []zap.Field{
		zap.String("machine", machine),
		zap.Uint64("entity_id", id),
		zap.String("from", from),
		zap.String("to", to),
		zap.Uint64("actor_id", a.UserID),
		zap.String("actor_role", string(a.Role)),
	}
	switch {
	case err == nil:
		e.log.Info("transition committed", fields...)
	case apperr.Kind(err) != nil:
		e.log.Debug("transition rejected", append(fields, zap.Error(err))...)
	default:
		e.log.Error("transition failed", append(fields, zap.Error(err))...)
	}
}

// logFailure logs internal errors from non-transition operations.
func (e *Engine) logFailure(op string, err error) {
	if err != nil && apperr.Kind(err) == nil && !errors.Is(err, context.Canceled) {
		e.log.Error("workflow operation failed", zap.String("operation", op), zap.Error(err))
	}
}
