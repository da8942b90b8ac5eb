// Package queue defines message payloads exchanged over the message broker
// and the RabbitMQ publisher/consumer that carry them.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowQueueName is the durable queue every workflow event is sent to.
const WorkflowQueueName = "workflow.events"

// Event types. Transition events are "<machine>.<target status>".
const (
	EventApplicationSubmitted = "application.submitted"
	EventPlanCreated          = "treatment_plan.created"
	EventReportCreated        = "problem_report.created"
	EventUserRoleChanged      = "user.role_changed"
	EventUserActiveChanged    = "user.active_changed"
	EventReviewCreated        = "review.created"
	EventKnowledgeChanged     = "knowledge.changed"
)

// WorkflowEvent is published after a workflow mutation commits. It carries
// enough context for audit logging without querying the primary store.
type WorkflowEvent struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Machine    string            `json:"machine,omitempty"`
	EntityID   string            `json:"entity_id"`
	From       string            `json:"from,omitempty"`
	To         string            `json:"to,omitempty"`
	ActorID    uint64            `json:"actor_id"`
	ActorRole  string            `json:"actor_role"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewEvent stamps a fresh event id and the current time.
func NewEvent(eventType, entityID string, actorID uint64, actorRole string) WorkflowEvent {
	return WorkflowEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		EntityID:   entityID,
		ActorID:    actorID,
		ActorRole:  actorRole,
		OccurredAt: time.Now().UTC(),
	}
}
