package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	ev := NewEvent("application.submitted", "4", 9, "user")
	assert.Len(t, ev.ID, 36)
	assert.Equal(t, "4", ev.EntityID)
	assert.WithinDuration(t, time.Now(), ev.OccurredAt, time.Second)
	assert.NotEqual(t, ev.ID, NewEvent("x", "4", 9, "user").ID)
}

func TestWriteLine_Format(t *testing.T) {
	ev := WorkflowEvent{
		ID:         "e1",
		Type:       "therapist_application.approved",
		EntityID:   "12",
		From:       "pending",
		To:         "approved",
		ActorID:    1,
		ActorRole:  "admin",
		Data:       map[string]string{"role_to": "therapist", "applicant": "5"},
		OccurredAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	var buf bytes.Buffer
	require.NoError(t, writeLine(&buf, ev))
	assert.Equal(t,
		`[2024-03-01T10:00:00Z] therapist_application.approved | id=e1 | entity=12 | actor=1(admin) | pending -> approved | applicant="5" | role_to="therapist"`+"\n",
		buf.String())
}

func TestHandleMessage_AppendsToAuditFile(t *testing.T) {
	dir := t.TempDir()
	w := NewAuditWriter(filepath.Join(dir, "nested"))

	for _, typ := range []string{EventReportCreated, EventKnowledgeChanged} {
		body, err := json.Marshal(NewEvent(typ, "1", 2, "therapist"))
		require.NoError(t, err)
		require.NoError(t, handleMessage(w, body))
	}
	require.Error(t, handleMessage(w, []byte("{not json")))

	raw, err := os.ReadFile(filepath.Join(dir, "nested", "workflow.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], EventReportCreated)
	assert.Contains(t, lines[1], EventKnowledgeChanged)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), NewEvent("x", "1", 1, "user")))
}
