package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-hydra/internal/domain"
)

func evolutionNote() domain.Notification {
	return domain.Notification{
		UserID:    "sup-1",
		Kind:      domain.NotificationEvolution,
		Title:     "HYDRA-EVO-004: alpha scored 3.0 by user, 8.5 by arbiter",
		Body:      "The rubric rewards verbosity.",
		Reference: "HYDRA-EVO-004",
		CreatedAt: time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC),
	}
}

// webhookServer records the JSON bodies posted to it.
type webhookServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []map[string]any
}

func newWebhookServer(t *testing.T, status int) *webhookServer {
	t.Helper()
	ws := &webhookServer{}
	ws.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var body map[string]any
		assert.NoError(t, json.Unmarshal(raw, &body), "webhook body should be JSON")
		ws.mu.Lock()
		ws.bodies = append(ws.bodies, body)
		ws.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(ws.Close)
	return ws
}

func TestSlackNotifier_PostsWebhook(t *testing.T) {
	// Given a webhook endpoint
	ws := newWebhookServer(t, http.StatusOK)
	n, err := NewSlackNotifier(ws.URL, WithHTTPClient(ws.Client()))
	require.NoError(t, err)
	assert.Equal(t, "slack", n.Name())

	// When a notification is sent
	err = n.Notify(context.Background(), evolutionNote())

	// Then one message with blocks is posted
	require.NoError(t, err, "post should succeed")
	require.Len(t, ws.bodies, 1)
	body := ws.bodies[0]
	assert.Equal(t, "HYDRA-EVO-004: alpha scored 3.0 by user, 8.5 by arbiter (for sup-1)", body["text"])
	blocks, ok := body["blocks"].([]any)
	require.True(t, ok, "blocks should be an array")
	assert.Len(t, blocks, 3)
}

func TestSlackNotifier_Errors(t *testing.T) {
	_, err := NewSlackNotifier("")
	assert.ErrorIs(t, err, ErrMissingWebhook)

	ws := newWebhookServer(t, http.StatusInternalServerError)
	n, err := NewSlackNotifier(ws.URL, WithHTTPClient(ws.Client()))
	require.NoError(t, err)

	err = n.Notify(context.Background(), evolutionNote())
	require.Error(t, err, "non-2xx responses should fail")
	assert.Contains(t, err.Error(), "sup-1")
}

func TestBuildSlackMessage(t *testing.T) {
	tests := []struct {
		name       string
		note       domain.Notification
		wantBlocks int
		wantText   string
	}{
		{
			name:       "full notification",
			note:       evolutionNote(),
			wantBlocks: 3,
			wantText:   "HYDRA-EVO-004: alpha scored 3.0 by user, 8.5 by arbiter (for sup-1)",
		},
		{
			name:       "kind stands in for a missing title",
			note:       domain.Notification{UserID: "user-1", Kind: domain.NotificationPendingDecision},
			wantBlocks: 2,
			wantText:   "pending_decision (for user-1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := BuildSlackMessage(tt.note)
			assert.Equal(t, tt.wantText, msg.Text)
			require.NotNil(t, msg.Blocks)
			assert.Len(t, msg.Blocks.BlockSet, tt.wantBlocks)
		})
	}
}

type stubNotifier struct {
	name string
	err  error
	sent int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Notify(context.Context, domain.Notification) error {
	s.sent++
	return s.err
}

func TestMultiNotifier(t *testing.T) {
	inbox := &stubNotifier{name: "database"}
	broken := &stubNotifier{name: "slack", err: errors.New("webhook gone")}
	email := &stubNotifier{name: "email"}

	m := NewMultiNotifier(inbox, nil, broken, email)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, "multi(database,slack,email)", m.Name())

	err := m.Notify(context.Background(), evolutionNote())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack: webhook gone")
	assert.Equal(t, 1, inbox.sent)
	assert.Equal(t, 1, broken.sent)
	assert.Equal(t, 1, email.sent, "a failing channel should not stop later ones")

	assert.NoError(t, NewMultiNotifier().Notify(context.Background(), evolutionNote()))
}
