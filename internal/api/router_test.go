package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/talentflowlabs/talentflow-core/internal/config"
	"github.com/talentflowlabs/talentflow-core/internal/jobrun"
	"github.com/talentflowlabs/talentflow-core/internal/webhook"
)

type stubInserter struct {
	byDedupKey map[string]*webhook.Event
}

func (s *stubInserter) Insert(ctx context.Context, event *webhook.Event) (*webhook.Event, bool, error) {
	if existing, ok := s.byDedupKey[event.DedupKey]; ok {
		return existing, false, nil
	}
	event.ID = int64(len(s.byDedupKey) + 1)
	s.byDedupKey[event.DedupKey] = event
	return event, true, nil
}

type stubRunner struct {
	name   string
	status jobrun.Status
	calls  int
}

func (s *stubRunner) Name() string { return s.name }

func (s *stubRunner) RunOnce(ctx context.Context, trigger jobrun.TriggerSource) (*jobrun.Run, error) {
	s.calls++
	return &jobrun.Run{ID: 1, JobName: s.name, Status: s.status, TriggeredBy: trigger, Processed: 3}, nil
}

func newTestRouter(cfg *config.Config, runners ...Runner) *Router {
	receiver := webhook.NewReceiver(&stubInserter{byDedupKey: make(map[string]*webhook.Event)}, cfg, zap.NewNop())
	return NewRouter(cfg, receiver, runners, nil, nil, nil, nil, zap.NewNop())
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(&config.Config{})

	w := httptest.NewRecorder()
	router.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestRouter_WebhookAccepted(t *testing.T) {
	cfg := &config.Config{CalendarWebhookSecret: "cal-secret"}
	router := newTestRouter(cfg)

	body := `{"id":"evt_1","type":"event_canceled","data":{"event_id":"cal_1"}}`
	sig := webhook.ComputeSignature("cal-secret", []byte(body))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/calendar", strings.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, sig)
	w := httptest.NewRecorder()
	router.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	// A retry of the same delivery is acknowledged without a new event.
	req = httptest.NewRequest(http.MethodPost, "/webhooks/calendar", strings.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, sig)
	w = httptest.NewRecorder()
	router.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_WebhookBadSignatureStillAccepted(t *testing.T) {
	cfg := &config.Config{CalendarWebhookSecret: "cal-secret"}
	router := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/calendar",
		strings.NewReader(`{"id":"evt_2","type":"event_canceled"}`))
	req.Header.Set(webhook.SignatureHeader, "sha256=deadbeef")
	w := httptest.NewRecorder()
	router.engine.ServeHTTP(w, req)

	// The response must not leak the verification outcome.
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRouter_WebhookMalformedBody(t *testing.T) {
	router := newTestRouter(&config.Config{CalendarWebhookSecret: "cal-secret"})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/calendar", strings.NewReader(`{`))
	w := httptest.NewRecorder()
	router.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_TriggerAuth(t *testing.T) {
	runner := &stubRunner{name: "notification_dispatch", status: jobrun.StatusCompleted}

	t.Run("NoTokenConfigured", func(t *testing.T) {
		router := newTestRouter(&config.Config{}, runner)

		req := httptest.NewRequest(http.MethodPost, "/internal/workers/notification_dispatch/run", nil)
		w := httptest.NewRecorder()
		router.engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	router := newTestRouter(&config.Config{WorkerTriggerToken: "sekret"}, runner)

	t.Run("MissingToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/internal/workers/notification_dispatch/run", nil)
		w := httptest.NewRecorder()
		router.engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("WrongToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/internal/workers/notification_dispatch/run", nil)
		req.Header.Set("X-Trigger-Token", "wrong")
		w := httptest.NewRecorder()
		router.engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("ValidTokenRunsWorker", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/internal/workers/notification_dispatch/run", nil)
		req.Header.Set("X-Trigger-Token", "sekret")
		w := httptest.NewRecorder()
		router.engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, runner.calls)
		assert.Contains(t, w.Body.String(), `"triggered_by":"manual"`)
	})

	t.Run("BearerTokenAccepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/internal/workers/notification_dispatch/run", nil)
		req.Header.Set("Authorization", "Bearer sekret")
		w := httptest.NewRecorder()
		router.engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("UnknownWorker", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/internal/workers/nope/run", nil)
		req.Header.Set("X-Trigger-Token", "sekret")
		w := httptest.NewRecorder()
		router.engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRouter_TriggerLockedRunConflicts(t *testing.T) {
	runner := &stubRunner{name: "reconciliation", status: jobrun.StatusLocked}
	router := newTestRouter(&config.Config{WorkerTriggerToken: "sekret"}, runner)

	req := httptest.NewRequest(http.MethodPost, "/internal/workers/reconciliation/run", nil)
	req.Header.Set("X-Trigger-Token", "sekret")
	w := httptest.NewRecorder()
	router.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}
