package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/botfactory/pkg/action"
	"github.com/aretw0/botfactory/pkg/adapters/memory"
	"github.com/aretw0/botfactory/pkg/domain"
	"github.com/aretw0/botfactory/pkg/observability"
	"github.com/aretw0/botfactory/pkg/session"
	"github.com/aretw0/botfactory/pkg/wizard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spec = `{
  "version": "1",
  "flows": [{
    "entry_cmd": "/book",
    "type": "wizard",
    "steps": [
      {"ask": "service?", "var": "service", "options": ["massage", "spa"]},
      {"ask": "slot?", "var": "slot"}
    ],
    "on_complete": [{"type": "action.reply_template.v1", "params": {"text": "Booked: {{service}} at {{slot}}"}}]
  }]
}`

type fixture struct {
	handler  http.Handler
	server   *Server
	sessions *session.Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	specs, err := memory.NewFromJSON(map[string]string{"salon": spec})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := observability.NewRecorder(reg)
	sessions := session.NewManager(memory.NewStore())
	engine := wizard.NewEngine(specs, sessions, action.NewEngine(action.WithMetrics(metrics)), wizard.WithMetrics(metrics))

	opts = append([]Option{WithSessions(sessions), WithGatherer(reg)}, opts...)
	srv := NewServer(engine, opts...)
	return &fixture{handler: srv.Routes(), server: srv, sessions: sessions}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest(method, path, &buf))
	return w
}

func decodeReply(t *testing.T, w *httptest.ResponseRecorder) domain.Reply {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reply domain.Reply
	require.NoError(t, json.NewDecoder(w.Body).Decode(&reply))
	return reply
}

func TestServer_Conversation(t *testing.T) {
	f := newFixture(t)
	msg := func(text string) domain.Reply {
		return decodeReply(t, f.do(t, http.MethodPost, "/v1/bots/salon/messages", MessageRequest{UserID: "u1", Text: text}))
	}

	reply := msg("/book")
	assert.Equal(t, "service?", reply.Text)
	require.Len(t, reply.Keyboard, 2)

	w := f.do(t, http.MethodGet, "/v1/bots/salon/sessions/u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var state domain.WizardState
	require.NoError(t, json.NewDecoder(w.Body).Decode(&state))
	assert.Equal(t, "/book", state.FlowID)

	reply = decodeReply(t, f.do(t, http.MethodPost, "/v1/bots/salon/callbacks",
		CallbackRequest{UserID: "u1", Data: reply.Keyboard[0][0].Callback}))
	assert.Equal(t, "slot?", reply.Text)

	assert.Equal(t, "Booked: massage at 9am", msg("9am").Text)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/bots/salon/sessions/u1", nil).Code)

	w = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `botfactory_flow_completions_total{bot_id="salon",flow_id="/book"} 1`)
}

func TestServer_DeleteSession(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/bots/salon/messages", MessageRequest{UserID: "u1", Text: "/book"})

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/v1/bots/salon/sessions/u1", nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/v1/bots/salon/sessions/u1", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/bots/salon/sessions/u1", nil).Code)
}

func TestServer_BadRequests(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/bots/salon/messages", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/bots/salon/messages", MessageRequest{Text: "hi"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/bots/salon/callbacks", CallbackRequest{UserID: "u1"}).Code)

	small := newFixture(t, WithMaxBodySize(16))
	w = small.do(t, http.MethodPost, "/v1/bots/salon/messages", MessageRequest{UserID: "u1", Text: strings.Repeat("a", 64)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func TestServer_Health(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil).Code)
	w := f.do(t, http.MethodGet, "/health/llm", nil)
	assert.JSONEq(t, `{"status":"disabled"}`, w.Body.String())

	down := newFixture(t, WithLLMHealth(healthFunc(func(context.Context) error { return errors.New("status 502") })))
	w = down.do(t, http.MethodGet, "/health/llm", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "status 502")

	up := newFixture(t, WithLLMHealth(healthFunc(func(context.Context) error { return nil })))
	assert.Equal(t, http.StatusOK, up.do(t, http.MethodGet, "/health/llm", nil).Code)
}

func TestServer_SubscribeEvents(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/bots/salon/sessions/u1/events", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		return f.server.streams.HasSubscribers("salon:u1")
	}, time.Second, 10*time.Millisecond)

	f.do(t, http.MethodPost, "/v1/bots/salon/messages", MessageRequest{UserID: "u2", Text: "/book"})
	f.do(t, http.MethodPost, "/v1/bots/salon/messages", MessageRequest{UserID: "u1", Text: "/book"})

	scanner := bufio.NewScanner(resp.Body)
	var data []string
	for scanner.Scan() && len(data) < 2 {
		if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
	require.Len(t, data, 2)
	assert.Equal(t, "connected", data[0])

	var reply domain.Reply
	require.NoError(t, json.Unmarshal([]byte(data[1]), &reply))
	assert.Equal(t, "service?", reply.Text)
	assert.Contains(t, reply.Keyboard[0][0].Callback, ":u1:")
}

func TestStreamManager_DropsForSlowClients(t *testing.T) {
	sm := NewStreamManager()
	ch, unsubscribe := sm.Subscribe("s")
	for i := 0; i < 20; i++ {
		sm.Broadcast("s", "m")
	}
	assert.Len(t, ch, 10)

	unsubscribe()
	unsubscribe()
	assert.False(t, sm.HasSubscribers("s"))
}
