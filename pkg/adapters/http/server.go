// Package http exposes the wizard engine as a JSON webhook API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/botfactory/internal/logging"
	"github.com/aretw0/botfactory/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultMaxBodySize bounds request bodies; message texts are limited far below it.
const DefaultMaxBodySize = 64 << 10

// Engine is the conversational core served by the API.
type Engine interface {
	HandleTurn(ctx context.Context, turn domain.Turn) domain.Reply
	HandleCallback(ctx context.Context, cb domain.Callback) domain.Reply
}

// Sessions gives operators access to wizard state.
type Sessions interface {
	Load(ctx context.Context, key domain.SessionKey) (*domain.WizardState, error)
	Delete(ctx context.Context, key domain.SessionKey) error
}

// HealthChecker probes a dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server serves the bot API.
type Server struct {
	engine   Engine
	sessions Sessions
	llm      HealthChecker
	gatherer prometheus.Gatherer
	streams  *StreamManager
	maxBody  int64
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithSessions enables the session inspection endpoints.
func WithSessions(s Sessions) Option {
	return func(srv *Server) {
		srv.sessions = s
	}
}

// WithLLMHealth enables GET /health/llm.
func WithLLMHealth(h HealthChecker) Option {
	return func(srv *Server) {
		srv.llm = h
	}
}

// WithGatherer enables GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(srv *Server) {
		srv.gatherer = g
	}
}

func WithMaxBodySize(n int64) Option {
	return func(srv *Server) {
		if n > 0 {
			srv.maxBody = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(srv *Server) {
		srv.logger = logger
	}
}

// NewServer creates a Server for engine.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		streams: NewStreamManager(),
		maxBody: DefaultMaxBodySize,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streams.logger = s.logger
	return s
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/health/llm", s.GetLLMHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1/bots/{botID}", func(r chi.Router) {
		r.Post("/messages", s.PostMessage)
		r.Post("/callbacks", s.PostCallback)
		r.Route("/sessions/{userID}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MessageRequest is the body of POST /v1/bots/{botID}/messages.
type MessageRequest struct {
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id,omitempty"`
	Text   string `json:"text"`
	Locale string `json:"locale,omitempty"`
}

// CallbackRequest is the body of POST /v1/bots/{botID}/callbacks.
type CallbackRequest struct {
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id,omitempty"`
	Data   string `json:"data"`
	Locale string `json:"locale,omitempty"`
}

// PostMessage handles an inbound message.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	var body MessageRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.UserID == "" {
		s.fail(w, http.StatusBadRequest, "user_id is required")
		return
	}

	turn := domain.Turn{
		BotID:  chi.URLParam(r, "botID"),
		UserID: body.UserID,
		ChatID: body.ChatID,
		Text:   body.Text,
		Locale: body.Locale,
	}
	reply := s.engine.HandleTurn(r.Context(), turn)
	s.publish(turn.Key(), reply)
	s.respond(w, http.StatusOK, reply)
}

// PostCallback handles an inline button press.
func (s *Server) PostCallback(w http.ResponseWriter, r *http.Request) {
	var body CallbackRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.UserID == "" || body.Data == "" {
		s.fail(w, http.StatusBadRequest, "user_id and data are required")
		return
	}

	cb := domain.Callback{
		BotID:  chi.URLParam(r, "botID"),
		UserID: body.UserID,
		ChatID: body.ChatID,
		Data:   body.Data,
		Locale: body.Locale,
	}
	reply := s.engine.HandleCallback(r.Context(), cb)
	s.publish(domain.SessionKey{BotID: cb.BotID, UserID: cb.UserID}, reply)
	s.respond(w, http.StatusOK, reply)
}

// GetSession returns the active wizard of a user.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.fail(w, http.StatusNotFound, "session inspection is disabled")
		return
	}
	state, err := s.sessions.Load(r.Context(), sessionKey(r))
	if errors.Is(err, domain.ErrStateNotFound) {
		s.fail(w, http.StatusNotFound, "no active wizard")
		return
	}
	if err != nil {
		s.logger.Error("GetSession failed", "err", err)
		s.fail(w, http.StatusServiceUnavailable, "state store unavailable")
		return
	}
	s.respond(w, http.StatusOK, state)
}

// DeleteSession cancels the active wizard of a user. It is idempotent.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.fail(w, http.StatusNotFound, "session inspection is disabled")
		return
	}
	if err := s.sessions.Delete(r.Context(), sessionKey(r)); err != nil {
		s.logger.Error("DeleteSession failed", "err", err)
		s.fail(w, http.StatusServiceUnavailable, "state store unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetLLMHealth probes the LLM backend.
func (s *Server) GetLLMHealth(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		s.respond(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	if err := s.llm.Health(r.Context()); err != nil {
		s.respond(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SubscribeEvents streams the replies of one session as server-sent events.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.fail(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	key := sessionKey(r)
	ch, cancel := s.streams.Subscribe(key.String())
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected", "session", key.String())
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: reply\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) publish(key domain.SessionKey, reply domain.Reply) {
	if !s.streams.HasSubscribers(key.String()) {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		return
	}
	s.streams.Broadcast(key.String(), string(data))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	s.respond(w, status, map[string]string{"error": msg})
}

func sessionKey(r *http.Request) domain.SessionKey {
	return domain.SessionKey{BotID: chi.URLParam(r, "botID"), UserID: chi.URLParam(r, "userID")}
}
