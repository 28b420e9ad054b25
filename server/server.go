package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/deskagent/deskagent/config"
	"github.com/deskagent/deskagent/core"
	"github.com/deskagent/deskagent/history"
	"github.com/deskagent/deskagent/logging"
)

// Server is the HTTP transport over a Service. It renders JSON unless the
// endpoint streams, in which case it emits newline-delimited JSON with one
// complete object per line.
type Server struct {
	service *Service
	mux     *http.ServeMux
	logger  logging.Logger
}

// Options holds overrides passed to New().
type Options struct {
	Logger logging.Logger
}

// New builds the transport and registers all routes.
func New(service *Service, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	s := &Server{
		service: service,
		mux:     http.NewServeMux(),
		logger:  opts.Logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/config", s.handleConfig)
	s.mux.HandleFunc("/history", s.handleHistory)
	s.mux.HandleFunc("/history/record", s.handleHistoryRecord)
	s.mux.HandleFunc("/history/update", s.handleHistoryUpdate)
	s.mux.HandleFunc("/history/clear", s.handleHistoryClear)
	s.mux.HandleFunc("/history/retry/stream", s.handleRetryStream)
	s.mux.HandleFunc("/chat", s.handleChat)
	s.mux.HandleFunc("/chat/stream", s.handleChatStream)
	s.mux.HandleFunc("/events", s.handleEvents)
	s.mux.HandleFunc("/documents", s.handleDocuments)
	s.mux.HandleFunc("/scheduler", s.handleScheduler)
	s.mux.HandleFunc("/prompts", s.handlePrompts)
	s.mux.HandleFunc("/", s.handleNotFound)
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.withCORS(s.withRequestLog(s.mux))
}

// ListenAndServe serves the transport on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: streamed generations hold the response open
		// for the full provider round-trip.
		IdleTimeout: 2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	s.logger.Info("listening", "addr", addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// withCORS sets permissive cross-origin headers on every response and
// answers preflight requests. The server binds to loopback; the embedding
// shell loads its UI from a file or custom scheme origin.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRequestLog logs at Debug only, keeping normal operation quiet.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.handleNotFound(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.service.RuntimeConfig())
	case http.MethodPost:
		var update config.RuntimeUpdate
		if !s.readJSON(w, r, &update) {
			return
		}
		s.writeJSON(w, http.StatusOK, s.service.UpdateRuntimeConfig(update))
	default:
		s.handleNotFound(w, r)
	}
}

// historyItem is a ConversationRecord with its index injected, so clients
// can address records without counting.
type historyItem struct {
	RecordIndex  int            `json:"record_index"`
	RequestInput string         `json:"request_input"`
	Messages     []core.Message `json:"messages"`
	Timestamp    time.Time      `json:"timestamp"`
}

func newHistoryItem(index int, rec core.ConversationRecord) historyItem {
	return historyItem{
		RecordIndex:  index,
		RequestInput: rec.RequestInput,
		Messages:     rec.Messages,
		Timestamp:    rec.Timestamp,
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.handleNotFound(w, r)
		return
	}
	// A fresh install greets before the shell renders anything.
	s.service.Orchestrator().StartupIfEmpty(r.Context())

	records := s.service.Orchestrator().History().All()
	items := make([]historyItem, 0, len(records))
	for i, rec := range records {
		items = append(items, newHistoryItem(i, rec))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleHistoryRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.handleNotFound(w, r)
		return
	}
	raw := r.URL.Query().Get("index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("index %q is not an integer", raw))
		return
	}
	rec, err := s.service.Orchestrator().History().Get(index)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, newHistoryItem(index, rec))
}

type historyUpdateRequest struct {
	RecordIndex  *int   `json:"record_index"`
	MessageIndex *int   `json:"message_index"`
	Role         string `json:"role"`
	Content      string `json:"content"`
}

func (s *Server) handleHistoryUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.handleNotFound(w, r)
		return
	}
	var req historyUpdateRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.RecordIndex == nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "record_index is required")
		return
	}
	if !core.ValidRole(core.Role(req.Role)) {
		s.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("unknown role %q", req.Role))
		return
	}

	updated, err := s.service.Orchestrator().UpdateHistoryMessage(
		*req.RecordIndex, req.MessageIndex, core.Role(req.Role), req.Content)
	switch {
	case errors.Is(err, history.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	case errors.Is(err, history.ErrInvalidIndex):
		s.writeError(w, http.StatusBadRequest, "invalid_index", err.Error())
		return
	case errors.Is(err, history.ErrInvalidRecord):
		s.writeError(w, http.StatusBadRequest, "invalid_record", err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.handleNotFound(w, r)
		return
	}
	s.service.Orchestrator().ClearHistory()
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type chatRequest struct {
	Message   string `json:"message"`
	MessageID string `json:"message_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.handleNotFound(w, r)
		return
	}
	var req chatRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	result := s.service.Orchestrator().Chat(r.Context(), req.Message, req.MessageID)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.handleNotFound(w, r)
		return
	}
	var req chatRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	sink := s.startStream(w)
	s.service.Orchestrator().ChatStream(r.Context(), req.Message, req.MessageID, sink)
}

type retryRequest struct {
	RecordIndex *int   `json:"record_index"`
	MessageID   string `json:"message_id"`
}

func (s *Server) handleRetryStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.handleNotFound(w, r)
		return
	}
	var req retryRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.RecordIndex == nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "record_index is required")
		return
	}
	sink := s.startStream(w)
	s.service.Orchestrator().RetryRecordStream(r.Context(), *req.RecordIndex, req.MessageID, sink)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.handleNotFound(w, r)
		return
	}
	items := s.service.Queue().Drain()
	if items == nil {
		items = []core.Event{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.handleNotFound(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, s.service.Documents())
}

func (s *Server) handleScheduler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.handleNotFound(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, s.service.Orchestrator().SchedulerStatus())
}

type promptsUpdateRequest struct {
	SystemPrompt *string `json:"system_prompt"`
	ContextIntro *string `json:"context_intro"`
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.service.Prompts())
	case http.MethodPost:
		var req promptsUpdateRequest
		if !s.readJSON(w, r, &req) {
			return
		}
		tpl, err := s.service.UpdatePrompts(req.SystemPrompt, req.ContextIntro)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, tpl)
	default:
		s.handleNotFound(w, r)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no endpoint %s %s", r.Method, r.URL.Path))
}

// startStream switches the response to ndjson and returns a sink that writes
// one event per line, flushing after each. Write failures propagate to the
// orchestrator, which swallows them.
func (s *Server) startStream(w http.ResponseWriter) func(core.Event) error {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	return func(ev core.Event) error {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("malformed JSON body: %v", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("response write failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, detail string) {
	s.writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}
