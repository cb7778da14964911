// Package gateway exposes the application builder over plain HTTP as an
// alternative to the MCP stdio transport. POST /v1/apps streams build
// progress as server-sent events; the run endpoints serve recorded
// history as JSON. Everything except /healthz sits behind a bearer
// token.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/appforgehq/appforge/internal/history"
	"github.com/appforgehq/appforge/internal/orchestrator"
)

const defaultListLimit = 20

// Runner starts an application run and streams its progress.
type Runner interface {
	Run(ctx context.Context, prompt string) <-chan orchestrator.Event
}

// Gateway is the HTTP face of the application builder.
type Gateway struct {
	cfg     Config
	runner  Runner
	history *history.Store
	log     *slog.Logger

	srv *http.Server
}

// New wires a Gateway from a validated configuration. history may be nil
// when the run database could not be opened; the run endpoints then
// answer 503 and builds are not recorded.
func New(cfg Config, runner Runner, hist *history.Store, log *slog.Logger) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = log.With("component", "gateway")
	g := &Gateway{cfg: cfg, runner: runner, history: hist, log: log}
	g.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           g.router(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelError),
	}
	return g, nil
}

func (g *Gateway) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsAllowed(g.cfg.Origins))

	r.Get("/healthz", g.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(requireToken(g.cfg.Token))
		r.Route("/v1", func(r chi.Router) {
			r.Post("/apps", g.handleCreateApp)
			r.Get("/runs", g.handleListRuns)
			r.Get("/runs/{id}", g.handleGetRun)
		})
	})
	return r
}

// Handler returns the gateway's HTTP handler, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.srv.Handler
}

// Serve listens on the configured address until ctx is cancelled, then
// drains in-flight requests for at most ShutdownTimeout. Request
// contexts descend from ctx, so cancellation also stops running builds.
func (g *Gateway) Serve(ctx context.Context) error {
	g.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		g.log.Info("http gateway listening", "addr", g.cfg.Addr)
		err := g.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	g.log.Info("http gateway stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), g.cfg.ShutdownTimeout)
	defer cancel()
	if err := g.srv.Shutdown(shutdownCtx); err != nil {
		_ = g.srv.Close()
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return <-errCh
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createAppRequest is the body of POST /v1/apps.
type createAppRequest struct {
	Prompt string `json:"prompt"`
}

// streamEvent is the SSE payload mirrored from an orchestrator event.
type streamEvent struct {
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
	AppKey  string `json:"appKey,omitempty"`
	RunID   string `json:"runId,omitempty"`
}

// handleCreateApp validates the prompt, then switches the response to a
// server-sent event stream that mirrors the orchestrator's events. The
// stream ends with a "done" event after the terminal result or failure;
// a stream that stops without one was cancelled.
func (g *Gateway) handleCreateApp(w http.ResponseWriter, r *http.Request) {
	var req createAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON with a prompt field")
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if err := orchestrator.ValidatePrompt(prompt); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "response writer does not support streaming")
		return
	}

	runID := g.recordStart(prompt)
	g.log.Info("gateway build started", "run_id", runID)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if runID != "" {
		writeSSE(w, flusher, "run", streamEvent{RunID: runID, Message: "run accepted"})
	}

	var terminal orchestrator.Event
	done := false
	for ev := range g.runner.Run(r.Context(), prompt) {
		writeSSE(w, flusher, string(ev.Kind), streamEvent{
			Message: ev.Message,
			URL:     ev.URL,
			AppKey:  ev.AppKey,
		})
		if ev.Kind != orchestrator.EventProgress {
			terminal, done = ev, true
		}
	}

	if !done {
		g.recordFinish(runID, history.RunFailed, "", "", "run cancelled")
		g.log.Info("gateway build cancelled", "run_id", runID)
		return
	}
	if terminal.Kind == orchestrator.EventFailure {
		g.recordFinish(runID, history.RunFailed, "", "", terminal.Message)
		g.log.Warn("gateway build failed", "run_id", runID, "reason", terminal.Message)
	} else {
		g.recordFinish(runID, history.RunSucceeded, terminal.AppKey, terminal.URL, "")
		g.log.Info("gateway build succeeded", "run_id", runID, "url", terminal.URL)
	}
	writeSSE(w, flusher, "done", streamEvent{RunID: runID})
}

func (g *Gateway) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if g.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := g.history.RecentRuns(limit)
	if err != nil {
		g.log.Error("listing runs", "error", err)
		writeError(w, http.StatusInternalServerError, "could not read run history")
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (g *Gateway) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if g.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	run, err := g.history.GetRun(id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
			return
		}
		g.log.Error("reading run", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not read run history")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ─── History recording ───────────────────────────────────────────────────────

// recordStart and recordFinish are best effort: a broken history store
// must not take the build down with it.

func (g *Gateway) recordStart(prompt string) string {
	if g.history == nil {
		return ""
	}
	id, err := g.history.StartRun(prompt)
	if err != nil {
		g.log.Warn("recording run start", "error", err)
		return ""
	}
	return id
}

func (g *Gateway) recordFinish(runID string, state history.RunState, appKey, url, errMsg string) {
	if g.history == nil || runID == "" {
		return
	}
	if err := g.history.FinishRun(runID, state, appKey, url, errMsg); err != nil {
		g.log.Warn("recording run finish", "run_id", runID, "error", err)
	}
}

// ─── Response helpers ────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeSSE writes one named server-sent event and flushes it so the
// client sees progress as it happens.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, v streamEvent) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
