package daemon

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

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dbvoir/internal/api"
	"dbvoir/internal/config"
	"dbvoir/internal/dispatch"
	"dbvoir/internal/logging"
	"dbvoir/internal/metrics"
	"dbvoir/internal/services"
)

const defaultProcessedLimit = 50

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.router(strings.TrimSpace(cfg.Paths.APIToken)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Manual rescans wait on Jellyfin.
		WriteTimeout: cfg.RescanTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) router(token string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Routes stay on the root router so a method mismatch answers 405.
	guard := func(h http.HandlerFunc) http.Handler {
		return metricsMiddleware(authMiddleware(token)(h))
	}
	r.Handle("/api/status", guard(s.handleStatus)).Methods(http.MethodGet)
	r.Handle("/api/pending", guard(s.handlePending)).Methods(http.MethodGet)
	r.Handle("/api/processed", guard(s.handleProcessed)).Methods(http.MethodGet)
	r.Handle("/api/processed", guard(s.handleForget)).Methods(http.MethodDelete)
	r.Handle("/api/processed/prune", guard(s.handlePrune)).Methods(http.MethodPost)
	r.Handle("/api/import", guard(s.handleImport)).Methods(http.MethodPost)
	r.Handle("/api/rescan", guard(s.handleRescan)).Methods(http.MethodPost)
	r.Handle("/api/notify/test", guard(s.handleTestNotify)).Methods(http.MethodPost)
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr reports the bound address, which differs from bind when port 0 is used.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:         status.Running,
		PID:             status.PID,
		StartedAt:       api.FormatTime(status.StartedAt),
		WatchDir:        status.WatchDir,
		WatchMode:       status.WatchMode,
		EventsSeen:      status.EventsSeen,
		LastEventAt:     api.FormatTime(status.LastEventAt),
		PendingCount:    status.Pending,
		QueueDepth:      status.QueueDepth,
		InFlight:        status.InFlight,
		ProcessedCount:  status.Processed,
		ProcessedStore:  status.ProcessedStore,
		LockFilePath:    status.LockFilePath,
		LogPath:         status.LogPath,
		Dependencies:    api.FromDeps(status.Dependencies),
		JellyfinEnabled: s.daemon.cfg.Jellyfin.Enabled,
	}
	if status.LastImport != nil {
		payload.LastImport = api.FromCompletion(*status.LastImport)
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handlePending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.PendingResponse{Items: api.FromPending(s.daemon.Pending())})
}

func (s *apiServer) handleProcessed(w http.ResponseWriter, r *http.Request) {
	limit := defaultProcessedLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	entries, total, err := s.daemon.Processed(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.ProcessedResponse{Items: api.FromEntries(entries), Total: total})
}

func (s *apiServer) handleForget(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	removed, err := s.daemon.Forget(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.ForgetResponse{Path: path, Removed: removed})
}

func (s *apiServer) handlePrune(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("days")))
	if err != nil || days < 0 {
		writeError(w, http.StatusBadRequest, "days must be a non-negative integer")
		return
	}
	cutoff := s.daemon.now().AddDate(0, 0, -days)
	removed, err := s.daemon.record.Prune(r.Context(), cutoff)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.PrunedRecordsTotal.Add(float64(removed))
	writeJSON(w, http.StatusOK, api.PruneResponse{Removed: removed})
}

func (s *apiServer) handleImport(w http.ResponseWriter, r *http.Request) {
	var req api.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := services.WithTrigger(r.Context(), "api")
	path, err := s.daemon.Import(ctx, req.Path)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, api.ImportResponse{Path: path, Queued: true})
	case errors.Is(err, dispatch.ErrAlreadyQueued):
		writeJSON(w, http.StatusOK, api.ImportResponse{Path: path, Queued: false, Detail: "already queued"})
	case errors.Is(err, dispatch.ErrQueueFull), errors.Is(err, dispatch.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) handleRescan(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.Rescan(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.RescanResponse{OK: true, Detail: "library refresh requested"})
}

func (s *apiServer) handleTestNotify(w http.ResponseWriter, r *http.Request) {
	sent, detail, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		detail = detail + ": " + err.Error()
	}
	writeJSON(w, http.StatusOK, api.NotifyResponse{Sent: sent, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records request counts and latency keyed by route template.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
