package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/keel"
	"github.com/aretw0/keel/internal/presentation/graph"
	"github.com/aretw0/keel/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// stateSource is implemented by hosts that expose their lifecycle state.
type stateSource interface {
	State() domain.State
}

// gathererSource is implemented by hosts that own a metrics registry.
type gathererSource interface {
	Gatherer() prometheus.Gatherer
}

// newRouter builds the base router with the built-in endpoints:
//
//   - GET /health: liveness probe
//   - GET /info: application name, version and lifecycle state
//   - GET /events: lifecycle events as server-sent events
//   - GET /graph: Mermaid diagram of the lifecycle
//   - GET /metrics: Prometheus metrics, when enabled
//
// Static asset directories are mounted under their URI prefix.
func (m *Module) newRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(m.requestLogger)
	r.Use(middleware.Recoverer)
	if m.cfg.CORS {
		r.Use(enableCORS)
	}

	r.Get("/health", m.getHealth)
	r.Get("/info", m.getInfo)
	r.Get("/events", m.subscribeEvents)
	r.Get("/graph", m.getGraph)

	if m.cfg.Metrics {
		gatherer := prometheus.DefaultGatherer
		if src, ok := m.host.(gathererSource); ok && src.Gatherer() != nil {
			gatherer = src.Gatherer()
		}
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	for uri, dir := range m.cfg.Assets {
		m.mountAssets(r, uri, dir)
	}

	return r
}

func (m *Module) mountAssets(r chi.Router, uri, dir string) {
	fs := http.FileServer(http.Dir(dir))
	if uri == "" {
		r.Handle("/*", fs)
	} else {
		r.Handle(uri+"/*", http.StripPrefix(uri, fs))
	}
	m.logger.Debug("serving assets", "uri", uri+"/", "dir", dir)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Module) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		m.logger.Debug("request completed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (m *Module) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, m.logger, map[string]string{"status": "ok"})
}

func (m *Module) getInfo(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"app":     filepath.Base(m.host.Config().AppDir()),
		"version": strings.TrimSpace(keel.Version),
	}
	if src, ok := m.host.(stateSource); ok {
		resp["state"] = src.State().String()
	}
	writeJSON(w, m.logger, resp)
}

func (m *Module) getGraph(w http.ResponseWriter, r *http.Request) {
	var overlay *graph.Overlay
	if src, ok := m.host.(stateSource); ok {
		current := src.State()
		overlay = &graph.Overlay{Visited: graph.Trail(current), Current: &current}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, graph.GenerateMermaid(overlay))
}

// subscribeEvents streams lifecycle events. The optional "types" query parameter
// is a comma separated list of event types to keep.
func (m *Module) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var filter map[domain.EventType]bool
	if types := r.URL.Query().Get("types"); types != "" {
		filter = make(map[domain.EventType]bool)
		for _, t := range strings.Split(types, ",") {
			filter[domain.EventType(strings.TrimSpace(t))] = true
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := m.streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if filter != nil && !filter[msg.event] {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.event, msg.data)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}
