package api

import (
	"context"
	"net/http"
	"time"

	"github.com/snarg/speaker-align/internal/transcribe"
)

// WatcherStatusData is the directory watcher's state as reported by health.
type WatcherStatusData struct {
	Status         string `json:"status"`
	WatchDir       string `json:"watch_dir"`
	FilesProcessed int64  `json:"files_processed"`
	FilesSkipped   int64  `json:"files_skipped"`
	PendingPairs   int    `json:"pending_pairs"`
}

// Pinger checks a backend is reachable.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionChecker reports broker connectivity.
type ConnectionChecker interface {
	IsConnected() bool
}

// WatcherStatusSource exposes the directory watcher state.
type WatcherStatusSource interface {
	Status() *WatcherStatusData
}

type HealthResponse struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Checks        map[string]string      `json:"checks"`
	Queue         *transcribe.QueueStats `json:"queue,omitempty"`
	Watcher       *WatcherStatusData     `json:"watcher,omitempty"`
}

// HealthOptions wires the components health reports on. Nil fields are
// reported as not configured.
type HealthOptions struct {
	DB            Pinger
	MQTT          ConnectionChecker
	Watcher       WatcherStatusSource
	Queue         JobQueue
	Collaborators map[string]bool // name -> configured
	Version       string
	StartTime     time.Time
}

type HealthHandler struct {
	opts HealthOptions
}

func NewHealthHandler(opts HealthOptions) *HealthHandler {
	return &HealthHandler{opts: opts}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Database check
	if h.opts.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.opts.DB.HealthCheck(ctx); err != nil {
			checks["database"] = "error"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not_configured"
	}

	// MQTT check
	if h.opts.MQTT != nil {
		if h.opts.MQTT.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	for name, configured := range h.opts.Collaborators {
		if configured {
			checks[name] = "configured"
		} else {
			checks[name] = "not_configured"
		}
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.opts.Version,
		UptimeSeconds: int64(time.Since(h.opts.StartTime).Seconds()),
		Checks:        checks,
	}

	if h.opts.Watcher != nil {
		if ws := h.opts.Watcher.Status(); ws != nil {
			checks["file_watcher"] = ws.Status
			resp.Watcher = ws
		}
	}
	if h.opts.Queue != nil {
		qs := h.opts.Queue.Stats()
		resp.Queue = &qs
	}

	WriteJSON(w, httpStatus, resp)
}
