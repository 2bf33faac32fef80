package handlers

import (
	"net/http"
	"time"

	"github.com/marmos91/turbopipe/pkg/pipe"
)

// EngineStatus is the view of the pipe engine the health endpoints need.
// *pipe.Engine satisfies it.
type EngineStatus interface {
	Stats() pipe.Stats
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	engine EngineStatus
}

// NewHealthHandler creates a new health handler. engine may be nil, in which
// case the engine endpoint reports unhealthy.
func NewHealthHandler(engine EngineStatus) *HealthHandler {
	return &HealthHandler{engine: engine}
}

// Liveness handles GET /health. It succeeds as long as the HTTP server is
// responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "turbopipe",
	}))
}

// EngineHealth is the JSON form of pipe.Stats.
type EngineHealth struct {
	State           string     `json:"state"`
	Workers         int        `json:"workers"`
	QueueDepth      int        `json:"queue_depth"`
	QueueCapacity   int        `json:"queue_capacity"`
	InFlight        int        `json:"in_flight"`
	Destinations    int        `json:"destinations"`
	Submitted       uint64     `json:"submitted"`
	Completed       uint64     `json:"completed"`
	Failed          uint64     `json:"failed"`
	BytesWritten    uint64     `json:"bytes_written"`
	DroppedFailures uint64     `json:"dropped_failures,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	LastErrorAt     *time.Time `json:"last_error_at,omitempty"`
}

func engineHealth(s pipe.Stats) EngineHealth {
	eh := EngineHealth{
		State:           s.State.String(),
		Workers:         s.Workers,
		QueueDepth:      s.QueueDepth,
		QueueCapacity:   s.QueueCap,
		InFlight:        s.InFlight,
		Destinations:    s.Destinations,
		Submitted:       s.Submitted,
		Completed:       s.Completed,
		Failed:          s.Failed,
		BytesWritten:    s.BytesWritten,
		DroppedFailures: s.DroppedFailures,
		LastError:       s.LastError,
	}
	if !s.LastErrorAt.IsZero() {
		at := s.LastErrorAt.UTC()
		eh.LastErrorAt = &at
	}
	return eh
}

// Engine handles GET /health/engine.
//
// Returns 200 while the engine is running or has not started yet, and 503
// while it drains, after it stopped, or when no engine is attached. Write
// failures are reported in the payload but do not make the engine unhealthy.
func (h *HealthHandler) Engine(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("engine not initialized"))
		return
	}

	stats := h.engine.Stats()
	body := engineHealth(stats)

	switch stats.State {
	case pipe.StateRunning, pipe.StateUninitialized:
		writeJSON(w, http.StatusOK, healthyResponse(body))
	default:
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(body, "engine is "+stats.State.String()))
	}
}
