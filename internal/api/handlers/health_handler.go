package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Pinger is satisfied by the database pool.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports liveness plus a few host statistics.
type HealthHandler struct {
	db      Pinger
	started time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now()}
}

type healthResponse struct {
	Status        string  `json:"status"`
	Database      string  `json:"database"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	MemoryPercent float64 `json:"host_memory_used_percent,omitempty"`
	ProcessRSS    uint64  `json:"process_rss_bytes,omitempty"`
}

// Get answers 200 when the database responds and 503 otherwise. Host
// statistics are best effort.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:        "ok",
		Database:      "ok",
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	status := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		log.Error().Err(err).Msg("Health check: database ping failed")
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.MemoryPercent = vm.UsedPercent
	} else {
		log.Debug().Err(err).Msg("Health check: host memory unavailable")
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			resp.ProcessRSS = info.RSS
		}
	}

	writeJSON(w, status, resp)
}
