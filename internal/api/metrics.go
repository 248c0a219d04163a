package api

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/classroom-core/internal/device"
)

// DBStatser reports connection pool statistics.
type DBStatser interface {
	Stats() sql.DBStats
}

// SystemMetrics is the /metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Components    map[string]bool  `json:"components"`
	Scheduler     SchedulerMetrics `json:"scheduler"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// SchedulerMetrics describes the automation clock. Times are device wall
// clock and empty until the first report arrives.
type SchedulerMetrics struct {
	Rules          int    `json:"rules"`
	LatestObserved string `json:"latest_observed,omitempty"`
	LastChecked    string `json:"last_checked,omitempty"`
	RecentFirings  int    `json:"recent_firings"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(mem.TotalAlloc) / 1024 / 1024,
			NumGC:         mem.NumGC,
		},
		WebSocket:  WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Components: make(map[string]bool, len(s.components)),
		Scheduler:  SchedulerMetrics{Rules: s.rules.GetRuleCount()},
	}

	for name, c := range s.components {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		m.Components[name] = c.HealthCheck(ctx) == nil
		cancel()
	}

	if s.scheduler != nil {
		if t, ok := s.scheduler.LatestObserved(); ok {
			m.Scheduler.LatestObserved = t.Format(device.WallClockLayout)
		}
		if t, ok := s.scheduler.LastChecked(); ok {
			m.Scheduler.LastChecked = t.Format(device.WallClockLayout)
		}
		m.Scheduler.RecentFirings = len(s.scheduler.RecentFirings())
	}

	if s.stats != nil {
		st := s.stats.Stats()
		m.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, m)
}
