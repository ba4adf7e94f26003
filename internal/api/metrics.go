package api

import (
	"database/sql"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-ism7/internal/bridges/ism7"
	"github.com/nerrad567/gray-logic-ism7/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-ism7/internal/infrastructure/mqtt"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string             `json:"timestamp"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Runtime       RuntimeMetrics     `json:"runtime"`
	WebSocket     WSMetrics          `json:"websocket"`
	Database      *DatabaseMetrics   `json:"database,omitempty"`
	MQTT          *mqtt.Stats        `json:"mqtt,omitempty"`
	InfluxDB      *influxdb.Stats    `json:"influxdb,omitempty"`
	Bridge        ism7.BridgeMetrics `json:"bridge"`
}

// BrokerStats is implemented by the MQTT client.
type BrokerStats interface {
	Stats() mqtt.Stats
}

// TimeSeriesStats is implemented by the InfluxDB client.
type TimeSeriesStats interface {
	Stats() influxdb.Stats
}

// DatabaseStats is implemented by the history database.
type DatabaseStats interface {
	SizeBytes() (int64, error)
	Stats() sql.DBStats
}

// DatabaseMetrics contains history database statistics.
type DatabaseMetrics struct {
	SizeBytes       int64 `json:"size_bytes"`
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	WaitCount       int64 `json:"wait_count"`
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
	PendingTickets   int `json:"pending_tickets"`
}

// handleMetrics returns system and bridge metrics as JSON.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	writeJSON(w, http.StatusOK, SystemMetrics{
		Database:      s.databaseMetrics(),
		MQTT:          s.brokerMetrics(),
		InfluxDB:      s.timeSeriesMetrics(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			PendingTickets:   s.tickets.pending(),
		},
		Bridge: s.bridge.GetMetrics(),
	})
}

// databaseMetrics returns nil when no database is wired.
func (s *Server) databaseMetrics() *DatabaseMetrics {
	if s.db == nil {
		return nil
	}
	stats := s.db.Stats()
	m := &DatabaseMetrics{
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		WaitCount:       stats.WaitCount,
	}
	size, err := s.db.SizeBytes()
	if err != nil {
		s.logger.Warn("reading database size failed", "error", err)
	} else {
		m.SizeBytes = size
	}
	return m
}

func (s *Server) brokerMetrics() *mqtt.Stats {
	if s.broker == nil {
		return nil
	}
	stats := s.broker.Stats()
	return &stats
}

func (s *Server) timeSeriesMetrics() *influxdb.Stats {
	if s.timeSeries == nil {
		return nil
	}
	stats := s.timeSeries.Stats()
	return &stats
}
