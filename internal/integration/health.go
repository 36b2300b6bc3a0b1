package integration

import (
	"context"
	"time"

	"github.com/valter-silva-au/signal-radar/internal/core"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// SourceStatus is the result of a health probe against a data source.
type SourceStatus struct {
	Name           string        `json:"name"`
	URL            string        `json:"url,omitempty"`
	Healthy        bool          `json:"healthy"`
	ResponseTime   time.Duration `json:"-"`
	ResponseTimeMS int64         `json:"response_time_ms"`
	Error          string        `json:"error,omitempty"`
	// Fallback is set when the configured backend was unusable and the
	// simulated source was chosen instead.
	Fallback bool `json:"fallback,omitempty"`
}

// Probe runs src.Health under timeout.
func Probe(ctx context.Context, src core.DataSource, timeout time.Duration) SourceStatus {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status := SourceStatus{Name: src.Name()}
	start := time.Now()
	if err := src.Health(ctx); err != nil {
		status.Error = err.Error()
	} else {
		status.Healthy = true
	}
	status.ResponseTime = time.Since(start)
	status.ResponseTimeMS = status.ResponseTime.Milliseconds()
	return status
}

// SelectSource picks the data source for a session. A configured backend
// URL is used only if it answers the health probe within
// cfg.Source.HealthTimeout; otherwise the simulated source takes over so the
// user never waits on an unreachable network.
func SelectSource(ctx context.Context, cfg *models.RadarConfig) (core.DataSource, SourceStatus) {
	sim := NewSimulatedSource(cfg.Simulator)
	if cfg.Source.URL == "" {
		return sim, SourceStatus{Name: sim.Name(), Healthy: true}
	}

	remote := NewHTTPSource(cfg.Source.URL)
	status := Probe(ctx, remote, cfg.Source.HealthTimeout)
	status.URL = cfg.Source.URL
	if status.Healthy {
		return remote, status
	}
	status.Fallback = true
	status.Name = sim.Name()
	return sim, status
}
