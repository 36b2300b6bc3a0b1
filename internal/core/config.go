// Package core contains the radar synchronization engine: the view model
// merge, the lifecycle state machine, the polling orchestrator, degradation
// handling, and the configuration they run under.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// ConfigFileName is the base name of the radar configuration file.
const ConfigFileName = ".radarconfig"

// ConfigurationManager defines the interface for loading and validating the
// radar configuration from .radarconfig and RADAR_* environment variables.
type ConfigurationManager interface {
	LoadConfig() (*models.RadarConfig, error)
	ValidateConfig(cfg *models.RadarConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files.
type viperConfigManager struct {
	// basePath is the directory where .radarconfig resides.
	basePath string
}

// NewConfigurationManager creates a new ConfigurationManager that reads
// configuration files relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a RadarConfig populated with sensible defaults.
func DefaultConfig() *models.RadarConfig {
	return &models.RadarConfig{
		Source: models.SourceConfig{
			URL:           "",
			HealthTimeout: 750 * time.Millisecond,
			CallTimeout:   5 * time.Second,
		},
		Poll: models.PollConfig{
			BaseInterval: 2 * time.Second,
			MaxInterval:  30 * time.Second,
			MaxAttempts:  5,
			JobInterval:  500 * time.Millisecond,
			MaxJobPolls:  40,
		},
		Limits: models.LimitsConfig{
			Feed:        50,
			RadarEvents: 24,
			Arcs:        12,
		},
		Channel: models.ChannelBounds{Min: 0, Max: 100},
		Simulator: models.SimulatorConfig{
			Seed:          0,
			BuildPolls:    3,
			FailureRate:   0.05,
			Latency:       150 * time.Millisecond,
			SubscribeRate: 1,
			Channels:      []string{"hiring", "funding", "product", "press", "traffic", "community"},
		},
		EventLog: ".radar_events.jsonl",
	}
}

// LoadConfig reads .radarconfig from the base path using Viper. Environment
// variables prefixed with RADAR_ override file values (RADAR_POLL_BASE_INTERVAL
// for poll.base_interval). If the file does not exist, defaults are returned.
func (cm *viperConfigManager) LoadConfig() (*models.RadarConfig, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set Viper defaults so missing keys fall back gracefully and so
	// AutomaticEnv can see every key.
	v.SetDefault("source.url", cfg.Source.URL)
	v.SetDefault("source.health_timeout", cfg.Source.HealthTimeout)
	v.SetDefault("source.call_timeout", cfg.Source.CallTimeout)
	v.SetDefault("poll.base_interval", cfg.Poll.BaseInterval)
	v.SetDefault("poll.max_interval", cfg.Poll.MaxInterval)
	v.SetDefault("poll.max_attempts", cfg.Poll.MaxAttempts)
	v.SetDefault("poll.job_interval", cfg.Poll.JobInterval)
	v.SetDefault("poll.max_job_polls", cfg.Poll.MaxJobPolls)
	v.SetDefault("limits.feed", cfg.Limits.Feed)
	v.SetDefault("limits.radar_events", cfg.Limits.RadarEvents)
	v.SetDefault("limits.arcs", cfg.Limits.Arcs)
	v.SetDefault("channel.min", cfg.Channel.Min)
	v.SetDefault("channel.max", cfg.Channel.Max)
	v.SetDefault("simulator.seed", cfg.Simulator.Seed)
	v.SetDefault("simulator.build_polls", cfg.Simulator.BuildPolls)
	v.SetDefault("simulator.failure_rate", cfg.Simulator.FailureRate)
	v.SetDefault("simulator.latency", cfg.Simulator.Latency)
	v.SetDefault("simulator.subscribe_rate", cfg.Simulator.SubscribeRate)
	v.SetDefault("simulator.channels", cfg.Simulator.Channels)
	v.SetDefault("notifications.webhook_url", "")
	v.SetDefault("notifications.alerts.violation_burst", 0)
	v.SetDefault("notifications.alerts.job_failures", 0)
	v.SetDefault("notifications.alerts.max_poll_failure_percent", 0)
	v.SetDefault("event_log", cfg.EventLog)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
		// No config file found; defaults and environment still apply.
	}

	cfg.Source.URL = v.GetString("source.url")
	cfg.Source.HealthTimeout = v.GetDuration("source.health_timeout")
	cfg.Source.CallTimeout = v.GetDuration("source.call_timeout")
	cfg.Poll.BaseInterval = v.GetDuration("poll.base_interval")
	cfg.Poll.MaxInterval = v.GetDuration("poll.max_interval")
	cfg.Poll.MaxAttempts = v.GetInt("poll.max_attempts")
	cfg.Poll.JobInterval = v.GetDuration("poll.job_interval")
	cfg.Poll.MaxJobPolls = v.GetInt("poll.max_job_polls")
	cfg.Limits.Feed = v.GetInt("limits.feed")
	cfg.Limits.RadarEvents = v.GetInt("limits.radar_events")
	cfg.Limits.Arcs = v.GetInt("limits.arcs")
	cfg.Channel.Min = v.GetFloat64("channel.min")
	cfg.Channel.Max = v.GetFloat64("channel.max")
	cfg.Simulator.Seed = v.GetUint64("simulator.seed")
	cfg.Simulator.BuildPolls = v.GetInt("simulator.build_polls")
	cfg.Simulator.FailureRate = v.GetFloat64("simulator.failure_rate")
	cfg.Simulator.Latency = v.GetDuration("simulator.latency")
	cfg.Simulator.SubscribeRate = v.GetFloat64("simulator.subscribe_rate")
	cfg.Simulator.Channels = v.GetStringSlice("simulator.channels")
	cfg.Notifications.WebhookURL = v.GetString("notifications.webhook_url")
	cfg.Notifications.Alerts.ViolationBurst = v.GetInt("notifications.alerts.violation_burst")
	cfg.Notifications.Alerts.JobFailures = v.GetInt("notifications.alerts.job_failures")
	cfg.Notifications.Alerts.MaxPollFailurePercent = v.GetInt("notifications.alerts.max_poll_failure_percent")
	cfg.EventLog = v.GetString("event_log")

	return cfg, nil
}

// ValidateConfig checks the configuration for invalid values and returns a
// single error listing every problem found.
func (cm *viperConfigManager) ValidateConfig(cfg *models.RadarConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.Source.HealthTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("source.health_timeout must be positive, got %s", cfg.Source.HealthTimeout))
	}
	if cfg.Source.CallTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("source.call_timeout must be positive, got %s", cfg.Source.CallTimeout))
	}
	if cfg.Source.URL != "" && !strings.HasPrefix(cfg.Source.URL, "http://") && !strings.HasPrefix(cfg.Source.URL, "https://") {
		errs = append(errs, fmt.Sprintf("source.url %q must start with http:// or https://", cfg.Source.URL))
	}

	if cfg.Poll.BaseInterval <= 0 {
		errs = append(errs, fmt.Sprintf("poll.base_interval must be positive, got %s", cfg.Poll.BaseInterval))
	}
	if cfg.Poll.MaxInterval < cfg.Poll.BaseInterval {
		errs = append(errs, fmt.Sprintf(
			"poll.max_interval %s must not be below poll.base_interval %s",
			cfg.Poll.MaxInterval, cfg.Poll.BaseInterval,
		))
	}
	if cfg.Poll.MaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("poll.max_attempts must be at least 1, got %d", cfg.Poll.MaxAttempts))
	}
	if cfg.Poll.JobInterval <= 0 {
		errs = append(errs, fmt.Sprintf("poll.job_interval must be positive, got %s", cfg.Poll.JobInterval))
	}
	if cfg.Poll.MaxJobPolls < 1 {
		errs = append(errs, fmt.Sprintf("poll.max_job_polls must be at least 1, got %d", cfg.Poll.MaxJobPolls))
	}

	if cfg.Limits.Feed < 1 {
		errs = append(errs, fmt.Sprintf("limits.feed must be at least 1, got %d", cfg.Limits.Feed))
	}
	if cfg.Limits.RadarEvents < 1 {
		errs = append(errs, fmt.Sprintf("limits.radar_events must be at least 1, got %d", cfg.Limits.RadarEvents))
	}
	if cfg.Limits.Arcs < 1 {
		errs = append(errs, fmt.Sprintf("limits.arcs must be at least 1, got %d", cfg.Limits.Arcs))
	}

	if cfg.Channel.Max <= cfg.Channel.Min {
		errs = append(errs, fmt.Sprintf(
			"channel.max %g must be greater than channel.min %g",
			cfg.Channel.Max, cfg.Channel.Min,
		))
	}

	if cfg.Simulator.BuildPolls < 0 {
		errs = append(errs, fmt.Sprintf("simulator.build_polls must be non-negative, got %d", cfg.Simulator.BuildPolls))
	}
	if cfg.Simulator.FailureRate < 0 || cfg.Simulator.FailureRate > 1 {
		errs = append(errs, fmt.Sprintf("simulator.failure_rate must be between 0 and 1, got %g", cfg.Simulator.FailureRate))
	}

	if cfg.Simulator.Latency < 0 {
		errs = append(errs, fmt.Sprintf("simulator.latency must be non-negative, got %s", cfg.Simulator.Latency))
	}
	if cfg.Simulator.SubscribeRate <= 0 {
		errs = append(errs, fmt.Sprintf("simulator.subscribe_rate must be positive, got %g", cfg.Simulator.SubscribeRate))
	}
	if len(cfg.Simulator.Channels) == 0 {
		errs = append(errs, "simulator.channels must name at least one channel")
	}

	if p := cfg.Notifications.Alerts.MaxPollFailurePercent; p < 0 || p > 100 {
		errs = append(errs, fmt.Sprintf("notifications.alerts.max_poll_failure_percent must be between 0 and 100, got %d", p))
	}

	if len(errs) > 0 {
		return fmt.Errorf("radar config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// SessionOptionsFromConfig converts the loaded configuration into the knobs
// a Session runs with.
func SessionOptionsFromConfig(cfg *models.RadarConfig) SessionOptions {
	return SessionOptions{
		Backoff: Backoff{
			Base: cfg.Poll.BaseInterval,
			Cap:  cfg.Poll.MaxInterval,
		},
		MaxAttempts: cfg.Poll.MaxAttempts,
		JobInterval: cfg.Poll.JobInterval,
		MaxJobPolls: cfg.Poll.MaxJobPolls,
		CallTimeout: cfg.Source.CallTimeout,
		Merge: MergeOptions{
			FeedLimit:       cfg.Limits.Feed,
			RadarEventLimit: cfg.Limits.RadarEvents,
			ArcLimit:        cfg.Limits.Arcs,
			ChannelMin:      cfg.Channel.Min,
			ChannelMax:      cfg.Channel.Max,
		},
	}
}
