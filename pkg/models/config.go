package models

import "time"

// SourceConfig selects and bounds the data source.
type SourceConfig struct {
	URL           string        `yaml:"url" mapstructure:"url"`
	HealthTimeout time.Duration `yaml:"health_timeout" mapstructure:"health_timeout"`
	CallTimeout   time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
}

// PollConfig holds polling cadence and backoff bounds.
type PollConfig struct {
	BaseInterval time.Duration `yaml:"base_interval" mapstructure:"base_interval"`
	MaxInterval  time.Duration `yaml:"max_interval" mapstructure:"max_interval"`
	MaxAttempts  int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	JobInterval  time.Duration `yaml:"job_interval" mapstructure:"job_interval"`
	MaxJobPolls  int           `yaml:"max_job_polls" mapstructure:"max_job_polls"`
}

// LimitsConfig caps the bounded ViewModel sequences.
type LimitsConfig struct {
	Feed        int `yaml:"feed" mapstructure:"feed"`
	RadarEvents int `yaml:"radar_events" mapstructure:"radar_events"`
	Arcs        int `yaml:"arcs" mapstructure:"arcs"`
}

// ChannelBounds declares the clamp range for channel values.
type ChannelBounds struct {
	Min float64 `yaml:"min" mapstructure:"min"`
	Max float64 `yaml:"max" mapstructure:"max"`
}

// SimulatorConfig tunes the local generator data source.
type SimulatorConfig struct {
	Seed        uint64        `yaml:"seed" mapstructure:"seed"`
	BuildPolls  int           `yaml:"build_polls" mapstructure:"build_polls"`
	FailureRate float64       `yaml:"failure_rate" mapstructure:"failure_rate"`
	Latency     time.Duration `yaml:"latency" mapstructure:"latency"`
	// SubscribeRate is the sustained subscribe calls per second allowed.
	SubscribeRate float64  `yaml:"subscribe_rate" mapstructure:"subscribe_rate"`
	Channels      []string `yaml:"channels" mapstructure:"channels"`
}

// AlertConfig overrides alert thresholds. Zero keeps the default.
type AlertConfig struct {
	ViolationBurst        int `yaml:"violation_burst,omitempty" mapstructure:"violation_burst"`
	JobFailures           int `yaml:"job_failures,omitempty" mapstructure:"job_failures"`
	MaxPollFailurePercent int `yaml:"max_poll_failure_percent,omitempty" mapstructure:"max_poll_failure_percent"`
}

// NotificationConfig holds alert delivery settings.
type NotificationConfig struct {
	WebhookURL string      `yaml:"webhook_url,omitempty" mapstructure:"webhook_url"`
	Alerts     AlertConfig `yaml:"alerts,omitempty" mapstructure:"alerts"`
}

// RadarConfig holds all settings read from .radarconfig via Viper.
type RadarConfig struct {
	Source        SourceConfig       `yaml:"source" mapstructure:"source"`
	Poll          PollConfig         `yaml:"poll" mapstructure:"poll"`
	Limits        LimitsConfig       `yaml:"limits" mapstructure:"limits"`
	Channel       ChannelBounds      `yaml:"channel" mapstructure:"channel"`
	Simulator     SimulatorConfig    `yaml:"simulator" mapstructure:"simulator"`
	Notifications NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
	EventLog      string             `yaml:"event_log" mapstructure:"event_log"`
}
