package models

import "time"

// Mode is the lifecycle state of a radar session.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeResolving Mode = "resolving"
	ModeRevealed  Mode = "revealed"
	ModeTracking  Mode = "tracking"
	ModeFailed    Mode = "failed"
)

// Direction is the sign of a channel's most recent change.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// DirectionOf derives a Direction from a signed delta.
func DirectionOf(delta float64) Direction {
	switch {
	case delta > 0:
		return DirectionUp
	case delta < 0:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

// FeedKind separates signal entries from entries the session writes itself.
type FeedKind string

const (
	FeedSignal     FeedKind = "signal"
	FeedDiagnostic FeedKind = "diagnostic"
	FeedSystem     FeedKind = "system"
)

// Identity is a resolved entity. It never changes once set on a ViewModel.
type Identity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	Description string `json:"description,omitempty"`
}

// ChannelState is one addressable signal track.
type ChannelState struct {
	ID            string    `json:"id"`
	Value         float64   `json:"value"`
	Delta         float64   `json:"delta"`
	Direction     Direction `json:"direction"`
	Confidence    float64   `json:"confidence"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// Impact attributes part of a feed item to a channel movement.
type Impact struct {
	ChannelID string  `json:"channelId"`
	Delta     float64 `json:"delta"`
}

// FeedItem is an immutable log entry.
type FeedItem struct {
	ID         string    `json:"id"`
	Kind       FeedKind  `json:"kind,omitempty"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Impacts    []Impact  `json:"impacts,omitempty"`
	// Ref echoes the caller-supplied reference of the request that produced
	// the entry, so a caller can find its own outcome among other entries.
	Ref string `json:"ref,omitempty"`
}

// RadarEvent is a transient blip annotation on the radar.
type RadarEvent struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	Label     string    `json:"label"`
	Intensity float64   `json:"intensity"`
	Timestamp time.Time `json:"timestamp"`
}

// Arc is a transient annotation linking two channels.
type Arc struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Strength  float64   `json:"strength"`
	Timestamp time.Time `json:"timestamp"`
}

// Panels is a snapshot of secondary metrics. It is always replaced whole.
type Panels struct {
	Metrics   map[string]float64 `json:"metrics"`
	Summary   string             `json:"summary,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// NoticeLevel describes how loud a Notice should be.
type NoticeLevel string

const (
	NoticePaused     NoticeLevel = "paused"
	NoticePersistent NoticeLevel = "persistent"
)

// Notice is the non-blocking banner shown while tracking is degraded.
type Notice struct {
	Level    NoticeLevel `json:"level"`
	Text     string      `json:"text"`
	Attempts int         `json:"attempts"`
	Since    time.Time   `json:"since"`
}

// ViewModel is the authoritative client-side snapshot of a radar session.
type ViewModel struct {
	Mode        Mode                    `json:"mode"`
	Entity      *Identity               `json:"entity,omitempty"`
	Channels    map[string]ChannelState `json:"channels"`
	Feed        []FeedItem              `json:"feed"`
	RadarEvents []RadarEvent            `json:"radarEvents"`
	Arcs        []Arc                   `json:"arcs"`
	Panels      *Panels                 `json:"panels,omitempty"`
	Notice      *Notice                 `json:"notice,omitempty"`
	Revision    uint64                  `json:"revision"`
}

// NewViewModel returns an empty idle ViewModel.
func NewViewModel() ViewModel {
	return ViewModel{
		Mode:     ModeIdle,
		Channels: make(map[string]ChannelState),
	}
}

// ChannelPatch carries only the channel fields a delta changes.
type ChannelPatch struct {
	Value         *float64   `json:"value,omitempty"`
	Delta         *float64   `json:"delta,omitempty"`
	Confidence    *float64   `json:"confidence,omitempty"`
	LastUpdatedAt *time.Time `json:"lastUpdatedAt,omitempty"`
}

// Delta is a partial ViewModel. Absent fields mean "unchanged". Feed,
// RadarEvents and Arcs are ordered newest-first.
type Delta struct {
	Entity      *Identity               `json:"entity,omitempty"`
	Channels    map[string]ChannelPatch `json:"channels,omitempty"`
	Feed        []FeedItem              `json:"feed,omitempty"`
	RadarEvents []RadarEvent            `json:"radarEvents,omitempty"`
	Arcs        []Arc                   `json:"arcs,omitempty"`
	Panels      *Panels                 `json:"panels,omitempty"`

	// Notice and ClearNotice are written by the session, never decoded
	// from a data source.
	Notice      *Notice `json:"-"`
	ClearNotice bool    `json:"-"`
}

// IsEmpty reports whether the delta changes nothing.
func (d Delta) IsEmpty() bool {
	return d.Entity == nil && len(d.Channels) == 0 && len(d.Feed) == 0 &&
		len(d.RadarEvents) == 0 && len(d.Arcs) == 0 && d.Panels == nil &&
		d.Notice == nil && !d.ClearNotice
}

// Snapshot is the full state a data source returns when a job is ready.
type Snapshot struct {
	Channels    map[string]ChannelState `json:"channels"`
	Feed        []FeedItem              `json:"feed,omitempty"`
	RadarEvents []RadarEvent            `json:"radarEvents,omitempty"`
	Arcs        []Arc                   `json:"arcs,omitempty"`
	Panels      *Panels                 `json:"panels,omitempty"`
}
