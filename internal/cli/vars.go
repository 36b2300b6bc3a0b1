package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/signal-radar/internal/core"
	"github.com/valter-silva-au/signal-radar/internal/integration"
	"github.com/valter-silva-au/signal-radar/internal/observability"
	"github.com/valter-silva-au/signal-radar/internal/storage"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath   string
	Config     *models.RadarConfig
	ConfigMgr  core.ConfigurationManager
	SessionLog core.EventLogger
	SubStore   storage.SubscriptionStore
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)

// openSession validates the loaded configuration, picks a data source and
// returns an idle session wired to the event log, the subscription store and
// the notifier.
func openSession(ctx context.Context) (*core.Session, integration.SourceStatus, error) {
	if Config == nil {
		return nil, integration.SourceStatus{}, fmt.Errorf("configuration not loaded")
	}
	if ConfigMgr != nil {
		if err := ConfigMgr.ValidateConfig(Config); err != nil {
			return nil, integration.SourceStatus{}, err
		}
	}

	source, status := integration.SelectSource(ctx, Config)

	opts := core.SessionOptionsFromConfig(Config)
	opts.EventLogger = SessionLog

	var session *core.Session
	opts.Hooks = core.Hooks{
		OnPersistent: func(entity models.Identity, attempts int, err error) {
			notifyPersistent(session.ID(), entity, attempts, err)
		},
		OnSubscribed: recordSubscription,
	}
	session = core.NewSession(ctx, source, opts)
	return session, status, nil
}

// notifyPersistent posts a persistent degradation alert without blocking the
// session event loop.
func notifyPersistent(sessionID string, entity models.Identity, attempts int, err error) {
	if Notifier == nil {
		return
	}
	alert := observability.PersistentDegradationAlert(sessionID, entity.Name, attempts, err, time.Now().UTC())
	go func() {
		if nerr := Notifier.Notify([]observability.Alert{alert}); nerr != nil && SessionLog != nil {
			_ = SessionLog.LogEvent("notify.failed", map[string]any{"session": sessionID, "error": nerr.Error()})
		}
	}()
}

func recordSubscription(sub models.Subscription) {
	if SubStore == nil {
		return
	}
	if err := SubStore.Record(sub); err != nil && SessionLog != nil {
		_ = SessionLog.LogEvent("subscription.store_failed", map[string]any{
			"subscription": sub.ID,
			"error":        err.Error(),
		})
	}
}

// commandContext returns cmd's context, or Background when the command runs
// outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
