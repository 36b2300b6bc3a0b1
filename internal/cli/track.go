package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/signal-radar/internal/core"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

var (
	trackJSON     bool
	trackDuration time.Duration
)

var trackCmd = &cobra.Command{
	Use:   "track <domain-or-url>",
	Short: "Track a company headlessly and print changes",
	Long: `Resolve a company, wait for its radar to be revealed, and keep polling for
incremental updates. Mode changes, new feed entries and degradation notices
are printed as they happen.

With --duration the tracker stops after the given time; otherwise it runs
until interrupted. With --json only the final view is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
		defer stop()

		session, status, err := openSession(ctx)
		if err != nil {
			return err
		}
		if status.Fallback && !trackJSON {
			fmt.Fprintf(cmd.OutOrStdout(), "source %s unavailable (%s), using %s\n", status.URL, status.Error, status.Name)
		}

		runner := core.NewRunner(session)
		runner.Start(ctx)
		defer runner.Stop()

		vm, err := runTracker(ctx, runner, args[0], trackDuration, trackPrinterFor(cmd.OutOrStdout(), trackJSON))
		if trackJSON {
			data, merr := json.MarshalIndent(vm, "", "  ")
			if merr != nil {
				return fmt.Errorf("formatting view as JSON: %w", merr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		}
		return err
	},
}

// runTracker submits identifier and reports every published view until
// duration elapses, ctx ends, or the identifier turns out to be unresolvable.
// A zero duration runs until ctx ends.
func runTracker(ctx context.Context, runner *core.Runner, identifier string, duration time.Duration, p *trackPrinter) (models.ViewModel, error) {
	updates, unwatch := runner.Watch()
	defer unwatch()

	if err := runner.Send(core.SubmitMsg{Identifier: identifier}); err != nil {
		return runner.View(), err
	}

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case vm := <-updates:
			p.print(vm)
			// Nothing else resets the session, so idle means the submit was
			// rejected or the resolve failed for good.
			if vm.Mode == models.ModeIdle {
				return vm, fmt.Errorf("could not resolve %q", identifier)
			}
			if vm.Mode == models.ModeFailed {
				return vm, fmt.Errorf("revealing %q failed, run track again to retry", identifier)
			}
		case <-deadline:
			return runner.View(), nil
		case <-ctx.Done():
			return runner.View(), nil
		}
	}
}

// trackPrinter writes the differences between consecutive views.
type trackPrinter struct {
	w      io.Writer
	quiet  bool
	mode   models.Mode
	notice string
	seen   map[string]bool
}

func trackPrinterFor(w io.Writer, quiet bool) *trackPrinter {
	return &trackPrinter{w: w, quiet: quiet, seen: make(map[string]bool)}
}

func (p *trackPrinter) print(vm models.ViewModel) {
	if p.quiet {
		return
	}
	if vm.Mode != p.mode {
		p.mode = vm.Mode
		line := fmt.Sprintf("[%s]", vm.Mode)
		if vm.Entity != nil && vm.Mode != models.ModeIdle {
			line += fmt.Sprintf(" %s (%s)", vm.Entity.Name, vm.Entity.Domain)
		}
		if vm.Mode == models.ModeRevealed || vm.Mode == models.ModeTracking {
			line += fmt.Sprintf(" %d channel(s)", len(vm.Channels))
		}
		fmt.Fprintln(p.w, line)
	}

	// Feed is newest-first; print unseen entries oldest-first.
	for i := len(vm.Feed) - 1; i >= 0; i-- {
		item := vm.Feed[i]
		if p.seen[item.ID] {
			continue
		}
		p.seen[item.ID] = true
		kind := item.Kind
		if kind == "" {
			kind = models.FeedSignal
		}
		fmt.Fprintf(p.w, "  %s %-10s %s\n", item.Timestamp.Local().Format("15:04:05"), kind, item.Text)
	}

	notice := ""
	if vm.Notice != nil {
		notice = vm.Notice.Text
	}
	if notice != p.notice {
		if notice != "" {
			fmt.Fprintf(p.w, "  ! %s\n", notice)
		} else {
			fmt.Fprintln(p.w, "  live updates resumed")
		}
		p.notice = notice
	}
}

func init() {
	trackCmd.Flags().BoolVar(&trackJSON, "json", false, "Print only the final view as JSON")
	trackCmd.Flags().DurationVar(&trackDuration, "duration", 0, "Stop tracking after this long (e.g. 30s, 5m)")
	rootCmd.AddCommand(trackCmd)
}
