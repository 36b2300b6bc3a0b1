package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/signal-radar/internal/core"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

var subscribeTimeout time.Duration

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <domain-or-url> <email>",
	Short: "Subscribe an email address to a company's updates",
	Long: `Resolve and reveal a company, then subscribe the given email address to its
updates on the data source. Successful subscriptions are recorded locally and
listed by 'radar subscriptions'.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(commandContext(cmd), subscribeTimeout)
		defer cancel()

		session, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		runner := core.NewRunner(session)
		runner.Start(ctx)
		defer runner.Stop()

		text, err := subscribeVia(ctx, runner, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

// subscribeVia reveals identifier on runner and subscribes contact to it. It
// returns the text of the feed entry the session wrote for the outcome.
func subscribeVia(ctx context.Context, runner *core.Runner, identifier, contact string) (string, error) {
	if _, err := revealVia(ctx, runner, identifier); err != nil {
		return "", err
	}
	return subscribeContact(ctx, runner, contact)
}

// revealVia submits identifier to an idle runner and waits until it is
// revealed.
func revealVia(ctx context.Context, runner *core.Runner, identifier string) (models.ViewModel, error) {
	before := runner.View().Revision
	if err := runner.Send(core.SubmitMsg{Identifier: identifier}); err != nil {
		return models.ViewModel{}, err
	}
	vm, err := runner.WaitFor(ctx, func(vm models.ViewModel) bool {
		return vm.Revision > before && vm.Mode != models.ModeResolving
	})
	if err != nil {
		return vm, fmt.Errorf("waiting for %s: %w", identifier, err)
	}
	if vm.Mode != models.ModeRevealed && vm.Mode != models.ModeTracking {
		return vm, fmt.Errorf("%s: %s", identifier, latestNote(vm))
	}
	return vm, nil
}

// subscribeContact subscribes contact to the revealed company and waits for
// the session to report the outcome in the feed.
func subscribeContact(ctx context.Context, runner *core.Runner, contact string) (string, error) {
	ref := uuid.NewString()
	if err := runner.Send(core.SubscribeMsg{Contact: contact, Ref: ref}); err != nil {
		return "", err
	}

	var outcome models.FeedItem
	_, err := runner.WaitFor(ctx, func(vm models.ViewModel) bool {
		for _, item := range vm.Feed {
			if item.Ref == ref {
				outcome = item
				return true
			}
		}
		return false
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("subscribe did not complete within %s", subscribeTimeout)
		}
		return "", err
	}
	if outcome.Kind == models.FeedDiagnostic {
		return "", errors.New(outcome.Text)
	}
	return outcome.Text, nil
}

// latestNote returns the newest diagnostic or system feed entry.
func latestNote(vm models.ViewModel) string {
	for _, item := range vm.Feed {
		if item.Kind == models.FeedDiagnostic || item.Kind == models.FeedSystem {
			return item.Text
		}
	}
	return string(vm.Mode)
}

func init() {
	subscribeCmd.Flags().DurationVar(&subscribeTimeout, "timeout", 30*time.Second, "Give up after this long")
	rootCmd.AddCommand(subscribeCmd)
}
