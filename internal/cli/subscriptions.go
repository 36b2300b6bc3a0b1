package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

var (
	subscriptionsJSON   bool
	subscriptionsEntity string
)

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "List recorded subscriptions",
	Long: `List the subscriptions recorded after successful subscribe calls, oldest
first. Use --entity to show only one company's subscriptions.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if SubStore == nil {
			return fmt.Errorf("subscription store not initialized")
		}
		if err := SubStore.Load(); err != nil {
			return err
		}

		var subs []models.Subscription
		var err error
		if subscriptionsEntity != "" {
			subs, err = SubStore.ForEntity(subscriptionsEntity)
		} else {
			subs, err = SubStore.List()
		}
		if err != nil {
			return fmt.Errorf("listing subscriptions: %w", err)
		}

		out := cmd.OutOrStdout()
		if subscriptionsJSON {
			if subs == nil {
				subs = []models.Subscription{}
			}
			data, err := json.MarshalIndent(subs, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting subscriptions as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		if len(subs) == 0 {
			fmt.Fprintln(out, "No subscriptions recorded.")
			return nil
		}
		fmt.Fprintf(out, "%-38s %-20s %-30s %s\n", "ID", "COMPANY", "CONTACT", "CREATED")
		for _, sub := range subs {
			fmt.Fprintf(out, "%-38s %-20s %-30s %s\n",
				sub.ID, sub.Entity, sub.Contact, sub.Created.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var subscriptionsRemoveCmd = &cobra.Command{
	Use:   "remove <subscription-id>",
	Short: "Forget a recorded subscription",
	Long: `Remove a subscription from the local record. The data source is not
contacted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if SubStore == nil {
			return fmt.Errorf("subscription store not initialized")
		}
		if err := SubStore.Load(); err != nil {
			return err
		}
		if err := SubStore.Remove(args[0]); err != nil {
			return err
		}
		if err := SubStore.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed subscription %s.\n", args[0])
		return nil
	},
}

func init() {
	subscriptionsCmd.Flags().BoolVar(&subscriptionsJSON, "json", false, "Output subscriptions as JSON")
	subscriptionsCmd.Flags().StringVar(&subscriptionsEntity, "entity", "", "Only show subscriptions for this entity ID")
	subscriptionsCmd.AddCommand(subscriptionsRemoveCmd)
	rootCmd.AddCommand(subscriptionsCmd)
}
