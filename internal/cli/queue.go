package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/tradebot/pkg/model"
)

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List pending requests in dequeue order",
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []model.QueueEntry
			if _, err := client.Get(cmd.Context(), "/api/v1/requests/", &entries); err != nil {
				return fmt.Errorf("list requests: %w", err)
			}

			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "Queue is empty.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(w, "%s  [%s]\n", e.Summary, e.Kind)
			}
			fmt.Fprintf(w, "\n%d request(s) queued\n", len(entries))
			return nil
		},
	}
}
