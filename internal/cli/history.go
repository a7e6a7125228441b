package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/tradebot/pkg/model"
)

func newHistoryCmd() *cobra.Command {
	var (
		requester string
		event     string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded request lifecycle events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if requester != "" {
				q.Set("requester", requester)
			}
			if event != "" {
				q.Set("event", event)
			}
			q.Set("limit", strconv.Itoa(limit))

			var events []model.HistoryEvent
			resp, err := client.Get(cmd.Context(), "/api/v1/history?"+q.Encode(), &events)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}

			w := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(w, "No events found.")
				return nil
			}

			fmt.Fprintf(w, "%-25s  %-16s  %-10s  %-10s  %s\n", "TIME", "REQUESTER", "KIND", "EVENT", "DETAIL")
			for _, ev := range events {
				fmt.Fprintf(w, "%-25s  %-16s  %-10s  %-10s  %s\n",
					ev.CreatedAt.Format(time.RFC3339), ev.RequesterName, ev.Kind, ev.Event, ev.Detail)
			}
			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(w, "\n(%d of %d shown)\n", len(events), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&requester, "requester", "", "Only events of this requester ID")
	cmd.Flags().StringVar(&event, "event", "", "Only this event (initialize, searching, canceled, finished, message)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events")
	return cmd
}
