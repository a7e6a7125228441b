package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/tradebot/pkg/model"
)

func printStatus(w io.Writer, st model.QueueStatus) {
	fmt.Fprintf(w, "Requester: %s\n", displayName(st.Requester))
	fmt.Fprintf(w, "  State:    %s\n", st.State)
	if st.Position > 0 {
		fmt.Fprintf(w, "  Position: %d of %d\n", st.Position, st.Total)
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <requester_id>",
		Short: "Show where a requester stands in the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var st model.QueueStatus
			if _, err := client.Get(cmd.Context(), "/api/v1/requests/"+args[0], &st); err != nil {
				return fmt.Errorf("get status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <requester_id>",
		Short: "Follow a request until it finishes or is canceled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := client.Stream(cmd.Context(), "/api/v1/sse/requests/"+args[0])
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			defer body.Close()

			w := cmd.OutOrStdout()
			scanner := bufio.NewScanner(body)
			for scanner.Scan() {
				data, ok := strings.CutPrefix(scanner.Text(), "data: ")
				if !ok {
					continue
				}
				var st model.QueueStatus
				if err := json.Unmarshal([]byte(data), &st); err != nil {
					return fmt.Errorf("parse event: %w", err)
				}
				if st.Position > 0 {
					fmt.Fprintf(w, "%s (position %d of %d)\n", st.State, st.Position, st.Total)
				} else {
					fmt.Fprintf(w, "%s\n", st.State)
				}
			}
			return scanner.Err()
		},
	}
}
