package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "cancel [requester_id]",
		Short: "Cancel a queued request, or all of them with --all",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if all {
				var data struct {
					Canceled int `json:"canceled"`
				}
				if _, err := client.Delete(cmd.Context(), "/api/v1/requests/", &data); err != nil {
					return fmt.Errorf("cancel all: %w", err)
				}
				fmt.Fprintf(w, "Canceled %d queued request(s)\n", data.Canceled)
				return nil
			}

			id := args[0]
			var data struct {
				State string `json:"state"`
			}
			if _, err := client.Delete(cmd.Context(), "/api/v1/requests/"+id, &data); err != nil {
				return fmt.Errorf("cancel request: %w", err)
			}
			fmt.Fprintf(w, "Request of %s: %s\n", id, data.State)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Cancel every queued request")
	return cmd
}
