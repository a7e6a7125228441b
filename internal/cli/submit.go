package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/tradebot/internal/queue"
	"github.com/me/tradebot/pkg/model"
)

func newSubmitCmd() *cobra.Command {
	var (
		id, name   string
		kind       string
		tier       string
		code       int
		poolKey    string
		recordFile string
		sourcePath string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue an exchange request",
		Long: `Queue an exchange request for a requester.

The payload is taken from --record (a local record file uploaded with the
request), --source (a record file on the server, moved to the processed
folder once the exchange finishes), or --pool-key. Without any of them,
link and anonymous requests receive the next item of the distribution pool.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := queue.ParseTier(tier)
			if err != nil {
				return err
			}

			body := model.SubmitRequest{
				Requester:  model.Requester{ID: id, Name: name},
				Kind:       kind,
				PoolKey:    poolKey,
				SourcePath: sourcePath,
			}
			if t != queue.TierFree {
				v := uint32(t)
				body.Tier = &v
			}
			if cmd.Flags().Changed("code") {
				body.Code = &code
			}
			if recordFile != "" {
				data, err := os.ReadFile(recordFile)
				if err != nil {
					return fmt.Errorf("read record: %w", err)
				}
				body.Record = data
			}

			var out model.Submitted
			if _, err := client.Post(cmd.Context(), "/api/v1/requests/", body, &out); err != nil {
				return fmt.Errorf("submit request: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Request queued for %s\n", displayName(out.Requester))
			fmt.Fprintf(w, "  Kind:     %s\n", out.Kind)
			fmt.Fprintf(w, "  Code:     %04d\n", out.Code)
			if out.Payload != "" {
				fmt.Fprintf(w, "  Payload:  %s\n", out.Payload)
			}
			fmt.Fprintf(w, "  Position: %d\n", out.Position)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Requester ID (required)")
	cmd.Flags().StringVar(&name, "name", "", "Requester display name")
	cmd.Flags().StringVar(&kind, "kind", "link", "Request kind (link, clone, dump, anonymous)")
	cmd.Flags().StringVar(&tier, "tier", "free", "Priority tier (1-4 or free)")
	cmd.Flags().IntVar(&code, "code", 0, "Exchange code (random when omitted)")
	cmd.Flags().StringVar(&poolKey, "pool-key", "", "Offer the pool item with this key")
	cmd.Flags().StringVar(&recordFile, "record", "", "Offer this local record file")
	cmd.Flags().StringVar(&sourcePath, "source", "", "Offer this record file on the server")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagsMutuallyExclusive("pool-key", "record", "source")

	return cmd
}

func displayName(r model.Requester) string {
	if r.Name == "" {
		return r.ID
	}
	return fmt.Sprintf("%s (%s)", r.Name, r.ID)
}
