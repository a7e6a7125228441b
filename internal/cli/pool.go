package cli

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/tradebot/internal/config"
	"github.com/me/tradebot/internal/legality"
	"github.com/me/tradebot/internal/pool"
	"github.com/me/tradebot/internal/queue"
	"github.com/me/tradebot/internal/record"
	"github.com/me/tradebot/pkg/model"
)

func newPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Inspect and manage the distribution pool",
	}
	cmd.AddCommand(
		newPoolInfoCmd(),
		newPoolReloadCmd(),
		newPoolShowCmd(),
		newPoolNextCmd(),
		newPoolInspectCmd(),
	)
	return cmd
}

func printPoolInfo(w io.Writer, info model.PoolInfo) {
	fmt.Fprintf(w, "Folder:   %s\n", info.Folder)
	fmt.Fprintf(w, "Items:    %d\n", info.Size)
	fmt.Fprintf(w, "Shuffled: %v\n", info.Shuffled)
	if len(info.Keys) > 0 {
		fmt.Fprintf(w, "Keys:     %s\n", strings.Join(info.Keys, ", "))
	}
}

func newPoolInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the server's distribution pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			var info model.PoolInfo
			if _, err := client.Get(cmd.Context(), "/api/v1/pool/", &info); err != nil {
				return fmt.Errorf("pool info: %w", err)
			}
			printPoolInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}
}

func newPoolReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the distribution folder on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var data struct {
				Loaded bool           `json:"loaded"`
				Pool   model.PoolInfo `json:"pool"`
			}
			if _, err := client.Post(cmd.Context(), "/api/v1/pool/reload", nil, &data); err != nil {
				return fmt.Errorf("pool reload: %w", err)
			}
			w := cmd.OutOrStdout()
			if !data.Loaded {
				fmt.Fprintln(w, "Warning: no item could be loaded.")
			}
			printPoolInfo(w, data.Pool)
			return nil
		},
	}
}

func newPoolShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <key>",
		Short: "Show the decoded fields of one pool item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var item struct {
				Key       string         `json:"key"`
				Label     string         `json:"label"`
				Anonymous bool           `json:"anonymous"`
				Fields    map[string]any `json:"fields"`
			}
			if _, err := client.Get(cmd.Context(), "/api/v1/pool/"+url.PathEscape(args[0]), &item); err != nil {
				return fmt.Errorf("pool show: %w", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %s\n", item.Key, item.Label)
			fmt.Fprintf(w, "  anonymous: %v\n", item.Anonymous)
			for _, k := range sortedKeys(item.Fields) {
				fmt.Fprintf(w, "  %s: %v\n", k, item.Fields[k])
			}
			return nil
		},
	}
}

func newPoolNextCmd() *cobra.Command {
	var id, name, tier string

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Queue an anonymous request with the next eligible pool item",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := queue.ParseTier(tier)
			if err != nil {
				return err
			}
			body := model.DistributeRequest{Requester: model.Requester{ID: id, Name: name}}
			if t != queue.TierFree {
				v := uint32(t)
				body.Tier = &v
			}

			var out model.Submitted
			if _, err := client.Post(cmd.Context(), "/api/v1/pool/next", body, &out); err != nil {
				return fmt.Errorf("pool next: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Distributing %s to %s (code %04d, position %d)\n",
				out.Payload, displayName(out.Requester), out.Code, out.Position)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Requester ID (required)")
	cmd.Flags().StringVar(&name, "name", "", "Requester display name")
	cmd.Flags().StringVar(&tier, "tier", "free", "Priority tier (1-4 or free)")
	cmd.MarkFlagRequired("id")
	return cmd
}

// newPoolInspectCmd loads a folder locally, exactly as the server would,
// without contacting the server.
func newPoolInspectCmd() *cobra.Command {
	var (
		rules      []string
		resetTrack bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <folder>",
		Short: "Load a distribution folder locally and list what would be served",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checker, err := legality.Compile(rules...)
			if err != nil {
				return err
			}
			cfg := config.DefaultPoolConfig()
			cfg.DistributeFolder = args[0]
			cfg.DistributeShuffled = false
			cfg.ResetTransferTracker = resetTrack

			p := pool.New[*record.Record](record.NewFormat(checker), cfg, logger)
			w := cmd.OutOrStdout()
			if !p.Reload() {
				fmt.Fprintf(w, "No valid records in %s\n", args[0])
				return nil
			}

			eligible := 0
			fmt.Fprintf(w, "%-24s  %-16s  %-5s  %s\n", "KEY", "LABEL", "LEVEL", "ANONYMOUS")
			for _, key := range p.Keys() {
				rec, _ := p.Lookup(key)
				if rec.AnonymousAllowed() {
					eligible++
				}
				fmt.Fprintf(w, "%-24s  %-16s  %-5d  %v\n", key, rec.Label(), rec.Level, rec.AnonymousAllowed())
			}
			fmt.Fprintf(w, "\n%d record(s), %d eligible for anonymous distribution, %s in memory\n",
				p.Size(), eligible, humanize.Bytes(uint64(p.Size()*record.Size)))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&rules, "rule", nil, "Extra legality rule (repeatable)")
	cmd.Flags().BoolVar(&resetTrack, "reset-tracker", false, "Clear transfer trackers while loading")
	return cmd
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
