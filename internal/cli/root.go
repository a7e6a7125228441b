// Package cli implements the tradebot command line client.
package cli

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/tradebot/internal/logging"
	"github.com/me/tradebot/internal/server"
)

// envServer overrides the default server URL.
const envServer = "TRADEBOT_SERVER"

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

func defaultServer() string {
	if s := os.Getenv(envServer); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd builds the command tree. Every call returns fresh commands, so
// tests can run several invocations in one process.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tradebot",
		Short:         "Queue exchange requests and manage the distribution pool",
		Version:       server.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.ParseLevel(flagLogLevel)
			if flagDebug {
				level = slog.LevelDebug
			}
			logger = logging.NewWithWriter(level, flagLogFormat, cmd.ErrOrStderr())

			u, err := url.Parse(flagServer)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("invalid --server %q: want scheme://host[:port]", flagServer)
			}
			client = NewClient(flagServer, logger)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagServer, "server", defaultServer(), "Server URL (env "+envServer+")")
	pf.BoolVar(&flagDebug, "debug", false, "Shorthand for --log-level=debug")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddGroup(
		&cobra.Group{ID: "requests", Title: "Requests:"},
		&cobra.Group{ID: "pool", Title: "Distribution pool:"},
	)
	for _, c := range []*cobra.Command{
		newSubmitCmd(), newStatusCmd(), newWatchCmd(), newCancelCmd(), newQueueCmd(), newHistoryCmd(),
	} {
		c.GroupID = "requests"
		root.AddCommand(c)
	}
	pool := newPoolCmd()
	pool.GroupID = "pool"
	root.AddCommand(pool)

	return root
}
