// Command rackctl queries and edits a rack plan, either offline from a plan
// file or SQLite database, or against a running rackplan-server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/signalsfoundry/rackplan/internal/config"
	"github.com/signalsfoundry/rackplan/internal/logging"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	conn     connection
	logLevel string
}

func newRootCmd() *cobra.Command {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "rackctl",
		Short:        "Rack slot, port and cable planning CLI",
		SilenceUsage: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&opts.conn.server, "server", "", "planner gRPC address; overrides --db and --plan")
	pf.StringVar(&opts.conn.dbPath, "db", cfg.DBPath, "SQLite plan database")
	pf.StringVar(&opts.conn.planFile, "plan", cfg.PlanFile, "JSON or TOML plan file to load first")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "debug, info, warn or error")

	root.AddCommand(
		newFitCmd(opts),
		newCapacityCmd(opts),
		newTraceCmd(opts),
		newStatusCmd(opts),
		newLinksCmd(opts),
		newConnectCmd(opts),
		newDisconnectCmd(opts),
		newPlaceCmd(opts),
		newHealCmd(opts),
	)
	return root
}

// withPlanner opens the configured planner for the duration of fn.
func (o *rootOptions) withPlanner(cmd *cobra.Command, fn func(ctx context.Context, p planner) error) error {
	log := logging.New(logging.Config{Level: o.logLevel, Output: cmd.ErrOrStderr()})
	p, release, err := o.conn.open(log)
	if err != nil {
		return err
	}
	defer release()

	ctx, _ := logging.EnsureRequestID(cmd.Context())
	return fn(ctx, p)
}
