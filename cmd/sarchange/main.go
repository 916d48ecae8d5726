// Command sarchange detects change in stacks of co-registered SAR images
// and keeps a history of detection runs in SQLite.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banshee-data/sarchange/internal/monitoring"
	"github.com/banshee-data/sarchange/internal/version"
)

// DefaultDBPath is where runs are recorded when --db is not given.
const DefaultDBPath = "sarchange.db"

// globals are the persistent flags shared by every subcommand.
type globals struct {
	dbPath string
	debug  bool
	quiet  bool

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "sarchange",
		Short:         "Multi-temporal SAR change detection",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if g.quiet {
				monitoring.SetLogger(nil)
				return nil
			}
			l, err := monitoring.NewZapLogger(g.debug)
			if err != nil {
				return err
			}
			g.logger = l
			monitoring.UseZap(l)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.logger != nil {
				_ = g.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.dbPath, "db", DefaultDBPath, "SQLite database for run history")
	pf.BoolVar(&g.debug, "debug", false, "Enable development logging")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "Disable logging")

	root.AddCommand(
		newDetectCmd(g),
		newRunsCmd(g),
		newMigrateCmd(g),
		newBackupCmd(g),
		newRenderCmd(),
		newServeCmd(g),
		newSimulateCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Printf("sarchange: %v", err)
		stop()
		os.Exit(1)
	}
}
