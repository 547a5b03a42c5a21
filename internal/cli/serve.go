package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the decay/compaction scheduler in the foreground",
	Long: `Serve runs the engine's background scheduler (decay, tier demotion,
graph edge pruning, index compaction) in the foreground until interrupted.

This is not a network listener: the CLI has no request surface of its own.
It is meant for exercising the scheduler standalone, e.g. under a process
supervisor that isn't cmd/shodhd.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cliContext(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	fmt.Println("scheduler running, press Ctrl-C to stop")
	eng.Run(ctx)
	fmt.Println("scheduler stopped")
	return nil
}
