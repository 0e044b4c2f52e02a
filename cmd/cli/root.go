package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"ranktracker/cmd/cli/runcmd"
)

var RootCmd = &cobra.Command{
	Use:   "rtctl",
	Short: "RankTracker - local search ranking report engine",
	Long: `RankTracker collects local search ranking reports on a schedule and serves
their results over HTTP.

At a minimum, you need to start the scheduler, at least 1 worker and the webserver.`,
}

func init() {
	RootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	RootCmd.AddCommand(runcmd.Command)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v", err)
		os.Exit(1)
	}
}
