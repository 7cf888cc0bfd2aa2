package main

import (
	"github.com/spf13/cobra"
)

var logLevel string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "raftnode",
		Short: "Run or simulate a raftkit consensus node",
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newSimCmd())
	return root
}
