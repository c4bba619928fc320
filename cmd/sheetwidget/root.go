package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// rootFlags holds the global flag values.
type rootFlags struct {
	configFile string
	debug      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "sheetwidget",
		Short: "Run a spreadsheet widget against an Excel file or a Google sheet",
		Long: `sheetwidget loads a table into an emulated spreadsheet host, attaches a
widget to it and reports the events the widget dispatches.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (default: ./sheetwidget.yaml)")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "log debug output to stderr")

	root.AddCommand(
		newWatchCmd(flags),
		newSelectCmd(flags),
		newSetCmd(flags),
		newDeltaCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sheetwidget %s\n", version)
		},
	}
}
