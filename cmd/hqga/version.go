package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hqga version %s\n", version)
		},
	}
}
