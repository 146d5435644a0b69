package main

import (
	"fmt"

	"github.com/sbm367/syft"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of syft",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "syft version %s\n", syft.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
