package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/todosync"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of todosync",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "todosync version %s\n", strings.TrimSpace(todosync.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
