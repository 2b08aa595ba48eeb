package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/todosync/pkg/todotxt"
)

var pullWrite bool

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch every backend once and print the merged list",
	Long: `Fetch every backend once. Without --write the merged tasks are printed
in todo.txt format; with --write they replace the configured todo file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := open()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := context.Background()
		if pullWrite {
			if err := s.app.Engine.Refresh(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", s.app.Primary.Path())
			return nil
		}

		f := todotxt.New()
		for _, t := range s.app.Router.FetchAllTagged(ctx) {
			fmt.Fprintln(cmd.OutOrStdout(), f.Format(t, s.cfg.Strip...))
		}
		return nil
	},
}

func init() {
	pullCmd.Flags().BoolVar(&pullWrite, "write", false, "Materialize into the todo file instead of printing")
	rootCmd.AddCommand(pullCmd)
}
