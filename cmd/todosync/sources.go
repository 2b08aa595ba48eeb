package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aretw0/todosync/pkg/core"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured backends and what they support",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := open()
		if err != nil {
			return err
		}
		defer s.Close()

		state := s.app.Router.State().(core.RouterState)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tDEFAULT\tCREATE\tUPDATE\tDELETE")
		for _, b := range state.Backends {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", b.ID, b.Type, yes(b.Default), yes(b.Create), yes(b.Update), yes(b.Delete))
		}
		return w.Flush()
	},
}

func yes(v bool) string {
	if v {
		return "yes"
	}
	return "-"
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
