package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/krew-solutions/itemquery/itemquery/store"
)

type queryOptions struct {
	filterPath string
	count      bool
}

func newQueryCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the ids of the items matching a filter",
		Long: `Compile the filter and run it against the configured database.

Matching item ids are printed one per line in ascending order, or their
number with --count.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, rootOpts, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.filterPath, "filter", "f", "-", "filter document, - for stdin")
	cmd.Flags().BoolVar(&opts.count, "count", false, "print the number of matching items")
	return cmd
}

func runQuery(cmd *cobra.Command, rootOpts *rootOptions, opts *queryOptions) error {
	env, err := loadEnvironment(rootOpts)
	if err != nil {
		return err
	}
	expr, err := env.readFilter(opts.filterPath, cmd.InOrStdin())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return env.inTransaction(cmd.Context(), func(tc *store.TransactionContext) error {
		if opts.count {
			n, err := env.processor.Count(tc, expr)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, n)
			return nil
		}
		items, err := env.processor.LoadItems(tc, expr)
		if err != nil {
			return err
		}
		for _, item := range items {
			fmt.Fprintln(out, item)
		}
		return nil
	})
}
