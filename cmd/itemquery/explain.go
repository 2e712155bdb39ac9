package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExplainCommand(rootOpts *rootOptions) *cobra.Command {
	var filterPath string

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Show how a filter is normalized and compiled",
		Long: `Print the filter as item predicates, its normalized disjunctive form and
the compiled extraction operator. The database is not opened.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(rootOpts)
			if err != nil {
				return err
			}
			expr, err := env.readFilter(filterPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			compiler := env.processor.Compiler()
			normalized, err := compiler.Normalize(expr)
			if err != nil {
				return err
			}
			op, err := compiler.Compile(expr)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "filter:     %s\n", expr)
			fmt.Fprintf(out, "normalized: %s\n", normalized)
			fmt.Fprintf(out, "operator:   %s\n", op)
			fmt.Fprintf(out, "cost:       %d\n", op.Cost())
			return nil
		},
	}
	cmd.Flags().StringVarP(&filterPath, "filter", "f", "-", "filter document, - for stdin")
	return cmd
}
