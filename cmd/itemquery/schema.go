package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/krew-solutions/itemquery/itemquery/store"
)

func newSchemaCommand(rootOpts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "init-schema",
		Short: "Create the item, identity and attribute tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(rootOpts)
			if err != nil {
				return err
			}
			schema := store.Schema{
				Catalog:           env.catalog,
				Dialect:           env.dialect,
				TablePrefix:       env.cfg.Database.TablePrefix,
				IdentitiesTable:   env.cfg.Identities.Table,
				IdentityKeyColumn: env.cfg.Identities.KeyColumn,
			}
			if dryRun {
				for _, stmt := range schema.Statements() {
					fmt.Fprintln(cmd.OutOrStdout(), stmt+";")
				}
				return nil
			}
			return env.inTransaction(cmd.Context(), func(tc *store.TransactionContext) error {
				return schema.Create(tc.Session().Connection())
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the DDL instead of running it")
	return cmd
}
