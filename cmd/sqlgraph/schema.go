package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newSchemaCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [db]",
		Short: "Show the tables and columns of a database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := global.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			var requested string
			if len(args) == 1 {
				requested = args[0]
			}
			dbID, err := resolveDatabase(app.config, requested)
			if err != nil {
				return err
			}

			schema, err := app.databases.Schema(cmd.Context(), dbID)
			if err != nil {
				return err
			}
			table, err := pterm.DefaultTable.WithHasHeader().WithData(schemaTable(schema)).Srender()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n%d tables, %d columns\n", table, len(schema), schema.ColumnCount())
			return err
		},
	}
}

func newDatabasesCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "databases",
		Short: "List the configured databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := global.load(cmd)
			if err != nil {
				return err
			}

			items := make([]pterm.BulletListItem, 0, len(cfg.Databases))
			for _, id := range sortedDatabases(cfg) {
				items = append(items, pterm.BulletListItem{
					Level: 0,
					Text:  fmt.Sprintf("%s (%s)", id, driverLabel(cfg.Databases[id].Driver)),
				})
			}
			rendered, err := pterm.DefaultBulletList.WithItems(items).Srender()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), rendered)
			return err
		},
	}
}
