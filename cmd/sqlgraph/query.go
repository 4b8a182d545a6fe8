package main

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/leofalp/sqlgraph"
	"github.com/leofalp/sqlgraph/core/state"
	"github.com/leofalp/sqlgraph/patterns/graph"
)

type queryOptions struct {
	dbID     string
	evidence string
	json     bool
}

func newQueryCommand(global *globalOptions) *cobra.Command {
	options := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer one question with SQL",
		Long: `The query command runs one question through the pipeline, prints the
generated SQL with its rows and the natural-language answer.

With --json the full result, including the execution history, is printed
as JSON instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := global.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			dbID, err := resolveDatabase(app.config, options.dbID)
			if err != nil {
				return err
			}
			if err := app.prepare(cmd.Context(), dbID); err != nil {
				return err
			}

			question := strings.Join(args, " ")
			if options.json {
				result, err := app.engine.Run(cmd.Context(), question, dbID, options.evidence)
				if err != nil {
					return err
				}
				return renderJSON(cmd.OutOrStdout(), result)
			}

			result, err := streamQuestion(cmd, app.engine, question, dbID, options.evidence)
			if err != nil {
				return err
			}
			return renderResult(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&options.dbID, "db", "", "database id (defaults to the only configured database)")
	cmd.Flags().StringVar(&options.evidence, "evidence", "", "domain hints passed to the model")
	cmd.Flags().BoolVar(&options.json, "json", false, "print the result as JSON")
	return cmd
}

// streamQuestion runs question while a spinner follows the stages.
func streamQuestion(cmd *cobra.Command, engine *sqlgraph.Engine, question, dbID, evidence string) (*sqlgraph.Result, error) {
	spinner, _ := pterm.DefaultSpinner.
		WithWriter(cmd.ErrOrStderr()).
		WithRemoveWhenDone(true).
		Start("loading schema")

	var (
		final  state.ExecutionState
		runErr error
	)
	for event, err := range engine.Stream(cmd.Context(), question, dbID, evidence) {
		if err != nil && event.Step == 0 {
			_ = spinner.Stop()
			return nil, err
		}
		final, runErr = event.State, err
		if event.Next != graph.End {
			spinner.UpdateText(stageLabel(event.Next))
		}
	}
	_ = spinner.Stop()

	return engine.Summarize(cmd.Context(), final, runErr), nil
}
