package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/pterm/pterm"

	"github.com/leofalp/sqlgraph"
	"github.com/leofalp/sqlgraph/core/state"
	"github.com/leofalp/sqlgraph/internal/config"
	"github.com/leofalp/sqlgraph/providers/database/sqldb"
)

// maxCellWidth truncates long values in result tables.
const maxCellWidth = 60

func formatCell(value any) string {
	var text string
	switch typed := value.(type) {
	case nil:
		text = "NULL"
	case string:
		text = typed
	case []byte:
		text = string(typed)
	default:
		text = fmt.Sprint(typed)
	}
	text = strings.ReplaceAll(text, "\n", " ")
	if runes := []rune(text); len(runes) > maxCellWidth {
		text = string(runes[:maxCellWidth-3]) + "..."
	}
	return text
}

// rowsTable lays rows out for pterm. Rows carry no column names, so the
// header is positional.
func rowsTable(rows [][]any) pterm.TableData {
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	header := make([]string, width)
	for index := range header {
		header[index] = fmt.Sprintf("#%d", index+1)
	}

	data := pterm.TableData{header}
	for _, row := range rows {
		line := make([]string, width)
		for index, value := range row {
			line[index] = formatCell(value)
		}
		data = append(data, line)
	}
	return data
}

func schemaTable(schema state.Schema) pterm.TableData {
	data := pterm.TableData{{"table", "columns"}}
	for _, table := range schema.Tables() {
		data = append(data, []string{table, strings.Join(schema[table], ", ")})
	}
	return data
}

func renderJSON(out io.Writer, result *sqlgraph.Result) error {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(encoded))
	return err
}

// renderResult prints a human-readable view of result.
func renderResult(out io.Writer, result *sqlgraph.Result) error {
	var builder strings.Builder

	if result.SQLQuery != "" {
		builder.WriteString(pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("SQL")).
			WithPadding(1).
			Sprint(result.SQLQuery))
		builder.WriteString("\n")
	}

	if len(result.Results) > 0 {
		table, err := pterm.DefaultTable.WithHasHeader().WithData(rowsTable(result.Results)).Srender()
		if err != nil {
			return err
		}
		builder.WriteString(table)
		builder.WriteString("\n")
		builder.WriteString(pterm.Gray(fmt.Sprintf("%d row(s)", len(result.Results))))
		builder.WriteString("\n")
	}

	if result.Response != "" {
		builder.WriteString("\n")
		builder.WriteString(result.Response)
		builder.WriteString("\n")
	}

	if result.Succeeded() {
		builder.WriteString(pterm.Success.Sprintln("answered"))
	} else {
		builder.WriteString(pterm.Error.Sprintln(result.Error))
	}

	_, err := io.WriteString(out, builder.String())
	return err
}

// stageLabel is the spinner text shown while a stage runs.
func stageLabel(node string) string {
	return strings.ReplaceAll(node, "_", " ")
}

func sortedDatabases(cfg config.Config) []string {
	return slices.Sorted(maps.Keys(cfg.Databases))
}

func driverLabel(driver string) string {
	if driver == sqldb.DriverPostgres {
		return "postgres"
	}
	return driver
}
