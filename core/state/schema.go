package state

import (
	"maps"
	"slices"
	"strings"
)

// Schema maps a table name to its ordered column names. It is the tentative
// schema a run narrows as selection stages decide what is relevant.
type Schema map[string][]string

// Clone returns a deep copy of the schema.
func (schema Schema) Clone() Schema {
	if schema == nil {
		return nil
	}
	cloned := make(Schema, len(schema))
	for table, columns := range schema {
		cloned[table] = slices.Clone(columns)
	}
	return cloned
}

// Empty reports whether the schema holds no table with at least one column.
func (schema Schema) Empty() bool {
	for _, columns := range schema {
		if len(columns) > 0 {
			return false
		}
	}
	return true
}

// Tables returns the table names in sorted order.
func (schema Schema) Tables() []string {
	return slices.Sorted(maps.Keys(schema))
}

// ColumnCount returns the total number of columns over all tables.
func (schema Schema) ColumnCount() int {
	total := 0
	for _, columns := range schema {
		total += len(columns)
	}
	return total
}

// Table resolves a table name case-insensitively and returns the name as
// stored in the schema.
func (schema Schema) Table(name string) (string, bool) {
	if _, exists := schema[name]; exists {
		return name, true
	}
	for table := range schema {
		if strings.EqualFold(table, name) {
			return table, true
		}
	}
	return "", false
}

// Contains reports whether table (and column, when non-empty) exist in the
// schema. Matching is case-insensitive, as SQL identifiers usually are.
func (schema Schema) Contains(table, column string) bool {
	stored, exists := schema.Table(table)
	if !exists {
		return false
	}
	if column == "" {
		return true
	}
	return slices.ContainsFunc(schema[stored], func(candidate string) bool {
		return strings.EqualFold(candidate, column)
	})
}

// Narrow keeps only the tables and columns named in selection. Names are
// matched case-insensitively; the result keeps the receiver's spelling and
// column order. A selection entry with no columns keeps the whole table.
// Narrow never adds a table or column the receiver does not already have.
func (schema Schema) Narrow(selection map[string][]string) Schema {
	// Spellings of one table are merged first, so the result follows the
	// stored column order and never repeats a column.
	merged := make(map[string][]string, len(selection))
	wholeTable := make(map[string]bool)
	for requested, requestedColumns := range selection {
		table, exists := schema.Table(requested)
		if !exists {
			continue
		}
		if len(requestedColumns) == 0 {
			wholeTable[table] = true
		}
		merged[table] = append(merged[table], requestedColumns...)
	}

	narrowed := make(Schema, len(merged))
	for table, requestedColumns := range merged {
		if wholeTable[table] {
			narrowed[table] = slices.Clone(schema[table])
			continue
		}
		kept := make([]string, 0, len(schema[table]))
		for _, column := range schema[table] {
			if slices.ContainsFunc(requestedColumns, func(candidate string) bool {
				return strings.EqualFold(candidate, column)
			}) {
				kept = append(kept, column)
			}
		}
		if len(kept) > 0 {
			narrowed[table] = kept
		}
	}
	return narrowed
}

// NarrowTables keeps the named tables with all their columns.
func (schema Schema) NarrowTables(tables []string) Schema {
	selection := make(map[string][]string, len(tables))
	for _, table := range tables {
		selection[table] = nil
	}
	return schema.Narrow(selection)
}

// Restore returns a copy of the schema with the given columns put back from
// full. refs are "table.column" references, typically entities the evidence
// or retrieval matched. Restored columns follow full's column order.
// References unknown to full are ignored.
func (schema Schema) Restore(full Schema, refs []string) Schema {
	restored := schema.Clone()
	if restored == nil {
		restored = Schema{}
	}
	for _, ref := range refs {
		tableName, columnName, found := strings.Cut(ref, ".")
		if !found {
			continue
		}
		fullTable, exists := full.Table(tableName)
		if !exists || !full.Contains(fullTable, columnName) {
			continue
		}

		table, present := restored.Table(fullTable)
		if !present {
			table = fullTable
		}
		if restored.Contains(table, columnName) {
			continue
		}

		wanted := append(slices.Clone(restored[table]), columnName)
		ordered := make([]string, 0, len(wanted))
		for _, column := range full[fullTable] {
			if slices.ContainsFunc(wanted, func(candidate string) bool {
				return strings.EqualFold(candidate, column)
			}) {
				ordered = append(ordered, column)
			}
		}
		restored[table] = ordered
	}
	return restored
}

// Refs returns every column as a "table.column" reference, sorted.
func (schema Schema) Refs() []string {
	refs := make([]string, 0, schema.ColumnCount())
	for table, columns := range schema {
		for _, column := range columns {
			refs = append(refs, table+"."+column)
		}
	}
	slices.Sort(refs)
	return refs
}

// String renders the schema for prompts, one table per line:
//
//	employees(id, name, active)
func (schema Schema) String() string {
	var builder strings.Builder
	for _, table := range schema.Tables() {
		builder.WriteString(table)
		builder.WriteString("(")
		builder.WriteString(strings.Join(schema[table], ", "))
		builder.WriteString(")\n")
	}
	return strings.TrimSuffix(builder.String(), "\n")
}
