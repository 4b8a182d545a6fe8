package sqldb

import (
	"errors"
	"testing"

	"github.com/leofalp/sqlgraph/providers/database"
)

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		rejected bool
	}{
		{name: "select", sql: "SELECT COUNT(*) FROM employees"},
		{name: "cte", sql: "WITH t AS (SELECT 1 AS x) SELECT x FROM t"},
		{name: "lowercase", sql: "select name from schools where city = 'Fresno'"},
		{name: "keyword inside literal", sql: "SELECT * FROM logs WHERE message = 'DROP TABLE users'"},
		{name: "keyword inside quoted identifier", sql: `SELECT "delete" FROM flags`},
		{name: "leading comment", sql: "-- count rows\nSELECT 1"},
		{name: "column named updated_at", sql: "SELECT updated_at FROM orders"},
		{name: "insert", sql: "INSERT INTO employees VALUES (1)", rejected: true},
		{name: "drop", sql: "DROP TABLE employees", rejected: true},
		{name: "stacked statements", sql: "SELECT 1; DELETE FROM employees", rejected: true},
		{name: "write inside cte", sql: "WITH gone AS (DELETE FROM t RETURNING *) SELECT * FROM gone", rejected: true},
		{name: "attach", sql: "ATTACH 'other.db'", rejected: true},
		{name: "comment hides nothing", sql: "/* SELECT */ UPDATE t SET x = 1", rejected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkReadOnly(stripTrailingSemicolons(tt.sql))
			if tt.rejected {
				if !errors.Is(err, database.ErrWriteRejected) {
					t.Fatalf("checkReadOnly(%q) error = %v, want ErrWriteRejected", tt.sql, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("checkReadOnly(%q) error = %v", tt.sql, err)
			}
		})
	}
}

func TestStripTrailingSemicolons(t *testing.T) {
	if got := stripTrailingSemicolons("  SELECT 1 ;; \n"); got != "SELECT 1" {
		t.Fatalf("stripTrailingSemicolons() = %q", got)
	}
}
