package sqldb

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leofalp/sqlgraph/providers/database"
)

var (
	stringLiteral  = regexp.MustCompile(`'(?:[^']|'')*'`)
	quotedIdent    = regexp.MustCompile(`"(?:[^"]|"")*"`)
	lineComment    = regexp.MustCompile(`--[^\n]*`)
	blockComment   = regexp.MustCompile(`(?s)/\*.*?\*/`)
	writeKeywords  = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|ATTACH|DETACH|COPY|GRANT|REVOKE|MERGE|INSTALL|VACUUM)\b`)
	readOnlyLeader = regexp.MustCompile(`(?i)^(SELECT|WITH|VALUES|EXPLAIN|SHOW|DESCRIBE|DESC|TABLE|FROM)\b`)
)

// stripTrailingSemicolons removes trailing statement terminators.
func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// checkReadOnly rejects statements that could modify the database.
func checkReadOnly(statement string) error {
	code := blockComment.ReplaceAllString(statement, " ")
	code = lineComment.ReplaceAllString(code, " ")
	code = stringLiteral.ReplaceAllString(code, "''")
	code = quotedIdent.ReplaceAllString(code, `""`)
	code = strings.TrimSpace(code)

	if strings.Contains(code, ";") {
		return fmt.Errorf("%w: multiple statements", database.ErrWriteRejected)
	}
	if !readOnlyLeader.MatchString(code) {
		return fmt.Errorf("%w: statement must start with SELECT or WITH", database.ErrWriteRejected)
	}
	if keyword := writeKeywords.FindString(code); keyword != "" {
		return fmt.Errorf("%w: contains %s", database.ErrWriteRejected, strings.ToUpper(keyword))
	}
	return nil
}
