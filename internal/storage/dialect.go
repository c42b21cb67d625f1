package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/modreports/internal/report"
)

// Dialect captures the SQL syntax differences between backends.
type Dialect interface {
	Name() string
	// Placeholder returns the bind marker for the n-th parameter (1-based).
	Placeholder(n int) string
	// Quote returns ident as a quoted identifier.
	Quote(ident string) string
	// Savepoint returns the statements that open, roll back and release a
	// savepoint. Empty strings mean the step is not needed.
	Savepoint(name string) (open, rollback, release string)
}

// Dialects shipped with the backends.
var (
	SQLite    Dialect = sqliteDialect{}
	Postgres  Dialect = postgresDialect{}
	SQLServer Dialect = sqlserverDialect{}
)

type sqliteDialect struct{}

func (sqliteDialect) Name() string           { return "sqlite" }
func (sqliteDialect) Placeholder(int) string { return "?" }
func (sqliteDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// SQLite rolls back only the failing statement on a constraint error, so the
// surrounding transaction needs no savepoint.
func (sqliteDialect) Savepoint(string) (string, string, string) { return "", "", "" }

type postgresDialect struct{}

func (postgresDialect) Name() string             { return "postgres" }
func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (postgresDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// PostgreSQL aborts the entire transaction on any error.
func (postgresDialect) Savepoint(name string) (string, string, string) {
	return fmt.Sprintf("SAVEPOINT %s", name),
		fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", name),
		fmt.Sprintf("RELEASE SAVEPOINT %s", name)
}

type sqlserverDialect struct{}

func (sqlserverDialect) Name() string             { return "sqlserver" }
func (sqlserverDialect) Placeholder(n int) string { return "@p" + strconv.Itoa(n) }
func (sqlserverDialect) Quote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

// SQL Server has no RELEASE; a named savepoint simply goes out of scope.
func (sqlserverDialect) Savepoint(name string) (string, string, string) {
	return fmt.Sprintf("SAVE TRANSACTION %s", name),
		fmt.Sprintf("ROLLBACK TRANSACTION %s", name),
		""
}

// SelectReports builds the read query shared by the backends. When byTarget
// is set the query takes a single target_id parameter and orders newest first.
//
// wrap, if non-nil, rewrites each quoted column reference in the select list
// (used by Postgres to cast non-text columns to text).
func SelectReports(d Dialect, table string, byTarget bool, wrap func(col string) string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range report.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		q := d.Quote(c)
		if wrap != nil {
			b.WriteString(wrap(q))
			b.WriteString(" AS ")
		}
		b.WriteString(q)
	}
	b.WriteString(" FROM ")
	b.WriteString(d.Quote(table))
	if byTarget {
		b.WriteString(" WHERE ")
		b.WriteString(d.Quote(report.ColTargetID))
		b.WriteString(" = ")
		b.WriteString(d.Placeholder(1))
		b.WriteString(" ORDER BY ")
		b.WriteString(d.Quote(report.ColCreatedAt))
		b.WriteString(" DESC")
	}
	return b.String()
}
