package core

import (
	"strings"

	"github.com/JonMunkholm/modreports/internal/storage"
)

// BuildInsert renders
//
//	INSERT INTO <table> (<c1>, <c2>, ...) VALUES (<p1>, <p2>, ...)
//
// with identifiers quoted and placeholders numbered by the dialect. An empty
// column list yields "() VALUES ()"; callers must not execute it.
func BuildInsert(table string, columns []string, d storage.Dialect) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Quote(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Placeholder(i + 1))
	}
	b.WriteString(")")
	return b.String()
}

// InsertStatement is a built insert and the column order its arguments follow.
type InsertStatement struct {
	SQL     string
	Columns []string
}

func NewInsertStatement(table string, columns []string, d storage.Dialect) InsertStatement {
	return InsertStatement{
		SQL:     BuildInsert(table, columns, d),
		Columns: columns,
	}
}

// Bind returns one argument per column: the row's string value, or nil when
// the row lacks the column or holds nil.
func (s InsertStatement) Bind(row Row) []any {
	args := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		if v := row[c]; v != nil {
			args[i] = *v
		}
	}
	return args
}
