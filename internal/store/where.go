package store

import (
	"fmt"
	"strings"
)

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Dollar renders PostgreSQL placeholders ($1, $2, ...).
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Question renders SQLite placeholders.
func Question(int) string { return "?" }

// WhereBuilder accumulates AND-ed conditions and their arguments.
type WhereBuilder struct {
	conditions  []string
	args        []any
	argIndex    int
	placeholder Placeholder
	// like is the case-insensitive match operator of the dialect.
	like string
}

// NewWhereBuilder returns a builder using PostgreSQL placeholders.
func NewWhereBuilder() *WhereBuilder {
	return newWhereBuilder(Dollar, "ILIKE")
}

// NewSQLiteWhereBuilder returns a builder using SQLite placeholders. LIKE
// is already case-insensitive for ASCII in SQLite.
func NewSQLiteWhereBuilder() *WhereBuilder {
	return newWhereBuilder(Question, "LIKE")
}

func newWhereBuilder(p Placeholder, like string) *WhereBuilder {
	return &WhereBuilder{argIndex: 1, placeholder: p, like: like}
}

func (wb *WhereBuilder) next(arg any) string {
	ph := wb.placeholder(wb.argIndex)
	wb.args = append(wb.args, arg)
	wb.argIndex++
	return ph
}

// Add appends "col = value". Empty values are skipped.
func (wb *WhereBuilder) Add(col, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, col+" = "+wb.next(value))
}

// AddInt appends "col = value". Zero is skipped.
func (wb *WhereBuilder) AddInt(col string, value int64) {
	if value == 0 {
		return
	}
	wb.conditions = append(wb.conditions, col+" = "+wb.next(value))
}

// AddRange appends inclusive bounds on col. Empty bounds are skipped.
func (wb *WhereBuilder) AddRange(col, from, to string) {
	if from != "" {
		wb.conditions = append(wb.conditions, col+" >= "+wb.next(from))
	}
	if to != "" {
		wb.conditions = append(wb.conditions, col+" <= "+wb.next(to))
	}
}

// AddSearch appends a case-insensitive substring match against any of
// cols, sharing a single argument per column.
func (wb *WhereBuilder) AddSearch(query string, cols ...string) {
	query = strings.TrimSpace(query)
	if query == "" || len(cols) == 0 {
		return
	}
	pattern := "%" + query + "%"
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + " " + wb.like + " " + wb.next(pattern)
	}
	wb.conditions = append(wb.conditions, "("+strings.Join(parts, " OR ")+")")
}

// Placeholder renders the placeholder for the next argument without
// consuming it. Callers append the argument themselves.
func (wb *WhereBuilder) Placeholder(offset int) string {
	return wb.placeholder(wb.argIndex + offset)
}

// Build returns the WHERE clause (with a leading space) and its arguments.
// With no conditions it returns "" and nil.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}
