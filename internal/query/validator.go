// Package query decides whether a SQL statement may be sent to the database.
//
// The check is a keyword prefix test, not a parser. A statement that starts
// with an allowed keyword passes even when it embeds side effects, for
// example a WITH clause wrapping INSERT ... RETURNING or a SELECT calling a
// volatile function.
package query

import (
	"regexp"
	"strings"
)

// AllowedKeywords lists the statement prefixes accepted as read-only.
var AllowedKeywords = []string{"SELECT", "SHOW", "DESCRIBE", "EXPLAIN", "WITH"}

var readOnlyPattern = regexp.MustCompile(`(?i)^\s*(` + strings.Join(AllowedKeywords, "|") + `)`)

// ValidationError is returned when a statement fails the read-only check.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsReadOnly reports whether the trimmed statement begins with an allowed keyword.
func IsReadOnly(q string) bool {
	return readOnlyPattern.MatchString(strings.TrimSpace(q))
}

// Validate returns a *ValidationError for statements IsReadOnly rejects.
func Validate(q string) error {
	if IsReadOnly(q) {
		return nil
	}
	return &ValidationError{
		Message: "Only read-only queries (" + strings.Join(AllowedKeywords, ", ") + ") are allowed",
	}
}
