package transform

import (
	"fmt"
	"strings"
)

// SchemaError reports required columns absent from a source table.
type SchemaError struct {
	Entity  string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s missing columns: %s", e.Entity, strings.Join(e.Missing, ", "))
}

// ValidationError carries every failed quality gate check.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, " | ")
}
