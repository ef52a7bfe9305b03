package model

import "fmt"

// MissingFieldError marks an input record that cannot enter candidate
// generation because a required date or identifier is absent. The record
// is excluded and logged; the run continues.
type MissingFieldError struct {
	RecordKind string // "award" or "contract"
	RecordID   string
	Field      string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s %s: missing required field %q", e.RecordKind, e.RecordID, e.Field)
}
