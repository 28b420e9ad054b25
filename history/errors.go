package history

import "fmt"

var (
	// ErrInvalidRecord is returned when a record index falls outside the
	// current history bounds.
	ErrInvalidRecord = fmt.Errorf("record index out of range")

	// ErrInvalidIndex is returned when an explicit message index falls
	// outside the target record's message list.
	ErrInvalidIndex = fmt.Errorf("message index out of range")

	// ErrNotFound is returned when a record holds no message with the
	// requested role.
	ErrNotFound = fmt.Errorf("no message with requested role")
)
