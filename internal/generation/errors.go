package generation

import (
	"fmt"
	"strings"
)

// SchemaValidationError is returned when the generation service produced a
// result that does not conform to the document schema. Nothing is exported.
type SchemaValidationError struct {
	Message string
	Fields  []string
	Cause   error
}

func (e *SchemaValidationError) Error() string {
	msg := "generated document does not match schema: " + e.Message
	if len(e.Fields) > 0 {
		msg += " (" + strings.Join(e.Fields, ", ") + ")"
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *SchemaValidationError) Unwrap() error {
	return e.Cause
}

// TransportError is returned when the generation call itself failed: a
// provider error, a network failure, a timeout or an unexpected HTTP status.
// It is never retried.
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *TransportError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	sb.WriteString(" failed")
	if e.StatusCode != 0 {
		sb.WriteString(fmt.Sprintf(" with status %d", e.StatusCode))
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Cause))
	}
	return sb.String()
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}
