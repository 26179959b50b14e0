// Package archive reads and writes the output directory of exported artifacts.
package archive

import "fmt"

// IOError represents a failure reading or writing the output directory
type IOError struct {
	Op    string
	Path  string
	Cause error
}

func (e *IOError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("archive %s %s: %v", e.Op, e.Path, e.Cause)
	}
	return fmt.Sprintf("archive %s %s", e.Op, e.Path)
}

func (e *IOError) Unwrap() error {
	return e.Cause
}

// ExistsError is returned when an artifact with the chosen base name is already present.
// The writer never overwrites.
type ExistsError struct {
	Path string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("artifact already exists: %s", e.Path)
}
