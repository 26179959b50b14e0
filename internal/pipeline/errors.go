package pipeline

import "fmt"

// ConfigurationError is returned when the pipeline cannot export because of
// missing or invalid configuration, such as an absent output directory.
type ConfigurationError struct {
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// CaptureError is returned when no source text was available at capture time.
// No request is created.
type CaptureError struct {
	Message string
	Cause   error
}

func (e *CaptureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CaptureError) Unwrap() error {
	return e.Cause
}
