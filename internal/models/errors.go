package models

import "fmt"

// UpstreamError reports a failure of the metering or weather collaborator:
// transport, auth, non-success status or a malformed payload. It is
// propagated unchanged to the caller of the core pipeline.
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s upstream error (status %d): %s", e.Service, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s upstream error: %s: %v", e.Service, e.Message, e.Err)
	}
	return fmt.Sprintf("%s upstream error: %s", e.Service, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ValidationError reports malformed request input. It is raised at the HTTP
// boundary before the core pipeline runs.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}
