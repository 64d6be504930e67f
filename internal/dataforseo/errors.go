package dataforseo

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCredentials = errors.New("dataforseo_missing_credentials")
	ErrNoResult           = errors.New("dataforseo_no_result")
)

// VendorError is a non-success status reported inside a well-formed vendor response.
type VendorError struct {
	Code    int
	Message string
	TaskID  string
}

func (e *VendorError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("dataforseo task %s: %d %s", e.TaskID, e.Code, e.Message)
	}
	return fmt.Sprintf("dataforseo: %d %s", e.Code, e.Message)
}

// TransportError is a failure to obtain a well-formed vendor response.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode == 0:
		return fmt.Sprintf("dataforseo transport: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("dataforseo transport: http %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("dataforseo transport: http %d: %s", e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }
