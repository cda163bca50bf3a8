package render

import (
	"context"
	"fmt"
)

// UnsupportedFormatError reports an output format the pipeline cannot encode.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported output format %q", e.Format)
}

// OptionError reports an invalid render option.
type OptionError struct {
	Field  string
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TimeoutError reports a render that ran past its deadline. It can be retried.
type TimeoutError struct {
	SceneID string
	Stage   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("render of %s timed out during %s", e.SceneID, e.Stage)
}

// Unwrap makes errors.Is(err, context.DeadlineExceeded) hold.
func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// Temporary reports that the render may succeed when retried.
func (e *TimeoutError) Temporary() bool { return true }
