package ddr

import (
	"errors"
	"fmt"
)

// ErrDependencyUnavailable marks an optional or external backend that could
// not be reached. For the embedding backend it is absorbed; for the
// generation backend it is fatal once retries are exhausted.
var ErrDependencyUnavailable = errors.New("dependency unavailable")

// ErrInvariant marks a condition that would corrupt the data model, such as
// a RootCause referencing a Finding that does not exist. It always aborts
// the run; it is a programming error, not an input problem.
var ErrInvariant = errors.New("invariant violation")

// ConfigError is a fatal configuration problem detected at construction,
// before any run starts.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config: %s: %s", e.Field, e.Msg) }

// ExtractionError reports malformed or empty input from the upstream
// extraction layer. Fatal, never retried inside the core.
type ExtractionError struct {
	Msg string
}

func (e *ExtractionError) Error() string { return "extraction input: " + e.Msg }

// StageError wraps a stage failure with the stage name. The partial report
// built so far travels alongside it so callers can deliver a degraded
// report.
type StageError struct {
	Stage   string
	Err     error
	Partial *DDRReport
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// StageNameFromError extracts the failed stage name, or "pipeline" when the
// error did not originate inside a stage.
func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "pipeline"
}

// PartialFromError returns the partial report carried by a stage failure.
func PartialFromError(err error) *DDRReport {
	var se *StageError
	if errors.As(err, &se) {
		return se.Partial
	}
	return nil
}
