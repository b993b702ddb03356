package orchestrator

import (
	"errors"
	"fmt"
)

// ErrPanic wraps a panic recovered from a loader or analysis collaborator.
var ErrPanic = errors.New("recovered panic")

// LoadError reports a failed load of a beatmap set. The store is unchanged.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load beatmapset %q: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// AnalysisError reports a failed analysis of one kind.
type AnalysisError struct {
	Kind Kind
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s analysis: %v", e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

func recovered(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("%w: %w", ErrPanic, err)
	}

	return fmt.Errorf("%w: %v", ErrPanic, v)
}
