package models

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled marks a job stopped by an explicit cancel request.
	ErrCancelled = errors.New("reel cancelled")
	// ErrNoMediaFound is wrapped by AcquisitionError once every strategy is spent.
	ErrNoMediaFound = errors.New("no media found")
)

type AcquisitionError struct {
	SceneID  string
	Attempts int
	Err      error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition failed for scene %s after %d attempts: %v", e.SceneID, e.Attempts, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

type RenderError struct {
	SceneID string
	Op      string
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render scene %s: %s: %v", e.SceneID, e.Op, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

type CompositionError struct {
	Op  string
	Err error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("composition %s: %v", e.Op, e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }

type MixError struct {
	Op  string
	Err error
}

func (e *MixError) Error() string {
	return fmt.Sprintf("mix %s: %v", e.Op, e.Err)
}

func (e *MixError) Unwrap() error { return e.Err }
