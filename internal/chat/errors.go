package chat

import (
	"errors"
	"fmt"
)

// Error kinds shared by every stage of a turn. Match them with errors.Is.
var (
	ErrTemplate       = errors.New("template")
	ErrStopResolution = errors.New("stop resolution")
	ErrDecode         = errors.New("decode")
	ErrEngine         = errors.New("engine")
)

// TemplateError reports a history that a prompt template cannot render.
type TemplateError struct {
	Reason string
}

func (e *TemplateError) Error() string { return "template: " + e.Reason }

func (e *TemplateError) Unwrap() error { return ErrTemplate }

// StopResolutionError reports a required marker that no strategy could resolve.
type StopResolutionError struct {
	Marker string
	Tried  []string
}

func (e *StopResolutionError) Error() string {
	return fmt.Sprintf("stop resolution: required marker %q unresolved (tried %v)", e.Marker, e.Tried)
}

func (e *StopResolutionError) Unwrap() error { return ErrStopResolution }

// DecodeError reports a generated token id that could not be turned into text.
type DecodeError struct {
	Token int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode token %d: %v", e.Token, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// EngineError reports a failed or cancelled generation stream.
type EngineError struct {
	Err error
}

func (e *EngineError) Error() string { return "engine: " + e.Err.Error() }

func (e *EngineError) Unwrap() []error { return []error{ErrEngine, e.Err} }
