package runtime

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/script"
)

// Error kinds reported by the Controller. Match them with errors.Is.
var (
	// ErrDefinitionFormat marks definitions that are malformed or incomplete.
	ErrDefinitionFormat = game.ErrDefinitionFormat

	// ErrInitExecution marks failures of the init block.
	ErrInitExecution = errors.New("init execution failed")

	// ErrUpdateExecution marks failures of the update block during a tick.
	ErrUpdateExecution = errors.New("update execution failed")

	// ErrResourceUnavailable marks a missing surface or script engine.
	ErrResourceUnavailable = errors.New("resource unavailable")
)

// RuntimeError is a failure of user code, caught at the Controller boundary.
type RuntimeError struct {
	Phase   script.Phase
	Message string
	Line    int // Line within the failing block, 0 if unknown
	Frame   int // Tick that failed; 0 for init
	Err     error
}

func newRuntimeError(phase script.Phase, frame int, err error) *RuntimeError {
	re := &RuntimeError{Phase: phase, Message: err.Error(), Frame: frame, Err: err}

	var se *script.Error
	if errors.As(err, &se) {
		re.Message = se.Message
		re.Line = se.Line
	}
	return re
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s error (line %d): %s", e.Phase, e.Line, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Phase, e.Message)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Is reports ErrInitExecution or ErrUpdateExecution according to the phase.
func (e *RuntimeError) Is(target error) bool {
	switch target {
	case ErrInitExecution:
		return e.Phase == script.PhaseInit
	case ErrUpdateExecution:
		return e.Phase == script.PhaseUpdate
	}
	return false
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrResourceUnavailable, fmt.Sprintf(format, args...))
}
