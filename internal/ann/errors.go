package ann

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrShape         = errors.New("shape mismatch")
	ErrIndex         = errors.New("index out of range")
	ErrInvalidRecord = errors.New("invalid record")
	ErrGeometry      = errors.New("invalid filter geometry")
)

// ShapeError reports a buffer whose size does not match what an operation expects.
type ShapeError struct {
	Op   string // Operation that rejected the buffer (e.g., "propagate")
	What string // Which argument or dimension (e.g., "output size")
	Want int
	Got  int
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s: want %d, got %d", e.Op, e.What, e.Want, e.Got)
}

// Is reports whether target is ErrShape.
func (e *ShapeError) Is(target error) bool {
	return target == ErrShape
}

func checkSize(op, what string, want, got int) error {
	if want != got {
		return &ShapeError{Op: op, What: what, Want: want, Got: got}
	}
	return nil
}
