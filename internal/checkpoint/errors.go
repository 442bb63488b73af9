package checkpoint

import "errors"

// Common errors.
var (
	ErrNotFound        = errors.New("tensor not found")
	ErrDType           = errors.New("unsupported dtype")
	ErrShapeMismatch   = errors.New("tensor shape mismatch")
	ErrOutOfBounds     = errors.New("tensor extends beyond data section")
	ErrHeaderTooLarge  = errors.New("header exceeds maximum size")
	ErrDuplicateTensor = errors.New("duplicate tensor name")
	ErrChecksum        = errors.New("checksum mismatch")
)
