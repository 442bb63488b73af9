package mnist

import (
	"errors"
	"io"
)

// Common errors.
var (
	ErrInvalidMagic  = errors.New("invalid magic number")
	ErrInvalidHeader = errors.New("invalid header")
	ErrTruncated     = errors.New("truncated file")
	ErrOutOfRange    = errors.New("index out of range")
	ErrImageSize     = errors.New("image size mismatch")
)

// truncated tags short reads with ErrTruncated and passes other errors through.
func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Join(ErrTruncated, err)
	}
	return err
}
