package mnist

import (
	"fmt"
)

// ToPGM encodes a grayscale image as binary PGM (P5, maxval 255).
// The header lists rows before cols.
func ToPGM(image []byte, rows, cols int) ([]byte, error) {
	if len(image) != rows*cols {
		return nil, fmt.Errorf("pgm: %d bytes for %d x %d: %w", len(image), rows, cols, ErrImageSize)
	}
	header := fmt.Sprintf("P5\n%d %d\n255\n", rows, cols)
	out := make([]byte, 0, len(header)+len(image))
	out = append(out, header...)
	return append(out, image...), nil
}
