package mnist

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// IDX magic numbers.
const (
	LabelsMagic = 2049
	ImagesMagic = 2051
)

// Images holds every image of an IDX image file in one buffer.
type Images struct {
	Count int // Number of images
	Rows  int // Image height
	Cols  int // Image width
	data  []byte
}

// Get returns a copy of image i (0-based) as Rows*Cols bytes, row-major.
func (m *Images) Get(i int) ([]byte, error) {
	if i < 0 || i >= m.Count {
		return nil, fmt.Errorf("image %d outside [0, %d): %w", i, m.Count, ErrOutOfRange)
	}
	size := m.Rows * m.Cols
	img := make([]byte, size)
	copy(img, m.data[i*size:(i+1)*size])
	return img, nil
}

// Slice returns the first n images (all of them if n <= 0 or n > Count).
// The result shares storage with m.
func (m *Images) Slice(n int) *Images {
	if n <= 0 || n > m.Count {
		n = m.Count
	}
	return &Images{Count: n, Rows: m.Rows, Cols: m.Cols, data: m.data[:n*m.Rows*m.Cols]}
}

// LoadLabels reads an IDX label file.
func LoadLabels(path string) ([]uint8, error) {
	//nolint:gosec // G304: dataset path comes from the user
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	labels, err := ReadLabels(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return labels, nil
}

// ReadLabels parses IDX label data from r.
func ReadLabels(r io.Reader) ([]uint8, error) {
	if err := readMagic(r, LabelsMagic); err != nil {
		return nil, err
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read label count: %w", truncated(err))
	}

	labels, err := readBody(r, int(count))
	if err != nil {
		return nil, fmt.Errorf("failed to read %d labels: %w", count, err)
	}
	return labels, nil
}

// LoadImages reads an IDX image file.
func LoadImages(path string) (*Images, error) {
	//nolint:gosec // G304: dataset path comes from the user
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	images, err := ReadImages(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return images, nil
}

// ReadImages parses IDX image data from r.
func ReadImages(r io.Reader) (*Images, error) {
	if err := readMagic(r, ImagesMagic); err != nil {
		return nil, err
	}

	// Read dimensions
	var dims [3]uint32
	if err := binary.Read(r, binary.BigEndian, &dims); err != nil {
		return nil, fmt.Errorf("failed to read image dimensions: %w", truncated(err))
	}
	count, rows, cols := int(dims[0]), int(dims[1]), int(dims[2])
	size, ok := bodySize(count, rows, cols)
	if !ok {
		return nil, fmt.Errorf("%dx%dx%d images do not fit in memory: %w", count, rows, cols, ErrInvalidHeader)
	}

	data, err := readBody(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read %dx%dx%d images: %w", count, rows, cols, err)
	}
	return &Images{Count: count, Rows: rows, Cols: cols, data: data}, nil
}

// bodySize returns count*rows*cols, or false if the product overflows int.
func bodySize(count, rows, cols int) (int, bool) {
	if rows != 0 && cols > math.MaxInt/rows {
		return 0, false
	}
	image := rows * cols
	if image != 0 && count > math.MaxInt/image {
		return 0, false
	}
	return count * image, true
}

func readMagic(r io.Reader, want uint32) error {
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return fmt.Errorf("failed to read magic: %w", truncated(err))
	}
	if magic != want {
		return fmt.Errorf("got %d, want %d: %w", magic, want, ErrInvalidMagic)
	}
	return nil
}

// readBody reads exactly size bytes. The buffer grows with the data actually
// present, so a corrupt header cannot force a huge allocation.
func readBody(r io.Reader, size int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(size)))
	if err != nil {
		return nil, err
	}
	if len(data) != size {
		return nil, fmt.Errorf("got %d of %d bytes: %w", len(data), size, ErrTruncated)
	}
	return data, nil
}
