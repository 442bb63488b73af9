package ann

import (
	"fmt"
	"strings"
)

// Signal is a fixed-length float32 vector: a layer activation, an error
// signal or a label encoding. Its length never changes after creation.
type Signal struct {
	data []float32
}

// NewSignal creates a zero-filled signal of length n.
func NewSignal(n int) *Signal {
	if n <= 0 {
		panic(fmt.Sprintf("ann: invalid signal size %d", n))
	}
	return &Signal{data: make([]float32, n)}
}

// Source is the value a Signal is initialized from.
// Use FromBytes, FromIndex, FromValues or Zero to build one.
type Source interface {
	fill(dst []float32) error
}

type bytesSource []byte

type indexSource int

type valuesSource []float32

type zeroSource struct{}

// FromBytes maps each byte b to b/255.
// The byte count must equal the signal length.
func FromBytes(b []byte) Source { return bytesSource(b) }

// FromIndex builds a one-hot encoding with 1 at position k.
func FromIndex(k int) Source { return indexSource(k) }

// FromValues copies values verbatim. The length must equal the signal length.
func FromValues(values []float32) Source { return valuesSource(values) }

// Zero fills the signal with zeros.
func Zero() Source { return zeroSource{} }

func (b bytesSource) fill(dst []float32) error {
	if err := checkSize("init", "byte count", len(dst), len(b)); err != nil {
		return err
	}
	for i, v := range b {
		dst[i] = float32(v) / 255.0
	}
	return nil
}

func (k indexSource) fill(dst []float32) error {
	if k < 0 || int(k) >= len(dst) {
		return fmt.Errorf("init: one-hot index %d outside [0, %d): %w", int(k), len(dst), ErrIndex)
	}
	clear(dst)
	dst[k] = 1
	return nil
}

func (v valuesSource) fill(dst []float32) error {
	if err := checkSize("init", "value count", len(dst), len(v)); err != nil {
		return err
	}
	copy(dst, v)
	return nil
}

func (zeroSource) fill(dst []float32) error {
	clear(dst)
	return nil
}

// Init overwrites the signal from src. A nil src zero-fills.
func (s *Signal) Init(src Source) error {
	if src == nil {
		src = zeroSource{}
	}
	return src.fill(s.data)
}

// Zero sets every value to 0.
func (s *Signal) Zero() {
	clear(s.data)
}

// Len returns the number of values.
func (s *Signal) Len() int {
	return len(s.data)
}

// At returns the value at index i.
func (s *Signal) At(i int) float32 {
	return s.data[i]
}

// Set stores v at index i.
func (s *Signal) Set(i int, v float32) {
	s.data[i] = v
}

// ToArray returns a copy of the values.
func (s *Signal) ToArray() []float32 {
	out := make([]float32, len(s.data))
	copy(out, s.data)
	return out
}

// ToImageBytes clamps every value to [0, 1] and scales it to a byte.
// It is the lossy inverse of FromBytes.
func (s *Signal) ToImageBytes() []byte {
	out := make([]byte, len(s.data))
	for i, v := range s.data {
		v = min(max(v, 0), 1)
		out[i] = byte(v * 255)
	}
	return out
}

// Max returns the index of the largest value (first one on ties) and
// the ratio of that value to the sum of all values.
//
// The ratio is a confidence only when every value is non-negative,
// e.g. after Sigmoid or Softmax.
func (s *Signal) Max() (index int, confidence float32) {
	m := s.data[0]
	sum := m
	for i := 1; i < len(s.data); i++ {
		v := s.data[i]
		if v > m {
			m = v
			index = i
		}
		sum += v
	}
	return index, m / sum
}

// Sigmoid applies the logistic function in place.
func (s *Signal) Sigmoid() {
	for i, v := range s.data {
		s.data[i] = sigmoid(v)
	}
}

// ReLU replaces negative values with 0 in place.
func (s *Signal) ReLU() {
	for i, v := range s.data {
		s.data[i] = relu(v)
	}
}

// Randn fills the signal with Gaussian samples of the given deviation.
func (s *Signal) Randn(r Rand, deviation float32) {
	randn(s.data, r, deviation)
}

// Accumulate computes s[i] += delta[i]*scale.
//
// Pass scale 1 to sum gradients and -learningRate to apply them.
func (s *Signal) Accumulate(delta *Signal, scale float32) error {
	return accumulate(s.data, delta.data, scale)
}

// Dump renders the values eight per line, each as %.5g in a 16-column,
// sign-aligned field.
func (s *Signal) Dump() string {
	var b, line strings.Builder
	for i, v := range s.data {
		fmt.Fprintf(&line, "% -16.5g", v)
		if (i+1)%8 == 0 || i == len(s.data)-1 {
			b.WriteString(strings.TrimRight(line.String(), " "))
			b.WriteByte('\n')
			line.Reset()
		}
	}
	return b.String()
}
