package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/born-ml/ann/internal/ann"
)

// Header is the parsed JSON header of a SafeTensors file.
type Header struct {
	Metadata map[string]string
	Tensors  map[string]TensorHeader
}

// UnmarshalJSON splits the flat header object into metadata and tensors.
func (h *Header) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	h.Tensors = make(map[string]TensorHeader, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			continue
		}
		var info TensorHeader
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// Reader reads parameter tensors from a SafeTensors source.
type Reader struct {
	src        io.ReaderAt
	closer     io.Closer
	header     Header
	dataOffset int64
	dataSize   int64
}

// Open opens a checkpoint file. The caller must Close the reader.
func Open(path string) (*Reader, error) {
	//nolint:gosec // G304: checkpoint path comes from the user
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close() // Best effort close on error
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	r, err := NewReader(file, info.Size())
	if err != nil {
		_ = file.Close() // Best effort close on error
		return nil, err
	}
	r.closer = file
	return r, nil
}

// NewReader parses the header of a SafeTensors source of the given size.
func NewReader(src io.ReaderAt, size int64) (*Reader, error) {
	var prefix [8]byte
	if _, err := src.ReadAt(prefix[:], 0); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	headerSize := binary.LittleEndian.Uint64(prefix[:])
	if headerSize > maxHeaderSize || int64(headerSize) > size-8 { //nolint:gosec // G115: bounded above
		return nil, fmt.Errorf("header size %d: %w", headerSize, ErrHeaderTooLarge)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := src.ReadAt(headerBytes, 8); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	dataOffset := 8 + int64(headerSize) //nolint:gosec // G115: bounded above
	r := &Reader{
		src:        src,
		header:     header,
		dataOffset: dataOffset,
		dataSize:   size - dataOffset,
	}
	for name, info := range header.Tensors {
		if err := r.validate(name, info); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Reader) validate(name string, info TensorHeader) error {
	if info.DType != DTypeF32 {
		return fmt.Errorf("tensor %s has dtype %s: %w", name, info.DType, ErrDType)
	}
	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if start < 0 || end < start || end > r.dataSize {
		return fmt.Errorf("tensor %s: [%d, %d]: %w", name, start, end, ErrOutOfBounds)
	}
	elements := int64(1)
	for _, d := range info.Shape {
		elements *= d
	}
	if elements*4 != end-start {
		return fmt.Errorf("tensor %s: shape %v does not cover %d bytes: %w", name, info.Shape, end-start, ErrShapeMismatch)
	}
	return nil
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Verify recomputes the data checksum and compares it with the stored one.
// Files without a checksum pass.
func (r *Reader) Verify() error {
	stored, ok := r.header.Metadata[ChecksumKey]
	if !ok {
		return nil
	}
	data := make([]byte, r.dataSize)
	if _, err := r.src.ReadAt(data, r.dataOffset); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read tensor data: %w", err)
	}
	if got := checksum(data); got != stored {
		return fmt.Errorf("stored %s, computed %s: %w", stored, got, ErrChecksum)
	}
	return nil
}

// Metadata returns the metadata map from the header.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// Names returns all tensor names in alphabetical order.
func (r *Reader) Names() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Shape returns the shape of the named tensor.
func (r *Reader) Shape(name string) ([]int64, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s: %w", name, ErrNotFound)
	}
	return slices.Clone(info.Shape), nil
}

// read returns the values of the named tensor after checking its shape.
func (r *Reader) read(name string, shape ...int64) ([]float32, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s: %w", name, ErrNotFound)
	}
	if !slices.Equal(info.Shape, shape) {
		return nil, fmt.Errorf("tensor %s: want shape %v, got %v: %w", name, shape, info.Shape, ErrShapeMismatch)
	}

	raw := make([]byte, info.DataOffsets[1]-info.DataOffsets[0])
	if _, err := r.src.ReadAt(raw, r.dataOffset+info.DataOffsets[0]); err != nil {
		return nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
	}
	values := make([]float32, len(raw)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return values, nil
}

// LoadSignal fills s from the named tensor.
func (r *Reader) LoadSignal(name string, s *ann.Signal) error {
	values, err := r.read(name, int64(s.Len()))
	if err != nil {
		return err
	}
	return s.Init(ann.FromValues(values))
}

// LoadWeight fills m from the named tensor.
func (r *Reader) LoadWeight(name string, m *ann.Weight) error {
	w, h := m.Size()
	values, err := r.read(name, int64(h), int64(w))
	if err != nil {
		return err
	}
	rows := make([][]float32, h)
	for i := range rows {
		rows[i] = values[i*w : (i+1)*w]
	}
	return m.Import(rows)
}

// LoadFilter fills f from name+".bias" and name+".weight".
func (r *Reader) LoadFilter(name string, f *ann.Filter) error {
	cfg := f.Config()
	bias, err := r.read(name+".bias", int64(cfg.Channels))
	if err != nil {
		return err
	}
	weights, err := r.read(name+".weight", int64(cfg.Channels), int64(cfg.Size), int64(cfg.Size))
	if err != nil {
		return err
	}
	k := cfg.Size * cfg.Size
	records := make([]ann.ChannelRecord, cfg.Channels)
	for c := range records {
		records[c] = ann.ChannelRecord{Bias: bias[c], Weights: weights[c*k : (c+1)*k]}
	}
	return f.Import(records)
}
