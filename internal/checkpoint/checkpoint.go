// Package checkpoint saves and restores network parameters in SafeTensors format.
//
// Format:
//
//	[8 bytes: header size (uint64 LE)]
//	[header size bytes: JSON header]
//	[tensor data: little-endian float32, tensors in name order]
//
// Parameters map to tensors as follows:
//   - Signal "name": shape [n]
//   - Weight "name": shape [h, w] (one row per output unit)
//   - Filter "name": "name.bias" [channels] and "name.weight" [channels, size, size]
//
// Example:
//
//	sd := checkpoint.NewStateDict()
//	sd.AddFilter("conv", filter)
//	sd.AddWeight("dense", weight)
//	if err := sd.Save("model.safetensors", map[string]string{"epoch": "3"}); err != nil {
//	    log.Fatal(err)
//	}
package checkpoint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"

	"github.com/born-ml/ann/internal/ann"
)

// DTypeF32 is the only dtype written and accepted.
const DTypeF32 = "F32"

// ChecksumKey is the metadata key holding the hex SHA-256 of the data section.
const ChecksumKey = "sha256"

// maxHeaderSize bounds the JSON header read from disk.
const maxHeaderSize = 100 * 1024 * 1024

// TensorHeader describes one tensor in the JSON header.
type TensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

type tensor struct {
	shape []int64
	data  []float32
}

// StateDict is a named collection of parameter tensors waiting to be written.
// Values are copied when added.
type StateDict struct {
	tensors map[string]tensor
	err     error
}

// NewStateDict creates an empty state dictionary.
func NewStateDict() *StateDict {
	return &StateDict{tensors: make(map[string]tensor)}
}

func (d *StateDict) add(name string, shape []int64, data []float32) {
	if _, ok := d.tensors[name]; ok && d.err == nil {
		d.err = fmt.Errorf("%q: %w", name, ErrDuplicateTensor)
	}
	d.tensors[name] = tensor{shape: shape, data: data}
}

// AddSignal records s under name with shape [n].
func (d *StateDict) AddSignal(name string, s *ann.Signal) {
	d.add(name, []int64{int64(s.Len())}, s.ToArray())
}

// AddWeight records m under name with shape [h, w].
func (d *StateDict) AddWeight(name string, m *ann.Weight) {
	w, h := m.Size()
	data := make([]float32, 0, w*h)
	for _, row := range m.Export() {
		data = append(data, row...)
	}
	d.add(name, []int64{int64(h), int64(w)}, data)
}

// AddFilter records f as name+".bias" and name+".weight".
func (d *StateDict) AddFilter(name string, f *ann.Filter) {
	cfg := f.Config()
	records := f.Export()
	bias := make([]float32, len(records))
	weights := make([]float32, 0, cfg.Channels*cfg.Size*cfg.Size)
	for c, rec := range records {
		bias[c] = rec.Bias
		weights = append(weights, rec.Weights...)
	}
	d.add(name+".bias", []int64{int64(cfg.Channels)}, bias)
	d.add(name+".weight", []int64{int64(cfg.Channels), int64(cfg.Size), int64(cfg.Size)}, weights)
}

// Names returns the recorded tensor names in write order.
func (d *StateDict) Names() []string {
	names := make([]string, 0, len(d.tensors))
	for name := range d.tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Save writes the state dictionary to path.
func (d *StateDict) Save(path string, metadata map[string]string) error {
	//nolint:gosec // G304: checkpoint path comes from the user
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := d.Encode(file, metadata); err != nil {
		_ = file.Close() // Best effort close
		return err
	}
	return file.Close()
}

// Encode writes the state dictionary to w.
// Tensors are written in alphabetical order by name. The metadata is
// extended with the data checksum under ChecksumKey.
func (d *StateDict) Encode(w io.Writer, metadata map[string]string) error {
	if d.err != nil {
		return d.err
	}

	names := d.Names()

	// Build header with tensor metadata
	header := make(map[string]any, len(names)+1)
	var data []byte
	for _, name := range names {
		t := d.tensors[name]
		start := int64(len(data))
		for _, v := range t.data {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
		}
		header[name] = TensorHeader{
			DType:       DTypeF32,
			Shape:       t.shape,
			DataOffsets: [2]int64{start, int64(len(data))},
		}
	}

	meta := make(map[string]string, len(metadata)+1)
	maps.Copy(meta, metadata)
	meta[ChecksumKey] = checksum(data)
	header["__metadata__"] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// checksum returns the hex SHA-256 of the data section.
func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
