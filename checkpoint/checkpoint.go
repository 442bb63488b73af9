// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package checkpoint saves and restores ann parameters as SafeTensors files.
//
// Example usage:
//
//	sd := checkpoint.NewStateDict()
//	sd.AddFilter("conv", filter)
//	sd.AddWeight("dense.weight", weight)
//	if err := sd.Save("model.safetensors", nil); err != nil {
//	    log.Fatal(err)
//	}
//
//	r, err := checkpoint.Open("model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//	err = r.LoadFilter("conv", filter)
package checkpoint

import (
	"github.com/born-ml/ann/internal/checkpoint"
)

// StateDict collects named parameter tensors for writing.
type StateDict = checkpoint.StateDict

// Reader reads parameter tensors from a SafeTensors file.
type Reader = checkpoint.Reader

// ChecksumKey is the metadata key holding the data checksum.
const ChecksumKey = checkpoint.ChecksumKey

// Errors.
var (
	ErrNotFound        = checkpoint.ErrNotFound
	ErrDType           = checkpoint.ErrDType
	ErrShapeMismatch   = checkpoint.ErrShapeMismatch
	ErrOutOfBounds     = checkpoint.ErrOutOfBounds
	ErrHeaderTooLarge  = checkpoint.ErrHeaderTooLarge
	ErrDuplicateTensor = checkpoint.ErrDuplicateTensor
	ErrChecksum        = checkpoint.ErrChecksum
)

// NewStateDict creates an empty state dictionary.
func NewStateDict() *StateDict {
	return checkpoint.NewStateDict()
}

// Open opens a checkpoint file. The caller must Close the reader.
func Open(path string) (*Reader, error) {
	return checkpoint.Open(path)
}
