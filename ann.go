// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ann

import (
	"math/rand"

	"github.com/born-ml/ann/internal/ann"
)

// Signal is a fixed-length float32 vector.
type Signal = ann.Signal

// Weight is the dense matrix of a fully connected layer.
type Weight = ann.Weight

// Filter is a bank of convolution kernels with their biases and pooling.
type Filter = ann.Filter

// FilterConfig is the geometry a Filter is created with.
type FilterConfig = ann.FilterConfig

// Geometry is a FilterConfig plus the derived plane and buffer sizes.
type Geometry = ann.Geometry

// ChannelRecord is the exchange form of one filter channel.
type ChannelRecord = ann.ChannelRecord

// Source is the value a Signal is initialized from.
type Source = ann.Source

// Rand is the uniform generator used by Randn. *math/rand.Rand satisfies it.
type Rand = ann.Rand

// ShapeError reports mismatched buffer sizes.
type ShapeError = ann.ShapeError

// Errors.
var (
	ErrShape         = ann.ErrShape
	ErrIndex         = ann.ErrIndex
	ErrInvalidRecord = ann.ErrInvalidRecord
	ErrGeometry      = ann.ErrGeometry
)

// NewSignal creates a zero-filled signal of length n. It panics if n < 1.
func NewSignal(n int) *Signal {
	return ann.NewSignal(n)
}

// NewWeight creates a zero-filled matrix with w inputs and h outputs.
// It panics if either is < 1.
func NewWeight(w, h int) *Weight {
	return ann.NewWeight(w, h)
}

// NewFilter creates a zero-filled filter, validating its geometry.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	return ann.NewFilter(cfg)
}

// NewRand returns a seeded generator for Randn.
func NewRand(seed int64) *rand.Rand {
	return ann.NewRand(seed)
}

// FromBytes maps each byte b to b/255.
func FromBytes(b []byte) Source { return ann.FromBytes(b) }

// FromIndex builds a one-hot encoding with 1 at position k.
func FromIndex(k int) Source { return ann.FromIndex(k) }

// FromValues copies values verbatim.
func FromValues(values []float32) Source { return ann.FromValues(values) }

// Zero fills a signal with zeros.
func Zero() Source { return ann.Zero() }

// Propagate computes output[i] = Σ_j input[j]·weight[i][j].
func Propagate(input *Signal, weight *Weight, output *Signal) error {
	return ann.Propagate(input, weight, output)
}

// BackpropWeight writes weightGrad[i][j] = delta[i]·source[j].
func BackpropWeight(source, delta *Signal, weightGrad *Weight) error {
	return ann.BackpropWeight(source, delta, weightGrad)
}

// BackpropBias propagates delta through the transpose of weight into output.
func BackpropBias(output, delta *Signal, weight *Weight) error {
	return ann.BackpropBias(output, delta, weight)
}

// SigmoidPrime computes result[i] = upstream[i]·a[i]·(1-a[i]).
func SigmoidPrime(activated, upstream, result *Signal) error {
	return ann.SigmoidPrime(activated, upstream, result)
}

// ReLUBackward zeroes delta wherever preActivation <= 0.
func ReLUBackward(preActivation, delta *Signal) error {
	return ann.ReLUBackward(preActivation, delta)
}

// Softmax writes the numerically stable softmax of logits into output.
func Softmax(logits, output *Signal) error {
	return ann.Softmax(logits, output)
}

// SoftmaxError computes output = softmax(logits) - target.
func SoftmaxError(logits, target, output *Signal) error {
	return ann.SoftmaxError(logits, target, output)
}

// SignalError computes output = a - b.
func SignalError(a, b, output *Signal) error {
	return ann.SignalError(a, b, output)
}

// CrossEntropy returns -ln(softmax(logits)[label]).
func CrossEntropy(logits *Signal, label int) (float32, error) {
	return ann.CrossEntropy(logits, label)
}
