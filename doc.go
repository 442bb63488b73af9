// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ann provides float32 kernels for small feed-forward and
// convolutional networks.
//
// The package exposes three buffers and the operations between them:
//
//   - Signal: a fixed-length vector (activations, errors, labels)
//   - Weight: a dense w×h matrix, one row per output unit
//   - Filter: a bank of square convolution kernels with max-pooling
//
// Kernels never allocate their outputs and never infer anything from
// call order: the caller owns every buffer and composes forward and
// backward passes from the primitives.
//
// Example, one dense softmax layer:
//
//	import "github.com/born-ml/ann"
//
//	in := ann.NewSignal(784)
//	w := ann.NewWeight(784, 10)
//	logits := ann.NewSignal(10)
//	w.Randn(ann.NewRand(1), 0.05)
//
//	_ = in.Init(ann.FromBytes(pixels))
//	_ = ann.Propagate(in, w, logits)
//
//	target, delta, grad := ann.NewSignal(10), ann.NewSignal(10), ann.NewWeight(784, 10)
//	_ = target.Init(ann.FromIndex(label))
//	_ = ann.SoftmaxError(logits, target, delta)
//	_ = ann.BackpropWeight(in, delta, grad)
//	_ = w.Accumulate(grad, -0.1)
//
// Randomness always flows through an explicit Rand, so initialization is
// reproducible for a fixed seed.
package ann
