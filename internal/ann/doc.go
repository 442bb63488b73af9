// Package ann provides the numeric kernels for training small feed-forward and
// convolutional networks on single-channel images.
//
// The package exposes three buffer types and the free functions that combine them:
//   - Signal: fixed-length float32 vector (activations, errors, one-hot labels)
//   - Weight: dense w×h matrix for one fully connected layer (no implicit bias)
//   - Filter: convolution kernel bank with per-channel bias and max pooling
//
// Every output is written into a buffer supplied by the caller. Kernels never
// resize or allocate their outputs, and no buffer keeps a reference to another.
//
// Example (one convolutional layer followed by a dense layer):
//
//	f, err := ann.NewFilter(ann.FilterConfig{Size: 5, Channels: 8, Pooling: 2, SrcW: 28, SrcH: 28})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	geo := f.Args()
//	input := ann.NewSignal(geo.InputSize)
//	conv := ann.NewSignal(geo.ConvSize)
//	pooled := ann.NewSignal(geo.OutputSize)
//
//	_ = input.Init(ann.FromBytes(image))
//	_ = f.Convolution(input, conv)
//	conv.ReLU()
//	_ = f.MaxPooling(conv, pooled)
//
// Gradients are collected into buffers of the same shape as the parameters and
// applied with Accumulate using a negative learning rate as scale.
//
// Design principles:
//   - float32 only
//   - Synchronous: no goroutines, no locks, no I/O
//   - Deterministic: randomness comes from an explicit Rand
package ann
