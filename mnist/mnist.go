// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package mnist reads the MNIST IDX dataset files and writes images as PGM.
//
// Example usage:
//
//	import "github.com/born-ml/ann/mnist"
//
//	images, err := mnist.LoadImages("data/train-images-idx3-ubyte")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	labels, err := mnist.LoadLabels("data/train-labels-idx1-ubyte")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	first, _ := images.Get(0)
//	fmt.Println(labels[0], len(first))
package mnist

import (
	"github.com/born-ml/ann/internal/mnist"
)

// Images is a decoded IDX image file.
type Images = mnist.Images

// IDX magic numbers.
const (
	LabelsMagic = mnist.LabelsMagic
	ImagesMagic = mnist.ImagesMagic
)

// Errors.
var (
	ErrInvalidMagic  = mnist.ErrInvalidMagic
	ErrInvalidHeader = mnist.ErrInvalidHeader
	ErrTruncated     = mnist.ErrTruncated
	ErrOutOfRange    = mnist.ErrOutOfRange
	ErrImageSize     = mnist.ErrImageSize
)

// LoadLabels reads an IDX label file.
func LoadLabels(path string) ([]uint8, error) {
	return mnist.LoadLabels(path)
}

// LoadImages reads an IDX image file.
func LoadImages(path string) (*Images, error) {
	return mnist.LoadImages(path)
}

// ToPGM encodes a rows×cols grayscale image as binary PGM (P5).
func ToPGM(image []byte, rows, cols int) ([]byte, error) {
	return mnist.ToPGM(image, rows, cols)
}
