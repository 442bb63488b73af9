package main

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/born-ml/ann/internal/mnist"
)

// dataset holds raw images and their labels.
type dataset struct {
	Rows, Cols int
	Images     [][]byte
	Labels     []uint8
}

// loadMNIST loads the IDX training or test set from dataDir.
//
// Expected files in dataDir:
//   - train-images-idx3-ubyte (or t10k-images-idx3-ubyte for test)
//   - train-labels-idx1-ubyte (or t10k-labels-idx1-ubyte for test)
func loadMNIST(dataDir string, train bool, maxSamples int) (*dataset, error) {
	prefix := "t10k"
	if train {
		prefix = "train"
	}
	imageFile := filepath.Join(dataDir, prefix+"-images-idx3-ubyte")
	labelFile := filepath.Join(dataDir, prefix+"-labels-idx1-ubyte")

	images, err := mnist.LoadImages(imageFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load images: %w", err)
	}
	labels, err := mnist.LoadLabels(labelFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}
	if images.Count != len(labels) {
		return nil, fmt.Errorf("image count (%d) != label count (%d)", images.Count, len(labels))
	}

	if maxSamples > 0 && images.Count > maxSamples {
		images = images.Slice(maxSamples)
		labels = labels[:maxSamples]
	}

	d := &dataset{Rows: images.Rows, Cols: images.Cols, Labels: labels}
	d.Images = make([][]byte, images.Count)
	for i := range d.Images {
		if d.Images[i], err = images.Get(i); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// syntheticMNIST generates n 28x28 samples: digit k is a bright band
// starting at row 2k, with pixel noise drawn from seed.
// This is NOT realistic MNIST data, just enough to exercise the pipeline.
func syntheticMNIST(n int, seed int64) *dataset {
	const side = 28
	r := rand.New(rand.NewSource(seed)) //nolint:gosec // G404: deterministic test data

	d := &dataset{
		Rows:   side,
		Cols:   side,
		Images: make([][]byte, n),
		Labels: make([]uint8, n),
	}
	for i := range n {
		label := i % 10
		img := make([]byte, side*side)
		for j := range img {
			img[j] = byte(r.Intn(32))
		}
		for row := label * 2; row < label*2+8 && row < side; row++ {
			for col := 5; col < 23; col++ {
				img[row*side+col] = byte(180 + r.Intn(76))
			}
		}
		d.Images[i] = img
		d.Labels[i] = uint8(label)
	}
	return d
}

// Len returns the number of samples.
func (d *dataset) Len() int {
	return len(d.Images)
}

// splitValidation holds out the trailing validationRatio of d.
// The ratio must lie in [0, 1).
func splitValidation(d *dataset, validationRatio float64) (*dataset, *dataset, error) {
	if validationRatio < 0 || validationRatio >= 1 {
		return nil, nil, fmt.Errorf("validation ratio %g outside [0, 1)", validationRatio)
	}
	train, val := d.Split(float32(validationRatio))
	return train, val, nil
}

// Split splits the dataset into train and validation sets.
func (d *dataset) Split(validationRatio float32) (*dataset, *dataset) {
	splitIdx := int(float32(d.Len()) * (1 - validationRatio))
	return &dataset{Rows: d.Rows, Cols: d.Cols, Images: d.Images[:splitIdx], Labels: d.Labels[:splitIdx]},
		&dataset{Rows: d.Rows, Cols: d.Cols, Images: d.Images[splitIdx:], Labels: d.Labels[splitIdx:]}
}
