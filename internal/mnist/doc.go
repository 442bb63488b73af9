// Package mnist reads the IDX files of the MNIST handwritten digit dataset
// and renders images as binary PGM for inspection.
//
// IDX format (all header fields are big-endian uint32):
//
//	labels: magic 2049, count, then count bytes (0-9)
//	images: magic 2051, count, rows, cols, then count*rows*cols bytes (0-255)
//
// Malformed files fail with an error wrapping ErrInvalidMagic or ErrTruncated.
//
// Example:
//
//	images, err := mnist.LoadImages("train-images-idx3-ubyte")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	img, _ := images.Get(0)
//	pgm, _ := mnist.ToPGM(img, images.Rows, images.Cols)
package mnist
