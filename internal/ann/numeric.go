package ann

import (
	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas/blas32"
)

func sigmoid(z float32) float32 {
	return 1 / (1 + math32.Exp(-z))
}

// sigmoidPrime takes the activated value s = sigmoid(z), not z.
func sigmoidPrime(s float32) float32 {
	return s * (1 - s)
}

func relu(z float32) float32 {
	if z > 0 {
		return z
	}
	return 0
}

// softmaxStats returns the max of src and Σ exp(src[j]-max).
func softmaxStats(src []float32) (maxVal, sum float32) {
	maxVal = math32.Inf(-1)
	for _, v := range src {
		maxVal = max(maxVal, v)
	}
	for _, v := range src {
		sum += math32.Exp(v - maxVal)
	}
	return maxVal, sum
}

// softmax writes exp(src[i]-max) / Σ exp(src[j]-max) into dst.
// dst and src may be the same slice.
func softmax(dst, src []float32) {
	maxVal, sum := softmaxStats(src)
	for i, v := range src {
		dst[i] = math32.Exp(v-maxVal) / sum
	}
}

// accumulate computes base[i] += delta[i]*scale.
func accumulate(base, delta []float32, scale float32) error {
	if err := checkSize("accumulate", "delta size", len(base), len(delta)); err != nil {
		return err
	}
	blas32.Axpy(scale, vector(delta), vector(base))
	return nil
}

func vector(data []float32) blas32.Vector {
	return blas32.Vector{N: len(data), Inc: 1, Data: data}
}
