package ann

import (
	"math/rand"

	"github.com/chewxy/math32"
)

// Rand is the uniform source consumed by the Gaussian initializers.
// Float32 must return values in [0, 1). *rand.Rand satisfies it.
type Rand interface {
	Float32() float32
}

// NewRand returns a generator seeded with seed.
func NewRand(seed int64) *rand.Rand {
	//nolint:gosec // Weight initialization, not security-critical
	return rand.New(rand.NewSource(seed))
}

// randn fills data with samples from N(0, deviation²) using the Marsaglia polar method.
//
// Each accepted pair (u, v) with 0 < s = u²+v² < 1 yields two samples
// u·k and v·k where k = sqrt(-2·ln(s)/s)·deviation. For odd lengths the
// second sample of the last pair is dropped.
func randn(data []float32, r Rand, deviation float32) {
	for i := 0; i < len(data); i += 2 {
		var u, v, s float32
		for {
			u = 2*r.Float32() - 1
			v = 2*r.Float32() - 1
			s = u*u + v*v
			if s < 1 && s != 0 {
				break
			}
		}
		k := math32.Sqrt(-2*math32.Log(s)/s) * deviation
		data[i] = u * k
		if i+1 < len(data) {
			data[i+1] = v * k
		}
	}
}
