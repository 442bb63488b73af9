package ann

import (
	"fmt"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Propagate computes output[i] = Σ_j input[j]·weight[i][j].
//
// No bias and no activation are applied: callers accumulate the bias
// signal and activate the output themselves. output must not alias input.
func Propagate(input *Signal, weight *Weight, output *Signal) error {
	if err := checkSize("propagate", "input size", weight.w, input.Len()); err != nil {
		return err
	}
	if err := checkSize("propagate", "output size", weight.h, output.Len()); err != nil {
		return err
	}
	blas32.Gemv(blas.NoTrans, 1, weight.general(), vector(input.data), 0, vector(output.data))
	return nil
}

// BackpropWeight writes the weight gradient of one layer into weightGrad:
// weightGrad[i][j] = delta[i]·source[j], where source is the layer input
// and delta the error at the layer output.
func BackpropWeight(source, delta *Signal, weightGrad *Weight) error {
	if err := checkSize("backprop weight", "source size", weightGrad.w, source.Len()); err != nil {
		return err
	}
	if err := checkSize("backprop weight", "delta size", weightGrad.h, delta.Len()); err != nil {
		return err
	}
	clear(weightGrad.data)
	blas32.Ger(1, vector(delta.data), vector(source.data), weightGrad.general())
	return nil
}

// BackpropBias propagates delta back through the transpose of weight:
// output[j] = Σ_i delta[i]·weight[i][j].
//
// The result is the error reaching the previous layer before its activation
// derivative is applied. It is not a bias gradient; for that, the layer's
// bias gradient is delta itself.
func BackpropBias(output, delta *Signal, weight *Weight) error {
	if err := checkSize("backprop bias", "output size", weight.w, output.Len()); err != nil {
		return err
	}
	if err := checkSize("backprop bias", "delta size", weight.h, delta.Len()); err != nil {
		return err
	}
	blas32.Gemv(blas.Trans, 1, weight.general(), vector(delta.data), 0, vector(output.data))
	return nil
}

// SigmoidPrime computes result[i] = upstream[i]·a[i]·(1-a[i]).
// activated must hold sigmoid outputs, not pre-activations.
func SigmoidPrime(activated, upstream, result *Signal) error {
	n := activated.Len()
	if err := checkSize("sigmoid prime", "upstream size", n, upstream.Len()); err != nil {
		return err
	}
	if err := checkSize("sigmoid prime", "result size", n, result.Len()); err != nil {
		return err
	}
	for i, a := range activated.data {
		result.data[i] = upstream.data[i] * sigmoidPrime(a)
	}
	return nil
}

// ReLUBackward zeroes delta[i] wherever preActivation[i] <= 0.
func ReLUBackward(preActivation, delta *Signal) error {
	if err := checkSize("relu backward", "delta size", preActivation.Len(), delta.Len()); err != nil {
		return err
	}
	for i, z := range preActivation.data {
		if z <= 0 {
			delta.data[i] = 0
		}
	}
	return nil
}

// Softmax writes the max-shifted softmax of logits into output.
func Softmax(logits, output *Signal) error {
	if err := checkSize("softmax", "output size", logits.Len(), output.Len()); err != nil {
		return err
	}
	softmax(output.data, logits.data)
	return nil
}

// SoftmaxError computes output[i] = softmax(logits)[i] - target[i], the
// output-layer error of softmax combined with cross-entropy loss.
// output may alias logits or target.
func SoftmaxError(logits, target, output *Signal) error {
	n := logits.Len()
	if err := checkSize("softmax error", "target size", n, target.Len()); err != nil {
		return err
	}
	if err := checkSize("softmax error", "output size", n, output.Len()); err != nil {
		return err
	}
	maxVal, sum := softmaxStats(logits.data)
	for i, v := range logits.data {
		output.data[i] = math32.Exp(v-maxVal)/sum - target.data[i]
	}
	return nil
}

// SignalError computes output[i] = a[i] - b[i].
func SignalError(a, b, output *Signal) error {
	n := a.Len()
	if err := checkSize("signal error", "b size", n, b.Len()); err != nil {
		return err
	}
	if err := checkSize("signal error", "output size", n, output.Len()); err != nil {
		return err
	}
	for i, v := range a.data {
		output.data[i] = v - b.data[i]
	}
	return nil
}

// CrossEntropy returns -ln(softmax(logits)[label]) without materializing
// the softmax.
func CrossEntropy(logits *Signal, label int) (float32, error) {
	if label < 0 || label >= logits.Len() {
		return 0, fmt.Errorf("cross entropy: label %d outside [0, %d): %w", label, logits.Len(), ErrIndex)
	}
	maxVal, sum := softmaxStats(logits.data)
	return math32.Log(sum) - (logits.data[label] - maxVal), nil
}
