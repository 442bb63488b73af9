package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ann/internal/ann"
	"github.com/born-ml/ann/internal/parallel"
)

var sequential = parallel.Config{Enabled: false}

func newTestNetwork(t *testing.T) *network {
	t.Helper()
	net, err := newNetwork(defaultModelConfig(), 28, 28)
	require.NoError(t, err)
	net.randomize(ann.NewRand(3))
	return net
}

func sampleLoss(t *testing.T, net *network, image []byte, label int) float32 {
	t.Helper()
	ws := net.newWorkspace()
	require.NoError(t, net.forward(ws, image))
	loss, err := ann.CrossEntropy(ws.logits, label)
	require.NoError(t, err)
	return loss
}

func TestNetworkShapes(t *testing.T) {
	net := newTestNetwork(t)

	g := net.conv.Args()
	assert.Equal(t, 24, g.ConvW)
	assert.Equal(t, 12, g.PooledW)
	assert.Equal(t, 8*12*12, g.OutputSize)

	w, h := net.dense.Size()
	assert.Equal(t, g.OutputSize, w)
	assert.Equal(t, numClasses, h)
	assert.Equal(t, numClasses, net.bias.Len())
}

func TestForwardProbabilities(t *testing.T) {
	net := newTestNetwork(t)
	data := syntheticMNIST(1, 1)

	ws := net.newWorkspace()
	require.NoError(t, net.forward(ws, data.Images[0]))

	var sum float32
	for _, p := range ws.probs.ToArray() {
		assert.GreaterOrEqual(t, p, float32(0))
		sum += p
	}
	assert.InDelta(t, 1, sum, 1e-5)

	_, err := newNetwork(defaultModelConfig(), 4, 4)
	assert.ErrorIs(t, err, ann.ErrGeometry)
}

func TestDenseGradientsMatchFiniteDifferences(t *testing.T) {
	net := newTestNetwork(t)
	data := syntheticMNIST(4, 2)
	image, label := data.Images[3], int(data.Labels[3])

	ws := net.newWorkspace()
	require.NoError(t, net.forward(ws, image))
	_, err := net.backward(ws, label)
	require.NoError(t, err)

	const eps = 1e-2
	for k := range numClasses {
		b := net.bias.At(k)
		net.bias.Set(k, b+eps)
		up := sampleLoss(t, net, image, label)
		net.bias.Set(k, b-eps)
		down := sampleLoss(t, net, image, label)
		net.bias.Set(k, b)

		assert.InDelta(t, (up-down)/(2*eps), ws.grad.bias.At(k), 2e-3, "bias %d", k)
	}

	// A feature that is active after pooling.
	j := 0
	for ws.pooled.At(j) == 0 {
		j++
	}
	for i := range numClasses {
		v := net.dense.At(i, j)
		net.dense.Set(i, j, v+eps)
		up := sampleLoss(t, net, image, label)
		net.dense.Set(i, j, v-eps)
		down := sampleLoss(t, net, image, label)
		net.dense.Set(i, j, v)

		assert.InDelta(t, (up-down)/(2*eps), ws.grad.dense.At(i, j), 2e-3, "weight %d,%d", i, j)
	}
}

func TestTrainingStepReducesLoss(t *testing.T) {
	net := newTestNetwork(t)
	data := syntheticMNIST(10, 5)

	before := sampleLoss(t, net, data.Images[7], int(data.Labels[7]))

	tr := newTrainer(net, trainConfig{BatchSize: 1, LearningRate: 0.001, Parallel: sequential})
	loss, _, err := tr.step(data, []int{7})
	require.NoError(t, err)
	assert.InDelta(t, before, loss, 1e-5)

	after := sampleLoss(t, net, data.Images[7], int(data.Labels[7]))
	assert.Less(t, after, before)
}

func TestTrainReducesLoss(t *testing.T) {
	net := newTestNetwork(t)
	data := syntheticMNIST(100, 9)

	start, err := evaluate(net, data, sequential)
	require.NoError(t, err)

	cfg := trainConfig{
		Epochs:       3,
		BatchSize:    10,
		LearningRate: 0.01,
		Seed:         1,
		Parallel:     parallel.Config{Enabled: true, NumWorkers: 2, MinChunkSize: 2},
	}
	var epochs []int
	require.NoError(t, train(net, data, nil, cfg, func(epoch int, _, _ metrics) {
		epochs = append(epochs, epoch)
	}))
	assert.Equal(t, []int{1, 2, 3}, epochs)

	end, err := evaluate(net, data, sequential)
	require.NoError(t, err)
	assert.Less(t, end.Loss, start.Loss)

	assert.Error(t, train(net, data, nil, trainConfig{Epochs: 1}, nil))
}

func TestEvaluateParallelMatchesSequential(t *testing.T) {
	net := newTestNetwork(t)
	data := syntheticMNIST(64, 4)

	seq, err := evaluate(net, data, sequential)
	require.NoError(t, err)
	par, err := evaluate(net, data, parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 4})
	require.NoError(t, err)

	assert.Equal(t, seq.Accuracy, par.Accuracy)
	assert.InDelta(t, seq.Loss, par.Loss, 1e-4)
}

func TestCheckpointRoundTrip(t *testing.T) {
	net := newTestNetwork(t)
	path := filepath.Join(t.TempDir(), "net.safetensors")
	require.NoError(t, net.save(path, map[string]string{"epochs": "2"}))

	loaded, meta, err := loadNetwork(path)
	require.NoError(t, err)
	assert.Equal(t, "2", meta["epochs"])
	assert.Equal(t, "8", meta["channels"])

	assert.Equal(t, net.conv.Export(), loaded.conv.Export())
	assert.Equal(t, net.dense.Export(), loaded.dense.Export())
	assert.Equal(t, net.bias.ToArray(), loaded.bias.ToArray())

	_, _, err = loadNetwork(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFeatureMap(t *testing.T) {
	net := newTestNetwork(t)
	data := syntheticMNIST(1, 1)

	pixels, rows, cols, err := featureMap(net, data.Images[0], 7)
	require.NoError(t, err)
	assert.Equal(t, 12, rows)
	assert.Equal(t, 12, cols)
	assert.Len(t, pixels, rows*cols)

	_, _, _, err = featureMap(net, data.Images[0], 8)
	assert.ErrorIs(t, err, ann.ErrIndex)
}

func TestSyntheticMNIST(t *testing.T) {
	a := syntheticMNIST(25, 42)
	b := syntheticMNIST(25, 42)
	assert.Equal(t, a, b)

	for i, label := range a.Labels {
		assert.Equal(t, uint8(i%10), label)
		assert.Len(t, a.Images[i], 28*28)
	}

	train, val := a.Split(0.2)
	assert.Equal(t, 20, train.Len())
	assert.Equal(t, 5, val.Len())
	assert.Equal(t, 28, val.Rows)
}

func TestSplitValidation(t *testing.T) {
	data := syntheticMNIST(10, 1)

	train, val, err := splitValidation(data, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 5, train.Len())
	assert.Equal(t, 5, val.Len())

	train, val, err = splitValidation(data, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, train.Len())
	assert.Equal(t, 0, val.Len())

	for _, ratio := range []float64{-0.1, 1, 1.5} {
		_, _, err := splitValidation(data, ratio)
		assert.Error(t, err, "ratio %g", ratio)
	}
}

func TestInspectDump(t *testing.T) {
	net, err := newNetwork(modelConfig{FilterSize: 3, Channels: 2, Pooling: 2}, 8, 8)
	require.NoError(t, err)
	net.randomize(ann.NewRand(1))
	path := filepath.Join(t.TempDir(), "net.safetensors")
	require.NoError(t, net.save(path, nil))

	require.NoError(t, runInspect([]string{"-dump", path}))
	assert.Error(t, runInspect(nil))
}

func writeIDX(t *testing.T, path string, header []uint32, body []byte) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, header))
	buf.Write(body)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestLoadMNIST(t *testing.T) {
	dir := t.TempDir()
	pixels := make([]byte, 3*2*2)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	writeIDX(t, filepath.Join(dir, "t10k-images-idx3-ubyte"), []uint32{2051, 3, 2, 2}, pixels)
	writeIDX(t, filepath.Join(dir, "t10k-labels-idx1-ubyte"), []uint32{2049, 3}, []byte{4, 5, 6})

	data, err := loadMNIST(dir, false, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, data.Len())
	assert.Equal(t, []uint8{4, 5}, data.Labels)
	assert.Equal(t, []byte{4, 5, 6, 7}, data.Images[1])

	_, err = loadMNIST(dir, true, 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
