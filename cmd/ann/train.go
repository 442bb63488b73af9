package main

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/born-ml/ann/internal/ann"
	"github.com/born-ml/ann/internal/parallel"
)

// trainConfig controls mini-batch SGD.
type trainConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float32
	Seed         int64
	Parallel     parallel.Config
}

// metrics summarizes a pass over a dataset.
type metrics struct {
	Loss     float32
	Accuracy float32
}

// trainer owns the per-worker buffers reused across batches.
type trainer struct {
	net     *network
	cfg     trainConfig
	spaces  []*workspace
	sums    []*network
	losses  []float32
	correct []int
	errs    []error
	total   *network
}

func newTrainer(net *network, cfg trainConfig) *trainer {
	workers := max(cfg.Parallel.Workers(cfg.BatchSize), 1)
	t := &trainer{
		net:     net,
		cfg:     cfg,
		spaces:  make([]*workspace, workers),
		sums:    make([]*network, workers),
		losses:  make([]float32, workers),
		correct: make([]int, workers),
		errs:    make([]error, workers),
		total:   net.zeroLike(),
	}
	for w := range workers {
		t.spaces[w] = net.newWorkspace()
		t.sums[w] = net.zeroLike()
	}
	return t
}

// step runs one mini-batch over the samples at idx and applies the
// averaged gradient. It returns the summed loss and correct count.
func (t *trainer) step(data *dataset, idx []int) (loss float32, correct int, err error) {
	for w := range t.sums {
		t.sums[w].zero()
		t.losses[w], t.correct[w], t.errs[w] = 0, 0, nil
	}

	parallel.Chunks(len(idx), func(w, start, end int) {
		ws, sum := t.spaces[w], t.sums[w]
		for _, i := range idx[start:end] {
			if err := t.net.forward(ws, data.Images[i]); err != nil {
				t.errs[w] = err
				return
			}
			l, err := t.net.backward(ws, int(data.Labels[i]))
			if err != nil {
				t.errs[w] = err
				return
			}
			if err := sum.accumulate(ws.grad, 1); err != nil {
				t.errs[w] = err
				return
			}
			t.losses[w] += l
			if k, _ := ws.probs.Max(); k == int(data.Labels[i]) {
				t.correct[w]++
			}
		}
	}, t.cfg.Parallel)

	if err := errors.Join(t.errs...); err != nil {
		return 0, 0, err
	}

	t.total.zero()
	for w, sum := range t.sums {
		if err := t.total.accumulate(sum, 1); err != nil {
			return 0, 0, err
		}
		loss += t.losses[w]
		correct += t.correct[w]
	}
	if err := t.net.accumulate(t.total, -t.cfg.LearningRate/float32(len(idx))); err != nil {
		return 0, 0, err
	}
	return loss, correct, nil
}

// epoch trains on a shuffled pass over data.
func (t *trainer) epoch(data *dataset, r *rand.Rand) (metrics, error) {
	order := r.Perm(data.Len())
	var loss float32
	var correct int
	for start := 0; start < len(order); start += t.cfg.BatchSize {
		end := min(start+t.cfg.BatchSize, len(order))
		l, c, err := t.step(data, order[start:end])
		if err != nil {
			return metrics{}, fmt.Errorf("batch at %d: %w", start, err)
		}
		loss += l
		correct += c
	}
	n := float32(max(data.Len(), 1))
	return metrics{Loss: loss / n, Accuracy: float32(correct) / n}, nil
}

// train runs cfg.Epochs epochs, reporting each through report.
func train(net *network, trainData, valData *dataset, cfg trainConfig, report func(epoch int, train, val metrics)) error {
	if cfg.BatchSize < 1 {
		return fmt.Errorf("batch size %d: must be positive", cfg.BatchSize)
	}
	r := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // G404: reproducible shuffling
	t := newTrainer(net, cfg)
	for e := range cfg.Epochs {
		trainMetrics, err := t.epoch(trainData, r)
		if err != nil {
			return fmt.Errorf("epoch %d: %w", e+1, err)
		}
		var valMetrics metrics
		if valData != nil && valData.Len() > 0 {
			if valMetrics, err = evaluate(net, valData, cfg.Parallel); err != nil {
				return fmt.Errorf("epoch %d: %w", e+1, err)
			}
		}
		if report != nil {
			report(e+1, trainMetrics, valMetrics)
		}
	}
	return nil
}

// evaluate computes mean loss and accuracy of net over data.
// Parameters are only read, so chunks run concurrently.
func evaluate(net *network, data *dataset, cfg parallel.Config) (metrics, error) {
	n := data.Len()
	if n == 0 {
		return metrics{}, nil
	}
	workers := cfg.Workers(n)
	losses := make([]float32, workers)
	correct := make([]int, workers)
	errs := make([]error, workers)

	parallel.Chunks(n, func(w, start, end int) {
		ws := net.newWorkspace()
		for i := start; i < end; i++ {
			if err := net.forward(ws, data.Images[i]); err != nil {
				errs[w] = err
				return
			}
			l, err := ann.CrossEntropy(ws.logits, int(data.Labels[i]))
			if err != nil {
				errs[w] = err
				return
			}
			losses[w] += l
			if k, _ := ws.probs.Max(); k == int(data.Labels[i]) {
				correct[w]++
			}
		}
	}, cfg)

	if err := errors.Join(errs...); err != nil {
		return metrics{}, err
	}
	var m metrics
	var total int
	for w := range workers {
		m.Loss += losses[w]
		total += correct[w]
	}
	m.Loss /= float32(n)
	m.Accuracy = float32(total) / float32(n)
	return m, nil
}
