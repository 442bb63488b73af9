package main

import (
	"fmt"
	"maps"
	"strconv"

	"github.com/chewxy/math32"

	"github.com/born-ml/ann/internal/ann"
	"github.com/born-ml/ann/internal/checkpoint"
)

const numClasses = 10

// modelConfig is the shape of the convolutional layer.
type modelConfig struct {
	FilterSize int
	Channels   int
	Pooling    int
}

func defaultModelConfig() modelConfig {
	return modelConfig{FilterSize: 5, Channels: 8, Pooling: 2}
}

// network is one convolution + ReLU + max-pooling layer followed by a
// dense softmax layer.
//
// The same type holds parameters and their gradients.
type network struct {
	conv  *ann.Filter
	dense *ann.Weight
	bias  *ann.Signal
}

func newNetwork(cfg modelConfig, rows, cols int) (*network, error) {
	conv, err := ann.NewFilter(ann.FilterConfig{
		Size:     cfg.FilterSize,
		Channels: cfg.Channels,
		Pooling:  cfg.Pooling,
		SrcW:     cols,
		SrcH:     rows,
	})
	if err != nil {
		return nil, err
	}
	return &network{
		conv:  conv,
		dense: ann.NewWeight(conv.Args().OutputSize, numClasses),
		bias:  ann.NewSignal(numClasses),
	}, nil
}

// zeroLike returns a zero network with the same shapes.
func (n *network) zeroLike() *network {
	conv := n.conv.Clone()
	conv.Zero()
	w, h := n.dense.Size()
	return &network{conv: conv, dense: ann.NewWeight(w, h), bias: ann.NewSignal(n.bias.Len())}
}

// randomize draws weights with deviation 1/sqrt(fan-in). Biases stay zero.
func (n *network) randomize(r ann.Rand) {
	g := n.conv.Args()
	n.conv.Randn(r, 1/math32.Sqrt(float32(g.Size*g.Size)))
	for c := range g.Channels {
		n.conv.SetBias(c, 0)
	}
	w, _ := n.dense.Size()
	n.dense.Randn(r, 1/math32.Sqrt(float32(w)))
	n.bias.Zero()
}

func (n *network) zero() {
	n.conv.Zero()
	n.dense.Zero()
	n.bias.Zero()
}

// accumulate adds scale*delta to every parameter.
func (n *network) accumulate(delta *network, scale float32) error {
	if err := n.conv.Accumulate(delta.conv, scale); err != nil {
		return err
	}
	if err := n.dense.Accumulate(delta.dense, scale); err != nil {
		return err
	}
	return n.bias.Accumulate(delta.bias, scale)
}

// workspace holds the per-sample buffers of one forward/backward pass.
type workspace struct {
	input   *ann.Signal // image, InputSize
	pre     *ann.Signal // convolution output, ConvSize
	act     *ann.Signal // ReLU(pre), then the routed pooling error
	pooled  *ann.Signal // OutputSize
	logits  *ann.Signal
	probs   *ann.Signal
	target  *ann.Signal
	dLogits *ann.Signal
	dPooled *ann.Signal
	grad    *network
}

func (n *network) newWorkspace() *workspace {
	g := n.conv.Args()
	return &workspace{
		input:   ann.NewSignal(g.InputSize),
		pre:     ann.NewSignal(g.ConvSize),
		act:     ann.NewSignal(g.ConvSize),
		pooled:  ann.NewSignal(g.OutputSize),
		logits:  ann.NewSignal(numClasses),
		probs:   ann.NewSignal(numClasses),
		target:  ann.NewSignal(numClasses),
		dLogits: ann.NewSignal(numClasses),
		dPooled: ann.NewSignal(g.OutputSize),
		grad:    n.zeroLike(),
	}
}

// forward runs image through the network, leaving logits and
// probabilities in ws.
func (n *network) forward(ws *workspace, image []byte) error {
	if err := ws.input.Init(ann.FromBytes(image)); err != nil {
		return err
	}
	if err := n.conv.Convolution(ws.input, ws.pre); err != nil {
		return err
	}
	ws.act.Zero()
	if err := ws.act.Accumulate(ws.pre, 1); err != nil {
		return err
	}
	ws.act.ReLU()
	if err := n.conv.MaxPooling(ws.act, ws.pooled); err != nil {
		return err
	}
	if err := ann.Propagate(ws.pooled, n.dense, ws.logits); err != nil {
		return err
	}
	if err := ws.logits.Accumulate(n.bias, 1); err != nil {
		return err
	}
	return ann.Softmax(ws.logits, ws.probs)
}

// backward writes the cross-entropy gradient for label into ws.grad and
// returns the loss. It must follow forward on the same workspace.
func (n *network) backward(ws *workspace, label int) (float32, error) {
	loss, err := ann.CrossEntropy(ws.logits, label)
	if err != nil {
		return 0, err
	}
	if err := ws.target.Init(ann.FromIndex(label)); err != nil {
		return 0, err
	}
	if err := ann.SoftmaxError(ws.logits, ws.target, ws.dLogits); err != nil {
		return 0, err
	}

	// Dense layer.
	if err := ann.BackpropWeight(ws.pooled, ws.dLogits, ws.grad.dense); err != nil {
		return 0, err
	}
	ws.grad.bias.Zero()
	if err := ws.grad.bias.Accumulate(ws.dLogits, 1); err != nil {
		return 0, err
	}
	if err := ann.BackpropBias(ws.dPooled, ws.dLogits, n.dense); err != nil {
		return 0, err
	}

	// Pooling and ReLU. act still holds the forward activations the
	// argmax is derived from.
	if err := n.conv.BackpropMaxPooling(ws.act, ws.dPooled); err != nil {
		return 0, err
	}
	if err := ann.ReLUBackward(ws.pre, ws.act); err != nil {
		return 0, err
	}

	// Convolution.
	if err := ws.grad.conv.BackpropConvBias(ws.act); err != nil {
		return 0, err
	}
	if err := ws.grad.conv.BackpropConvWeight(ws.input, ws.act); err != nil {
		return 0, err
	}
	return loss, nil
}

// Checkpoint tensor names.
const (
	convName  = "conv"
	denseName = "dense.weight"
	biasName  = "dense.bias"
)

func (n *network) save(path string, metadata map[string]string) error {
	sd := checkpoint.NewStateDict()
	sd.AddFilter(convName, n.conv)
	sd.AddWeight(denseName, n.dense)
	sd.AddSignal(biasName, n.bias)

	g := n.conv.Args()
	meta := map[string]string{
		"filter_size": strconv.Itoa(g.Size),
		"channels":    strconv.Itoa(g.Channels),
		"pooling":     strconv.Itoa(g.Pooling),
		"rows":        strconv.Itoa(g.SrcH),
		"cols":        strconv.Itoa(g.SrcW),
	}
	maps.Copy(meta, metadata)
	return sd.Save(path, meta)
}

// loadNetwork rebuilds a network from a checkpoint written by save.
func loadNetwork(path string) (*network, map[string]string, error) {
	r, err := checkpoint.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = r.Close() }()

	if err := r.Verify(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	meta := r.Metadata()
	var cfg modelConfig
	var rows, cols int
	for key, dst := range map[string]*int{
		"filter_size": &cfg.FilterSize,
		"channels":    &cfg.Channels,
		"pooling":     &cfg.Pooling,
		"rows":        &rows,
		"cols":        &cols,
	} {
		if *dst, err = strconv.Atoi(meta[key]); err != nil {
			return nil, nil, fmt.Errorf("%s: metadata %q: %w", path, key, err)
		}
	}

	n, err := newNetwork(cfg, rows, cols)
	if err != nil {
		return nil, nil, err
	}
	if err := r.LoadFilter(convName, n.conv); err != nil {
		return nil, nil, err
	}
	if err := r.LoadWeight(denseName, n.dense); err != nil {
		return nil, nil, err
	}
	if err := r.LoadSignal(biasName, n.bias); err != nil {
		return nil, nil, err
	}
	return n, meta, nil
}
