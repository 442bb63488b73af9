package ann

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilter(t *testing.T, cfg FilterConfig) *Filter {
	t.Helper()
	f, err := NewFilter(cfg)
	require.NoError(t, err)
	return f
}

func TestFilter_Geometry(t *testing.T) {
	tests := []struct {
		name string
		cfg  FilterConfig
		want Geometry
	}{
		{
			name: "mnist 5x5 pool 2",
			cfg:  FilterConfig{Size: 5, Channels: 8, Pooling: 2, SrcW: 28, SrcH: 28},
			want: Geometry{
				ConvW: 24, ConvH: 24, PooledW: 12, PooledH: 12,
				InputSize: 784, ConvSize: 8 * 24 * 24, OutputSize: 8 * 12 * 12, ParamSize: 8 * 26,
			},
		},
		{
			name: "truncated edges",
			cfg:  FilterConfig{Size: 2, Channels: 1, Pooling: 4, SrcW: 7, SrcH: 10},
			want: Geometry{
				ConvW: 6, ConvH: 9, PooledW: 1, PooledH: 2,
				InputSize: 70, ConvSize: 54, OutputSize: 2, ParamSize: 5,
			},
		},
		{
			name: "kernel covers source",
			cfg:  FilterConfig{Size: 3, Channels: 2, Pooling: 1, SrcW: 3, SrcH: 3},
			want: Geometry{
				ConvW: 1, ConvH: 1, PooledW: 1, PooledH: 1,
				InputSize: 9, ConvSize: 2, OutputSize: 2, ParamSize: 20,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFilter(t, tt.cfg)
			tt.want.FilterConfig = tt.cfg
			assert.Equal(t, tt.want, f.Args())
			assert.Equal(t, tt.cfg, f.Config())
		})
	}
}

func TestFilter_InvalidGeometry(t *testing.T) {
	for _, cfg := range []FilterConfig{
		{Size: 0, Channels: 1, Pooling: 1, SrcW: 4, SrcH: 4},
		{Size: 2, Channels: 0, Pooling: 1, SrcW: 4, SrcH: 4},
		{Size: 2, Channels: 1, Pooling: 0, SrcW: 4, SrcH: 4},
		{Size: 5, Channels: 1, Pooling: 1, SrcW: 4, SrcH: 8},
		{Size: 2, Channels: 1, Pooling: 4, SrcW: 4, SrcH: 4},
	} {
		_, err := NewFilter(cfg)
		assert.ErrorIs(t, err, ErrGeometry, "%+v", cfg)
	}
}

func TestFilter_ConvolutionTopLeft(t *testing.T) {
	f := newTestFilter(t, FilterConfig{Size: 2, Channels: 1, Pooling: 1, SrcW: 3, SrcH: 3})
	require.NoError(t, f.Import([]ChannelRecord{{Bias: 0, Weights: []float32{1, 0, 0, 0}}}))

	input := signalOf(t, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	output := NewSignal(f.Args().ConvSize)
	require.NoError(t, f.Convolution(input, output))
	assert.Equal(t, []float32{1, 2, 4, 5}, output.ToArray())
}

func TestFilter_ConvolutionChannelsAndBias(t *testing.T) {
	// Non-square source: 4 wide, 3 high
	f := newTestFilter(t, FilterConfig{Size: 2, Channels: 2, Pooling: 1, SrcW: 4, SrcH: 3})
	require.NoError(t, f.Import([]ChannelRecord{
		{Bias: 0.5, Weights: []float32{1, 1, 1, 1}},
		{Bias: -1, Weights: []float32{0, 0, 0, 2}},
	}))

	// [[1, 2, 3, 4],
	//  [5, 6, 7, 8],
	//  [9,10,11,12]]
	input := signalOf(t, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)
	output := NewSignal(f.Args().ConvSize)
	require.NoError(t, f.Convolution(input, output))

	want := []float32{
		// channel 0: window sums + 0.5
		14.5, 18.5, 22.5,
		30.5, 34.5, 38.5,
		// channel 1: 2*bottom-right - 1
		11, 13, 15,
		19, 21, 23,
	}
	assert.Equal(t, want, output.ToArray())
}

func TestFilter_ConvolutionSizeMismatch(t *testing.T) {
	f := newTestFilter(t, FilterConfig{Size: 2, Channels: 1, Pooling: 1, SrcW: 3, SrcH: 3})
	assert.ErrorIs(t, f.Convolution(NewSignal(8), NewSignal(4)), ErrShape)
	assert.ErrorIs(t, f.Convolution(NewSignal(9), NewSignal(5)), ErrShape)
}

func TestFilter_MaxPoolingTruncates(t *testing.T) {
	// conv plane 5x5, pooling 2 -> 2x2, last row and column dropped
	f := newTestFilter(t, FilterConfig{Size: 1, Channels: 1, Pooling: 2, SrcW: 5, SrcH: 5})
	conv := NewSignal(25)
	values := make([]float32, 25)
	for i := range values {
		values[i] = float32(i)
	}
	// Large values in the truncated edge must not leak into the output
	values[4] = 100
	values[24] = 100
	require.NoError(t, conv.Init(FromValues(values)))

	out := NewSignal(f.Args().OutputSize)
	require.NoError(t, f.MaxPooling(conv, out))
	assert.Equal(t, []float32{6, 8, 16, 18}, out.ToArray())
}

func TestFilter_MaxPoolingMultiChannel(t *testing.T) {
	f := newTestFilter(t, FilterConfig{Size: 1, Channels: 2, Pooling: 2, SrcW: 2, SrcH: 2})
	conv := signalOf(t, -3, -1, -2, -4, 7, 1, 1, 1)
	out := NewSignal(2)
	require.NoError(t, f.MaxPooling(conv, out))
	assert.Equal(t, []float32{-1, 7}, out.ToArray())

	assert.ErrorIs(t, f.MaxPooling(NewSignal(4), out), ErrShape)
	assert.ErrorIs(t, f.MaxPooling(conv, NewSignal(3)), ErrShape)
}

func TestFilter_BackpropMaxPoolingSingleWindow(t *testing.T) {
	f := newTestFilter(t, FilterConfig{Size: 1, Channels: 1, Pooling: 2, SrcW: 2, SrcH: 2})

	// [[1, 5],
	//  [3, 2]]
	conv := signalOf(t, 1, 5, 3, 2)
	delta := signalOf(t, 0.75)
	require.NoError(t, f.BackpropMaxPooling(conv, delta))
	assert.Equal(t, []float32{0, 0.75, 0, 0}, conv.ToArray())
}

func TestFilter_BackpropMaxPoolingTiesAndEdges(t *testing.T) {
	// conv plane 5x4 (w x h), pooling 2 -> 2x2 windows, column 4 truncated
	f := newTestFilter(t, FilterConfig{Size: 1, Channels: 1, Pooling: 2, SrcW: 5, SrcH: 4})
	conv := signalOf(t,
		2, 2, 0, 1, 9,
		2, 1, 3, 3, 9,
		0, 0, 4, 0, 9,
		0, 0, 0, 4, 9,
	)
	pooled := NewSignal(4)
	require.NoError(t, f.MaxPooling(conv, pooled))
	assert.Equal(t, []float32{2, 3, 0, 4}, pooled.ToArray())

	delta := signalOf(t, 10, 20, 30, 40)
	require.NoError(t, f.BackpropMaxPooling(conv, delta))
	assert.Equal(t, []float32{
		10, 0, 0, 0, 0, // first of the tied 2s wins
		0, 0, 20, 0, 0, // first of the tied 3s wins
		30, 0, 40, 0, 0, // all-zero window: top-left wins
		0, 0, 0, 0, 0,
	}, conv.ToArray())
}

func TestFilter_BackpropMaxPoolingTruncatedRows(t *testing.T) {
	f := newTestFilter(t, FilterConfig{Size: 1, Channels: 2, Pooling: 2, SrcW: 2, SrcH: 3})
	conv := signalOf(t,
		1, 2,
		3, 4,
		5, 6,
		// channel 1
		8, 7,
		6, 5,
		4, 3,
	)
	delta := signalOf(t, -1, -2)
	require.NoError(t, f.BackpropMaxPooling(conv, delta))
	assert.Equal(t, []float32{
		0, 0,
		0, -1,
		0, 0,
		-2, 0,
		0, 0,
		0, 0,
	}, conv.ToArray())
}

func TestFilter_BackpropMaxPoolingMatchesPooling(t *testing.T) {
	// Every non-zero gradient sits where the conv value equals the pooled max.
	f := newTestFilter(t, FilterConfig{Size: 3, Channels: 3, Pooling: 3, SrcW: 13, SrcH: 11})
	f.Randn(NewRand(5), 1)
	geo := f.Args()

	input := NewSignal(geo.InputSize)
	input.Randn(NewRand(6), 1)
	conv := NewSignal(geo.ConvSize)
	require.NoError(t, f.Convolution(input, conv))
	conv.ReLU()
	pooled := NewSignal(geo.OutputSize)
	require.NoError(t, f.MaxPooling(conv, pooled))
	forward := conv.ToArray()

	ones := NewSignal(geo.OutputSize)
	for i := 0; i < ones.Len(); i++ {
		ones.Set(i, 1)
	}
	require.NoError(t, f.BackpropMaxPooling(conv, ones))

	var routed int
	for i, g := range conv.ToArray() {
		if g == 0 {
			continue
		}
		routed++
		c := i / (geo.ConvW * geo.ConvH)
		y := i % (geo.ConvW * geo.ConvH) / geo.ConvW
		x := i % geo.ConvW
		p := c*geo.PooledW*geo.PooledH + (y/geo.Pooling)*geo.PooledW + x/geo.Pooling
		assert.Equal(t, pooled.At(p), forward[i])
	}
	assert.Equal(t, geo.OutputSize, routed)
}

func TestFilter_BackpropConvBias(t *testing.T) {
	f := newTestFilter(t, FilterConfig{Size: 2, Channels: 2, Pooling: 1, SrcW: 3, SrcH: 3})
	f.Randn(NewRand(1), 1)
	weights := f.ChannelWeights(1)
	before := append([]float32(nil), weights...)

	delta := signalOf(t, 1, 2, 3, 4, -1, -1, -1, 0.5)
	require.NoError(t, f.BackpropConvBias(delta))
	assert.Equal(t, float32(10), f.Bias(0))
	assert.Equal(t, float32(-2.5), f.Bias(1))
	assert.Equal(t, before, f.ChannelWeights(1), "weights untouched")

	assert.ErrorIs(t, f.BackpropConvBias(NewSignal(4)), ErrShape)
}

func TestFilter_BackpropConvWeight(t *testing.T) {
	cfg := FilterConfig{Size: 2, Channels: 1, Pooling: 1, SrcW: 3, SrcH: 3}
	grad := newTestFilter(t, cfg)

	input := signalOf(t, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	delta := signalOf(t, 1, 0, 0, 1)
	require.NoError(t, grad.BackpropConvWeight(input, delta))

	// grad[dy][dx] = input[dy][dx] + input[1+dy][1+dx]
	assert.Equal(t, []float32{6, 8, 12, 14}, grad.ChannelWeights(0))
	assert.Equal(t, float32(0), grad.Bias(0), "bias untouched")

	assert.ErrorIs(t, grad.BackpropConvWeight(NewSignal(8), delta), ErrShape)
	assert.ErrorIs(t, grad.BackpropConvWeight(input, NewSignal(3)), ErrShape)
}

// TestFilter_GradientsMatchLinearLoss checks both conv gradients against the
// exact directional change of L = Σ delta·conv(input), which is linear in
// every parameter.
func TestFilter_GradientsMatchLinearLoss(t *testing.T) {
	cfg := FilterConfig{Size: 3, Channels: 2, Pooling: 2, SrcW: 6, SrcH: 5}
	f := newTestFilter(t, cfg)
	geo := f.Args()

	input := NewSignal(geo.InputSize)
	for i := 0; i < input.Len(); i++ {
		input.Set(i, float32(i%7)-3)
	}
	delta := NewSignal(geo.ConvSize)
	for i := 0; i < delta.Len(); i++ {
		delta.Set(i, float32(i%5)-2)
	}

	loss := func(p *Filter) float32 {
		out := NewSignal(geo.ConvSize)
		require.NoError(t, p.Convolution(input, out))
		var sum float32
		for i, v := range out.ToArray() {
			sum += v * delta.At(i)
		}
		return sum
	}

	grad := newTestFilter(t, cfg)
	require.NoError(t, grad.BackpropConvBias(delta))
	require.NoError(t, grad.BackpropConvWeight(input, delta))

	base := loss(f)
	for c := 0; c < cfg.Channels; c++ {
		probe := f.Clone()
		probe.SetBias(c, 1)
		assert.Equal(t, loss(probe)-base, grad.Bias(c), "bias %d", c)

		for k := 0; k < cfg.Size*cfg.Size; k++ {
			probe := f.Clone()
			probe.ChannelWeights(c)[k] = 1
			assert.Equal(t, loss(probe)-base, grad.ChannelWeights(c)[k], "weight %d/%d", c, k)
		}
	}
}

func TestFilter_ImportExportRoundTrip(t *testing.T) {
	cfg := FilterConfig{Size: 3, Channels: 4, Pooling: 2, SrcW: 8, SrcH: 8}
	src := newTestFilter(t, cfg)
	src.Randn(NewRand(9), 1)

	dst := newTestFilter(t, cfg)
	require.NoError(t, dst.Import(src.Export()))
	assert.Equal(t, src.Export(), dst.Export())
	for c := 0; c < cfg.Channels; c++ {
		assert.Equal(t, src.Bias(c), dst.Bias(c))
		assert.Equal(t, src.ChannelWeights(c), dst.ChannelWeights(c))
	}
}

func TestFilter_ImportInvalid(t *testing.T) {
	f := newTestFilter(t, FilterConfig{Size: 2, Channels: 2, Pooling: 1, SrcW: 3, SrcH: 3})

	assert.ErrorIs(t, f.Import([]ChannelRecord{{Weights: make([]float32, 4)}}), ErrShape)

	err := f.Import([]ChannelRecord{
		{Bias: 1, Weights: []float32{1, 2, 3, 4}},
		{Bias: 2, Weights: []float32{1, 2, 3}},
	})
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.Equal(t, float32(0), f.Bias(0), "nothing written on failure")
}

func TestFilter_CloneIsIndependent(t *testing.T) {
	f := newTestFilter(t, FilterConfig{Size: 2, Channels: 1, Pooling: 1, SrcW: 2, SrcH: 2})
	f.SetBias(0, 3)
	c := f.Clone()
	assert.Equal(t, f.Args(), c.Args())
	assert.Equal(t, f.Export(), c.Export())

	c.SetBias(0, 7)
	c.ChannelWeights(0)[0] = 1
	assert.Equal(t, float32(3), f.Bias(0))
	assert.Equal(t, float32(0), f.ChannelWeights(0)[0])
}

func TestFilter_AccumulateAndZero(t *testing.T) {
	cfg := FilterConfig{Size: 2, Channels: 1, Pooling: 1, SrcW: 3, SrcH: 3}
	f := newTestFilter(t, cfg)
	require.NoError(t, f.Import([]ChannelRecord{{Bias: 1, Weights: []float32{1, 2, 3, 4}}}))
	d := newTestFilter(t, cfg)
	require.NoError(t, d.Import([]ChannelRecord{{Bias: 1, Weights: []float32{1, 1, 1, 1}}}))

	require.NoError(t, f.Accumulate(d, -0.5))
	assert.Equal(t, []ChannelRecord{{Bias: 0.5, Weights: []float32{0.5, 1.5, 2.5, 3.5}}}, f.Export())

	other := newTestFilter(t, FilterConfig{Size: 2, Channels: 1, Pooling: 1, SrcW: 4, SrcH: 3})
	assert.ErrorIs(t, f.Accumulate(other, 1), ErrShape)

	f.Zero()
	once := f.Export()
	f.Zero()
	assert.Equal(t, once, f.Export())
	assert.Equal(t, []ChannelRecord{{Bias: 0, Weights: []float32{0, 0, 0, 0}}}, once)
}

func TestFilter_RandnFillsAllParameters(t *testing.T) {
	f := newTestFilter(t, FilterConfig{Size: 3, Channels: 3, Pooling: 1, SrcW: 5, SrcH: 5})
	f.Randn(NewRand(2), 1)
	for c, rec := range f.Export() {
		assert.NotZero(t, rec.Bias, "bias %d", c)
		for k, w := range rec.Weights {
			assert.NotZero(t, w, "weight %d/%d", c, k)
		}
	}
}

func TestFilter_Dump(t *testing.T) {
	f := newTestFilter(t, FilterConfig{Size: 2, Channels: 2, Pooling: 1, SrcW: 2, SrcH: 2})
	require.NoError(t, f.Import([]ChannelRecord{
		{Bias: 0.5, Weights: []float32{1, -2, 3, 4}},
		{Bias: -1, Weights: []float32{0, 0, 0, 0}},
	}))
	out := f.Dump()
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "[0] BIAS 0.5", lines[0])
	assert.Equal(t, "     1 -2", lines[1])
	assert.Equal(t, "[1] BIAS -1", lines[3])
}
