package ann

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/blas/blas32"
)

// FilterConfig describes the geometry of a Filter.
//
// Convolution always uses stride 1 and no padding.
type FilterConfig struct {
	Size     int // Kernel edge length
	Channels int // Number of output channels (kernels)
	Pooling  int // Max-pooling window edge length
	SrcW     int // Input image width
	SrcH     int // Input image height
}

// Geometry reports a Filter's configuration and the buffer sizes derived from it.
//
//	ConvW   = SrcW - Size + 1      ConvH   = SrcH - Size + 1
//	PooledW = ConvW / Pooling      PooledH = ConvH / Pooling
//
// Conv rows and columns beyond the last full pooling window are dropped by
// MaxPooling and zeroed by BackpropMaxPooling.
type Geometry struct {
	FilterConfig

	ConvW, ConvH     int
	PooledW, PooledH int

	InputSize  int // SrcW*SrcH, length of the input signal
	ConvSize   int // Channels*ConvW*ConvH, length of the convolution signal
	OutputSize int // Channels*PooledW*PooledH, length of the pooled signal
	ParamSize  int // Channels*(1+Size*Size), number of biases and weights
}

// ChannelRecord is the exported form of one channel: its bias and its
// Size*Size kernel weights in row-major order.
type ChannelRecord struct {
	Bias    float32   `json:"bias"`
	Weights []float32 `json:"weights"`
}

// Filter is a bank of Channels convolution kernels applied to a single-channel
// image, followed by non-overlapping max pooling.
//
// Parameters live in one allocation: Channels biases, then Channels blocks
// of Size*Size weights. The same type serves as a gradient accumulator of
// identical shape (see Clone and Zero).
type Filter struct {
	geo    Geometry
	params []float32
}

// NewFilter creates a zero-initialized filter.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	geo, err := newGeometry(cfg)
	if err != nil {
		return nil, err
	}
	return &Filter{geo: geo, params: make([]float32, geo.ParamSize)}, nil
}

func newGeometry(cfg FilterConfig) (Geometry, error) {
	if cfg.Size <= 0 || cfg.Channels <= 0 || cfg.Pooling <= 0 || cfg.SrcW <= 0 || cfg.SrcH <= 0 {
		return Geometry{}, fmt.Errorf("filter: non-positive value in %+v: %w", cfg, ErrGeometry)
	}
	if cfg.Size > min(cfg.SrcW, cfg.SrcH) {
		return Geometry{}, fmt.Errorf("filter: kernel size %d exceeds source %dx%d: %w",
			cfg.Size, cfg.SrcW, cfg.SrcH, ErrGeometry)
	}

	g := Geometry{FilterConfig: cfg}
	g.ConvW = cfg.SrcW - cfg.Size + 1
	g.ConvH = cfg.SrcH - cfg.Size + 1
	g.PooledW = g.ConvW / cfg.Pooling
	g.PooledH = g.ConvH / cfg.Pooling
	if g.PooledW == 0 || g.PooledH == 0 {
		return Geometry{}, fmt.Errorf("filter: pooling %d exceeds convolution output %dx%d: %w",
			cfg.Pooling, g.ConvW, g.ConvH, ErrGeometry)
	}

	g.InputSize = cfg.SrcW * cfg.SrcH
	g.ConvSize = cfg.Channels * g.ConvW * g.ConvH
	g.OutputSize = cfg.Channels * g.PooledW * g.PooledH
	g.ParamSize = cfg.Channels * (1 + cfg.Size*cfg.Size)
	return g, nil
}

// Args returns the filter geometry and derived buffer sizes.
func (f *Filter) Args() Geometry {
	return f.geo
}

// Config returns the configuration the filter was created with.
func (f *Filter) Config() FilterConfig {
	return f.geo.FilterConfig
}

// Bias returns the bias of channel c.
func (f *Filter) Bias(c int) float32 {
	return f.params[c]
}

// SetBias sets the bias of channel c.
func (f *Filter) SetBias(c int, v float32) {
	f.params[c] = v
}

// ChannelWeights returns the Size*Size kernel of channel c, row-major.
// The slice aliases the filter's storage.
func (f *Filter) ChannelWeights(c int) []float32 {
	k := f.geo.Size * f.geo.Size
	start := f.geo.Channels + c*k
	return f.params[start : start+k : start+k]
}

// Zero sets every bias and weight to 0.
func (f *Filter) Zero() {
	clear(f.params)
}

// Randn fills biases and weights with Gaussian samples of the given deviation.
func (f *Filter) Randn(r Rand, deviation float32) {
	randn(f.params, r, deviation)
}

// Clone returns a deep copy with identical geometry.
func (f *Filter) Clone() *Filter {
	params := make([]float32, len(f.params))
	copy(params, f.params)
	return &Filter{geo: f.geo, params: params}
}

// Accumulate computes f[i] += delta[i]*scale over all biases and weights.
func (f *Filter) Accumulate(delta *Filter, scale float32) error {
	if f.geo.FilterConfig != delta.geo.FilterConfig {
		return fmt.Errorf("accumulate: filter geometry %+v, want %+v: %w",
			delta.geo.FilterConfig, f.geo.FilterConfig, ErrShape)
	}
	return accumulate(f.params, delta.params, scale)
}

// Import loads one record per channel.
// Nothing is written unless every record is well formed.
func (f *Filter) Import(records []ChannelRecord) error {
	if err := checkSize("import", "channel count", f.geo.Channels, len(records)); err != nil {
		return err
	}
	k := f.geo.Size * f.geo.Size
	for c, rec := range records {
		if len(rec.Weights) != k {
			return fmt.Errorf("import: channel %d has %d weights, want %d: %w",
				c, len(rec.Weights), k, ErrInvalidRecord)
		}
	}
	for c, rec := range records {
		f.params[c] = rec.Bias
		copy(f.ChannelWeights(c), rec.Weights)
	}
	return nil
}

// Export returns a copy of every channel's bias and kernel.
func (f *Filter) Export() []ChannelRecord {
	records := make([]ChannelRecord, f.geo.Channels)
	for c := range records {
		w := make([]float32, f.geo.Size*f.geo.Size)
		copy(w, f.ChannelWeights(c))
		records[c] = ChannelRecord{Bias: f.params[c], Weights: w}
	}
	return records
}

// Convolution cross-correlates input with every kernel (no kernel flip):
//
//	output[c][y][x] = bias[c] + Σ_{dy,dx} input[y+dy][x+dx] · weight[c][dy][dx]
//
// input has InputSize values (SrcH rows of SrcW), output has ConvSize
// values (Channels planes of ConvH rows of ConvW). No activation is applied.
func (f *Filter) Convolution(input, output *Signal) error {
	g := f.geo
	if err := checkSize("convolution", "input size", g.InputSize, input.Len()); err != nil {
		return err
	}
	if err := checkSize("convolution", "output size", g.ConvSize, output.Len()); err != nil {
		return err
	}

	src := input.data
	planeSize := g.ConvW * g.ConvH
	for c := 0; c < g.Channels; c++ {
		kernel := f.ChannelWeights(c)
		bias := f.params[c]
		plane := output.data[c*planeSize : (c+1)*planeSize]

		for y := 0; y < g.ConvH; y++ {
			for x := 0; x < g.ConvW; x++ {
				sum := bias
				for dy := 0; dy < g.Size; dy++ {
					// Pre-slice input row and kernel row
					rowStart := (y+dy)*g.SrcW + x
					row := src[rowStart : rowStart+g.Size]
					k := kernel[dy*g.Size : (dy+1)*g.Size]
					for dx, v := range row {
						sum += v * k[dx]
					}
				}
				plane[y*g.ConvW+x] = sum
			}
		}
	}
	return nil
}

// MaxPooling writes the maximum of every Pooling×Pooling window of each
// channel plane of conv into output. Windows do not overlap; trailing rows
// and columns that do not fill a window are ignored.
func (f *Filter) MaxPooling(conv, output *Signal) error {
	g := f.geo
	if err := checkSize("max pooling", "input size", g.ConvSize, conv.Len()); err != nil {
		return err
	}
	if err := checkSize("max pooling", "output size", g.OutputSize, output.Len()); err != nil {
		return err
	}

	convPlane := g.ConvW * g.ConvH
	pooledPlane := g.PooledW * g.PooledH
	for c := 0; c < g.Channels; c++ {
		plane := conv.data[c*convPlane : (c+1)*convPlane]
		out := output.data[c*pooledPlane : (c+1)*pooledPlane]
		for py := 0; py < g.PooledH; py++ {
			for px := 0; px < g.PooledW; px++ {
				_, m := f.windowMax(plane, px, py)
				out[py*g.PooledW+px] = m
			}
		}
	}
	return nil
}

// BackpropMaxPooling turns conv, the activated convolution output that was
// fed to MaxPooling, into the gradient with respect to that output.
//
// For every window the maximum is located again in conv (first one in
// row-major order on ties) and replaced by the matching value of
// deltaPooled; the rest of the window and any truncated trailing rows and
// columns become 0. conv must be unchanged since the MaxPooling call.
func (f *Filter) BackpropMaxPooling(conv, deltaPooled *Signal) error {
	g := f.geo
	if err := checkSize("backprop max pooling", "conv size", g.ConvSize, conv.Len()); err != nil {
		return err
	}
	if err := checkSize("backprop max pooling", "delta size", g.OutputSize, deltaPooled.Len()); err != nil {
		return err
	}

	p := g.Pooling
	convPlane := g.ConvW * g.ConvH
	pooledPlane := g.PooledW * g.PooledH
	for c := 0; c < g.Channels; c++ {
		plane := conv.data[c*convPlane : (c+1)*convPlane]
		delta := deltaPooled.data[c*pooledPlane : (c+1)*pooledPlane]

		for py := 0; py < g.PooledH; py++ {
			for px := 0; px < g.PooledW; px++ {
				at, _ := f.windowMax(plane, px, py)
				for y := py * p; y < (py+1)*p; y++ {
					row := plane[y*g.ConvW+px*p : y*g.ConvW+(px+1)*p]
					clear(row)
				}
				plane[at] = delta[py*g.PooledW+px]
			}
		}

		// Truncated edges receive no gradient
		for y := 0; y < g.ConvH; y++ {
			start := 0
			if y < g.PooledH*p {
				start = g.PooledW * p
			}
			clear(plane[y*g.ConvW+start : (y+1)*g.ConvW])
		}
	}
	return nil
}

// windowMax returns the plane index and value of the maximum in pooling
// window (px, py). The first maximum in row-major order wins.
func (f *Filter) windowMax(plane []float32, px, py int) (int, float32) {
	g := f.geo
	p := g.Pooling
	at := py*p*g.ConvW + px*p
	m := plane[at]
	for y := py * p; y < (py+1)*p; y++ {
		for x := px * p; x < (px+1)*p; x++ {
			i := y*g.ConvW + x
			if plane[i] > m {
				m = plane[i]
				at = i
			}
		}
	}
	return at, m
}

// BackpropConvBias stores in f, used as a gradient buffer, the bias gradient
// of every channel: the sum of that channel's plane in delta.
// delta has ConvSize values.
func (f *Filter) BackpropConvBias(delta *Signal) error {
	g := f.geo
	if err := checkSize("backprop conv bias", "delta size", g.ConvSize, delta.Len()); err != nil {
		return err
	}

	planeSize := g.ConvW * g.ConvH
	for c := 0; c < g.Channels; c++ {
		var sum float32
		for _, v := range delta.data[c*planeSize : (c+1)*planeSize] {
			sum += v
		}
		f.params[c] = sum
	}
	return nil
}

// BackpropConvWeight stores in f, used as a gradient buffer, the kernel
// gradient of every channel:
//
//	grad[c][dy][dx] = Σ_{y,x} input[y+dy][x+dx] · delta[c][y][x]
//
// i.e. the cross-correlation of the input image with the channel's delta plane.
func (f *Filter) BackpropConvWeight(input, delta *Signal) error {
	g := f.geo
	if err := checkSize("backprop conv weight", "input size", g.InputSize, input.Len()); err != nil {
		return err
	}
	if err := checkSize("backprop conv weight", "delta size", g.ConvSize, delta.Len()); err != nil {
		return err
	}

	planeSize := g.ConvW * g.ConvH
	for c := 0; c < g.Channels; c++ {
		grad := f.ChannelWeights(c)
		plane := delta.data[c*planeSize : (c+1)*planeSize]
		for dy := 0; dy < g.Size; dy++ {
			for dx := 0; dx < g.Size; dx++ {
				var sum float32
				for y := 0; y < g.ConvH; y++ {
					rowStart := (y+dy)*g.SrcW + dx
					sum += blas32.Dot(
						vector(input.data[rowStart:rowStart+g.ConvW]),
						vector(plane[y*g.ConvW:(y+1)*g.ConvW]),
					)
				}
				grad[dy*g.Size+dx] = sum
			}
		}
	}
	return nil
}

// Dump renders each channel's bias followed by its kernel, one row per line.
func (f *Filter) Dump() string {
	var b strings.Builder
	for c := 0; c < f.geo.Channels; c++ {
		fmt.Fprintf(&b, "[%d] BIAS %.5g\n", c, f.params[c])
		kernel := f.ChannelWeights(c)
		for dy := 0; dy < f.geo.Size; dy++ {
			row := kernel[dy*f.geo.Size : (dy+1)*f.geo.Size]
			b.WriteString("   ")
			for _, v := range row {
				fmt.Fprintf(&b, " % .5g", v)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}
