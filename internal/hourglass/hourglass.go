// Package hourglass implements the recursive hourglass module used by
// stacked-hourglass keypoint networks, together with its residual and
// convolution building blocks and the layer builders that stack them.
//
// A depth-n module processes its input along two paths:
//
//	up1  = up1(x)                  same resolution, channels[0]
//	low1 = low1(x)                 2x downsample, channels[0] -> channels[1]
//	low2 = low2(low1)              nested depth n-1 module, or a residual stack when n == 1
//	low3 = low3(low2)              channels[1] -> channels[0]
//	out  = up1 + upsample2x(low3)
//
// Inputs must be [N, channels[0], H, W] with H and W divisible by 2^n.
package hourglass

import (
	"fmt"
	"strings"

	"github.com/born-ml/hourglass/internal/nn"
	"github.com/born-ml/hourglass/internal/tensor"
)

// Module is one level of the hourglass.
type Module[B tensor.Backend] struct {
	depth    int
	kernel   int
	channels []int
	modules  []int

	up1  *nn.Sequential[B]
	low1 *nn.Sequential[B]
	low2 lowBranch[B]
	low3 *nn.Sequential[B]
	up2  *nn.Upsample[B]
}

// lowBranch holds exactly one of a nested module (depth > 1) or the
// terminal residual stack (depth == 1).
type lowBranch[B tensor.Backend] struct {
	nested   *Module[B]
	terminal *nn.Sequential[B]
}

func (l lowBranch[B]) module() nn.Module[B] {
	if l.nested != nil {
		return l.nested
	}
	return l.terminal
}

// New builds a depth-n hourglass with the default 3x3 kernel.
//
// channels and modules are consumed head-first: this level reads
// channels[0:2] and modules[0:2], the nested level gets channels[1:] and
// modules[1:]. Both therefore need at least n+1 entries.
//
// Only the padding of opts is forwarded to the residual blocks; the
// strides are fixed by the structure. New panics on any precondition
// violation.
func New[B tensor.Backend](n int, channels, modules []int, opts BlockOptions, backend B) *Module[B] {
	return NewWithKernel(n, DefaultKernelSize, channels, modules, opts, backend)
}

// NewWithKernel is New with an explicit convolution kernel size.
func NewWithKernel[B tensor.Backend](n, kernel int, channels, modules []int, opts BlockOptions, backend B) *Module[B] {
	validate(n, kernel, channels, modules, opts)

	curr, next := channels[0], channels[1]
	currMod, nextMod := modules[0], modules[1]

	m := &Module[B]{
		depth:    n,
		kernel:   kernel,
		channels: append([]int(nil), channels[:n+1]...),
		modules:  append([]int(nil), modules[:n+1]...),
		up1:      MakeLayer(curr, curr, kernel, currMod, opts, backend),
		low1:     MakeHGLayer(curr, next, kernel, currMod, opts, backend),
		low3:     MakeLayerRevr(next, curr, kernel, currMod, opts, backend),
		up2:      nn.NewUpsample[B](2),
	}

	if n > 1 {
		m.low2.nested = NewWithKernel(n-1, kernel, channels[1:], modules[1:], opts, backend)
	} else {
		m.low2.terminal = MakeLayer(next, next, kernel, nextMod, opts, backend)
	}

	return m
}

func validate(n, kernel int, channels, modules []int, opts BlockOptions) {
	if n < 1 {
		panic(fmt.Sprintf("hourglass: depth must be >= 1, got %d", n))
	}
	if kernel <= 0 {
		panic(fmt.Sprintf("hourglass: invalid kernel size %d", kernel))
	}
	if len(channels) < n+1 {
		panic(fmt.Sprintf("hourglass: depth %d needs at least %d channel counts, got %d", n, n+1, len(channels)))
	}
	if len(modules) < n+1 {
		panic(fmt.Sprintf("hourglass: depth %d needs at least %d module counts, got %d", n, n+1, len(modules)))
	}
	for i := 0; i <= n; i++ {
		if channels[i] <= 0 {
			panic(fmt.Sprintf("hourglass: channels[%d] must be positive, got %d", i, channels[i]))
		}
		if modules[i] <= 0 {
			panic(fmt.Sprintf("hourglass: modules[%d] must be positive, got %d", i, modules[i]))
		}
	}
	if opts.stride() != 1 {
		panic(fmt.Sprintf("hourglass: block stride is fixed by the structure, got stride %d", opts.Stride))
	}
}

// Forward computes up1(x) + upsample2x(low3(low2(low1(x)))).
// H and W must be divisible by 2^depth; other sizes panic.
func (m *Module[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("hourglass: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != m.channels[0] {
		panic(fmt.Sprintf("hourglass: input channels %d != expected %d", shape[1], m.channels[0]))
	}

	up1 := m.up1.Forward(x)
	low1 := m.low1.Forward(x)
	low2 := m.low2.module().Forward(low1)
	low3 := m.low3.Forward(low2)
	up2 := m.up2.Forward(low3)

	if !up1.Shape().Equal(up2.Shape()) {
		panic(fmt.Sprintf("hourglass: up1 %v and up2 %v differ in shape; H and W must be divisible by 2^%d",
			up1.Shape(), up2.Shape(), m.depth))
	}
	return up1.Add(up2)
}

// Parameters returns the parameters of up1, low1, low2 and low3, in that
// order.
func (m *Module[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	params = append(params, m.up1.Parameters()...)
	params = append(params, m.low1.Parameters()...)
	params = append(params, m.low2.module().Parameters()...)
	params = append(params, m.low3.Parameters()...)
	return params
}

// StateDict returns every parameter and batch norm buffer keyed by its
// dotted path, for example "low2.up1.0.conv1.weight".
func (m *Module[B]) StateDict() map[string]*tensor.RawTensor {
	return nn.MergeStateDict(map[string]map[string]*tensor.RawTensor{
		"up1":  m.up1.StateDict(),
		"low1": m.low1.StateDict(),
		"low2": m.low2.module().StateDict(),
		"low3": m.low3.StateDict(),
	})
}

// SetTraining switches every batch norm in the hourglass to training
// (batch statistics) or evaluation (running statistics) mode.
func (m *Module[B]) SetTraining(training bool) {
	m.up1.SetTraining(training)
	m.low1.SetTraining(training)
	nn.SetTraining(m.low2.module(), training)
	m.low3.SetTraining(training)
}

// Depth returns the recursion depth n.
func (m *Module[B]) Depth() int {
	return m.depth
}

// KernelSize returns the convolution kernel size of the residual blocks.
func (m *Module[B]) KernelSize() int {
	return m.kernel
}

// Channels returns the channel counts used by this level and below.
func (m *Module[B]) Channels() []int {
	return append([]int(nil), m.channels...)
}

// Modules returns the residual block counts used by this level and below.
func (m *Module[B]) Modules() []int {
	return append([]int(nil), m.modules...)
}

// Nested returns the next level down, or nil at depth 1.
func (m *Module[B]) Nested() *Module[B] {
	return m.low2.nested
}

// Terminal returns the innermost residual stack, or nil above depth 1.
func (m *Module[B]) Terminal() *nn.Sequential[B] {
	return m.low2.terminal
}

// Level summarizes one level of the hourglass.
type Level struct {
	Depth        int // recursion depth of the level
	Channels     int // channels at the level's resolution
	NextChannels int // channels after the level's downsampling
	Modules      int // residual blocks per up1/low1/low3 stack
	Parameters   int // parameters owned by the level (nested levels excluded)
}

// Levels lists the levels from the outermost to the innermost.
// The innermost level's parameters include the terminal stack.
func (m *Module[B]) Levels() []Level {
	var levels []Level
	for l := m; l != nil; l = l.low2.nested {
		params := nn.CountParameters[B](l.up1) +
			nn.CountParameters[B](l.low1) +
			nn.CountParameters[B](l.low3)
		if l.low2.terminal != nil {
			params += nn.CountParameters[B](l.low2.terminal)
		}
		levels = append(levels, Level{
			Depth:        l.depth,
			Channels:     l.channels[0],
			NextChannels: l.channels[1],
			Modules:      l.modules[0],
			Parameters:   params,
		})
	}
	return levels
}

// String returns an indented description of the hourglass.
func (m *Module[B]) String() string {
	var sb strings.Builder
	m.write(&sb, "")
	return sb.String()
}

func (m *Module[B]) write(sb *strings.Builder, indent string) {
	fmt.Fprintf(sb, "%sHourglass(depth=%d, channels=%d -> %d, modules=%d)\n",
		indent, m.depth, m.channels[0], m.channels[1], m.modules[0])
	writeStack(sb, indent, "up1", m.up1)
	writeStack(sb, indent, "low1", m.low1)
	if m.low2.nested != nil {
		fmt.Fprintf(sb, "%s  low2:\n", indent)
		m.low2.nested.write(sb, indent+"    ")
	} else {
		writeStack(sb, indent, "low2", m.low2.terminal)
	}
	writeStack(sb, indent, "low3", m.low3)
	fmt.Fprintf(sb, "%s  up2: %v\n", indent, m.up2)
}

func writeStack[B tensor.Backend](sb *strings.Builder, indent, name string, stack *nn.Sequential[B]) {
	fmt.Fprintf(sb, "%s  %s:\n", indent, name)
	for i := 0; i < stack.Len(); i++ {
		fmt.Fprintf(sb, "%s    (%d): %v\n", indent, i, stack.Module(i))
	}
}
