package hourglass

import (
	"fmt"

	"github.com/born-ml/hourglass/internal/nn"
	"github.com/born-ml/hourglass/internal/tensor"
)

// Residual is a two-convolution residual unit:
//
//	out = ReLU(BN2(conv2(ReLU(BN1(conv1(x))))) + skip(x))
//
// conv1 applies the block's stride, conv2 always runs at stride 1; neither
// has a bias. The skip path is the identity when the block keeps both the
// channel count and the resolution (stride 1, in == out). Otherwise it is a
// 1x1 projection convolution with the same stride, followed by batch norm,
// so both addends come out as [N, out, ceil(H/stride), ceil(W/stride)].
type Residual[B tensor.Backend] struct {
	in, out int
	stride  int

	conv1 *nn.Conv2D[B]
	bn1   *nn.BatchNorm2D[B]
	conv2 *nn.Conv2D[B]
	bn2   *nn.BatchNorm2D[B]

	skip *nn.Sequential[B] // nil for the identity skip
}

// NewResidual creates a residual block mapping in to out channels.
func NewResidual[B tensor.Backend](in, out, kernel int, opts BlockOptions, backend B) *Residual[B] {
	stride := opts.stride()
	padding := opts.padding(kernel)

	r := &Residual[B]{
		in:     in,
		out:    out,
		stride: stride,
		conv1:  nn.NewConv2D(in, out, kernel, kernel, stride, padding, false, backend),
		bn1:    nn.NewBatchNorm2D(out, backend),
		conv2:  nn.NewConv2D(out, out, kernel, kernel, 1, padding, false, backend),
		bn2:    nn.NewBatchNorm2D(out, backend),
	}

	if stride != 1 || in != out {
		r.skip = nn.NewSequential[B](
			nn.NewConv2D(in, out, 1, 1, stride, 0, false, backend),
			nn.NewBatchNorm2D(out, backend),
		)
	}

	return r
}

// Forward runs the main and skip paths and sums them.
func (r *Residual[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	main := r.bn1.Forward(r.conv1.Forward(x)).ReLU()
	main = r.bn2.Forward(r.conv2.Forward(main))

	skip := x
	if r.skip != nil {
		skip = r.skip.Forward(x)
	}

	if !main.Shape().Equal(skip.Shape()) {
		panic(fmt.Sprintf("residual: main path %v and skip %v differ in shape", main.Shape(), skip.Shape()))
	}
	return main.Add(skip).ReLU()
}

// Parameters returns the parameters of both stages and the projection.
func (r *Residual[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 10)
	params = append(params, r.conv1.Parameters()...)
	params = append(params, r.bn1.Parameters()...)
	params = append(params, r.conv2.Parameters()...)
	params = append(params, r.bn2.Parameters()...)
	if r.skip != nil {
		params = append(params, r.skip.Parameters()...)
	}
	return params
}

// StateDict returns conv1, bn1, conv2, bn2 and (for projections) skip.0 and
// skip.1 entries.
func (r *Residual[B]) StateDict() map[string]*tensor.RawTensor {
	children := map[string]map[string]*tensor.RawTensor{
		"conv1": r.conv1.StateDict(),
		"bn1":   r.bn1.StateDict(),
		"conv2": r.conv2.StateDict(),
		"bn2":   r.bn2.StateDict(),
	}
	if r.skip != nil {
		children["skip"] = r.skip.StateDict()
	}
	return nn.MergeStateDict(children)
}

// SetTraining sets the mode of every batch norm in the block.
func (r *Residual[B]) SetTraining(training bool) {
	r.bn1.SetTraining(training)
	r.bn2.SetTraining(training)
	if r.skip != nil {
		r.skip.SetTraining(training)
	}
}

// Identity reports whether the skip path passes the input through unchanged.
func (r *Residual[B]) Identity() bool {
	return r.skip == nil
}

// InChannels returns the number of input channels.
func (r *Residual[B]) InChannels() int { return r.in }

// OutChannels returns the number of output channels.
func (r *Residual[B]) OutChannels() int { return r.out }

// Stride returns the stride of the first convolution.
func (r *Residual[B]) Stride() int { return r.stride }

// String returns a one-line description of the block.
func (r *Residual[B]) String() string {
	skip := "identity"
	if r.skip != nil {
		skip = "projection"
	}
	return fmt.Sprintf("Residual(%d -> %d, stride=%d, padding=%d, skip=%s)",
		r.in, r.out, r.stride, r.conv1.Padding(), skip)
}
