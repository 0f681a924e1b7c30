package hourglass

import (
	"fmt"

	"github.com/born-ml/hourglass/internal/nn"
	"github.com/born-ml/hourglass/internal/tensor"
)

// ConvBlock is a convolution followed by batch normalization and ReLU.
//
// Padding is always (kernel-1)/2, so at stride 1 an odd kernel keeps the
// spatial size:
//
//	block := hourglass.NewConvBlock(3, 64, 7, 2, backend)
//	out := block.Forward(x) // [N, 3, 256, 256] -> [N, 64, 128, 128]
type ConvBlock[B tensor.Backend] struct {
	conv *nn.Conv2D[B]
	bn   *nn.BatchNorm2D[B]
	relu *nn.ReLU[B]
}

// NewConvBlock creates a conv (with bias) + BatchNorm2D + ReLU block.
func NewConvBlock[B tensor.Backend](in, out, kernel, stride int, backend B) *ConvBlock[B] {
	padding := (kernel - 1) / 2
	return &ConvBlock[B]{
		conv: nn.NewConv2D(in, out, kernel, kernel, stride, padding, true, backend),
		bn:   nn.NewBatchNorm2D(out, backend),
		relu: nn.NewReLU[B](),
	}
}

// Forward computes ReLU(BN(conv(x))).
func (c *ConvBlock[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return c.relu.Forward(c.bn.Forward(c.conv.Forward(x)))
}

// Parameters returns the convolution and batch norm parameters.
func (c *ConvBlock[B]) Parameters() []*nn.Parameter[B] {
	return append(c.conv.Parameters(), c.bn.Parameters()...)
}

// StateDict returns "conv.*" and "bn.*" entries.
func (c *ConvBlock[B]) StateDict() map[string]*tensor.RawTensor {
	return nn.MergeStateDict(map[string]map[string]*tensor.RawTensor{
		"conv": c.conv.StateDict(),
		"bn":   c.bn.StateDict(),
	})
}

// SetTraining sets the batch norm mode.
func (c *ConvBlock[B]) SetTraining(training bool) {
	c.bn.SetTraining(training)
}

// String returns a string representation of the block.
func (c *ConvBlock[B]) String() string {
	return fmt.Sprintf("ConvBlock(%v, %v, %v)", c.conv, c.bn, c.relu)
}
