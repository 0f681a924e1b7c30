package nn

import (
	"fmt"

	"github.com/born-ml/hourglass/internal/tensor"
)

// Upsample scales the spatial dimensions of an NCHW tensor by an integer
// factor using nearest-neighbour interpolation.
//
//	up := nn.NewUpsample[B](2)
//	output := up.Forward(input) // [1, 64, 16, 16] -> [1, 64, 32, 32]
type Upsample[B tensor.Backend] struct {
	scale int
}

// NewUpsample creates a nearest-neighbour upsampling module.
// Panics if scale is not positive.
func NewUpsample[B tensor.Backend](scale int) *Upsample[B] {
	if scale <= 0 {
		panic(fmt.Sprintf("upsample: invalid scale factor %d", scale))
	}
	return &Upsample[B]{scale: scale}
}

// Forward upsamples input: [N, C, H, W] -> [N, C, H*scale, W*scale].
func (u *Upsample[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return input.Upsample2D(u.scale)
}

// Parameters returns nil (upsampling has no trainable parameters).
func (u *Upsample[B]) Parameters() []*Parameter[B] {
	return nil
}

// StateDict returns an empty map.
func (u *Upsample[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// Scale returns the upsampling factor.
func (u *Upsample[B]) Scale() int {
	return u.scale
}

// String returns a string representation of the module.
func (u *Upsample[B]) String() string {
	return fmt.Sprintf("Upsample(scale_factor=%d, mode=nearest)", u.scale)
}
