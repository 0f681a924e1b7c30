package hourglass

import (
	"fmt"

	"github.com/born-ml/hourglass/internal/nn"
	"github.com/born-ml/hourglass/internal/tensor"
)

// MakeLayer stacks modules residual blocks for same-resolution refinement.
// The first block maps in -> out using opts (its stride included); the
// remaining blocks map out -> out at stride 1.
func MakeLayer[B tensor.Backend](in, out, kernel, modules int, opts BlockOptions, backend B) *nn.Sequential[B] {
	checkModules("MakeLayer", modules)

	layers := make([]nn.Module[B], 0, modules)
	layers = append(layers, NewResidual(in, out, kernel, opts, backend))
	for i := 1; i < modules; i++ {
		layers = append(layers, NewResidual(out, out, kernel, opts.WithStride(1), backend))
	}
	return nn.NewSequential(layers...)
}

// MakeHGLayer stacks modules residual blocks for the downsampling branch.
// The first block maps in -> out at stride 2; the remaining blocks map
// out -> out at stride 1. Only the padding of opts is used.
func MakeHGLayer[B tensor.Backend](in, out, kernel, modules int, opts BlockOptions, backend B) *nn.Sequential[B] {
	checkModules("MakeHGLayer", modules)

	layers := make([]nn.Module[B], 0, modules)
	layers = append(layers, NewResidual(in, out, kernel, opts.WithStride(2), backend))
	for i := 1; i < modules; i++ {
		layers = append(layers, NewResidual(out, out, kernel, opts.WithStride(1), backend))
	}
	return nn.NewSequential(layers...)
}

// MakeLayerRevr stacks modules residual blocks for the decoder branch.
// The first modules-1 blocks map in -> in and the last one maps in -> out,
// so the channel change happens right before upsampling. All blocks run at
// stride 1; only the padding of opts is used.
func MakeLayerRevr[B tensor.Backend](in, out, kernel, modules int, opts BlockOptions, backend B) *nn.Sequential[B] {
	checkModules("MakeLayerRevr", modules)

	opts = opts.WithStride(1)
	layers := make([]nn.Module[B], 0, modules)
	for i := 1; i < modules; i++ {
		layers = append(layers, NewResidual(in, in, kernel, opts, backend))
	}
	layers = append(layers, NewResidual(in, out, kernel, opts, backend))
	return nn.NewSequential(layers...)
}

func checkModules(builder string, modules int) {
	if modules < 1 {
		panic(fmt.Sprintf("%s: modules must be >= 1, got %d", builder, modules))
	}
}
