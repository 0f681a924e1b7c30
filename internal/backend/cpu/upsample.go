package cpu

import (
	"fmt"

	"github.com/born-ml/hourglass/internal/parallel"
	"github.com/born-ml/hourglass/internal/tensor"
)

// Upsample2D performs nearest-neighbour upsampling of an NCHW tensor.
//
// Input shape: [batch, channels, height, width]
// Output shape: [batch, channels, height*scale, width*scale]
//
// Every input pixel is copied into a scale×scale block of the output.
func (cpu *CPUBackend) Upsample2D(input *tensor.RawTensor, scale int) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("upsample2d: input must be 4D [N,C,H,W], got %dD", len(shape)))
	}
	if scale <= 0 {
		panic(fmt.Sprintf("upsample2d: invalid scale factor %d", scale))
	}

	N, C, H, W := shape[0], shape[1], shape[2], shape[3]
	output, err := tensor.NewRaw(tensor.Shape{N, C, H * scale, W * scale}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("upsample2d: failed to create output tensor: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		upsampleNearest(output.AsFloat32(), input.AsFloat32(), N, C, H, W, scale, cpu.par)
	case tensor.Float64:
		upsampleNearest(output.AsFloat64(), input.AsFloat64(), N, C, H, W, scale, cpu.par)
	default:
		panic(fmt.Sprintf("upsample2d: unsupported dtype %s", input.DType()))
	}

	return output
}

func upsampleNearest[T float](dst, src []T, N, C, H, W, scale int, par parallel.Config) {
	HOut, WOut := H*scale, W*scale

	parallel.ForBatch(N, C, func(n, c int) {
		in := src[(n*C+c)*H*W : (n*C+c+1)*H*W]
		out := dst[(n*C+c)*HOut*WOut : (n*C+c+1)*HOut*WOut]
		for h := 0; h < HOut; h++ {
			srcRow := in[(h/scale)*W : (h/scale+1)*W]
			dstRow := out[h*WOut : (h+1)*WOut]
			for w := range dstRow {
				dstRow[w] = srcRow[w/scale]
			}
		}
	}, par)
}
