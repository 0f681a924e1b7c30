package cpu

import (
	"fmt"

	"github.com/born-ml/hourglass/internal/tensor"
)

// MeanDim computes the mean of tensor elements along the specified dimension.
//
// Parameters:
//   - dim: dimension to reduce (supports negative indexing: -1 = last dim)
//   - keepDim: if true, keep the reduced dimension with size 1; if false, remove it
//
// Example:
//
//	x := tensor.Randn[float32](tensor.Shape{2, 3, 4, 4}, backend)
//	y := backend.MeanDim(x.Raw(), 1, true)   // shape: [2, 1, 4, 4]
//	z := backend.MeanDim(x.Raw(), 1, false)  // shape: [2, 4, 4]
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)

	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("meandim: dimension %d out of range for %dD tensor", dim, ndim))
	}

	var outShape tensor.Shape
	if keepDim {
		outShape = shape.Clone()
		outShape[dim] = 1
	} else {
		outShape = make(tensor.Shape, 0, ndim-1)
		for i := 0; i < ndim; i++ {
			if i != dim {
				outShape = append(outShape, shape[i])
			}
		}
	}

	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("meandim: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		meanDimKernel(x.AsFloat32(), result.AsFloat32(), shape, dim)
	case tensor.Float64:
		meanDimKernel(x.AsFloat64(), result.AsFloat64(), shape, dim)
	default:
		panic(fmt.Sprintf("meandim: unsupported dtype %s (only float32/float64 supported)", x.DType()))
	}

	return result
}

// meanDimKernel views the input as [outer, size, inner] around dim and
// averages the middle axis. The result layout is identical with or without
// keepDim, so one kernel serves both.
func meanDimKernel[T float](data, result []T, shape tensor.Shape, dim int) {
	size := shape[dim]
	inner := 1
	for _, d := range shape[dim+1:] {
		inner *= d
	}
	outer := 1
	for _, d := range shape[:dim] {
		outer *= d
	}

	for o := 0; o < outer; o++ {
		base := o * size * inner
		for i := 0; i < inner; i++ {
			var sum float64
			for k := 0; k < size; k++ {
				sum += float64(data[base+k*inner+i])
			}
			result[o*inner+i] = T(sum / float64(size))
		}
	}
}
