package cpu

import (
	"fmt"

	"github.com/born-ml/hourglass/internal/tensor"
)

// MulScalar multiplies each element of the tensor by a scalar value.
// The scalar must have the tensor's element type.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalar("mulScalar", opMul, x, scalar)
}

// AddScalar adds a scalar value to each element of the tensor.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalar("addScalar", opAdd, x, scalar)
}

func (cpu *CPUBackend) scalar(name string, op binaryOp, x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}

	switch x.DType() {
	case tensor.Float32:
		s, ok := scalar.(float32)
		if !ok {
			panic(fmt.Sprintf("%s: scalar %T does not match dtype float32", name, scalar))
		}
		scalarKernel(result.AsFloat32(), x.AsFloat32(), s, op)
	case tensor.Float64:
		s, ok := scalar.(float64)
		if !ok {
			panic(fmt.Sprintf("%s: scalar %T does not match dtype float64", name, scalar))
		}
		scalarKernel(result.AsFloat64(), x.AsFloat64(), s, op)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %v", name, x.DType()))
	}

	return result
}

func scalarKernel[T float](dst, src []T, s T, op binaryOp) {
	f := opFunc[T](op)
	for i, v := range src {
		dst[i] = f(v, s)
	}
}
