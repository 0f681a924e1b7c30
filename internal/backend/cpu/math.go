package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/hourglass/internal/tensor"
)

// Sqrt computes element-wise square root: sqrt(x).
// Panics on negative input.
func (cpu *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("sqrt: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		sqrtKernel(result.AsFloat32(), x.AsFloat32())
	case tensor.Float64:
		sqrtKernel(result.AsFloat64(), x.AsFloat64())
	default:
		panic(fmt.Sprintf("sqrt: unsupported dtype %s (only float32/float64 supported)", x.DType()))
	}

	return result
}

func sqrtKernel[T float](dst, src []T) {
	for i, v := range src {
		if v < 0 {
			panic(fmt.Sprintf("sqrt: negative value at index %d: %f", i, float64(v)))
		}
		dst[i] = T(math.Sqrt(float64(v)))
	}
}

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("relu: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		reluKernel(result.AsFloat32(), x.AsFloat32())
	case tensor.Float64:
		reluKernel(result.AsFloat64(), x.AsFloat64())
	default:
		panic(fmt.Sprintf("relu: unsupported dtype %s (only float32/float64 supported)", x.DType()))
	}

	return result
}

func reluKernel[T float](dst, src []T) {
	for i, v := range src {
		if v > 0 {
			dst[i] = v
		} else {
			dst[i] = 0
		}
	}
}
