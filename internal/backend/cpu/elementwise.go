package cpu

import (
	"github.com/born-ml/hourglass/internal/tensor"
)

type float interface {
	~float32 | ~float64
}

type binaryOp int

const (
	opAdd binaryOp = iota
	opSub
	opMul
	opDiv
)

func opFunc[T float](op binaryOp) func(x, y T) T {
	switch op {
	case opAdd:
		return func(x, y T) T { return x + y }
	case opSub:
		return func(x, y T) T { return x - y }
	case opMul:
		return func(x, y T) T { return x * y }
	case opDiv:
		return func(x, y T) T { return x / y }
	default:
		panic("unknown binary op")
	}
}

// binaryKernel writes op(a, b) into dst. When the shapes are equal it walks
// the buffers directly; otherwise every output index is mapped back to its
// source elements through broadcast strides.
func binaryKernel[T float](dst, a, b []T, aShape, bShape, outShape tensor.Shape, broadcast bool, op binaryOp) {
	f := opFunc[T](op)

	if !broadcast {
		for i := range dst {
			dst[i] = f(a[i], b[i])
		}
		return
	}

	outStrides := outShape.ComputeStrides()
	aStrides := computeBroadcastStridesForShape(aShape, outShape)
	bStrides := computeBroadcastStridesForShape(bShape, outShape)

	for i := range dst {
		aIdx := computeFlatIndex(i, outStrides, aStrides)
		bIdx := computeFlatIndex(i, outStrides, bStrides)
		dst[i] = f(a[aIdx], b[bIdx])
	}
}

// computeBroadcastStridesForShape computes strides for broadcasting inShape to outShape.
// Dimensions of size 1 (and padded leading dimensions) get stride 0.
func computeBroadcastStridesForShape(inShape, outShape tensor.Shape) []int {
	outDim := len(outShape)
	strides := make([]int, outDim)

	inDim := len(inShape)
	offset := outDim - inDim
	origStrides := inShape.ComputeStrides()

	for i := 0; i < outDim; i++ {
		inIdx := i - offset
		switch {
		case inIdx < 0 || inIdx >= inDim:
			strides[i] = 0
		case inShape[inIdx] == 1:
			strides[i] = 0
		default:
			strides[i] = origStrides[inIdx]
		}
	}

	return strides
}

// computeFlatIndex maps a flat output index to the flat index of a
// broadcast input.
func computeFlatIndex(outIdx int, outStrides, inStrides []int) int {
	flatIdx := 0
	for i := range outStrides {
		coord := outIdx / outStrides[i]
		outIdx %= outStrides[i]
		flatIdx += coord * inStrides[i]
	}
	return flatIdx
}
