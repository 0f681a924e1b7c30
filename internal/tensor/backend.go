package tensor

// Backend defines the interface that compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// The operation set is the one a convolutional encoder-decoder needs:
// element-wise arithmetic, convolution, nearest-neighbour upsampling,
// the rectifier and the reductions used by batch normalization.
//
// Backends must not modify their input tensors.
type Backend interface {
	// Element-wise binary operations with NumPy-style broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Conv2D convolves an NCHW input with a [C_out, C_in, K_h, K_w] kernel.
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor

	// Upsample2D repeats every pixel of an NCHW input scale×scale times.
	Upsample2D(input *RawTensor, scale int) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor

	// Scalar operations (element-wise with scalar)
	MulScalar(x *RawTensor, scalar any) *RawTensor
	AddScalar(x *RawTensor, scalar any) *RawTensor

	// Math operations (element-wise)
	Sqrt(x *RawTensor) *RawTensor
	ReLU(x *RawTensor) *RawTensor

	// Reductions
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
