package hourglass

// DerivePadding asks a block to use (kernel-1)/2 padding, which keeps the
// spatial size unchanged at stride 1 for odd kernels.
const DerivePadding = -1

// DefaultKernelSize is the convolution kernel used by New.
const DefaultKernelSize = 3

// BlockOptions are the options forwarded from a layer builder to each
// residual block it creates.
//
// A zero Stride means 1. Padding is used as given unless it is
// DerivePadding; note that the zero value therefore means "no padding".
type BlockOptions struct {
	// Stride of the first convolution and of the projection skip.
	Stride int
	// Padding of both 3x3 (or kernel x kernel) convolutions.
	Padding int
}

// DefaultBlockOptions returns stride 1 with derived padding.
func DefaultBlockOptions() BlockOptions {
	return BlockOptions{Stride: 1, Padding: DerivePadding}
}

// WithStride returns a copy of o using the given stride.
func (o BlockOptions) WithStride(stride int) BlockOptions {
	o.Stride = stride
	return o
}

func (o BlockOptions) stride() int {
	if o.Stride == 0 {
		return 1
	}
	return o.Stride
}

func (o BlockOptions) padding(kernel int) int {
	if o.Padding == DerivePadding {
		return (kernel - 1) / 2
	}
	return o.Padding
}
