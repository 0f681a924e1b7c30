package tensor

// Add performs element-wise addition with broadcasting.
//
//	a := tensor.Ones[float32](Shape{1, 64, 1, 1}, backend)
//	b := tensor.Ones[float32](Shape{2, 64, 8, 8}, backend)
//	c := a.Add(b) // Shape: [2, 64, 8, 8]
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[T, B]) Sub(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Mul(t.raw, other.raw), t.backend)
}

// Div performs element-wise division with broadcasting.
func (t *Tensor[T, B]) Div(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Div(t.raw, other.raw), t.backend)
}

// Reshape returns a tensor with the same data but different shape.
// The new shape must have the same number of elements.
func (t *Tensor[T, B]) Reshape(newShape ...int) *Tensor[T, B] {
	return New[T, B](t.backend.Reshape(t.raw, Shape(newShape)), t.backend)
}

// MulScalar multiplies every element by scalar.
func (t *Tensor[T, B]) MulScalar(scalar T) *Tensor[T, B] {
	return New[T, B](t.backend.MulScalar(t.raw, scalar), t.backend)
}

// AddScalar adds scalar to every element.
func (t *Tensor[T, B]) AddScalar(scalar T) *Tensor[T, B] {
	return New[T, B](t.backend.AddScalar(t.raw, scalar), t.backend)
}

// Sqrt computes the element-wise square root.
func (t *Tensor[T, B]) Sqrt() *Tensor[T, B] {
	return New[T, B](t.backend.Sqrt(t.raw), t.backend)
}

// ReLU clamps negative elements to zero.
func (t *Tensor[T, B]) ReLU() *Tensor[T, B] {
	return New[T, B](t.backend.ReLU(t.raw), t.backend)
}

// MeanDim averages along dim (negative values count from the end).
// With keepDim the reduced dimension is kept with size 1.
func (t *Tensor[T, B]) MeanDim(dim int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.MeanDim(t.raw, dim, keepDim), t.backend)
}

// Conv2D convolves the NCHW tensor with kernel [C_out, C_in, K_h, K_w].
func (t *Tensor[T, B]) Conv2D(kernel *Tensor[T, B], stride, padding int) *Tensor[T, B] {
	return New[T, B](t.backend.Conv2D(t.raw, kernel.raw, stride, padding), t.backend)
}

// Upsample2D repeats every pixel of the NCHW tensor into a scale×scale block.
func (t *Tensor[T, B]) Upsample2D(scale int) *Tensor[T, B] {
	return New[T, B](t.backend.Upsample2D(t.raw, scale), t.backend)
}
