package tensor_test

import (
	"math"
	"testing"

	"github.com/born-ml/hourglass/internal/backend/cpu"
	"github.com/born-ml/hourglass/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSlice(t *testing.T) {
	backend := cpu.New()

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{1, 1, 2, 3}, backend)
	require.NoError(t, err)

	assert.Equal(t, tensor.Float32, x.DType())
	assert.Equal(t, 6, x.NumElements())
	assert.Equal(t, float32(6), x.At(0, 0, 1, 2))
	assert.Equal(t, "Tensor[float32][1 1 2 3] on CPU", x.String())

	_, err = tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{2, 2}, backend)
	assert.Error(t, err)
}

func TestTensor_SetAndBounds(t *testing.T) {
	backend := cpu.New()
	x := tensor.Zeros[float64](tensor.Shape{2, 2}, backend)

	x.Set(3.5, 1, 0)
	assert.Equal(t, []float64{0, 0, 3.5, 0}, x.Data())

	assert.Panics(t, func() { x.At(2, 0) })
	assert.Panics(t, func() { x.At(0) })
}

func TestTensor_CloneIsDeep(t *testing.T) {
	backend := cpu.New()
	x := tensor.Ones[float32](tensor.Shape{3}, backend)
	y := x.Clone()
	y.Set(7, 0)

	assert.Equal(t, []float32{1, 1, 1}, x.Data())
	assert.Equal(t, []float32{7, 1, 1}, y.Data())
}

func TestTensor_Creation(t *testing.T) {
	backend := cpu.New()

	full := tensor.Full[float32](tensor.Shape{2, 2}, 0.25, backend)
	assert.Equal(t, []float32{0.25, 0.25, 0.25, 0.25}, full.Data())

	u := tensor.Rand[float32](tensor.Shape{1000}, backend)
	for _, v := range u.Data() {
		require.GreaterOrEqual(t, v, float32(0))
		require.Less(t, v, float32(1))
	}

	n := tensor.Randn[float64](tensor.Shape{10001}, backend)
	var sum float64
	for _, v := range n.Data() {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		sum += v
	}
	assert.InDelta(t, 0, sum/10001, 0.1)
}

func TestTensor_Ops(t *testing.T) {
	backend := cpu.New()
	x, err := tensor.FromSlice([]float32{-1, 4, -9, 16}, tensor.Shape{1, 1, 2, 2}, backend)
	require.NoError(t, err)

	relu := x.ReLU()
	assert.Equal(t, []float32{0, 4, 0, 16}, relu.Data())
	assert.Equal(t, []float32{0, 2, 0, 4}, relu.Sqrt().Data())
	assert.Equal(t, []float32{-2, 8, -18, 32}, x.MulScalar(2).Data())
	assert.Equal(t, []float32{0, 5, -8, 17}, x.AddScalar(1).Data())
	assert.Equal(t, []float32{0, 0, 0, 0}, x.Sub(x).Data())
	assert.Equal(t, []float32{1, 1, 1, 1}, x.Div(x).Data())
	assert.Equal(t, []float32{1, 16, 81, 256}, x.Mul(x).Data())
	assert.Equal(t, tensor.Shape{4}, x.Reshape(4).Shape())

	mean := x.MeanDim(3, true).MeanDim(2, true)
	assert.Equal(t, tensor.Shape{1, 1, 1, 1}, mean.Shape())
	assert.Equal(t, float32(2.5), mean.Data()[0])

	up := x.Upsample2D(2)
	assert.Equal(t, tensor.Shape{1, 1, 4, 4}, up.Shape())

	kernel := tensor.Ones[float32](tensor.Shape{1, 1, 1, 1}, backend)
	assert.Equal(t, x.Data(), x.Conv2D(kernel, 1, 0).Data())
}
