package nn

import (
	"math"
	"sort"
	"testing"

	"github.com/born-ml/hourglass/internal/backend/cpu"
	"github.com/born-ml/hourglass/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cpuBackend = *cpu.CPUBackend

func fromSlice(t *testing.T, data []float32, shape tensor.Shape, backend cpuBackend) *tensor.Tensor[float32, cpuBackend] {
	t.Helper()
	x, err := tensor.FromSlice(data, shape, backend)
	require.NoError(t, err)
	return x
}

func sortedKeys(sd map[string]*tensor.RawTensor) []string {
	keys := make([]string, 0, len(sd))
	for k := range sd {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TestConv2D_Creation tests Conv2D layer creation.
func TestConv2D_Creation(t *testing.T) {
	backend := cpu.New()

	conv := NewConv2D(3, 4, 3, 3, 1, 1, true, backend)

	assert.Equal(t, 3, conv.InChannels())
	assert.Equal(t, 4, conv.OutChannels())
	assert.Equal(t, 1, conv.Stride())
	assert.Equal(t, 1, conv.Padding())
	assert.True(t, conv.Weight().Tensor().Shape().Equal(tensor.Shape{4, 3, 3, 3}))
	require.NotNil(t, conv.Bias())
	assert.True(t, conv.Bias().Tensor().Shape().Equal(tensor.Shape{4}))
	assert.Len(t, conv.Parameters(), 2)
	assert.Equal(t, 4*3*3*3+4, CountParameters[cpuBackend](conv))
	assert.Equal(t, []string{"bias", "weight"}, sortedKeys(conv.StateDict()))

	noBias := NewConv2D(3, 4, 1, 1, 2, 0, false, backend)
	assert.Nil(t, noBias.Bias())
	assert.Len(t, noBias.Parameters(), 1)
	assert.Equal(t, []string{"weight"}, sortedKeys(noBias.StateDict()))
}

// TestConv2D_XavierBounds checks that initial weights stay inside the Glorot bound.
func TestConv2D_XavierBounds(t *testing.T) {
	backend := cpu.New()
	conv := NewConv2D(8, 16, 3, 3, 1, 1, false, backend)

	bound := float32(math.Sqrt(6.0 / float64(8*9+16*9)))
	for _, w := range conv.Weight().Tensor().Data() {
		assert.LessOrEqual(t, w, bound)
		assert.GreaterOrEqual(t, w, -bound)
	}
}

// TestConv2D_ForwardValues tests forward pass with known values.
func TestConv2D_ForwardValues(t *testing.T) {
	backend := cpu.New()

	conv := NewConv2D(1, 1, 2, 2, 1, 0, true, backend)
	copy(conv.Weight().Tensor().Data(), []float32{1, 2, 3, 4})
	conv.Bias().Tensor().Data()[0] = 0.5

	input := fromSlice(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, tensor.Shape{1, 1, 3, 3}, backend)
	output := conv.Forward(input)

	require.True(t, output.Shape().Equal(tensor.Shape{1, 1, 2, 2}))
	assert.Equal(t, []float32{37.5, 47.5, 67.5, 77.5}, output.Data())
}

// TestConv2D_ForwardShape checks the output size formula for stride and padding.
func TestConv2D_ForwardShape(t *testing.T) {
	backend := cpu.New()

	tests := []struct {
		name      string
		kernel    int
		stride    int
		padding   int
		inputSize int
		want      tensor.Shape
	}{
		{"same 3x3", 3, 1, 1, 8, tensor.Shape{2, 4, 8, 8}},
		{"strided 3x3", 3, 2, 1, 8, tensor.Shape{2, 4, 4, 4}},
		{"strided 3x3 odd", 3, 2, 1, 7, tensor.Shape{2, 4, 4, 4}},
		{"projection 1x1", 1, 2, 0, 7, tensor.Shape{2, 4, 4, 4}},
		{"valid 3x3", 3, 1, 0, 8, tensor.Shape{2, 4, 6, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := NewConv2D(3, 4, tt.kernel, tt.kernel, tt.stride, tt.padding, true, backend)
			input := tensor.Zeros[float32](tensor.Shape{2, 3, tt.inputSize, tt.inputSize}, backend)

			output := conv.Forward(input)

			assert.Equal(t, tt.want, output.Shape())
			assert.Equal(t, [2]int{tt.want[2], tt.want[3]}, conv.ComputeOutputSize(tt.inputSize, tt.inputSize))
		})
	}
}

// TestConv2D_InvalidArguments tests constructor and forward preconditions.
func TestConv2D_InvalidArguments(t *testing.T) {
	backend := cpu.New()

	assert.Panics(t, func() { NewConv2D(0, 4, 3, 3, 1, 1, true, backend) })
	assert.Panics(t, func() { NewConv2D(3, 4, 0, 3, 1, 1, true, backend) })
	assert.Panics(t, func() { NewConv2D(3, 4, 3, 3, 0, 1, true, backend) })
	assert.Panics(t, func() { NewConv2D(3, 4, 3, 3, 1, -1, true, backend) })

	conv := NewConv2D(3, 4, 3, 3, 1, 1, true, backend)
	assert.PanicsWithValue(t, "conv2d: input channels 2 != expected 3", func() {
		conv.Forward(tensor.Zeros[float32](tensor.Shape{1, 2, 4, 4}, backend))
	})
	assert.PanicsWithValue(t, "conv2d: expected 4D input [N,C,H,W], got 2D", func() {
		conv.Forward(tensor.Zeros[float32](tensor.Shape{3, 4}, backend))
	})
}

// TestBatchNorm2D_Creation checks initial parameters and buffers.
func TestBatchNorm2D_Creation(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(3, backend)

	assert.True(t, bn.Training())
	assert.Equal(t, 3, bn.NumFeatures())
	assert.Equal(t, []float32{1, 1, 1}, bn.Parameters()[0].Tensor().Data())
	assert.Equal(t, []float32{0, 0, 0}, bn.Parameters()[1].Tensor().Data())
	assert.Equal(t, []float32{0, 0, 0}, bn.RunningMean().Data())
	assert.Equal(t, []float32{1, 1, 1}, bn.RunningVar().Data())
	assert.Equal(t, 6, CountParameters[cpuBackend](bn))
	assert.Equal(t, []string{"bias", "running_mean", "running_var", "weight"}, sortedKeys(bn.StateDict()))

	assert.Panics(t, func() { NewBatchNorm2D(0, backend) })
	assert.Panics(t, func() { NewBatchNorm2DWith(3, 1e-5, 1.5, backend) })
}

// TestBatchNorm2D_TrainingUsesBatchStatistics tests per-channel normalization
// over N, H and W.
func TestBatchNorm2D_TrainingUsesBatchStatistics(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(2, backend)

	// [2, 2, 1, 1]: channel 0 sees {1, 3}, channel 1 sees {10, 20}.
	input := fromSlice(t, []float32{1, 10, 3, 20}, tensor.Shape{2, 2, 1, 1}, backend)
	output := bn.Forward(input)

	require.True(t, output.Shape().Equal(input.Shape()))
	out := output.Data()
	assert.InDelta(t, -1.0, out[0], 1e-4)
	assert.InDelta(t, -1.0, out[1], 1e-4)
	assert.InDelta(t, 1.0, out[2], 1e-4)
	assert.InDelta(t, 1.0, out[3], 1e-4)

	// Input is not modified.
	assert.Equal(t, []float32{1, 10, 3, 20}, input.Data())
}

// TestBatchNorm2D_RunningStatistics tests the momentum update and evaluation mode.
func TestBatchNorm2D_RunningStatistics(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(1, backend)

	// mean = 2.5, biased var = 1.25, unbiased var = 5/3.
	input := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 1, 1, 2}, backend)
	train := bn.Forward(input).Data()

	std := math.Sqrt(1.25 + 1e-5)
	assert.InDelta(t, (1-2.5)/std, train[0], 1e-5)
	assert.InDelta(t, (4-2.5)/std, train[3], 1e-5)

	assert.InDelta(t, 0.25, bn.RunningMean().Data()[0], 1e-6)
	assert.InDelta(t, 0.9+0.1*5.0/3.0, bn.RunningVar().Data()[0], 1e-6)

	bn.SetTraining(false)
	assert.False(t, bn.Training())

	eval := bn.Forward(input).Data()
	evalStd := math.Sqrt(0.9 + 0.1*5.0/3.0 + 1e-5)
	for i, x := range []float64{1, 2, 3, 4} {
		assert.InDelta(t, (x-0.25)/evalStd, eval[i], 1e-5)
	}

	// Evaluation leaves the running estimates alone.
	assert.InDelta(t, 0.25, bn.RunningMean().Data()[0], 1e-6)
}

// TestBatchNorm2D_Affine tests that gamma and beta are applied per channel.
func TestBatchNorm2D_Affine(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(2, backend)
	copy(bn.Parameters()[0].Tensor().Data(), []float32{2, 3})
	copy(bn.Parameters()[1].Tensor().Data(), []float32{0.5, -1})
	bn.SetTraining(false)

	// Running mean 0, running var 1: output is gamma * x / sqrt(1 + eps) + beta.
	input := fromSlice(t, []float32{1, 1, 2, 2}, tensor.Shape{1, 2, 1, 2}, backend)
	out := bn.Forward(input).Data()

	scale := 1 / math.Sqrt(1+1e-5)
	assert.InDelta(t, 2*scale+0.5, out[0], 1e-5)
	assert.InDelta(t, 2*scale+0.5, out[1], 1e-5)
	assert.InDelta(t, 6*scale-1, out[2], 1e-5)
	assert.InDelta(t, 6*scale-1, out[3], 1e-5)
}

func TestBatchNorm2D_SingleValuePerChannel(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(2, backend)
	input := fromSlice(t, []float32{1, 2}, tensor.Shape{1, 2, 1, 1}, backend)

	assert.PanicsWithValue(t, "batchnorm2d: expected more than 1 value per channel in training mode, got input [1 2 1 1]", func() {
		bn.Forward(input)
	})
	assert.Equal(t, []float32{1, 1}, bn.RunningVar().Data())

	bn.SetTraining(false)
	assert.NotPanics(t, func() { bn.Forward(input) })
}

func TestBatchNorm2D_WrongChannels(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(4, backend)

	assert.PanicsWithValue(t, "batchnorm2d: input channels 3 != expected 4", func() {
		bn.Forward(tensor.Zeros[float32](tensor.Shape{1, 3, 2, 2}, backend))
	})
}

func TestReLU(t *testing.T) {
	backend := cpu.New()
	relu := NewReLU[cpuBackend]()

	input := fromSlice(t, []float32{-1, 0, 2, -0.5}, tensor.Shape{1, 1, 2, 2}, backend)
	output := relu.Forward(input)

	assert.Equal(t, []float32{0, 0, 2, 0}, output.Data())
	assert.Nil(t, relu.Parameters())
	assert.Empty(t, relu.StateDict())
	assert.Equal(t, "ReLU()", relu.String())
}

func TestUpsample(t *testing.T) {
	backend := cpu.New()
	up := NewUpsample[cpuBackend](2)

	input := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2}, backend)
	output := up.Forward(input)

	require.True(t, output.Shape().Equal(tensor.Shape{1, 1, 4, 4}))
	assert.Equal(t, []float32{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, output.Data())
	assert.Equal(t, 2, up.Scale())
	assert.Nil(t, up.Parameters())

	assert.Panics(t, func() { NewUpsample[cpuBackend](0) })
}

// TestSequential_Forward tests that modules are applied in order.
func TestSequential_Forward(t *testing.T) {
	backend := cpu.New()

	conv := NewConv2D(1, 1, 1, 1, 1, 0, true, backend)
	conv.Weight().Tensor().Data()[0] = -1
	seq := NewSequential[cpuBackend](conv, NewReLU[cpuBackend]())

	input := fromSlice(t, []float32{-2, 3}, tensor.Shape{1, 1, 1, 2}, backend)
	output := seq.Forward(input)

	// conv negates, then ReLU clamps.
	assert.Equal(t, []float32{2, 0}, output.Data())
	assert.Equal(t, 2, seq.Len())
	assert.Same(t, conv, seq.Module(0))
	assert.Panics(t, func() { seq.Module(2) })

	empty := NewSequential[cpuBackend]()
	assert.Same(t, input, empty.Forward(input))
}

// TestSequential_StateDictAndTraining tests index prefixes and mode propagation.
func TestSequential_StateDictAndTraining(t *testing.T) {
	backend := cpu.New()

	bn := NewBatchNorm2D(2, backend)
	seq := NewSequential[cpuBackend](
		NewConv2D(1, 2, 3, 3, 1, 1, true, backend),
		bn,
		NewReLU[cpuBackend](),
	)

	assert.Equal(t, []string{
		"0.bias", "0.weight",
		"1.bias", "1.running_mean", "1.running_var", "1.weight",
	}, sortedKeys(seq.StateDict()))
	assert.Len(t, seq.Parameters(), 4)

	SetTraining[cpuBackend](seq, false)
	assert.False(t, bn.Training())
	SetTraining[cpuBackend](seq, true)
	assert.True(t, bn.Training())
}

func TestMergeStateDict(t *testing.T) {
	backend := cpu.New()
	a := NewConv2D(1, 1, 1, 1, 1, 0, false, backend)
	b := NewBatchNorm2D(1, backend)

	merged := MergeStateDict(map[string]map[string]*tensor.RawTensor{
		"conv": a.StateDict(),
		"bn":   b.StateDict(),
	})

	assert.Equal(t, []string{
		"bn.bias", "bn.running_mean", "bn.running_var", "bn.weight",
		"conv.weight",
	}, sortedKeys(merged))
	assert.Same(t, a.Weight().Tensor().Raw(), merged["conv.weight"])
}
