package hourglass

import (
	"testing"

	"github.com/born-ml/hourglass/internal/backend/cpu"
	"github.com/born-ml/hourglass/internal/nn"
	"github.com/born-ml/hourglass/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockOptions(t *testing.T) {
	opts := DefaultBlockOptions()
	assert.Equal(t, 1, opts.stride())
	assert.Equal(t, 1, opts.padding(3))
	assert.Equal(t, 3, opts.padding(7))

	var zero BlockOptions
	assert.Equal(t, 1, zero.stride())
	assert.Equal(t, 0, zero.padding(3))

	explicit := BlockOptions{Stride: 2, Padding: 2}
	assert.Equal(t, 2, explicit.padding(3))
	assert.Equal(t, 1, explicit.WithStride(1).stride())
	assert.Equal(t, 2, explicit.Stride)
}

func TestConvBlock(t *testing.T) {
	backend := cpu.New()
	block := NewConvBlock(3, 5, 3, 2, backend)

	out := block.Forward(tensor.Randn[float32](tensor.Shape{2, 3, 8, 8}, backend))

	assert.Equal(t, tensor.Shape{2, 5, 4, 4}, out.Shape())
	for _, v := range out.Data() {
		assert.GreaterOrEqual(t, v, float32(0))
	}
	assert.Equal(t, 5*3*9+5+2*5, nn.CountParameters[cpuBackend](block))
	assert.Equal(t, []string{
		"bn.bias", "bn.running_mean", "bn.running_var", "bn.weight",
		"conv.bias", "conv.weight",
	}, keys(block.StateDict()))

	block.SetTraining(false)
	assert.Contains(t, block.String(), "kernel_size=(3, 3), stride=2, padding=1, bias=true")
}

func TestResidual_IdentitySkip(t *testing.T) {
	backend := cpu.New()
	r := NewResidual(2, 2, 3, DefaultBlockOptions(), backend)
	require.True(t, r.Identity())
	assert.Equal(t, 2*(2*2*9+4), nn.CountParameters[cpuBackend](r))

	// Zero both convolutions: the main path collapses to BN(0) = 0 and the
	// block reduces to ReLU(x).
	sd := r.StateDict()
	clear(sd["conv1.weight"].AsFloat32())
	clear(sd["conv2.weight"].AsFloat32())

	x, err := tensor.FromSlice([]float32{
		-1, 2, 3, -4,
		5, -6, -7, 8,
	}, tensor.Shape{1, 2, 2, 2}, backend)
	require.NoError(t, err)

	out := r.Forward(x)

	assert.Equal(t, tensor.Shape{1, 2, 2, 2}, out.Shape())
	assert.Equal(t, []float32{0, 2, 3, 0, 5, 0, 0, 8}, out.Data())
}

func TestResidual_ProjectionSkip(t *testing.T) {
	backend := cpu.New()
	r := NewResidual(1, 2, 3, DefaultBlockOptions(), backend)
	require.False(t, r.Identity())

	sd := r.StateDict()
	assert.Equal(t, []string{
		"bn1.bias", "bn1.running_mean", "bn1.running_var", "bn1.weight",
		"bn2.bias", "bn2.running_mean", "bn2.running_var", "bn2.weight",
		"conv1.weight", "conv2.weight",
		"skip.0.weight",
		"skip.1.bias", "skip.1.running_mean", "skip.1.running_var", "skip.1.weight",
	}, keys(sd))

	clear(sd["conv1.weight"].AsFloat32())
	clear(sd["conv2.weight"].AsFloat32())
	copy(sd["skip.0.weight"].AsFloat32(), []float32{1, 2})

	// Channel 0 of the projection sees {1, 3}, channel 1 sees {2, 6};
	// batch norm maps both to {-1, 1} and ReLU keeps {0, 1}.
	x, err := tensor.FromSlice([]float32{1, 3}, tensor.Shape{1, 1, 1, 2}, backend)
	require.NoError(t, err)

	out := r.Forward(x).Data()

	require.Len(t, out, 4)
	assert.InDelta(t, 0, out[0], 1e-4)
	assert.InDelta(t, 1, out[1], 1e-4)
	assert.InDelta(t, 0, out[2], 1e-4)
	assert.InDelta(t, 1, out[3], 1e-4)
}

func TestResidual_OutputShapes(t *testing.T) {
	backend := cpu.New()

	tests := []struct {
		name     string
		in, out  int
		stride   int
		input    tensor.Shape
		want     tensor.Shape
		identity bool
	}{
		{"identity", 4, 4, 1, tensor.Shape{1, 4, 7, 7}, tensor.Shape{1, 4, 7, 7}, true},
		{"channel change", 4, 8, 1, tensor.Shape{1, 4, 7, 7}, tensor.Shape{1, 8, 7, 7}, false},
		{"downsample", 4, 4, 2, tensor.Shape{1, 4, 8, 8}, tensor.Shape{1, 4, 4, 4}, false},
		{"downsample odd", 4, 8, 2, tensor.Shape{2, 4, 7, 5}, tensor.Shape{2, 8, 4, 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResidual(tt.in, tt.out, 3, DefaultBlockOptions().WithStride(tt.stride), backend)
			assert.Equal(t, tt.identity, r.Identity())

			out := r.Forward(tensor.Randn[float32](tt.input, backend))

			assert.Equal(t, tt.want, out.Shape())
		})
	}
}

func TestResidual_SizeChangingPaddingPanics(t *testing.T) {
	backend := cpu.New()
	r := NewResidual(2, 2, 3, BlockOptions{Stride: 1, Padding: 2}, backend)
	require.True(t, r.Identity())

	assert.PanicsWithValue(t, "residual: main path [1 2 8 8] and skip [1 2 4 4] differ in shape", func() {
		r.Forward(tensor.Randn[float32](tensor.Shape{1, 2, 4, 4}, backend))
	})
}

func TestResidual_SetTraining(t *testing.T) {
	backend := cpu.New()
	r := NewResidual(2, 4, 3, DefaultBlockOptions(), backend)

	r.SetTraining(false)
	assert.False(t, r.bn1.Training())
	assert.False(t, r.bn2.Training())
	assert.False(t, r.skip.Module(1).(*nn.BatchNorm2D[cpuBackend]).Training())
}

func TestMakeLayer(t *testing.T) {
	backend := cpu.New()
	layer := MakeLayer(4, 8, 3, 3, DefaultBlockOptions().WithStride(2), backend)

	require.Equal(t, 3, layer.Len())
	first := layer.Module(0).(*Residual[cpuBackend])
	assert.Equal(t, 4, first.InChannels())
	assert.Equal(t, 8, first.OutChannels())
	assert.Equal(t, 2, first.Stride())
	for i := 1; i < 3; i++ {
		r := layer.Module(i).(*Residual[cpuBackend])
		assert.Equal(t, 8, r.InChannels())
		assert.Equal(t, 8, r.OutChannels())
		assert.Equal(t, 1, r.Stride())
		assert.True(t, r.Identity())
	}

	out := layer.Forward(tensor.Randn[float32](tensor.Shape{1, 4, 8, 8}, backend))
	assert.Equal(t, tensor.Shape{1, 8, 4, 4}, out.Shape())
}

func TestMakeHGLayer(t *testing.T) {
	backend := cpu.New()
	// The stride in opts is ignored: the first block always downsamples.
	layer := MakeHGLayer(4, 8, 3, 2, DefaultBlockOptions(), backend)

	require.Equal(t, 2, layer.Len())
	first := layer.Module(0).(*Residual[cpuBackend])
	assert.Equal(t, 2, first.Stride())
	assert.Equal(t, 8, first.OutChannels())
	second := layer.Module(1).(*Residual[cpuBackend])
	assert.Equal(t, 1, second.Stride())
	assert.True(t, second.Identity())

	out := layer.Forward(tensor.Randn[float32](tensor.Shape{1, 4, 8, 8}, backend))
	assert.Equal(t, tensor.Shape{1, 8, 4, 4}, out.Shape())
}

func TestMakeLayerRevr(t *testing.T) {
	backend := cpu.New()
	layer := MakeLayerRevr(8, 4, 3, 3, DefaultBlockOptions().WithStride(2), backend)

	require.Equal(t, 3, layer.Len())
	for i := 0; i < 2; i++ {
		r := layer.Module(i).(*Residual[cpuBackend])
		assert.Equal(t, 8, r.InChannels())
		assert.Equal(t, 8, r.OutChannels())
		assert.True(t, r.Identity())
	}
	last := layer.Module(2).(*Residual[cpuBackend])
	assert.Equal(t, 8, last.InChannels())
	assert.Equal(t, 4, last.OutChannels())
	assert.Equal(t, 1, last.Stride())

	out := layer.Forward(tensor.Randn[float32](tensor.Shape{1, 8, 4, 4}, backend))
	assert.Equal(t, tensor.Shape{1, 4, 4, 4}, out.Shape())
}

func TestLayerBuilders_ZeroModulesPanics(t *testing.T) {
	backend := cpu.New()
	opts := DefaultBlockOptions()

	assert.PanicsWithValue(t, "MakeLayer: modules must be >= 1, got 0", func() {
		MakeLayer(4, 4, 3, 0, opts, backend)
	})
	assert.PanicsWithValue(t, "MakeHGLayer: modules must be >= 1, got 0", func() {
		MakeHGLayer(4, 4, 3, 0, opts, backend)
	})
	assert.PanicsWithValue(t, "MakeLayerRevr: modules must be >= 1, got -2", func() {
		MakeLayerRevr(4, 4, 3, -2, opts, backend)
	})
}

func TestLayerBuilders_SingleModule(t *testing.T) {
	backend := cpu.New()
	opts := DefaultBlockOptions()

	revr := MakeLayerRevr(8, 4, 3, 1, opts, backend)
	require.Equal(t, 1, revr.Len())
	assert.Equal(t, 4, revr.Module(0).(*Residual[cpuBackend]).OutChannels())

	layer := MakeLayer(4, 4, 3, 1, opts, backend)
	require.Equal(t, 1, layer.Len())
	assert.True(t, layer.Module(0).(*Residual[cpuBackend]).Identity())
}
