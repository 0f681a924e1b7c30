package nn

import (
	"fmt"

	"github.com/born-ml/hourglass/internal/tensor"
)

// Default batch normalization hyperparameters (PyTorch's BatchNorm2d defaults).
const (
	DefaultBatchNormEpsilon  float32 = 1e-5
	DefaultBatchNormMomentum float32 = 0.1
)

// BatchNorm2D normalizes each channel of an NCHW tensor over the batch and
// spatial dimensions.
//
// Formula: Y = gamma * (X - mean) / sqrt(var + eps) + beta
//
// In training mode mean and (biased) variance come from the current batch,
// and the running estimates are updated with
//
//	running = (1 - momentum) * running + momentum * batch_stat
//
// where the variance fed into the running estimate is the unbiased one.
// In evaluation mode the running estimates are used instead.
//
// New layers start in training mode, gamma = 1, beta = 0, running mean 0
// and running variance 1.
type BatchNorm2D[B tensor.Backend] struct {
	numFeatures int
	epsilon     float32
	momentum    float32
	training    bool

	gamma *Parameter[B] // learnable scale [C]
	beta  *Parameter[B] // learnable shift [C]

	runningMean *tensor.Tensor[float32, B] // [C]
	runningVar  *tensor.Tensor[float32, B] // [C]
}

// NewBatchNorm2D creates a batch normalization layer over numFeatures
// channels with the default epsilon and momentum.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, backend B) *BatchNorm2D[B] {
	return NewBatchNorm2DWith(numFeatures, DefaultBatchNormEpsilon, DefaultBatchNormMomentum, backend)
}

// NewBatchNorm2DWith creates a batch normalization layer with explicit
// epsilon and momentum.
func NewBatchNorm2DWith[B tensor.Backend](numFeatures int, epsilon, momentum float32, backend B) *BatchNorm2D[B] {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid number of features %d", numFeatures))
	}
	if momentum < 0 || momentum > 1 {
		panic(fmt.Sprintf("batchnorm2d: momentum %v outside [0, 1]", momentum))
	}

	return &BatchNorm2D[B]{
		numFeatures: numFeatures,
		epsilon:     epsilon,
		momentum:    momentum,
		training:    true,
		gamma:       NewParameter("batchnorm2d.weight", Ones(tensor.Shape{numFeatures}, backend)),
		beta:        NewParameter("batchnorm2d.bias", Zeros(tensor.Shape{numFeatures}, backend)),
		runningMean: Zeros(tensor.Shape{numFeatures}, backend),
		runningVar:  Ones(tensor.Shape{numFeatures}, backend),
	}
}

// Forward normalizes x: [N, C, H, W] -> [N, C, H, W].
// Training mode needs more than one value per channel (N*H*W > 1).
func (bn *BatchNorm2D[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != bn.numFeatures {
		panic(fmt.Sprintf("batchnorm2d: input channels %d != expected %d", shape[1], bn.numFeatures))
	}

	C := bn.numFeatures
	var mean, variance, centered *tensor.Tensor[float32, B]

	if bn.training {
		if count := shape[0] * shape[2] * shape[3]; count < 2 {
			panic(fmt.Sprintf("batchnorm2d: expected more than 1 value per channel in training mode, got input %v", shape))
		}
		mean = channelMean(x) // [1, C, 1, 1]
		centered = x.Sub(mean)
		variance = channelMean(centered.Mul(centered))
		bn.updateRunningStats(mean, variance, shape[0]*shape[2]*shape[3])
	} else {
		mean = bn.runningMean.Reshape(1, C, 1, 1)
		variance = bn.runningVar.Reshape(1, C, 1, 1)
		centered = x.Sub(mean)
	}

	std := variance.AddScalar(bn.epsilon).Sqrt()
	normalized := centered.Div(std)

	gamma := bn.gamma.Tensor().Reshape(1, C, 1, 1)
	beta := bn.beta.Tensor().Reshape(1, C, 1, 1)
	return normalized.Mul(gamma).Add(beta)
}

// channelMean averages an NCHW tensor over N, H and W, keeping [1, C, 1, 1].
// Every reduced group has the same size, so the mean of means is the mean.
func channelMean[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return x.MeanDim(0, true).MeanDim(2, true).MeanDim(3, true)
}

func (bn *BatchNorm2D[B]) updateRunningStats(mean, variance *tensor.Tensor[float32, B], count int) {
	correction := float32(count) / float32(count-1)

	m := bn.momentum
	runMean := bn.runningMean.Data()
	runVar := bn.runningVar.Data()
	batchMean := mean.Data()
	batchVar := variance.Data()
	for c := range runMean {
		runMean[c] = (1-m)*runMean[c] + m*batchMean[c]
		runVar[c] = (1-m)*runVar[c] + m*batchVar[c]*correction
	}
}

// SetTraining switches between batch statistics (true) and running
// statistics (false).
func (bn *BatchNorm2D[B]) SetTraining(training bool) {
	bn.training = training
}

// Training reports whether the layer is in training mode.
func (bn *BatchNorm2D[B]) Training() bool {
	return bn.training
}

// Parameters returns [gamma, beta].
func (bn *BatchNorm2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.gamma, bn.beta}
}

// StateDict returns the affine parameters and the running statistics.
func (bn *BatchNorm2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight":       bn.gamma.Tensor().Raw(),
		"bias":         bn.beta.Tensor().Raw(),
		"running_mean": bn.runningMean.Raw(),
		"running_var":  bn.runningVar.Raw(),
	}
}

// RunningMean returns the running mean estimate [C].
func (bn *BatchNorm2D[B]) RunningMean() *tensor.Tensor[float32, B] {
	return bn.runningMean
}

// RunningVar returns the running variance estimate [C].
func (bn *BatchNorm2D[B]) RunningVar() *tensor.Tensor[float32, B] {
	return bn.runningVar
}

// NumFeatures returns the number of normalized channels.
func (bn *BatchNorm2D[B]) NumFeatures() int {
	return bn.numFeatures
}

// String returns a string representation of the layer.
func (bn *BatchNorm2D[B]) String() string {
	return fmt.Sprintf("BatchNorm2D(%d, eps=%g, momentum=%g)", bn.numFeatures, bn.epsilon, bn.momentum)
}
