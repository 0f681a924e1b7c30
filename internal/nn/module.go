// Package nn implements the neural network modules the hourglass network is built from.
//
// This package provides:
//   - Module interface: base interface for all NN components
//   - Parameter: named trainable tensors
//   - Layers: Conv2D, BatchNorm2D, ReLU, Upsample
//   - Sequential: ordered container of owned sub-modules
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
package nn

import (
	"github.com/born-ml/hourglass/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential[B](
//	    nn.NewConv2D(64, 64, 3, 3, 1, 1, false, backend),
//	    nn.NewBatchNorm2D(64, backend),
//	    nn.NewReLU[B](),
//	)
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module,
	// including those of nested modules. Modules without parameters
	// (activations, upsampling) return nil.
	Parameters() []*Parameter[B]

	// StateDict returns every parameter and buffer keyed by its dotted
	// path inside the module (for example "0.conv1.weight").
	StateDict() map[string]*tensor.RawTensor
}

// TrainingModeSetter is implemented by modules whose forward pass differs
// between training and evaluation (batch normalization) and by containers
// that hold such modules.
type TrainingModeSetter interface {
	SetTraining(training bool)
}

// SetTraining switches m (and everything it contains) to training or
// evaluation mode. Modules without mode-dependent behavior are left alone.
func SetTraining[B tensor.Backend](m Module[B], training bool) {
	if s, ok := m.(TrainingModeSetter); ok {
		s.SetTraining(training)
	}
}

// CountParameters returns the number of scalar weights in m.
func CountParameters[B tensor.Backend](m Module[B]) int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}

// prefixStateDict copies src into dst with every key prefixed by "prefix.".
func prefixStateDict(dst, src map[string]*tensor.RawTensor, prefix string) {
	for name, raw := range src {
		dst[prefix+"."+name] = raw
	}
}

// MergeStateDict returns the union of the children's state dicts, each
// prefixed with its child's name. Used by composite modules.
func MergeStateDict(children map[string]map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	for prefix, sd := range children {
		prefixStateDict(out, sd, prefix)
	}
	return out
}
