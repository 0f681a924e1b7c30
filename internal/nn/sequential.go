package nn

import (
	"fmt"
	"strings"

	"github.com/born-ml/hourglass/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. The container owns
// its modules; the list is fixed once the network is built.
//
//	stack := nn.NewSequential[B](block1, block2)
//	output := stack.Forward(input) // block2.Forward(block1.Forward(input))
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{
		modules: modules,
	}
}

// Forward applies all modules in sequence.
// An empty Sequential is the identity.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns all trainable parameters from all modules, in order.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// StateDict returns the state of every module prefixed with its index
// ("0.weight", "1.running_mean", ...).
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, module := range s.modules {
		prefixStateDict(stateDict, module.StateDict(), fmt.Sprintf("%d", i))
	}
	return stateDict
}

// SetTraining propagates the mode to every contained module.
func (s *Sequential[B]) SetTraining(training bool) {
	for _, module := range s.modules {
		SetTraining(module, training)
	}
}

// Len returns the number of modules in the sequence.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic(fmt.Sprintf("Sequential.Module: index %d out of bounds [0, %d)", index, len(s.modules)))
	}
	return s.modules[index]
}

// String lists the contained modules, one per line.
func (s *Sequential[B]) String() string {
	var sb strings.Builder
	sb.WriteString("Sequential(")
	for i, module := range s.modules {
		fmt.Fprintf(&sb, "\n  (%d): %v", i, module)
	}
	if len(s.modules) > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(")")
	return sb.String()
}
