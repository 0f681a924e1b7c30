// Package config loads the YAML description of an hourglass network.
//
// Example file:
//
//	depth: 2
//	channels: [64, 128, 256]
//	modules: [2, 2, 2]
//	kernel_size: 3
//	padding: -1
//	training: false
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/hourglass/internal/hourglass"
)

// Network holds the hyperparameters of one hourglass module.
type Network struct {
	Depth      int   `yaml:"depth"`
	Channels   []int `yaml:"channels"`
	Modules    []int `yaml:"modules"`
	KernelSize int   `yaml:"kernel_size"`
	// Padding of the residual convolutions; -1 derives (kernel_size-1)/2,
	// any other value must equal it.
	Padding  int  `yaml:"padding"`
	Training bool `yaml:"training"`
}

// Default returns the depth-2 network used throughout the tests.
func Default() Network {
	return Network{
		Depth:      2,
		Channels:   []int{64, 128, 256},
		Modules:    []int{2, 2, 2},
		KernelSize: hourglass.DefaultKernelSize,
		Padding:    hourglass.DerivePadding,
	}
}

// Load reads and validates the network description at path.
func Load(path string) (Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Network{}, errors.Wrapf(err, "failed to read network config %q", path)
	}
	n, err := Parse(data)
	if err != nil {
		return Network{}, errors.WithMessagef(err, "network config %q", path)
	}
	return n, nil
}

// Parse decodes a YAML network description on top of Default and
// validates the result. Unknown keys are rejected; an empty document
// yields the defaults.
func Parse(data []byte) (Network, error) {
	n := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&n); err != nil && !errors.Is(err, io.EOF) {
		return Network{}, errors.Wrap(err, "failed to decode network config")
	}
	if err := n.Validate(); err != nil {
		return Network{}, err
	}
	return n, nil
}

// Validate checks the same preconditions hourglass.New panics on, and
// additionally requires an odd kernel with a padding that keeps the
// spatial size, so that Forward cannot fail on a valid input.
func (n Network) Validate() error {
	if n.Depth < 1 {
		return errors.Errorf("depth must be >= 1, got %d", n.Depth)
	}
	if len(n.Channels) < n.Depth+1 {
		return errors.Errorf("depth %d needs at least %d channel counts, got %d", n.Depth, n.Depth+1, len(n.Channels))
	}
	if len(n.Modules) < n.Depth+1 {
		return errors.Errorf("depth %d needs at least %d module counts, got %d", n.Depth, n.Depth+1, len(n.Modules))
	}
	for i, c := range n.Channels {
		if c <= 0 {
			return errors.Errorf("channels[%d] must be positive, got %d", i, c)
		}
	}
	for i, m := range n.Modules {
		if m <= 0 {
			return errors.Errorf("modules[%d] must be positive, got %d", i, m)
		}
	}
	if n.KernelSize <= 0 {
		return errors.Errorf("kernel_size must be positive, got %d", n.KernelSize)
	}
	if n.KernelSize%2 == 0 {
		return errors.Errorf("kernel_size must be odd, got %d", n.KernelSize)
	}
	// up1 + up2 and every identity skip need size-preserving convolutions.
	if same := (n.KernelSize - 1) / 2; n.Padding != hourglass.DerivePadding && n.Padding != same {
		return errors.Errorf("padding must be -1 (derive) or %d for kernel_size %d, got %d", same, n.KernelSize, n.Padding)
	}
	return nil
}

// BlockOptions returns the residual block options for the network.
func (n Network) BlockOptions() hourglass.BlockOptions {
	return hourglass.BlockOptions{Stride: 1, Padding: n.Padding}
}

// Marshal encodes the network description as YAML.
func (n Network) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(n)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode network config")
	}
	return data, nil
}
