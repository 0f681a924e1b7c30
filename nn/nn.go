// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the neural network layers the hourglass is built from.
//
// # Overview
//
// This package contains:
//   - Layers: Conv2D, BatchNorm2D, Upsample
//   - Activations: ReLU
//   - Utilities: Sequential, Module interface, Parameter
//   - Initialization: Xavier, Zeros, Ones
//
// # Basic Usage
//
//	backend := cpu.New()
//	block := nn.NewSequential[*cpu.Backend](
//	    nn.NewConv2D(3, 64, 3, 3, 1, 1, false, backend),
//	    nn.NewBatchNorm2D(64, backend),
//	    nn.NewReLU[*cpu.Backend](),
//	)
//	out := block.Forward(input)
//
// # Training and evaluation
//
// BatchNorm2D normalizes with batch statistics in training mode (the
// default) and with its running estimates in evaluation mode. Use
// SetTraining to switch a module and everything it contains.
package nn

import (
	"github.com/born-ml/hourglass/internal/nn"
	"github.com/born-ml/hourglass/internal/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// TrainingModeSetter is implemented by modules with mode-dependent behavior.
type TrainingModeSetter = nn.TrainingModeSetter

// Parameter represents a trainable parameter in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// Layers

// Conv2D represents a 2D convolutional layer.
type Conv2D[B tensor.Backend] = nn.Conv2D[B]

// NewConv2D creates a new 2D convolutional layer.
//
// Example:
//
//	backend := cpu.New()
//	conv := nn.NewConv2D(1, 32, 3, 3, 1, 1, true, backend)  // in_channels=1, out_channels=32, kernel=3x3, stride=1, padding=1, useBias=true
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding int,
	useBias bool,
	backend B,
) *Conv2D[B] {
	return nn.NewConv2D(inChannels, outChannels, kernelH, kernelW, stride, padding, useBias, backend)
}

// BatchNorm2D represents per-channel batch normalization of NCHW tensors.
type BatchNorm2D[B tensor.Backend] = nn.BatchNorm2D[B]

// NewBatchNorm2D creates a batch normalization layer with eps 1e-5 and momentum 0.1.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, backend B) *BatchNorm2D[B] {
	return nn.NewBatchNorm2D(numFeatures, backend)
}

// Upsample represents nearest-neighbour spatial upsampling.
type Upsample[B tensor.Backend] = nn.Upsample[B]

// NewUpsample creates an upsampling layer with an integer scale factor.
func NewUpsample[B tensor.Backend](scale int) *Upsample[B] {
	return nn.NewUpsample[B](scale)
}

// Activations

// ReLU represents the Rectified Linear Unit activation function.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a new ReLU activation layer.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// Containers

// Sequential chains modules, feeding each output into the next module.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// Utilities

// SetTraining switches m and its children between training and evaluation.
func SetTraining[B tensor.Backend](m Module[B], training bool) {
	nn.SetTraining(m, training)
}

// CountParameters returns the number of scalar weights in m.
func CountParameters[B tensor.Backend](m Module[B]) int {
	return nn.CountParameters(m)
}

// Xavier creates a tensor initialized with Glorot uniform values.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Xavier(fanIn, fanOut, shape, backend)
}

// Zeros creates a float32 tensor filled with zeros.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Zeros(shape, backend)
}

// Ones creates a float32 tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Ones(shape, backend)
}
