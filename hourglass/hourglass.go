// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package hourglass provides the recursive hourglass module of
// stacked-hourglass keypoint networks and its building blocks.
//
// # Basic Usage
//
//	backend := cpu.New()
//	net := hourglass.New(2, []int{64, 128, 256}, []int{2, 2, 2}, hourglass.DefaultBlockOptions(), backend)
//
//	x := tensor.Randn[float32](tensor.Shape{1, 64, 64, 64}, backend)
//	y := net.Forward(x) // [1, 64, 64, 64]
//
// A depth-n module needs at least n+1 channel and module counts and an
// input whose height and width are divisible by 2^n.
//
// # Building blocks
//
//   - ConvBlock: conv + batch norm + ReLU
//   - Residual: two-conv residual unit with identity or projection skip
//   - MakeLayer, MakeHGLayer, MakeLayerRevr: residual stacks for the
//     same-resolution, downsampling and decoder branches
package hourglass

import (
	"github.com/born-ml/hourglass/internal/hourglass"
	"github.com/born-ml/hourglass/internal/nn"
	"github.com/born-ml/hourglass/internal/tensor"
)

// DerivePadding asks residual blocks to use (kernel-1)/2 padding.
const DerivePadding = hourglass.DerivePadding

// DefaultKernelSize is the kernel used by New.
const DefaultKernelSize = hourglass.DefaultKernelSize

// BlockOptions are forwarded from the layer builders to each residual block.
type BlockOptions = hourglass.BlockOptions

// DefaultBlockOptions returns stride 1 with derived padding.
func DefaultBlockOptions() BlockOptions {
	return hourglass.DefaultBlockOptions()
}

// Module is one level of the hourglass, owning its nested levels.
type Module[B tensor.Backend] = hourglass.Module[B]

// Level summarizes one level of a Module.
type Level = hourglass.Level

// New builds a depth-n hourglass with 3x3 residual blocks.
// It panics if the channel or module lists are shorter than n+1.
func New[B tensor.Backend](n int, channels, modules []int, opts BlockOptions, backend B) *Module[B] {
	return hourglass.New(n, channels, modules, opts, backend)
}

// NewWithKernel builds a depth-n hourglass with the given kernel size.
func NewWithKernel[B tensor.Backend](n, kernel int, channels, modules []int, opts BlockOptions, backend B) *Module[B] {
	return hourglass.NewWithKernel(n, kernel, channels, modules, opts, backend)
}

// ConvBlock is conv + batch norm + ReLU.
type ConvBlock[B tensor.Backend] = hourglass.ConvBlock[B]

// NewConvBlock creates a ConvBlock with (kernel-1)/2 padding.
func NewConvBlock[B tensor.Backend](in, out, kernel, stride int, backend B) *ConvBlock[B] {
	return hourglass.NewConvBlock(in, out, kernel, stride, backend)
}

// Residual is a two-convolution residual unit.
type Residual[B tensor.Backend] = hourglass.Residual[B]

// NewResidual creates a residual block mapping in to out channels.
func NewResidual[B tensor.Backend](in, out, kernel int, opts BlockOptions, backend B) *Residual[B] {
	return hourglass.NewResidual(in, out, kernel, opts, backend)
}

// MakeLayer stacks residual blocks; the first maps in -> out with opts.
func MakeLayer[B tensor.Backend](in, out, kernel, modules int, opts BlockOptions, backend B) *nn.Sequential[B] {
	return hourglass.MakeLayer(in, out, kernel, modules, opts, backend)
}

// MakeHGLayer stacks residual blocks; the first maps in -> out at stride 2.
func MakeHGLayer[B tensor.Backend](in, out, kernel, modules int, opts BlockOptions, backend B) *nn.Sequential[B] {
	return hourglass.MakeHGLayer(in, out, kernel, modules, opts, backend)
}

// MakeLayerRevr stacks residual blocks; the last maps in -> out.
func MakeLayerRevr[B tensor.Backend](in, out, kernel, modules int, opts BlockOptions, backend B) *nn.Sequential[B] {
	return hourglass.MakeLayerRevr(in, out, kernel, modules, opts, backend)
}
