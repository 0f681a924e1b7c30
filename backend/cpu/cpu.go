// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Im2col algorithm for convolutions
//   - Float32 and Float64 support
//   - NumPy-compatible broadcasting
//   - Convolution and upsampling kernels split across goroutines
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/hourglass/backend/cpu"
//	    "github.com/born-ml/hourglass/hourglass"
//	    "github.com/born-ml/hourglass/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    net := hourglass.New(2, []int{64, 128, 256}, []int{2, 2, 2}, hourglass.DefaultBlockOptions(), backend)
//	    out := net.Forward(tensor.Randn[float32](tensor.Shape{1, 64, 64, 64}, backend))
//	}
//
// # Thread Safety
//
// Backend operations never modify their inputs and keep no mutable state,
// so one backend can be shared between goroutines.
package cpu

import (
	internalcpu "github.com/born-ml/hourglass/internal/backend/cpu"
	"github.com/born-ml/hourglass/internal/parallel"
	"github.com/born-ml/hourglass/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// ParallelConfig controls how kernels split work across goroutines.
type ParallelConfig = parallel.Config

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend using all available cores.
func New() *Backend {
	return internalcpu.New()
}

// NewWithConfig creates a CPU backend with an explicit parallelism setting.
//
// Example:
//
//	backend := cpu.NewWithConfig(cpu.SequentialConfig())
func NewWithConfig(cfg ParallelConfig) *Backend {
	return internalcpu.NewWithConfig(cfg)
}

// DefaultParallelConfig returns the default parallelism setting.
func DefaultParallelConfig() ParallelConfig {
	return parallel.DefaultConfig()
}

// SequentialConfig disables goroutine fan-out.
func SequentialConfig() ParallelConfig {
	return parallel.Sequential()
}
