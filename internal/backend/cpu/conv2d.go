package cpu

import (
	"fmt"

	"github.com/born-ml/hourglass/internal/parallel"
	"github.com/born-ml/hourglass/internal/tensor"
)

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape: [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding - kernel_h) / stride + 1
//	out_w = (width + 2*padding - kernel_w) / stride + 1
//
// Algorithm, per image of the batch:
//  1. Im2col: unfold the zero-padded input into [H_out*W_out, C_in*K_h*K_w]
//  2. For every output channel (in parallel), dot the flattened kernel row
//     with every column row and write the plane straight into NCHW order
//
// Reference: "High Performance Convolutional Neural Networks for Document Processing"
// (Chellapilla et al., 2006).
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape)))
	}
	if input.DType() != kernel.DType() {
		panic(fmt.Sprintf("conv2d: dtype mismatch input %s vs kernel %s", input.DType(), kernel.DType()))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	}
	if padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid padding %d", padding))
	}

	g := convGeometry{
		N:       inputShape[0],
		CIn:     inputShape[1],
		H:       inputShape[2],
		W:       inputShape[3],
		COut:    kernelShape[0],
		KH:      kernelShape[2],
		KW:      kernelShape[3],
		stride:  stride,
		padding: padding,
	}

	if g.CIn != kernelShape[1] {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", g.CIn, kernelShape[1]))
	}

	g.HOut = (g.H+2*padding-g.KH)/stride + 1
	g.WOut = (g.W+2*padding-g.KW)/stride + 1
	if g.HOut <= 0 || g.WOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", g.HOut, g.WOut))
	}

	output, err := tensor.NewRaw(tensor.Shape{g.N, g.COut, g.HOut, g.WOut}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv2d: failed to create output tensor: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		conv2dKernel(output.AsFloat32(), input.AsFloat32(), kernel.AsFloat32(), g, cpu.par)
	case tensor.Float64:
		conv2dKernel(output.AsFloat64(), input.AsFloat64(), kernel.AsFloat64(), g, cpu.par)
	default:
		panic(fmt.Sprintf("conv2d: unsupported dtype %s", input.DType()))
	}

	return output
}

// convGeometry holds the dimensions of one convolution call.
type convGeometry struct {
	N, CIn, H, W    int
	COut, KH, KW    int
	HOut, WOut      int
	stride, padding int
}

func conv2dKernel[T float](out, in, kernel []T, g convGeometry, par parallel.Config) {
	colWidth := g.CIn * g.KH * g.KW
	plane := g.HOut * g.WOut
	colBuf := make([]T, plane*colWidth)

	for n := 0; n < g.N; n++ {
		im2col(colBuf, in[n*g.CIn*g.H*g.W:(n+1)*g.CIn*g.H*g.W], g)

		dst := out[n*g.COut*plane : (n+1)*g.COut*plane]
		parallel.For(g.COut, func(c int) {
			row := kernel[c*colWidth : (c+1)*colWidth]
			outPlane := dst[c*plane : (c+1)*plane]
			for j := 0; j < plane; j++ {
				col := colBuf[j*colWidth : (j+1)*colWidth]
				var sum T
				for k, w := range row {
					sum += w * col[k]
				}
				outPlane[j] = sum
			}
		}, par)
	}
}

// im2col unfolds one [C, H, W] image into colBuf [H_out*W_out, C*K_h*K_w].
// Each row holds the (zero-padded) receptive field of one output position.
func im2col[T float](colBuf, img []T, g convGeometry) {
	colWidth := g.CIn * g.KH * g.KW
	row := 0

	for outH := 0; outH < g.HOut; outH++ {
		for outW := 0; outW < g.WOut; outW++ {
			hStart := outH*g.stride - g.padding
			wStart := outW*g.stride - g.padding
			bufIdx := row * colWidth

			for c := 0; c < g.CIn; c++ {
				for kh := 0; kh < g.KH; kh++ {
					h := hStart + kh
					for kw := 0; kw < g.KW; kw++ {
						w := wStart + kw
						if h >= 0 && h < g.H && w >= 0 && w < g.W {
							colBuf[bufIdx] = img[c*g.H*g.W+h*g.W+w]
						} else {
							colBuf[bufIdx] = 0
						}
						bufIdx++
					}
				}
			}
			row++
		}
	}
}
