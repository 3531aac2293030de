// Copyright 2025 The Stoicheia Authors
// This file is part of Stoicheia.
//
// Stoicheia is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Stoicheia is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Stoicheia. If not, see <http://www.gnu.org/licenses/>.

// Package patch defines the in-memory dense region type and the STCH blob
// codec that serializes it.
package patch

import (
	"errors"
	"fmt"

	stmath "github.com/LDSLab/stoicheia/common/math"
)

// MaxDims bounds the rank of a quilt and therefore of any patch.
const MaxDims = 4

// ElemSize is the byte size of the configured element type (32-bit float).
const ElemSize = 4

var ErrCorruptPatch = errors.New("corrupt patch blob")

// Patch is a dense rectangular region: one label vector per axis, in quilt
// axis order, and a row-major (outer-axis-first) float32 array of shape
// (len(Labels[0]), ..., len(Labels[D-1])).
type Patch struct {
	Axes   []string
	Labels [][]int64
	Data   []float32
}

// New validates shape against the label vectors and wraps the three slices
// into a Patch. The slices are not copied.
func New(axes []string, labels [][]int64, data []float32) (*Patch, error) {
	if len(axes) < 1 || len(axes) > MaxDims {
		return nil, fmt.Errorf("patch must have 1..%d axes, got %d", MaxDims, len(axes))
	}
	if len(labels) != len(axes) {
		return nil, fmt.Errorf("patch has %d axes but %d label vectors", len(axes), len(labels))
	}
	// An empty label vector is legal (a selector can match nothing); the
	// patch then has zero cells.
	want := uint64(1)
	for _, lv := range labels {
		var ok bool
		if want, ok = stmath.MulUint64(want, uint64(len(lv))); !ok {
			return nil, fmt.Errorf("patch element count overflows")
		}
	}
	if uint64(len(data)) != want {
		return nil, fmt.Errorf("patch data has %d elements, shape wants %d", len(data), want)
	}
	return &Patch{Axes: axes, Labels: labels, Data: data}, nil
}

// NewFilled allocates a patch of the given shape with every cell set to fill.
func NewFilled(axes []string, labels [][]int64, fill float32) (*Patch, error) {
	n := 1
	for _, lv := range labels {
		n *= len(lv)
	}
	data := make([]float32, n)
	if fill != 0 {
		for i := range data {
			data[i] = fill
		}
	}
	return New(axes, labels, data)
}

// Dims returns the axis count.
func (p *Patch) Dims() int { return len(p.Axes) }

// Shape returns the per-axis lengths.
func (p *Patch) Shape() []int {
	shape := make([]int, len(p.Labels))
	for i, lv := range p.Labels {
		shape[i] = len(lv)
	}
	return shape
}

// SizeBytes is the decompressed payload size of the cell data.
func (p *Patch) SizeBytes() uint64 {
	return uint64(len(p.Data)) * ElemSize
}

// Strides returns the row-major stride per axis, in elements.
func (p *Patch) Strides() []int {
	strides := make([]int, len(p.Labels))
	stride := 1
	for i := len(p.Labels) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= len(p.Labels[i])
	}
	return strides
}

func (p *Patch) offset(idx []int) int {
	off := 0
	stride := 1
	for i := len(p.Labels) - 1; i >= 0; i-- {
		off += idx[i] * stride
		stride *= len(p.Labels[i])
	}
	return off
}

// At returns the cell at the given per-axis offsets.
func (p *Patch) At(idx ...int) float32 { return p.Data[p.offset(idx)] }

// Set writes the cell at the given per-axis offsets.
func (p *Patch) Set(v float32, idx ...int) { p.Data[p.offset(idx)] = v }

// Transposed returns a copy of the patch with its axes permuted into the
// given order. The order must name exactly the patch's axes. When the order
// is already the patch's own, the receiver itself is returned, not a copy.
func (p *Patch) Transposed(axes []string) (*Patch, error) {
	if len(axes) != len(p.Axes) {
		return nil, fmt.Errorf("transpose wants %d axes, got %d", len(p.Axes), len(axes))
	}
	perm := make([]int, len(axes))
	for i, name := range axes {
		perm[i] = -1
		for j, have := range p.Axes {
			if have == name {
				perm[i] = j
				break
			}
		}
		if perm[i] < 0 {
			return nil, fmt.Errorf("transpose axis %q not in patch", name)
		}
	}
	identity := true
	for i, j := range perm {
		if i != j {
			identity = false
			break
		}
	}
	if identity {
		return p, nil
	}

	outAxes := make([]string, len(axes))
	outLabels := make([][]int64, len(axes))
	for i, j := range perm {
		outAxes[i] = p.Axes[j]
		outLabels[i] = p.Labels[j]
	}
	out, err := NewFilled(outAxes, outLabels, 0)
	if err != nil {
		return nil, err
	}
	srcIdx := make([]int, len(perm))
	dstIdx := make([]int, len(perm))
	shape := out.Shape()
	for {
		for i, j := range perm {
			srcIdx[j] = dstIdx[i]
		}
		out.Data[out.offset(dstIdx)] = p.Data[p.offset(srcIdx)]
		// odometer over the destination shape
		d := len(dstIdx) - 1
		for ; d >= 0; d-- {
			dstIdx[d]++
			if dstIdx[d] < shape[d] {
				break
			}
			dstIdx[d] = 0
		}
		if d < 0 {
			return out, nil
		}
	}
}
