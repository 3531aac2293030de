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

// Package assemble stitches overlapping patches into a dense slice by
// walking a tag's commit ancestry newest-first.
package assemble

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"go.uber.org/zap"

	"github.com/LDSLab/stoicheia/axis"
	stmath "github.com/LDSLab/stoicheia/common/math"
	"github.com/LDSLab/stoicheia/graph"
	"github.com/LDSLab/stoicheia/patch"
	"github.com/LDSLab/stoicheia/patchstore"
)

// ErrCorruptCommit - two patches of one commit overlap on a cell. The commit
// write path rejects this, so hitting it means the store is damaged.
var ErrCorruptCommit = errors.New("corrupt commit: overlapping patches")

// Assembler reconstructs dense slices against a consistent read snapshot.
type Assembler struct {
	reg  *axis.Registry
	fill float32
	log  *zap.Logger
}

func New(reg *axis.Registry, fill float32, log *zap.Logger) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{reg: reg, fill: fill, log: log}
}

// Fetch resolves tag and selectors and assembles the requested slice in
// last-writer-wins order: ancestry is walked newest-first and a cell is
// written at most once. Cells no ancestor covers keep the fill value.
func (a *Assembler) Fetch(tx *sql.Tx, quilt string, quiltAxes []string, tag string, selectors map[string]Selector) (*patch.Patch, error) {
	commID, err := graph.ResolveTag(tx, quilt, tag)
	if err != nil {
		return nil, err
	}

	dims := len(quiltAxes)
	reqLabels := make([][]int64, dims)
	reqIndices := make([][]int64, dims)
	bbox := make([]stmath.Bounds, dims)
	total := 1
	for d, name := range quiltAxes {
		sel := selectors[name] // zero value selects the whole axis
		reqLabels[d], reqIndices[d], err = sel.resolve(tx, a.reg, name)
		if err != nil {
			return nil, err
		}
		if len(reqIndices[d]) > 0 {
			bbox[d] = stmath.BoundsOf(reqIndices[d])
		}
		total *= len(reqIndices[d])
	}

	out, err := patch.NewFilled(quiltAxes, reqLabels, a.fill)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return out, nil
	}

	// Last-writer-wins needs cell-level tracking: `written` is the cells
	// already owned by a newer commit, `covered` the cells touched by the
	// commit currently being merged (to detect intra-commit overlap).
	written := bitset.New(uint(total))
	covered := bitset.New(uint(total))
	outStrides := out.Strides()

	// Position(s) of each label in the request vector, per axis. A label may
	// appear more than once in an explicit list.
	reqPos := make([]map[int64][]int, dims)
	for d, labels := range reqLabels {
		reqPos[d] = make(map[int64][]int, len(labels))
		for i, label := range labels {
			reqPos[d][label] = append(reqPos[d][label], i)
		}
	}

	walk := graph.Ancestors(tx, commID)
	for {
		cur, ok, err := walk.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		metas, err := patchstore.Overlapping(tx, cur, bbox)
		if err != nil {
			return nil, err
		}
		for _, meta := range metas {
			if err := a.merge(tx, meta, quiltAxes, reqPos, outStrides, out, written, covered); err != nil {
				return nil, err
			}
		}
		covered.ClearAll()
		if written.Count() == uint(total) {
			break
		}
	}
	return out, nil
}

// cellRef pairs a position in the output vector with the matching position
// in the patch's label vector, for one axis.
type cellRef struct {
	out int
	src int
}

func (a *Assembler) merge(tx *sql.Tx, meta patchstore.Meta, quiltAxes []string,
	reqPos []map[int64][]int, outStrides []int, out *patch.Patch,
	written, covered *bitset.BitSet) error {

	blob, err := patchstore.Load(tx, meta.PatchID)
	if err != nil {
		return err
	}
	p, err := patch.DecodeChecked(blob, meta.DecompressedSize)
	if err != nil {
		return err
	}
	if len(p.Axes) != len(quiltAxes) {
		return fmt.Errorf("%w: patch %d has %d axes, quilt has %d",
			patch.ErrCorruptPatch, meta.PatchID, len(p.Axes), len(quiltAxes))
	}
	for d, name := range quiltAxes {
		if p.Axes[d] != name {
			return fmt.Errorf("%w: patch %d axis %d is %q, quilt has %q",
				patch.ErrCorruptPatch, meta.PatchID, d, p.Axes[d], name)
		}
	}

	// Per-axis intersection of the patch's labels with the request.
	refs := make([][]cellRef, len(quiltAxes))
	for d := range quiltAxes {
		for src, label := range p.Labels[d] {
			for _, outIx := range reqPos[d][label] {
				refs[d] = append(refs[d], cellRef{out: outIx, src: src})
			}
		}
		if len(refs[d]) == 0 {
			return nil
		}
	}

	srcStrides := p.Strides()
	idx := make([]int, len(refs))
	for {
		outOff, srcOff := 0, 0
		for d, i := range idx {
			outOff += refs[d][i].out * outStrides[d]
			srcOff += refs[d][i].src * srcStrides[d]
		}
		if covered.Test(uint(outOff)) {
			return fmt.Errorf("%w: commit %d cell %d", ErrCorruptCommit, meta.CommID, outOff)
		}
		covered.Set(uint(outOff))
		if !written.Test(uint(outOff)) {
			out.Data[outOff] = p.Data[srcOff]
			written.Set(uint(outOff))
		}
		d := len(idx) - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < len(refs[d]) {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return nil
		}
	}
}
