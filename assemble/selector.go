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

package assemble

import (
	"database/sql"
	"fmt"

	"github.com/LDSLab/stoicheia/axis"
)

type selectorKind uint8

const (
	kindAll selectorKind = iota
	kindLabels
	kindRange
)

// Selector specifies which labels of one axis to read: the whole axis, an
// explicit label list (order preserved in the output), or a half-open
// [lo, hi) range in label-value space returned in storage-index order.
type Selector struct {
	kind   selectorKind
	labels []int64
	lo, hi int64
}

// All selects the whole axis in storage-index order. The zero Selector is
// equivalent.
func All() Selector { return Selector{kind: kindAll} }

// Labels selects exactly the given labels, in the given order.
func Labels(labels ...int64) Selector {
	return Selector{kind: kindLabels, labels: labels}
}

// Range selects the labels whose value v satisfies lo <= v < hi. The
// comparison is on label values; the output stays in storage-index order.
func Range(lo, hi int64) Selector {
	return Selector{kind: kindRange, lo: lo, hi: hi}
}

func (s Selector) String() string {
	switch s.kind {
	case kindLabels:
		return fmt.Sprintf("labels%v", s.labels)
	case kindRange:
		return fmt.Sprintf("range[%d,%d)", s.lo, s.hi)
	}
	return "all"
}

// resolve turns the selector into a label vector in requested order and the
// matching storage-index vector.
func (s Selector) resolve(tx *sql.Tx, reg *axis.Registry, axisName string) (labels, indices []int64, err error) {
	switch s.kind {
	case kindLabels:
		indices, err = reg.LabelsToIndices(tx, axisName, s.labels, false)
		if err != nil {
			return nil, nil, err
		}
		labels = make([]int64, len(s.labels))
		copy(labels, s.labels)
		return labels, indices, nil
	case kindRange:
		all, err := reg.Labels(tx, axisName)
		if err != nil {
			return nil, nil, err
		}
		for ix, label := range all {
			if s.lo <= label && label < s.hi {
				labels = append(labels, label)
				indices = append(indices, int64(ix))
			}
		}
		return labels, indices, nil
	default:
		labels, err = reg.Labels(tx, axisName)
		if err != nil {
			return nil, nil, err
		}
		indices = make([]int64, len(labels))
		for i := range indices {
			indices[i] = int64(i)
		}
		return labels, indices, nil
	}
}
