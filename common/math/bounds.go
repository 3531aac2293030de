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

package math

import "math/bits"

// Bounds is an inclusive [Min, Max] interval in storage-index space.
type Bounds struct {
	Min int64
	Max int64
}

// Intersects reports whether two inclusive intervals share at least one index.
func (b Bounds) Intersects(o Bounds) bool {
	return b.Min <= o.Max && o.Min <= b.Max
}

// Len is the number of indices the interval covers.
func (b Bounds) Len() int64 {
	if b.Max < b.Min {
		return 0
	}
	return b.Max - b.Min + 1
}

// BoundsOf returns the bounding interval of a non-empty index vector.
func BoundsOf(indices []int64) Bounds {
	b := Bounds{Min: indices[0], Max: indices[0]}
	for _, ix := range indices[1:] {
		if ix < b.Min {
			b.Min = ix
		}
		if ix > b.Max {
			b.Max = ix
		}
	}
	return b
}

// Overlap reports whether two boxes intersect on every axis. Boxes of
// different rank never overlap.
func Overlap(a, b []Bounds) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Intersects(b[i]) {
			return false
		}
	}
	return true
}

// MulUint64 multiplies with an overflow check, for element-count and
// byte-size accounting.
func MulUint64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}
