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

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundsIntersects(t *testing.T) {
	cases := []struct {
		name string
		a, b Bounds
		want bool
	}{
		{"disjoint", Bounds{0, 3}, Bounds{4, 9}, false},
		{"touching", Bounds{0, 4}, Bounds{4, 9}, true},
		{"nested", Bounds{0, 9}, Bounds{2, 3}, true},
		{"identical", Bounds{5, 5}, Bounds{5, 5}, true},
		{"reversed disjoint", Bounds{4, 9}, Bounds{0, 3}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Intersects(tc.b))
			assert.Equal(t, tc.want, tc.b.Intersects(tc.a))
		})
	}
}

func TestBoundsOf(t *testing.T) {
	b := BoundsOf([]int64{7, 2, 5})
	assert.Equal(t, Bounds{Min: 2, Max: 7}, b)
	assert.Equal(t, int64(6), b.Len())
}

func TestOverlap(t *testing.T) {
	a := []Bounds{{0, 3}, {10, 20}}
	assert.True(t, Overlap(a, []Bounds{{3, 5}, {0, 10}}))
	assert.False(t, Overlap(a, []Bounds{{3, 5}, {21, 30}}), "must miss on the second axis")
	assert.False(t, Overlap(a, []Bounds{{3, 5}}), "rank mismatch never overlaps")
}

func TestMulUint64(t *testing.T) {
	got, ok := MulUint64(1<<20, 1<<20)
	assert.True(t, ok)
	assert.Equal(t, uint64(1<<40), got)

	_, ok = MulUint64(math.MaxUint64, 2)
	assert.False(t, ok)
}
