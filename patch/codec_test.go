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

package patch

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPatch(t *testing.T) *Patch {
	t.Helper()
	p, err := New([]string{"itm", "lct", "day"},
		[][]int64{{10, 20}, {1, 2}, {100}},
		[]float32{1, 2, 3, 4})
	require.NoError(t, err)
	return p
}

func TestRoundTrip(t *testing.T) {
	for _, algo := range []Compression{Raw, LZ4, Brotli} {
		t.Run(algo.String(), func(t *testing.T) {
			p := testPatch(t)
			blob, err := Encode(p, algo)
			require.NoError(t, err)

			got, err := Decode(blob)
			require.NoError(t, err)
			assert.Equal(t, p.Axes, got.Axes)
			assert.Equal(t, p.Labels, got.Labels)
			assert.Equal(t, p.Data, got.Data)

			// encode of the decoded patch is byte-identical
			again, err := Encode(got, algo)
			require.NoError(t, err)
			assert.Equal(t, blob, again)
		})
	}
}

func TestRoundTripBitExact(t *testing.T) {
	// negative zero, subnormals, infinities and NaN must survive untouched
	data := []float32{
		float32(math.Copysign(0, -1)),
		math.SmallestNonzeroFloat32,
		float32(math.Inf(1)),
		float32(math.Inf(-1)),
		float32(math.NaN()),
		-123.456,
	}
	p, err := New([]string{"x"}, [][]int64{{0, 1, 2, 3, 4, 5}}, data)
	require.NoError(t, err)

	blob, err := Encode(p, LZ4)
	require.NoError(t, err)
	got, err := Decode(blob)
	require.NoError(t, err)
	for i := range data {
		assert.Equal(t, math.Float32bits(data[i]), math.Float32bits(got.Data[i]), "element %d", i)
	}
}

func TestNegativeLabelsSurvive(t *testing.T) {
	p, err := New([]string{"delta"}, [][]int64{{-5, 0, 7}}, []float32{1, 2, 3})
	require.NoError(t, err)
	blob, err := Encode(p, Raw)
	require.NoError(t, err)
	got, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, []int64{-5, 0, 7}, got.Labels[0])
}

func TestDecodeRejectsCorruptBlobs(t *testing.T) {
	p := testPatch(t)
	blob, err := Encode(p, LZ4)
	require.NoError(t, err)

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[0] = 'X'
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrCorruptPatch)
	})
	t.Run("bad version", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		binary.LittleEndian.PutUint16(bad[4:], 99)
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrCorruptPatch)
	})
	t.Run("bad element type", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		binary.LittleEndian.PutUint16(bad[6:], 99)
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrCorruptPatch)
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := Decode(blob[:len(blob)-3])
		assert.ErrorIs(t, err, ErrCorruptPatch)
	})
	t.Run("truncated header", func(t *testing.T) {
		_, err := Decode(blob[:6])
		assert.ErrorIs(t, err, ErrCorruptPatch)
	})
	t.Run("trailing garbage", func(t *testing.T) {
		_, err := Decode(append(append([]byte(nil), blob...), 0xAA))
		assert.ErrorIs(t, err, ErrCorruptPatch)
	})
}

func TestDecodeCheckedSizeMismatch(t *testing.T) {
	p := testPatch(t)
	blob, err := Encode(p, LZ4)
	require.NoError(t, err)

	_, err = DecodeChecked(blob, p.SizeBytes())
	require.NoError(t, err)

	_, err = DecodeChecked(blob, p.SizeBytes()+4)
	assert.ErrorIs(t, err, ErrCorruptPatch)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{
		"": LZ4, "lz4": LZ4, "LZ4": LZ4, "raw": Raw, "brotli": Brotli,
	} {
		got, err := ParseCompression(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCompression("zstd")
	assert.Error(t, err)
}
