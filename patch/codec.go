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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/pierrec/lz4/v4"

	stmath "github.com/LDSLab/stoicheia/common/math"
)

// Blob layout, little-endian throughout:
//
//	magic "STCH" | format version u16 | element-type tag u16
//	dimension count D u16
//	D x ( name length u16 | name UTF-8 | label count u64 | labels i64... )
//	compression tag u8 | compressed length u64 | compressed payload
//
// The decompressed payload is exactly prod(label counts) x 4 bytes of
// float32 cells in row-major outer-axis-first order.
const (
	blobMagic     = "STCH"
	formatVersion = uint16(1)
	elemFloat32   = uint16(1)
)

// Compression selects the payload algorithm. The tag values are part of the
// on-disk format.
type Compression uint8

const (
	Raw    Compression = 0
	LZ4    Compression = 1
	Brotli Compression = 2
)

// DefaultCompression is the write-path default. Brotli is reserved for cold
// storage; decode always honors the tag regardless of configuration.
const DefaultCompression = LZ4

func (c Compression) String() string {
	switch c {
	case Raw:
		return "raw"
	case LZ4:
		return "lz4"
	case Brotli:
		return "brotli"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ParseCompression accepts the config spelling of an algorithm.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "raw":
		return Raw, nil
	case "", "lz4":
		return LZ4, nil
	case "brotli":
		return Brotli, nil
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

// Encode serializes the patch. Deterministic for a given algorithm.
func Encode(p *Patch, algo Compression) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(blobMagic)
	writeU16(&buf, formatVersion)
	writeU16(&buf, elemFloat32)
	writeU16(&buf, uint16(len(p.Axes)))
	for d, name := range p.Axes {
		if len(name) > math.MaxUint16 {
			return nil, fmt.Errorf("axis name too long: %d bytes", len(name))
		}
		writeU16(&buf, uint16(len(name)))
		buf.WriteString(name)
		writeU64(&buf, uint64(len(p.Labels[d])))
		for _, label := range p.Labels[d] {
			writeU64(&buf, uint64(label))
		}
	}

	raw := make([]byte, p.SizeBytes())
	for i, v := range p.Data {
		binary.LittleEndian.PutUint32(raw[i*ElemSize:], math.Float32bits(v))
	}
	payload, err := compress(raw, algo)
	if err != nil {
		return nil, err
	}
	buf.WriteByte(byte(algo))
	writeU64(&buf, uint64(len(payload)))
	buf.Write(payload)
	return buf.Bytes(), nil
}

// Decode reconstructs a patch from a blob, verifying the framing and the
// decompressed payload size.
func Decode(blob []byte) (*Patch, error) {
	return decode(blob, 0, false)
}

// DecodeChecked is Decode plus a check that the payload decompresses to
// exactly wantSize bytes, the size recorded in the patch's store row.
func DecodeChecked(blob []byte, wantSize uint64) (*Patch, error) {
	return decode(blob, wantSize, true)
}

func decode(blob []byte, wantSize uint64, checkSize bool) (*Patch, error) {
	r := blobReader{buf: blob}
	if magic := r.bytes(4); string(magic) != blobMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptPatch, magic)
	}
	if v := r.u16(); v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorruptPatch, v)
	}
	if tag := r.u16(); tag != elemFloat32 {
		return nil, fmt.Errorf("%w: unsupported element type %d", ErrCorruptPatch, tag)
	}
	dims := int(r.u16())
	if dims < 1 || dims > MaxDims {
		return nil, fmt.Errorf("%w: %d dimensions", ErrCorruptPatch, dims)
	}

	axes := make([]string, dims)
	labels := make([][]int64, dims)
	cells := uint64(1)
	for d := 0; d < dims; d++ {
		axes[d] = string(r.bytes(int(r.u16())))
		count := r.u64()
		if r.err != nil || count > uint64(len(r.buf)) {
			return nil, fmt.Errorf("%w: truncated label vector", ErrCorruptPatch)
		}
		lv := make([]int64, count)
		for i := range lv {
			lv[i] = int64(r.u64())
		}
		labels[d] = lv
		var ok bool
		if cells, ok = stmath.MulUint64(cells, count); !ok {
			return nil, fmt.Errorf("%w: element count overflow", ErrCorruptPatch)
		}
	}

	algo := Compression(r.u8())
	payloadLen := r.u64()
	if r.err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrCorruptPatch)
	}
	if payloadLen != uint64(len(r.rest())) {
		return nil, fmt.Errorf("%w: payload length %d, have %d bytes", ErrCorruptPatch, payloadLen, len(r.rest()))
	}
	raw, err := decompress(r.rest(), algo)
	if err != nil {
		return nil, err
	}

	wantRaw, ok := stmath.MulUint64(cells, ElemSize)
	if !ok || uint64(len(raw)) != wantRaw {
		return nil, fmt.Errorf("%w: decompressed to %d bytes, shape wants %d", ErrCorruptPatch, len(raw), wantRaw)
	}
	if checkSize && wantRaw != wantSize {
		return nil, fmt.Errorf("%w: recorded size %d, payload size %d", ErrCorruptPatch, wantSize, wantRaw)
	}

	data := make([]float32, cells)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*ElemSize:]))
	}
	p, err := New(axes, labels, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPatch, err)
	}
	return p, nil
}

func compress(raw []byte, algo Compression) ([]byte, error) {
	switch algo {
	case Raw:
		return raw, nil
	case LZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	case Brotli:
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		if _, err := bw.Write(raw); err != nil {
			return nil, fmt.Errorf("brotli compress: %w", err)
		}
		if err := bw.Close(); err != nil {
			return nil, fmt.Errorf("brotli compress: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown compression %d", algo)
}

func decompress(payload []byte, algo Compression) ([]byte, error) {
	switch algo {
	case Raw:
		return payload, nil
	case LZ4:
		raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorruptPatch, err)
		}
		return raw, nil
	case Brotli:
		raw, err := io.ReadAll(brotli.NewReader(bytes.NewReader(payload)))
		if err != nil {
			return nil, fmt.Errorf("%w: brotli: %v", ErrCorruptPatch, err)
		}
		return raw, nil
	}
	return nil, fmt.Errorf("%w: unknown compression tag %d", ErrCorruptPatch, algo)
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// blobReader is a bounds-checked cursor over a blob. The first failed read
// latches err; subsequent reads return zero values.
type blobReader struct {
	buf []byte
	off int
	err error
}

func (r *blobReader) bytes(n int) []byte {
	if r.err != nil || n < 0 || r.off+n > len(r.buf) {
		if r.err == nil {
			r.err = io.ErrUnexpectedEOF
		}
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *blobReader) u8() uint8 {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *blobReader) u16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *blobReader) u64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *blobReader) rest() []byte {
	return r.buf[r.off:]
}
