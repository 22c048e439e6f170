// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package rowbuffer

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/sneller-labs/rowbuffer-ingest/rowbuffer/decimal"
)

// minVectorCapFloor bounds how small a first reservation can be for a
// vector of very wide elements (e.g. decimalElemSize), so a column
// still starts with a handful of slots even when a single page holds
// only a few of them.
const minVectorCapFloor = 8

// growCap picks the next capacity (in elements) for a vector whose
// elements are elemSize bytes wide. A vector's first reservation is
// sized to fill one host page (see pageSize, arena.go) rather than a
// flat element count, the same way vm/slab.go grows its slabs in
// page-granularity steps off the platform page size; it then doubles
// from there the way Go's own append grows a slice.
func growCap(old, need, elemSize int) int {
	if old == 0 {
		old = pageSize / elemSize
		if old < minVectorCapFloor {
			old = minVectorCapFloor
		}
	}
	for old < need {
		old *= 2
	}
	return old
}

// nullBitmap is a growable bit-per-row validity map.
type nullBitmap struct {
	bits []uint64
}

func (b *nullBitmap) reserveBits(n int) {
	need := (n + 63) / 64
	if need <= len(b.bits) {
		return
	}
	grown := make([]uint64, need)
	copy(grown, b.bits)
	b.bits = grown
}

func (b *nullBitmap) setNull(i int) {
	b.reserveBits(i + 1)
	b.bits[i/64] |= 1 << uint(i%64)
}

func (b *nullBitmap) isNull(i int) bool {
	if i/64 >= len(b.bits) {
		return false
	}
	return b.bits[i/64]&(1<<uint(i%64)) != 0
}

// take hands over the bitmap's storage and clears the source.
func (b *nullBitmap) take() []uint64 {
	out := b.bits
	b.bits = nil
	return out
}

func (b *nullBitmap) reset() {
	b.bits = nil
}

// columnVector is the common, untyped surface of a column's storage
// that the row buffer core drives directly (append_null, len,
// set_valid_count, transfer_out, reset, close in spec §4.2). Typed
// appends are invoked through the columnPlan's appendCell closure,
// which knows the concrete vector type (see schema.go) -- this is the
// "tagged variant" redesign from spec §9.
type columnVector interface {
	appendNull()
	length() int
	setValidCount(n int)
	transferOut() ownedVector
	resetVector()
	closeVector()
}

// ownedVector is the detached, exclusively-owned result of
// transferOut: a populated snapshot of exactly one column's storage.
// Exactly one of the typed fields is populated, matching kind.
type ownedVector struct {
	kind       storageKind
	validCount int
	nulls      []uint64

	i8  []int8
	i16 []int16
	i32 []int32
	i64 []int64
	dec []decimal.Decimal128

	strOffsets []int32
	strData    []byte
}

// IsNull reports whether row i of the owned vector is null.
func (v ownedVector) IsNull(i int) bool {
	if i/64 >= len(v.nulls) {
		return false
	}
	return v.nulls[i/64]&(1<<uint(i%64)) != 0
}

// String returns row i's string value for a kindUTF8 vector.
func (v ownedVector) String(i int) string {
	return string(v.strData[v.strOffsets[i]:v.strOffsets[i+1]])
}

// KindName reports the vector's storage kind, for callers outside this
// package that need to pick an encoding (e.g. internal/flushio) without
// access to the unexported storageKind type.
func (v ownedVector) KindName() string { return v.kind.String() }

// ValidCount reports the number of rows transferOut recorded as valid
// for this vector (ordinarily the flushed row count).
func (v ownedVector) ValidCount() int { return v.validCount }

// Encode renders the vector into a single length-prefixed byte slice:
// a null bitmap followed by the kind-specific dense payload. It is a
// private wire format written by internal/flushio (this module has no
// decoder for it) -- not a stable, externally documented format.
func (v ownedVector) Encode() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(v.validCount))
	binary.Write(&buf, binary.LittleEndian, uint32(len(v.nulls)))
	for _, word := range v.nulls {
		binary.Write(&buf, binary.LittleEndian, word)
	}
	switch v.kind {
	case kindInt8:
		for _, x := range v.i8 {
			buf.WriteByte(byte(x))
		}
	case kindInt16:
		for _, x := range v.i16 {
			binary.Write(&buf, binary.LittleEndian, x)
		}
	case kindInt32:
		for _, x := range v.i32 {
			binary.Write(&buf, binary.LittleEndian, x)
		}
	case kindInt64:
		for _, x := range v.i64 {
			binary.Write(&buf, binary.LittleEndian, x)
		}
	case kindDecimal128:
		for _, d := range v.dec {
			s := d.String()
			binary.Write(&buf, binary.LittleEndian, uint32(len(s)))
			buf.WriteString(s)
		}
	case kindUTF8:
		binary.Write(&buf, binary.LittleEndian, uint32(len(v.strOffsets)))
		for _, off := range v.strOffsets {
			binary.Write(&buf, binary.LittleEndian, off)
		}
		buf.Write(v.strData)
	}
	return buf.Bytes()
}

type numeric interface {
	~int8 | ~int16 | ~int32 | ~int64
}

// numericVector is the fixed-width integer column vector
// implementation shared by i8/i16/i32/i64 storage kinds.
type numericVector[T numeric] struct {
	arena      *Arena
	handle     *allocation
	data       []T
	nulls      nullBitmap
	n          int
	validCount int
}

func newNumericVector[T numeric](a *Arena) *numericVector[T] {
	return &numericVector[T]{arena: a, validCount: -1}
}

func kindOfNumeric[T numeric]() storageKind {
	var zero T
	switch any(zero).(type) {
	case int8:
		return kindInt8
	case int16:
		return kindInt16
	case int32:
		return kindInt32
	case int64:
		return kindInt64
	default:
		panic("rowbuffer: unreachable numeric kind")
	}
}

func (v *numericVector[T]) reserve(n int) {
	if n <= cap(v.data) {
		return
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	newCap := growCap(cap(v.data), n, elemSize)
	grown := make([]T, len(v.data), newCap)
	copy(grown, v.data)
	v.data = grown

	sz := newCap * elemSize
	if v.handle == nil {
		v.handle = v.arena.reserve(sz)
	} else {
		v.handle.resize(sz)
	}
}

func (v *numericVector[T]) appendNull() {
	v.reserve(v.n + 1)
	v.data = v.data[:v.n+1]
	v.nulls.setNull(v.n)
	v.n++
}

func (v *numericVector[T]) appendValue(x T) {
	v.reserve(v.n + 1)
	v.data = v.data[:v.n+1]
	v.data[v.n] = x
	v.n++
}

func (v *numericVector[T]) length() int { return v.n }

func (v *numericVector[T]) setValidCount(n int) { v.validCount = n }

func (v *numericVector[T]) transferOut() ownedVector {
	vc := v.n
	if v.validCount >= 0 {
		vc = v.validCount
	}
	out := ownedVector{
		kind:       kindOfNumeric[T](),
		validCount: vc,
		nulls:      v.nulls.take(),
	}
	data := v.data[:vc]
	switch any(data).(type) {
	case []int8:
		out.i8 = any(data).([]int8)
	case []int16:
		out.i16 = any(data).([]int16)
	case []int32:
		out.i32 = any(data).([]int32)
	case []int64:
		out.i64 = any(data).([]int64)
	}

	v.handle.release()
	v.handle = nil
	v.data = nil
	v.n = 0
	v.validCount = -1
	return out
}

func (v *numericVector[T]) resetVector() {
	v.data = nil
	v.nulls.reset()
	v.n = 0
	v.validCount = -1
	if v.handle != nil {
		v.handle.release()
		v.handle = nil
	}
}

func (v *numericVector[T]) closeVector() {
	v.resetVector()
}

// decimalVector is the storage for FIXED/SB16 columns: a dense array of
// decimal.Decimal128 values. Decimal128 carries its own big.Int, so this
// vector is not a tightly packed byte buffer the way the integer
// vectors are; its Arena accounting is element-count based rather than
// exact-byte based, consistent with spec §5's "buffer_size is a
// best-effort real-valued estimate".
type decimalVector struct {
	arena      *Arena
	handle     *allocation
	data       []decimal.Decimal128
	nulls      nullBitmap
	n          int
	validCount int
}

func newDecimalVector(a *Arena) *decimalVector {
	return &decimalVector{arena: a, validCount: -1}
}

// decimalElemSize is a conservative per-element accounting size for the
// Arena: 16 bytes of unscaled-value storage plus the decimal.Decimal128
// wrapper's own bookkeeping.
const decimalElemSize = 32

func (v *decimalVector) reserve(n int) {
	if n <= cap(v.data) {
		return
	}
	newCap := growCap(cap(v.data), n, decimalElemSize)
	grown := make([]decimal.Decimal128, len(v.data), newCap)
	copy(grown, v.data)
	v.data = grown

	sz := newCap * decimalElemSize
	if v.handle == nil {
		v.handle = v.arena.reserve(sz)
	} else {
		v.handle.resize(sz)
	}
}

func (v *decimalVector) appendNull() {
	v.reserve(v.n + 1)
	v.data = v.data[:v.n+1]
	v.nulls.setNull(v.n)
	v.n++
}

func (v *decimalVector) appendValue(d decimal.Decimal128) {
	v.reserve(v.n + 1)
	v.data = v.data[:v.n+1]
	v.data[v.n] = d
	v.n++
}

func (v *decimalVector) length() int { return v.n }

func (v *decimalVector) setValidCount(n int) { v.validCount = n }

func (v *decimalVector) transferOut() ownedVector {
	vc := v.n
	if v.validCount >= 0 {
		vc = v.validCount
	}
	out := ownedVector{
		kind:       kindDecimal128,
		validCount: vc,
		nulls:      v.nulls.take(),
		dec:        v.data[:vc],
	}
	v.handle.release()
	v.handle = nil
	v.data = nil
	v.n = 0
	v.validCount = -1
	return out
}

func (v *decimalVector) resetVector() {
	v.data = nil
	v.nulls.reset()
	v.n = 0
	v.validCount = -1
	if v.handle != nil {
		v.handle.release()
		v.handle = nil
	}
}

func (v *decimalVector) closeVector() {
	v.resetVector()
}

// stringVector is the storage for the utf8 storage kind: a contiguous
// byte buffer plus a start-offset per row (offsets has n+1 entries, the
// final entry marking the end of the last row's bytes), the classic
// Arrow-style variable-length layout.
type stringVector struct {
	arena      *Arena
	handle     *allocation
	data       []byte
	offsets    []int32
	nulls      nullBitmap
	n          int
	validCount int
}

func newStringVector(a *Arena) *stringVector {
	return &stringVector{arena: a, validCount: -1, offsets: []int32{0}}
}

func (v *stringVector) reserveOffsets(n int) {
	if n+1 <= cap(v.offsets) {
		return
	}
	newCap := growCap(cap(v.offsets), n+1, 4)
	grown := make([]int32, len(v.offsets), newCap)
	copy(grown, v.offsets)
	v.offsets = grown
}

func (v *stringVector) accountBytes() {
	sz := cap(v.offsets)*4 + cap(v.data)
	if v.handle == nil {
		v.handle = v.arena.reserve(sz)
	} else {
		v.handle.resize(sz)
	}
}

func (v *stringVector) appendNull() {
	v.reserveOffsets(v.n + 1)
	v.offsets = v.offsets[:v.n+2]
	v.offsets[v.n+1] = v.offsets[v.n]
	v.nulls.setNull(v.n)
	v.n++
	v.accountBytes()
}

func (v *stringVector) appendBytes(b []byte) {
	v.reserveOffsets(v.n + 1)
	v.offsets = v.offsets[:v.n+2]
	v.data = append(v.data, b...)
	v.offsets[v.n+1] = int32(len(v.data))
	v.n++
	v.accountBytes()
}

func (v *stringVector) length() int { return v.n }

func (v *stringVector) setValidCount(n int) { v.validCount = n }

func (v *stringVector) transferOut() ownedVector {
	vc := v.n
	if v.validCount >= 0 {
		vc = v.validCount
	}
	out := ownedVector{
		kind:       kindUTF8,
		validCount: vc,
		nulls:      v.nulls.take(),
		strOffsets: v.offsets[:vc+1],
		strData:    v.data,
	}
	v.handle.release()
	v.handle = nil
	v.data = nil
	v.offsets = []int32{0}
	v.n = 0
	v.validCount = -1
	return out
}

func (v *stringVector) resetVector() {
	v.data = nil
	v.offsets = []int32{0}
	v.nulls.reset()
	v.n = 0
	v.validCount = -1
	if v.handle != nil {
		v.handle.release()
		v.handle = nil
	}
}

func (v *stringVector) closeVector() {
	v.resetVector()
}
