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

// Package atomicext provides lock-free float64 accumulation on top of
// the built-in atomic package, which has no native float64 add.
package atomicext

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// AddFloat64 atomically adds value to *ptr via a compare-and-swap loop
// over the float's bit pattern. Used by rowbuffer.Buffer to accumulate
// buffer_size (while holding its insert/flush mutex), so that Size(),
// which reads the value without taking the mutex, never sees a torn
// float64.
func AddFloat64(ptr *float64, value float64) {
	for {
		before := math.Float64frombits(atomic.LoadUint64((*uint64)(unsafe.Pointer(ptr))))
		after := before + value

		if atomic.CompareAndSwapUint64((*uint64)(unsafe.Pointer(ptr)), math.Float64bits(before), math.Float64bits(after)) {
			return
		}
	}
}
