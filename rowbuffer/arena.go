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
	"fmt"
	"sync/atomic"
)

// pageSize is the host page size; column vectors size their first
// reservation off of it (see growCap in column.go). It is discovered once at
// package init from the host (see arena_unix.go / arena_windows.go),
// the same way vm/malloc_linux.go and vm/malloc_darwin.go size their
// mmap regions off of the platform page size.
var pageSize = discoverPageSize()

// Arena is the allocator a Buffer's column vectors draw their backing
// storage from. Unlike vm.Malloc/vm.Free's shared 4GiB mmap region (used
// across every row buffer in the process, see vm/malloc.go), an Arena is
// scoped to a single Buffer: it does not itself own any raw memory, but
// it is the single point through which every column vector's storage
// lifetime is tracked, so that Close can be verified to have released
// everything a Buffer allocated (see the probe-allocator testable
// property in spec §8, scenario S6).
//
// An Arena's counters are atomic so Outstanding/Bytes can be read
// without a lock, matching the "volatile read; no lock needed" style of
// spec §5's buffer_size accounting.
type Arena struct {
	live   int64 // outstanding allocation handle count
	bytes  int64 // outstanding allocation bytes
	closed int32
}

// NewArena creates an empty Arena.
func NewArena() *Arena {
	return &Arena{}
}

// allocation is a handle to a block of Arena-tracked memory. The actual
// backing storage is an ordinary Go slice owned by the column vector;
// the handle exists purely to give the Arena visibility into how much
// memory is outstanding and when it is released, mirroring the
// bookkeeping vm.Malloc/vm.Free perform via the vmbits bitmap, scoped
// down to counters instead of a raw address space.
type allocation struct {
	arena *Arena
	size  int64
	freed bool
}

// reserve hands out a new allocation handle accounted for n bytes.
func (a *Arena) reserve(n int) *allocation {
	if atomic.LoadInt32(&a.closed) != 0 {
		panic("rowbuffer: reserve on closed Arena")
	}
	atomic.AddInt64(&a.live, 1)
	atomic.AddInt64(&a.bytes, int64(n))
	return &allocation{arena: a, size: int64(n)}
}

// resize adjusts the byte accounting for h to reflect a grown (or
// shrunk) backing slice.
func (h *allocation) resize(n int) {
	if h == nil {
		return
	}
	delta := int64(n) - h.size
	atomic.AddInt64(&h.arena.bytes, delta)
	h.size = int64(n)
}

// release returns h's accounted bytes to the Arena. Safe to call more
// than once; only the first call has effect.
func (h *allocation) release() {
	if h == nil || h.freed {
		return
	}
	h.freed = true
	atomic.AddInt64(&h.arena.live, -1)
	atomic.AddInt64(&h.arena.bytes, -h.size)
}

// Outstanding reports the number of allocation handles the Arena has
// handed out that have not yet been released.
func (a *Arena) Outstanding() int64 {
	return atomic.LoadInt64(&a.live)
}

// Bytes reports the total size of outstanding allocations.
func (a *Arena) Bytes() int64 {
	return atomic.LoadInt64(&a.bytes)
}

// Close marks the Arena terminal. It does not forcibly release
// outstanding handles: a Buffer is expected to Close every column
// vector before closing its Arena (see Buffer.Close), the same way
// spec §4.3 describes close() as closing every vector and then the
// allocator, in that order.
func (a *Arena) Close() error {
	if !atomic.CompareAndSwapInt32(&a.closed, 0, 1) {
		return fmt.Errorf("rowbuffer: Arena already closed")
	}
	return nil
}
