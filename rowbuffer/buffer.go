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
	"log"
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"

	"github.com/sneller-labs/rowbuffer-ingest/internal/atomicext"
)

// nullBitmapCellCost is the fixed 1/8-byte contribution every cell
// (null or not) makes to buffer_size, accounting for the one bit it
// occupies in the vector's null bitmap (spec §4.4 step 4). Kept as the
// rational 1/8 rather than a bare float literal per spec §9's
// recommendation that the unit be representable exactly.
const nullBitmapCellCost = 1.0 / 8.0

// Row is a single loosely-typed application row: a column-name to
// value mapping, as accepted by InsertRows. Values may be nil (SQL
// NULL) or any Go type coerceInt64/coerceString/coerceDecimalString
// know how to coerce.
type Row map[string]any

// Buffer is the row buffer core (spec §2, §4.3): the public surface a
// producer and a flusher drive concurrently under a single mutex.
type Buffer struct {
	channel Channel
	arena   *Arena
	logger  *log.Logger

	mu sync.Mutex

	schema []*columnPlan
	byName map[string]int
	vectors []columnVector
	stats   []*Stats

	rowCount    int64
	curRowIndex int64

	// bufferSize is read lock-free by Size(); written under mu via
	// atomicext.AddFloat64 so a concurrent Size() call never observes
	// a torn float64, matching spec §5's "reads are non-atomic but
	// volatile" accounting model.
	bufferSize float64

	schemaSet bool
	closed    bool
}

// New creates an empty Buffer bound to the given owning channel. The
// channel's Allocator is used for every column vector's backing
// storage.
func New(ch Channel) *Buffer {
	return &Buffer{
		channel: ch,
		arena:   ch.Allocator(),
		logger:  log.Default(),
		byName:  make(map[string]int),
	}
}

// SetLogger overrides the *log.Logger used for diagnostic messages
// (defaults to log.Default()).
func (b *Buffer) SetLogger(l *log.Logger) {
	if l != nil {
		b.logger = l
	}
}

func (b *Buffer) fqn() string { return b.channel.FullyQualifiedName() }

// SetupSchema builds column plans for columns, allocates one empty
// vector per column, and installs fresh stats (spec §4.3). It must be
// called exactly once before any InsertRows call.
func (b *Buffer) SetupSchema(columns []ColumnDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.schemaSet {
		return fmt.Errorf("rowbuffer: %s: SetupSchema called more than once", b.fqn())
	}

	schema := make([]*columnPlan, 0, len(columns))
	byName := make(map[string]int, len(columns))
	vectors := make([]columnVector, 0, len(columns))
	stats := make([]*Stats, 0, len(columns))

	for _, col := range columns {
		plan, err := resolveColumnPlan(col)
		if err != nil {
			b.logger.Printf("rowbuffer: %s: %v", b.fqn(), err)
			return err
		}
		if _, exists := byName[plan.name]; exists {
			err := fmt.Errorf("rowbuffer: duplicate column %q", plan.name)
			b.logger.Printf("rowbuffer: %s: %v", b.fqn(), err)
			return err
		}
		byName[plan.name] = len(schema)
		schema = append(schema, plan)
		vectors = append(vectors, plan.newVector(b.arena))
		stats = append(stats, newStats())
	}

	b.schema = schema
	b.byName = byName
	b.vectors = vectors
	b.stats = stats
	b.schemaSet = true
	return nil
}

// InsertRows atomically appends a batch of rows under the flush lock
// (spec §4.3). On success, row_count is incremented by one per row and
// offsetToken is recorded as the channel's latest persisted boundary,
// even for an empty batch (spec §8 boundary case). A row that fails
// conversion makes the call return an error wrapping ErrInvalidRow;
// rows of the batch converted before it stay in the buffer and are
// counted, and already appended cells of the failing row are not
// rolled back (spec §9 open question, preserved as-is).
func (b *Buffer) InsertRows(rows []Row, offsetToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.schemaSet {
		return fmt.Errorf("rowbuffer: %s: InsertRows called before SetupSchema", b.fqn())
	}

	for _, row := range rows {
		if err := b.convertRow(row); err != nil {
			return err
		}
		b.rowCount++
		b.curRowIndex++
	}

	b.channel.SetOffsetToken(offsetToken)
	return nil
}

// convertRow implements spec §4.4's per-row conversion. Unknown columns
// fail the row; columns the row omits are left null, provided they are
// nullable -- the policy spec §9 recommends over treating every
// divergence as INVALID_ROW.
func (b *Buffer) convertRow(row Row) error {
	touched := make([]bool, len(b.schema))

	for rawName, value := range row {
		if len(rawName) == 0 {
			return invalidRowf(b.logger, b.fqn(), "empty column name")
		}
		name := normalizeName(rawName)
		idx, ok := b.byName[name]
		if !ok {
			return invalidRowf(b.logger, b.fqn(), "unknown column %q", rawName)
		}
		if touched[idx] {
			return invalidRowf(b.logger, b.fqn(), "column %q supplied more than once", rawName)
		}
		touched[idx] = true

		plan := b.schema[idx]
		vec := b.vectors[idx]
		stats := b.stats[idx]

		if value == nil && !plan.nullable {
			return invalidRowf(b.logger, b.fqn(), "column %q is not nullable", rawName)
		}

		atomicext.AddFloat64(&b.bufferSize, nullBitmapCellCost)

		delta, err := plan.appendCell(vec, value, stats)
		if err != nil {
			return invalidRowf(b.logger, b.fqn(), "column %q: %v", rawName, err)
		}
		if delta != 0 {
			atomicext.AddFloat64(&b.bufferSize, delta)
		}
	}

	for i, plan := range b.schema {
		if touched[i] {
			continue
		}
		if !plan.nullable {
			return invalidRowf(b.logger, b.fqn(), "row is missing required column %q", plan.name)
		}
		atomicext.AddFloat64(&b.bufferSize, nullBitmapCellCost)
		if _, err := plan.appendCell(b.vectors[i], nil, b.stats[i]); err != nil {
			return invalidRowf(b.logger, b.fqn(), "column %q: %v", plan.name, err)
		}
	}
	return nil
}

// Flush returns nil if row_count == 0; otherwise it atomically
// transfers ownership of every column vector into a detached Snapshot,
// builds the EpInfo stats payload, resets internal state, and returns
// the Snapshot (spec §4.3).
func (b *Buffer) Flush() (*Snapshot, error) {
	b.mu.Lock()

	if b.rowCount == 0 {
		b.mu.Unlock()
		return nil, nil
	}

	for _, vec := range b.vectors {
		vec.setValidCount(int(b.curRowIndex))
	}

	cols := make([]Column, len(b.schema))
	names := make([]string, len(b.schema))
	for i, plan := range b.schema {
		cols[i] = Column{
			Name:     plan.name,
			Metadata: plan.meta,
			Vector:   b.vectors[i].transferOut(),
		}
		names[i] = plan.name
	}

	rowCount := b.rowCount
	size := loadBufferSize(&b.bufferSize)
	seq := b.channel.IncrementAndGetRowSequencer()
	offsetToken := b.channel.OffsetToken()
	epInfo := buildEpInfo(rowCount, names, b.stats)

	b.resetLocked()

	b.mu.Unlock()

	return &Snapshot{
		Channel:      b.fqn(),
		Vectors:      cols,
		RowCount:     rowCount,
		BufferSize:   size,
		RowSequencer: seq,
		OffsetToken:  offsetToken,
		EpInfo:       epInfo,
		FlushID:      uuid.New(),
	}, nil
}

// Reset clears every vector, zeroes counters and cur_row_index, and
// replaces every stats entry with a fresh one. Reset acquires the
// mutex itself; Flush, which already holds it, calls resetLocked.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *Buffer) resetLocked() {
	for i, vec := range b.vectors {
		vec.resetVector()
		b.vectors[i] = b.schema[i].newVector(b.arena)
	}
	for i := range b.stats {
		b.stats[i] = newStats()
	}
	b.rowCount = 0
	b.curRowIndex = 0
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&b.bufferSize)), 0)
}

// Close closes every vector, empties the schema maps, and closes the
// allocator. The caller guarantees no other thread touches the buffer
// concurrently (spec §4.3, §5).
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("rowbuffer: %s: already closed", b.fqn())
	}
	for _, vec := range b.vectors {
		vec.closeVector()
	}
	b.vectors = nil
	b.schema = nil
	b.byName = nil
	b.stats = nil
	b.closed = true
	return b.arena.Close()
}

// Size returns the current buffer_size estimate. It is a lock-free,
// volatile read (spec §4.3, §5); minor drift relative to an
// in-progress InsertRows is tolerable.
func (b *Buffer) Size() float64 {
	return loadBufferSize(&b.bufferSize)
}

func loadBufferSize(f *float64) float64 {
	return math.Float64frombits(atomic.LoadUint64((*uint64)(unsafe.Pointer(f))))
}
