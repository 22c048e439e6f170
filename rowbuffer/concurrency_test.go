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
	"sync"
	"sync/atomic"
	"testing"
)

// S5: a producer inserting rows concurrently with several flusher
// goroutines draining them must leave the buffer in a state consistent
// with some serialization of the goroutines -- every row ends up either in a
// returned Snapshot or still in the live buffer, and the sum across all
// snapshots plus whatever remains accounts for every inserted row.
func TestConcurrentInsertAndFlush(t *testing.T) {
	ch := NewLocalChannel("db.schema.table_concurrent")
	buf := New(ch)
	if err := buf.SetupSchema([]ColumnDescriptor{
		{Name: "A", LogicalType: LogicalFixed, PhysicalType: PhysicalSB4, Nullable: true},
	}); err != nil {
		t.Fatalf("SetupSchema: %v", err)
	}

	const totalRows = 2000
	const flushers = 4

	var producerWg sync.WaitGroup
	producerWg.Add(1)
	go func() {
		defer producerWg.Done()
		for i := 0; i < totalRows; i++ {
			if err := buf.InsertRows([]Row{{"A": i}}, "tok"); err != nil {
				t.Errorf("InsertRows(%d): %v", i, err)
				return
			}
		}
	}()

	var flushedRows int64
	stop := make(chan struct{})
	var flusherWg sync.WaitGroup

	for i := 0; i < flushers; i++ {
		flusherWg.Add(1)
		go func() {
			defer flusherWg.Done()
			for {
				snap, err := buf.Flush()
				if err != nil {
					t.Errorf("Flush: %v", err)
					return
				}
				if snap != nil {
					atomic.AddInt64(&flushedRows, snap.RowCount)
				}
				select {
				case <-stop:
					return
				default:
				}
			}
		}()
	}

	producerWg.Wait()
	close(stop)
	flusherWg.Wait()

	// One last drain: a flusher goroutine may have exited right after
	// the producer finished but before observing its final rows.
	for {
		snap, err := buf.Flush()
		if err != nil {
			t.Fatalf("drain Flush: %v", err)
		}
		if snap == nil {
			break
		}
		atomic.AddInt64(&flushedRows, snap.RowCount)
	}

	if got := atomic.LoadInt64(&flushedRows); got != totalRows {
		t.Errorf("flushedRows = %d, want %d", got, totalRows)
	}
}

// A narrower check of the same property with one producer and one
// flusher: Flush never
// observes a partial row (the lock serializes InsertRows and Flush, so
// RowCount always matches the number of rows fully converted so far).
func TestFlushUnderConcurrentInsertNeverPartial(t *testing.T) {
	ch := NewLocalChannel("db.schema.table_concurrent2")
	buf := New(ch)
	if err := buf.SetupSchema([]ColumnDescriptor{
		{Name: "A", LogicalType: LogicalFixed, PhysicalType: PhysicalSB4, Nullable: true},
		{Name: "S", LogicalType: LogicalText, Nullable: true},
	}); err != nil {
		t.Fatalf("SetupSchema: %v", err)
	}

	var wg sync.WaitGroup
	const batches = 500
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < batches; i++ {
			row := Row{"A": i, "S": "x"}
			if err := buf.InsertRows([]Row{row}, "tok"); err != nil {
				t.Errorf("InsertRows: %v", err)
				return
			}
		}
	}()

	var total int64
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			snap, err := buf.Flush()
			if err != nil {
				t.Errorf("Flush: %v", err)
				return
			}
			if snap != nil {
				for _, col := range snap.Vectors {
					if col.Vector.validCount != int(snap.RowCount) {
						t.Errorf("column %q validCount=%d, RowCount=%d", col.Name, col.Vector.validCount, snap.RowCount)
					}
				}
				total += snap.RowCount
			}
		}
	}()
	wg.Wait()

	final, err := buf.Flush()
	if err != nil {
		t.Fatalf("final Flush: %v", err)
	}
	if final != nil {
		total += final.RowCount
	}
	if total != batches {
		t.Errorf("total flushed rows = %d, want %d", total, batches)
	}
}
