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

// Command rowbufferbench sets up a rowbuffer.Buffer's schema once and
// drives it through repeated insert/flush cycles against an in-process Channel and an
// in-memory flushio.Consumer, reporting row and flush throughput.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/sneller-labs/rowbuffer-ingest/internal/flushio"
	"github.com/sneller-labs/rowbuffer-ingest/rowbuffer"
)

func exitf(err error) {
	log.Print(err)
	_, _ = fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// discardUploader is a flushio.Uploader that drops every part; it
// exists only to exercise internal/flushio's encode/compress/sign path
// under this benchmark without retaining any memory.
type discardUploader struct {
	n int64
}

func (d *discardUploader) MinPartSize() int { return 0 }

func (d *discardUploader) Upload(part int64, contents []byte) error {
	d.n += int64(len(contents))
	return nil
}

func (d *discardUploader) Close(final []byte) error {
	d.n += int64(len(final))
	return nil
}

func (d *discardUploader) Size() int64 { return d.n }

func main() {
	rows := flag.Int("rows", 1_000_000, "total rows to insert")
	batch := flag.Int("batch", 500, "rows per InsertRows call")
	flushEvery := flag.Int("flush-every", 10_000, "rows between Flush calls")
	flag.Parse()

	ch := rowbuffer.NewLocalChannel("bench.schema.table")
	buf := rowbuffer.New(ch)
	err := buf.SetupSchema([]rowbuffer.ColumnDescriptor{
		{Name: "ID", LogicalType: rowbuffer.LogicalFixed, PhysicalType: rowbuffer.PhysicalSB8, Nullable: false},
		{Name: "AMOUNT", LogicalType: rowbuffer.LogicalFixed, PhysicalType: rowbuffer.PhysicalSB16, Precision: 20, Scale: 2, Nullable: true},
		{Name: "LABEL", LogicalType: rowbuffer.LogicalText, Nullable: true},
	})
	if err != nil {
		exitf(fmt.Errorf("SetupSchema: %w", err))
	}
	defer buf.Close()

	var key flushio.Key
	consumer, err := flushio.NewConsumer(&discardUploader{}, key)
	if err != nil {
		exitf(fmt.Errorf("NewConsumer: %w", err))
	}

	start := time.Now()
	var flushes, flushedRows int64

	for inserted := 0; inserted < *rows; {
		n := *batch
		if inserted+n > *rows {
			n = *rows - inserted
		}
		batchRows := make([]rowbuffer.Row, n)
		for i := range batchRows {
			batchRows[i] = rowbuffer.Row{
				"ID":     int64(inserted + i),
				"AMOUNT": fmt.Sprintf("%d.%02d", rand.Intn(10000), rand.Intn(100)),
				"LABEL":  "bench-row",
			}
		}
		if err := buf.InsertRows(batchRows, fmt.Sprintf("tok-%d", inserted+n)); err != nil {
			exitf(fmt.Errorf("InsertRows: %w", err))
		}
		inserted += n

		if inserted%*flushEvery == 0 || inserted == *rows {
			snap, err := buf.Flush()
			if err != nil {
				exitf(fmt.Errorf("Flush: %w", err))
			}
			if snap != nil {
				if err := consumer.Consume(snap); err != nil {
					exitf(fmt.Errorf("Consume: %w", err))
				}
				flushes++
				flushedRows += snap.RowCount
			}
		}
	}

	elapsed := time.Since(start)
	log.Printf("inserted %d rows across %d flushes in %s (%.0f rows/sec)",
		flushedRows, flushes, elapsed, float64(flushedRows)/elapsed.Seconds())
}
