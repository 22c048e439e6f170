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

package flushio

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sneller-labs/rowbuffer-ingest/rowbuffer"
)

// memUploader is an in-memory Uploader stand-in for tests, playing the
// same role the real aws/s3.Uploader plays in production: it just
// accumulates parts instead of making any network call.
type memUploader struct {
	parts  map[int64][]byte
	final  []byte
	closed bool
}

func newMemUploader() *memUploader {
	return &memUploader{parts: make(map[int64][]byte)}
}

func (m *memUploader) MinPartSize() int { return 0 }

func (m *memUploader) Upload(part int64, contents []byte) error {
	if m.closed {
		return fmt.Errorf("upload after close")
	}
	cp := append([]byte(nil), contents...)
	m.parts[part] = cp
	return nil
}

func (m *memUploader) Close(final []byte) error {
	if m.closed {
		return fmt.Errorf("double close")
	}
	m.closed = true
	m.final = append([]byte(nil), final...)
	return nil
}

func (m *memUploader) Size() int64 {
	var n int64
	for _, p := range m.parts {
		n += int64(len(p))
	}
	return n + int64(len(m.final))
}

func flushedSnapshot(t *testing.T) *rowbuffer.Snapshot {
	t.Helper()
	ch := rowbuffer.NewLocalChannel("db.schema.flushio_test")
	buf := rowbuffer.New(ch)
	if err := buf.SetupSchema([]rowbuffer.ColumnDescriptor{
		{Name: "A", LogicalType: rowbuffer.LogicalFixed, PhysicalType: rowbuffer.PhysicalSB4, Nullable: true},
		{Name: "S", LogicalType: rowbuffer.LogicalText, Nullable: true},
	}); err != nil {
		t.Fatalf("SetupSchema: %v", err)
	}
	if err := buf.InsertRows([]rowbuffer.Row{
		{"A": 1, "S": "hello"},
		{"A": nil, "S": "world"},
	}, "tok"); err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	snap, err := buf.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if snap == nil {
		t.Fatal("expected a non-nil snapshot")
	}
	return snap
}

func TestConsumeUploadsOnePartPerColumnPlusTrailer(t *testing.T) {
	snap := flushedSnapshot(t)
	up := newMemUploader()

	var key Key
	copy(key[:], bytes.Repeat([]byte{0x42}, KeyLength))

	c, err := NewConsumer(up, key)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	if err := c.Consume(snap); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	if len(up.parts) != len(snap.Vectors) {
		t.Errorf("uploaded %d parts, want %d (one per column)", len(up.parts), len(snap.Vectors))
	}
	if !up.closed {
		t.Error("Close was not called")
	}
	if len(up.final) == 0 {
		t.Error("trailer part is empty")
	}
	for i := range snap.Vectors {
		part, ok := up.parts[int64(i+1)]
		if !ok {
			t.Errorf("missing part %d", i+1)
			continue
		}
		if len(part) <= blake2bSumSize {
			t.Errorf("part %d too short to contain a signature: %d bytes", i+1, len(part))
		}
	}
}

func TestConsumeNilSnapshotIsNoop(t *testing.T) {
	up := newMemUploader()
	var key Key
	c, err := NewConsumer(up, key)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	if err := c.Consume(nil); err != nil {
		t.Fatalf("Consume(nil): %v", err)
	}
	if len(up.parts) != 0 || up.closed {
		t.Error("Consume(nil) should not touch the uploader")
	}
}

func TestConsumeFailsWhenUploaderRejects(t *testing.T) {
	snap := flushedSnapshot(t)
	up := newMemUploader()
	up.closed = true // force every Upload to fail

	var key Key
	c, err := NewConsumer(up, key)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	if err := c.Consume(snap); err == nil {
		t.Error("expected Consume to propagate the uploader's error")
	}
}
