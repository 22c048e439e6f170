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

// Package flushio stands in for the network upload and encoding
// collaborators a row buffer's flush consumer would reach in a full
// deployment (out of scope per this module's scope boundary). It
// compresses and signs a flushed Snapshot's column vectors and hands
// the result to an Uploader, without performing any real network I/O.
package flushio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"github.com/sneller-labs/rowbuffer-ingest/rowbuffer"
)

// Uploader describes what flushio expects an object-store upload API
// to look like (see aws/s3.Uploader for the production implementation
// this contract is modeled on).
type Uploader interface {
	// MinPartSize is the minimum supported part size for the Uploader.
	MinPartSize() int
	// Upload uploads contents as the given part number. Part numbers
	// may be sparse but are always positive and non-zero.
	Upload(part int64, contents []byte) error
	// Close appends final to the object contents and finalizes the
	// object. Close must handle len(final) < MinPartSize().
	Close(final []byte) error
	// Size returns the final size of the uploaded object. It is only
	// valid after Close has been called.
	Size() int64
}

// KeyLength is the size of a signing Key, matching blake2b's native
// keyed-hash key size.
const KeyLength = 32

// blake2bSumSize is the length in bytes of the signature sealPart
// appends to every part, i.e. blake2b.Size256.
const blake2bSumSize = blake2b.Size256

// Key is a shared secret used to sign flushed payloads, the same role
// ion/blockfmt/index.go's Key plays for signed index blobs.
type Key [KeyLength]byte

// Consumer implements rowbuffer's flush-consumer contract: it
// compresses each column's owned vector with zstd, signs the
// compressed bytes with a blake2b keyed hash, and forwards the result
// to an Uploader one column per part, matching the teacher's part-based
// upload shape (aws/s3.Uploader, ion/blockfmt.Uploader).
type Consumer struct {
	up  Uploader
	key Key
	enc *zstd.Encoder
}

// NewConsumer creates a Consumer that uploads to up, signing every
// part with key.
func NewConsumer(up Uploader, key Key) (*Consumer, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("flushio: creating zstd encoder: %w", err)
	}
	return &Consumer{up: up, key: key, enc: enc}, nil
}

// Consume encodes snap's column vectors, compresses and signs each
// one, and uploads them as successive parts, then finalizes the
// upload with a trailer part carrying the channel name, row count,
// row sequencer, offset token and flush ID.
//
// Consume only reads snap and does not retain it. snap.Vectors are
// ordinary Go slices: their Arena accounting already ended when Flush
// transferred them out, so there is nothing to release afterwards.
func (c *Consumer) Consume(snap *rowbuffer.Snapshot) error {
	if snap == nil {
		return nil
	}
	for i, col := range snap.Vectors {
		raw := encodeColumn(col)
		sealed, err := c.sealPart(raw)
		if err != nil {
			return fmt.Errorf("flushio: sealing column %q: %w", col.Name, err)
		}
		if err := c.up.Upload(int64(i+1), sealed); err != nil {
			return fmt.Errorf("flushio: uploading column %q: %w", col.Name, err)
		}
	}
	trailer := encodeTrailer(snap)
	sealed, err := c.sealPart(trailer)
	if err != nil {
		return fmt.Errorf("flushio: sealing trailer: %w", err)
	}
	if err := c.up.Close(sealed); err != nil {
		return fmt.Errorf("flushio: finalizing upload: %w", err)
	}
	return nil
}

// sealPart compresses raw with zstd and appends a blake2b-256 keyed
// signature over the compressed bytes, the same append-a-MAC shape
// ion/blockfmt/index.go's appendSig uses for signed index blobs.
func (c *Consumer) sealPart(raw []byte) ([]byte, error) {
	compressed := c.enc.EncodeAll(raw, nil)
	h, err := blake2b.New256(c.key[:])
	if err != nil {
		return nil, err
	}
	h.Write(compressed)
	return h.Sum(compressed), nil
}

// encodeColumn renders a single column into a simple length-prefixed
// wire form: name, storage kind, metadata, then the vector's own
// encoded payload (see rowbuffer.ownedVector.Encode). This is a
// private wire format, not part of any external contract -- only
// flushio's own Consume needs to agree on it.
func encodeColumn(col rowbuffer.Column) []byte {
	var buf bytes.Buffer
	writeString(&buf, col.Name)
	writeString(&buf, col.Vector.KindName())
	binary.Write(&buf, binary.LittleEndian, uint32(len(col.Metadata)))
	for k, v := range col.Metadata {
		writeString(&buf, k)
		writeString(&buf, v)
	}
	buf.Write(col.Vector.Encode())
	return buf.Bytes()
}

func encodeTrailer(snap *rowbuffer.Snapshot) []byte {
	var buf bytes.Buffer
	writeString(&buf, snap.Channel)
	binary.Write(&buf, binary.LittleEndian, snap.RowCount)
	binary.Write(&buf, binary.LittleEndian, snap.RowSequencer)
	writeString(&buf, snap.OffsetToken)
	writeString(&buf, snap.FlushID.String())
	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}
