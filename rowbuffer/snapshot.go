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

import "github.com/google/uuid"

// Column pairs a column's normalized name and preserved metadata with
// its detached, owned vector, for consumption by a Snapshot's caller.
type Column struct {
	Name     string
	Metadata PreservedMetadata
	Vector   ownedVector
}

// Snapshot is the immutable hand-off artifact produced by Flush (spec
// §2's Flush Snapshot, realizing the "ChannelData" collaborator
// contract of spec §6). Its Vectors are exclusively owned by the
// Snapshot. They are no longer tracked by the Buffer's Arena (their
// allocation handles are released during Flush) and need no explicit
// release.
type Snapshot struct {
	Channel     string
	Vectors     []Column
	RowCount    int64
	BufferSize  float64
	RowSequencer int64
	OffsetToken string
	EpInfo      EpInfo

	// FlushID is a per-flush correlation identifier, beyond what
	// spec.md's ChannelData strictly requires, added for cross-system
	// log correlation the way cmd/snellerd's query handlers stamp a
	// uuid on each request.
	FlushID uuid.UUID
}
