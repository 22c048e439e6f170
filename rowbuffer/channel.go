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

	"github.com/dchest/siphash"
)

// Channel is the collaborator contract a Buffer holds a non-owning
// back-reference to (spec §5, §6): the named streaming-ingest session
// the buffer belongs to. The channel outlives the buffer; Buffer never
// attempts to construct or close one.
type Channel interface {
	// Allocator returns the arena column vectors should draw their
	// backing storage from.
	Allocator() *Arena
	// FullyQualifiedName identifies the channel for diagnostics; it is
	// logged with every error (spec §7).
	FullyQualifiedName() string
	// IncrementAndGetRowSequencer atomically advances and returns the
	// channel's monotonic per-flush sequencer.
	IncrementAndGetRowSequencer() int64
	// OffsetToken returns the last externally-known row boundary
	// recorded for this channel.
	OffsetToken() string
	// SetOffsetToken records a new row boundary.
	SetOffsetToken(string)
}

// LocalChannel is an in-process reference implementation of Channel,
// useful for tests and for cmd/rowbufferbench. It has none of the
// control-socket/subprocess machinery tenant.Manager uses to reach a
// remote tenant (that plumbing is out of scope here, per spec §1); it
// only provides the bookkeeping a Buffer actually calls through the
// Channel interface.
type LocalChannel struct {
	name      string
	arena     *Arena
	sequencer int64 // atomic

	mu          sync.Mutex
	offsetToken string

	// correlationID is a stable per-channel hash of the fully
	// qualified name, suitable for grouping this channel's log lines
	// across multiple row buffers in one process -- mirrors the
	// teacher's use of siphash for request-routing hashes (see
	// tenant.go, splitter.go) repurposed here for log correlation
	// instead of routing.
	correlationID uint64
}

// NewLocalChannel creates a LocalChannel with the given fully qualified
// name and a fresh Arena.
func NewLocalChannel(fqn string) *LocalChannel {
	return &LocalChannel{
		name:          fqn,
		arena:         NewArena(),
		correlationID: siphash.Hash(0, 0, []byte(fqn)),
	}
}

func (c *LocalChannel) Allocator() *Arena           { return c.arena }
func (c *LocalChannel) FullyQualifiedName() string  { return c.name }
func (c *LocalChannel) CorrelationID() uint64       { return c.correlationID }

func (c *LocalChannel) IncrementAndGetRowSequencer() int64 {
	return atomic.AddInt64(&c.sequencer, 1)
}

func (c *LocalChannel) OffsetToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offsetToken
}

func (c *LocalChannel) SetOffsetToken(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offsetToken = tok
}
