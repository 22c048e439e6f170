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
	"math/big"

	"golang.org/x/exp/slices"
)

// Stats is the running-statistics object maintained for a single column
// across the lifetime of a batch: a count of nulls, the longest observed
// string-like value (in bytes), and a running min/max over whichever
// ordered domain applies to the column (arbitrary-precision integers for
// numeric columns, codepoint order for strings).
//
// Stats has no internal locking: the owning Buffer's mutex (mu) already
// serializes every call into a Stats object (see spec §5), so none is
// needed here, mirroring ion/ranges.go's own unsynchronized dataRange
// implementations (synchronization lives one level up, in Chunker).
type Stats struct {
	nullCount int64
	maxLength int64 // -1 means unset

	minInt *big.Int
	maxInt *big.Int

	minStr    string
	maxStr    string
	strIsSet  bool
}

// newStats returns a fresh Stats with every field in the "unset"
// sentinel state.
func newStats() *Stats {
	return &Stats{maxLength: -1}
}

// IncNull records one more null observation for the column.
func (s *Stats) IncNull() {
	s.nullCount++
}

// AddInt folds an observed integer value into the running min/max.
// The first observation seeds both bounds.
func (s *Stats) AddInt(n *big.Int) {
	if s.minInt == nil {
		s.minInt = new(big.Int).Set(n)
		s.maxInt = new(big.Int).Set(n)
		return
	}
	if n.Cmp(s.minInt) < 0 {
		s.minInt.Set(n)
	}
	if n.Cmp(s.maxInt) > 0 {
		s.maxInt.Set(n)
	}
}

// AddStr folds an observed string into the running min/max, ordered by
// unicode codepoint (Go's native string comparison), per spec §4.5's
// "unicode codepoint order is acceptable".
func (s *Stats) AddStr(v string) {
	if !s.strIsSet {
		s.minStr = v
		s.maxStr = v
		s.strIsSet = true
		return
	}
	if v < s.minStr {
		s.minStr = v
	}
	if v > s.maxStr {
		s.maxStr = v
	}
}

// SetMaxLength folds an observed byte length into the running maximum.
func (s *Stats) SetMaxLength(n int) {
	if int64(n) > s.maxLength {
		s.maxLength = int64(n)
	}
}

// NullCount, MaxLength, MinInt, MaxInt and MinMaxStr expose the
// accumulated values (buildEpInfo reads the fields directly). MaxLength
// returns -1 when unset; MinInt/MaxInt return nil when unset;
// MinMaxStr's third return reports whether any string was observed.
func (s *Stats) NullCount() int64   { return s.nullCount }
func (s *Stats) MaxLength() int64   { return s.maxLength }
func (s *Stats) MinInt() *big.Int   { return s.minInt }
func (s *Stats) MaxInt() *big.Int   { return s.maxInt }
func (s *Stats) MinMaxStr() (string, string, bool) {
	return s.minStr, s.maxStr, s.strIsSet
}

// FileColumnProperties is the per-column slice of the EpInfo payload
// handed to the downstream indexer.
type FileColumnProperties struct {
	MinIntValue *big.Int
	MaxIntValue *big.Int
	MinStrValue *string
	MaxStrValue *string
	MaxLength   int64
	NullCount   int64
}

// EpInfo is the statistics payload produced by a flush: the sole
// communication from the row buffer to the downstream min/max indexer.
type EpInfo struct {
	RowCount int64
	Columns  map[string]FileColumnProperties
}

// buildEpInfo assembles an EpInfo from the per-column stats accumulated
// over a batch. names and stats are parallel slices in schema order;
// names are visited in sorted order, and the result's Columns is a map
// keyed by column name, so it carries no column order of its own.
func buildEpInfo(rowCount int64, names []string, stats []*Stats) EpInfo {
	cols := make(map[string]FileColumnProperties, len(names))
	order := append([]string(nil), names...)
	slices.Sort(order)
	for _, name := range order {
		idx := slices.Index(names, name)
		st := stats[idx]
		props := FileColumnProperties{
			MinIntValue: st.minInt,
			MaxIntValue: st.maxInt,
			MaxLength:   st.maxLength,
			NullCount:   st.nullCount,
		}
		if st.strIsSet {
			min, max := st.minStr, st.maxStr
			props.MinStrValue = &min
			props.MaxStrValue = &max
		}
		cols[name] = props
	}
	return EpInfo{RowCount: rowCount, Columns: cols}
}
