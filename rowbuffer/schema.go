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
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sneller-labs/rowbuffer-ingest/rowbuffer/decimal"
)

// normalizeName applies the column-name normalization rule of spec
// §4.1: a name that begins and ends with an ASCII double-quote is
// stripped of those quotes and kept verbatim (case preserved);
// otherwise it is upper-cased by ASCII rules.
//
// Applying normalizeName twice gives the same result as applying it
// once for unquoted names (upper-casing again is a no-op) and for
// quoted names without lower-case ASCII letters. A quoted name that
// contains lower-case letters is not: its case-preserved result has no
// quotes left, so a second pass upper-cases it.
func normalizeName(raw string) string {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw[1 : len(raw)-1]
	}
	return strings.ToUpper(raw)
}

// appendFunc performs the per-cell dispatch of spec §4.4 step 5: given
// the raw row value, it writes (or marks null) the corresponding slot
// in vec, folds the value into stats, and returns the buffer_size bytes
// contributed by this cell's payload (not counting the fixed 0.125
// null-bitmap contribution, which the caller adds for every cell
// regardless of type). This is the "tagged variant... typed
// append-and-stats-update closure" redesign of spec §9.
type appendFunc func(vec columnVector, raw any, stats *Stats) (float64, error)

// columnPlan is the immutable, derived plan for a single schema column
// (spec §3's Column Plan).
type columnPlan struct {
	name       string // normalized
	kind       storageKind
	nullable   bool
	precision  int
	scale      int32
	meta       PreservedMetadata
	newVector  func(a *Arena) columnVector
	appendCell appendFunc
}

// resolveColumnPlan implements the Schema Resolver's type mapping table
// (spec §4.1). It returns ErrUnknownDataType for any (logical, physical)
// pair outside the supported subset.
func resolveColumnPlan(d ColumnDescriptor) (*columnPlan, error) {
	name := normalizeName(d.Name)
	meta := PreservedMetadata{
		metaLogicalType:  string(d.LogicalType),
		metaPhysicalType: string(d.PhysicalType),
	}
	if d.Precision != 0 {
		meta[metaPrecision] = strconv.Itoa(d.Precision)
	}
	if d.Scale != 0 {
		meta[metaScale] = strconv.Itoa(d.Scale)
	}
	if d.ByteLength != 0 {
		meta[metaByteLength] = strconv.Itoa(d.ByteLength)
	}
	if d.CharLength != 0 {
		meta[metaCharLength] = strconv.Itoa(d.CharLength)
	}

	switch d.LogicalType {
	case LogicalAny, LogicalArray, LogicalChar, LogicalText, LogicalObject, LogicalVariant:
		return &columnPlan{
			name: name, kind: kindUTF8, nullable: d.Nullable, meta: meta,
			newVector:  func(a *Arena) columnVector { return newStringVector(a) },
			appendCell: appendStringCell,
		}, nil

	case LogicalFixed:
		if d.Scale != 0 {
			return decimalPlan(name, d, meta)
		}
		switch d.PhysicalType {
		case PhysicalSB1:
			return &columnPlan{
				name: name, kind: kindInt8, nullable: d.Nullable, meta: meta,
				newVector:  func(a *Arena) columnVector { return newNumericVector[int8](a) },
				appendCell: appendInt8Cell,
			}, nil
		case PhysicalSB2:
			return &columnPlan{
				name: name, kind: kindInt16, nullable: d.Nullable, meta: meta,
				newVector:  func(a *Arena) columnVector { return newNumericVector[int16](a) },
				appendCell: appendInt16Cell,
			}, nil
		case PhysicalSB4:
			return &columnPlan{
				name: name, kind: kindInt32, nullable: d.Nullable, meta: meta,
				newVector:  func(a *Arena) columnVector { return newNumericVector[int32](a) },
				appendCell: appendInt32Cell,
			}, nil
		case PhysicalSB8:
			return &columnPlan{
				name: name, kind: kindInt64, nullable: d.Nullable, meta: meta,
				newVector:  func(a *Arena) columnVector { return newNumericVector[int64](a) },
				appendCell: appendInt64Cell,
			}, nil
		case PhysicalSB16:
			return decimalPlan(name, d, meta)
		}
	}
	return nil, fmt.Errorf("rowbuffer: unsupported column (logical=%s physical=%s): %w", d.LogicalType, d.PhysicalType, ErrUnknownDataType)
}

func decimalPlan(name string, d ColumnDescriptor, meta PreservedMetadata) (*columnPlan, error) {
	if d.PhysicalType != PhysicalSB1 && d.PhysicalType != PhysicalSB2 &&
		d.PhysicalType != PhysicalSB4 && d.PhysicalType != PhysicalSB8 && d.PhysicalType != PhysicalSB16 {
		return nil, fmt.Errorf("rowbuffer: unsupported decimal physical type %s: %w", d.PhysicalType, ErrUnknownDataType)
	}
	scale := int32(d.Scale)
	return &columnPlan{
		name: name, kind: kindDecimal128, nullable: d.Nullable, precision: d.Precision, scale: scale, meta: meta,
		newVector:  func(a *Arena) columnVector { return newDecimalVector(a) },
		appendCell: makeDecimalAppend(scale),
	}, nil
}

// coerceInt64 converts a loosely-typed row value into an int64,
// accepting every numeric Go representation a decoded application row
// is likely to carry plus integral float64 and decimal-looking
// strings.
func coerceInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float32:
		return coerceFloatToInt(float64(v))
	case float64:
		return coerceFloatToInt(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to integer: %w", v, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to integer", raw)
	}
}

func coerceFloatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("value %v is not an integer", f)
	}
	return int64(f), nil
}

// coerceString stringifies a loosely-typed row value the way a JSON
// encoder would render it, for the utf8 storage kind.
func coerceString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("cannot coerce %T to string", raw)
	}
}

func appendInt8Cell(vec columnVector, raw any, stats *Stats) (float64, error) {
	v := vec.(*numericVector[int8])
	if raw == nil {
		v.appendNull()
		stats.IncNull()
		return 0, nil
	}
	n, err := coerceInt64(raw)
	if err != nil {
		return 0, err
	}
	if n < math.MinInt8 || n > math.MaxInt8 {
		return 0, fmt.Errorf("value %d overflows SB1", n)
	}
	v.appendValue(int8(n))
	stats.AddInt(big.NewInt(n))
	return 1.0, nil
}

func appendInt16Cell(vec columnVector, raw any, stats *Stats) (float64, error) {
	v := vec.(*numericVector[int16])
	if raw == nil {
		v.appendNull()
		stats.IncNull()
		return 0, nil
	}
	n, err := coerceInt64(raw)
	if err != nil {
		return 0, err
	}
	if n < math.MinInt16 || n > math.MaxInt16 {
		return 0, fmt.Errorf("value %d overflows SB2", n)
	}
	v.appendValue(int16(n))
	stats.AddInt(big.NewInt(n))
	return 2.0, nil
}

func appendInt32Cell(vec columnVector, raw any, stats *Stats) (float64, error) {
	v := vec.(*numericVector[int32])
	if raw == nil {
		v.appendNull()
		stats.IncNull()
		return 0, nil
	}
	n, err := coerceInt64(raw)
	if err != nil {
		return 0, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("value %d overflows SB4", n)
	}
	v.appendValue(int32(n))
	stats.AddInt(big.NewInt(n))
	return 4.0, nil
}

func appendInt64Cell(vec columnVector, raw any, stats *Stats) (float64, error) {
	v := vec.(*numericVector[int64])
	if raw == nil {
		v.appendNull()
		stats.IncNull()
		return 0, nil
	}
	n, err := coerceInt64(raw)
	if err != nil {
		return 0, err
	}
	v.appendValue(n)
	stats.AddInt(big.NewInt(n))
	return 8.0, nil
}

// makeDecimalAppend builds the SB16 append closure for a fixed scale.
// Per spec §4.4: a null SB16 cell marks the vector null but does NOT
// call stats.IncNull -- preserved open question, see DESIGN.md.
func makeDecimalAppend(scale int32) appendFunc {
	return func(vec columnVector, raw any, stats *Stats) (float64, error) {
		v := vec.(*decimalVector)
		if raw == nil {
			v.appendNull()
			// NOTE: no stats.IncNull() here -- see spec §9 open question,
			// preserved as-is rather than silently fixed.
			return 0, nil
		}
		s, err := coerceDecimalString(raw)
		if err != nil {
			return 0, err
		}
		d, err := decimal.Parse(s, scale)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to decimal(scale=%d): %w", s, scale, err)
		}
		v.appendValue(d)
		stats.AddInt(d.Truncate())
		return 16.0, nil
	}
}

func coerceDecimalString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 64), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("cannot coerce %T to decimal", raw)
	}
}

func appendStringCell(vec columnVector, raw any, stats *Stats) (float64, error) {
	v := vec.(*stringVector)
	if raw == nil {
		v.appendNull()
		stats.IncNull()
		return 0, nil
	}
	s, err := coerceString(raw)
	if err != nil {
		return 0, err
	}
	if !utf8.ValidString(s) {
		return 0, fmt.Errorf("value is not valid utf-8")
	}
	b := []byte(s)
	v.appendBytes(b)
	stats.SetMaxLength(len(b))
	stats.AddStr(s)
	return float64(len(b)), nil
}
