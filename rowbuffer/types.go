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

// Package rowbuffer implements the in-memory row buffer of a streaming
// ingestion channel: it accepts loosely-typed application rows, validates
// and coerces each field against a server-supplied column schema,
// accumulates the values in columnar form, maintains per-column running
// statistics, and periodically hands the accumulated batch off to a flush
// pipeline as an owned Snapshot.
package rowbuffer

// LogicalType is the column's logical (application-facing) type, as
// supplied by a server schema descriptor.
type LogicalType string

const (
	LogicalAny            LogicalType = "ANY"
	LogicalBoolean        LogicalType = "BOOLEAN"
	LogicalRowIndex       LogicalType = "ROWINDEX"
	LogicalNull           LogicalType = "NULL"
	LogicalReal           LogicalType = "REAL"
	LogicalFixed          LogicalType = "FIXED"
	LogicalText           LogicalType = "TEXT"
	LogicalChar           LogicalType = "CHAR"
	LogicalBinary         LogicalType = "BINARY"
	LogicalDate           LogicalType = "DATE"
	LogicalTime           LogicalType = "TIME"
	LogicalTimestampLTZ   LogicalType = "TIMESTAMP_LTZ"
	LogicalTimestampNTZ   LogicalType = "TIMESTAMP_NTZ"
	LogicalTimestampTZ    LogicalType = "TIMESTAMP_TZ"
	LogicalInterval       LogicalType = "INTERVAL"
	LogicalRaw            LogicalType = "RAW"
	LogicalArray          LogicalType = "ARRAY"
	LogicalObject         LogicalType = "OBJECT"
	LogicalVariant        LogicalType = "VARIANT"
	LogicalRow            LogicalType = "ROW"
	LogicalSequence       LogicalType = "SEQUENCE"
	LogicalFunction       LogicalType = "FUNCTION"
	LogicalUserDefinedType LogicalType = "USER_DEFINED_TYPE"
)

// PhysicalType is the column's on-the-wire physical encoding width.
type PhysicalType string

const (
	PhysicalRowIndex PhysicalType = "ROWINDEX"
	PhysicalDouble   PhysicalType = "DOUBLE"
	PhysicalSB1      PhysicalType = "SB1"
	PhysicalSB2      PhysicalType = "SB2"
	PhysicalSB4      PhysicalType = "SB4"
	PhysicalSB8      PhysicalType = "SB8"
	PhysicalSB16     PhysicalType = "SB16"
	PhysicalLOB      PhysicalType = "LOB"
	PhysicalBinary   PhysicalType = "BINARY"
	PhysicalRow      PhysicalType = "ROW"
)

// ColumnDescriptor is the server-supplied description of a single column,
// as passed to SetupSchema. The json tags double as the YAML keys test
// fixtures use via sigs.k8s.io/yaml (which converts YAML to JSON before
// unmarshaling).
type ColumnDescriptor struct {
	Name         string       `json:"name"`
	LogicalType  LogicalType  `json:"logicalType"`
	PhysicalType PhysicalType `json:"physicalType,omitempty"`
	Precision    int          `json:"precision,omitempty"`
	Scale        int          `json:"scale,omitempty"`
	ByteLength   int          `json:"byteLength,omitempty"`
	CharLength   int          `json:"charLength,omitempty"`
	Nullable     bool         `json:"nullable,omitempty"`
}

// storageKind is the internal columnar storage representation a column
// plan resolves to. It is deliberately narrower than LogicalType: several
// logical types collapse onto the same storage kind (see schema.go).
type storageKind int

const (
	kindInt8 storageKind = iota
	kindInt16
	kindInt32
	kindInt64
	kindDecimal128
	kindUTF8
)

func (k storageKind) String() string {
	switch k {
	case kindInt8:
		return "i8"
	case kindInt16:
		return "i16"
	case kindInt32:
		return "i32"
	case kindInt64:
		return "i64"
	case kindDecimal128:
		return "decimal128"
	case kindUTF8:
		return "utf8"
	default:
		return "unknown"
	}
}

// PreservedMetadata carries the column metadata that must survive
// unchanged into the downstream columnar encoding's per-field metadata.
// The map keys below are part of the wire contract and must not be
// renamed (see spec §6 "Persistent layout").
type PreservedMetadata map[string]string

const (
	metaPhysicalType = "physicalType"
	metaLogicalType  = "logicalType"
	metaPrecision    = "precision"
	metaScale        = "scale"
	metaCharLength   = "charLength"
	metaByteLength   = "byteLength"
)
