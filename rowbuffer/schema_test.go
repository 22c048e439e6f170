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
	"errors"
	"testing"
)

func TestNormalizeNameIdempotent(t *testing.T) {
	cases := []string{"abc", "ABC", `"MixedCase"`, `"already_unquoted"`, "x"}
	for _, c := range cases {
		once := normalizeName(c)
		twice := normalizeName(once)
		if once != twice {
			t.Errorf("normalizeName(%q) = %q, but normalizeName of that = %q (not idempotent)", c, once, twice)
		}
	}
}

func TestNormalizeNameRules(t *testing.T) {
	tests := []struct{ in, want string }{
		{"lower", "LOWER"},
		{"MiXeD", "MIXED"},
		{`"MiXeD"`, "MiXeD"},
		{`""`, ""},
	}
	for _, tc := range tests {
		if got := normalizeName(tc.in); got != tc.want {
			t.Errorf("normalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResolveColumnPlanTypeMatrix(t *testing.T) {
	tests := []struct {
		name     string
		desc     ColumnDescriptor
		wantKind storageKind
	}{
		{"text", ColumnDescriptor{Name: "a", LogicalType: LogicalText}, kindUTF8},
		{"any", ColumnDescriptor{Name: "a", LogicalType: LogicalAny}, kindUTF8},
		{"array", ColumnDescriptor{Name: "a", LogicalType: LogicalArray}, kindUTF8},
		{"object", ColumnDescriptor{Name: "a", LogicalType: LogicalObject}, kindUTF8},
		{"variant", ColumnDescriptor{Name: "a", LogicalType: LogicalVariant}, kindUTF8},
		{"char", ColumnDescriptor{Name: "a", LogicalType: LogicalChar}, kindUTF8},
		{"fixed sb1", ColumnDescriptor{Name: "a", LogicalType: LogicalFixed, PhysicalType: PhysicalSB1}, kindInt8},
		{"fixed sb2", ColumnDescriptor{Name: "a", LogicalType: LogicalFixed, PhysicalType: PhysicalSB2}, kindInt16},
		{"fixed sb4", ColumnDescriptor{Name: "a", LogicalType: LogicalFixed, PhysicalType: PhysicalSB4}, kindInt32},
		{"fixed sb8", ColumnDescriptor{Name: "a", LogicalType: LogicalFixed, PhysicalType: PhysicalSB8}, kindInt64},
		{"fixed sb16", ColumnDescriptor{Name: "a", LogicalType: LogicalFixed, PhysicalType: PhysicalSB16}, kindDecimal128},
		{"fixed sb4 scaled", ColumnDescriptor{Name: "a", LogicalType: LogicalFixed, PhysicalType: PhysicalSB4, Scale: 2}, kindDecimal128},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := resolveColumnPlan(tc.desc)
			if err != nil {
				t.Fatalf("resolveColumnPlan: %v", err)
			}
			if plan.kind != tc.wantKind {
				t.Errorf("kind = %v, want %v", plan.kind, tc.wantKind)
			}
		})
	}
}

func TestResolveColumnPlanUnknownType(t *testing.T) {
	tests := []ColumnDescriptor{
		{Name: "a", LogicalType: LogicalBoolean},
		{Name: "a", LogicalType: LogicalDate},
		{Name: "a", LogicalType: LogicalFixed, PhysicalType: PhysicalDouble},
		{Name: "a", LogicalType: LogicalFixed, PhysicalType: PhysicalLOB, Scale: 2},
	}
	for _, d := range tests {
		_, err := resolveColumnPlan(d)
		if !errors.Is(err, ErrUnknownDataType) {
			t.Errorf("resolveColumnPlan(%+v): err = %v, want ErrUnknownDataType", d, err)
		}
	}
}

func TestResolveColumnPlanPreservesMetadata(t *testing.T) {
	d := ColumnDescriptor{
		Name: "a", LogicalType: LogicalFixed, PhysicalType: PhysicalSB16,
		Precision: 38, Scale: 4, ByteLength: 16, CharLength: 0,
	}
	plan, err := resolveColumnPlan(d)
	if err != nil {
		t.Fatalf("resolveColumnPlan: %v", err)
	}
	if plan.meta[metaLogicalType] != "FIXED" {
		t.Errorf("metaLogicalType = %q", plan.meta[metaLogicalType])
	}
	if plan.meta[metaPhysicalType] != "SB16" {
		t.Errorf("metaPhysicalType = %q", plan.meta[metaPhysicalType])
	}
	if plan.meta[metaPrecision] != "38" {
		t.Errorf("metaPrecision = %q", plan.meta[metaPrecision])
	}
	if plan.meta[metaScale] != "4" {
		t.Errorf("metaScale = %q", plan.meta[metaScale])
	}
	if plan.meta[metaByteLength] != "16" {
		t.Errorf("metaByteLength = %q", plan.meta[metaByteLength])
	}
	if _, ok := plan.meta[metaCharLength]; ok {
		t.Errorf("metaCharLength should be absent when CharLength is zero")
	}
}

func TestCoerceInt64Overflow(t *testing.T) {
	vec := newNumericVector[int8](NewArena())
	stats := newStats()
	if _, err := appendInt8Cell(vec, 200, stats); err == nil {
		t.Error("expected overflow error appending 200 into an SB1 column")
	}
}
