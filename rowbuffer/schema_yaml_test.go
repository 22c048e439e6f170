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
	"os"
	"testing"

	"sigs.k8s.io/yaml"
)

// TestSetupSchemaFromYAML loads a column schema from a YAML fixture
// (as a server's schema descriptor might be shipped) and drives a
// Buffer through it end to end.
func TestSetupSchemaFromYAML(t *testing.T) {
	raw, err := os.ReadFile("testdata/schema_orders.yaml")
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}

	var columns []ColumnDescriptor
	if err := yaml.Unmarshal(raw, &columns); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if len(columns) != 3 {
		t.Fatalf("len(columns) = %d, want 3", len(columns))
	}
	if columns[0].Name != "ORDER_ID" || columns[0].PhysicalType != PhysicalSB8 {
		t.Errorf("columns[0] = %+v", columns[0])
	}
	if columns[2].Scale != 2 || columns[2].PhysicalType != PhysicalSB16 {
		t.Errorf("columns[2] = %+v", columns[2])
	}

	ch := NewLocalChannel("db.schema.orders")
	buf := New(ch)
	if err := buf.SetupSchema(columns); err != nil {
		t.Fatalf("SetupSchema: %v", err)
	}
	if err := buf.InsertRows([]Row{
		{"ORDER_ID": 1, "CUSTOMER_NAME": "Ada Lovelace", "TOTAL": "129.99"},
	}, "tok"); err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	snap, err := buf.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if snap.RowCount != 1 {
		t.Errorf("RowCount = %d, want 1", snap.RowCount)
	}
}
