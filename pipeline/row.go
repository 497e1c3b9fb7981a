// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package pipeline

import (
	"maps"

	"github.com/cardinalhq/spillway/pipeline/wkk"
)

// Row represents a single data row as a map of RowKey to any value.
type Row map[wkk.RowKey]any

// CopyRow creates a deep copy of a row.
func CopyRow(in Row) Row {
	out := make(Row, len(in))
	maps.Copy(out, in)
	return out
}

// ToStringMap converts a Row to map[string]any for codecs that need plain
// string keys.
func ToStringMap(row Row) map[string]any {
	result := make(map[string]any, len(row))
	for key, value := range row {
		result[wkk.KeyString(key)] = value
	}
	return result
}

// FromStringMap converts a plain map back to a Row with interned keys.
func FromStringMap(m map[string]any) Row {
	row := make(Row, len(m))
	for key, value := range m {
		row[wkk.NewRowKey(key)] = value
	}
	return row
}
