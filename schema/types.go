/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
// Package schema implements the Schema Registry: a persistent, append-only
// mapping event_type -> {uid, field types}. All on-disk artifacts key off
// uid, never event_type, so renaming an event_type is a no-op.
//
// Grounded on storage/schema_fs.go and storage/table.go's column/type
// handling elsewhere; the CRC32-framed append log mirrors the binary
// header idiom used throughout storage/storage-int.go.
package schema

import "fmt"

// Kind enumerates the field types a schema can declare.
type Kind uint8

const (
	KindString Kind = iota
	KindU64
	KindI64
	KindF64
	KindBool
	KindI32Date
	KindEnum
	KindOptional
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindU64:
		return "u64"
	case KindI64:
		return "i64"
	case KindF64:
		return "f64"
	case KindBool:
		return "bool"
	case KindI32Date:
		return "date"
	case KindEnum:
		return "enum"
	case KindOptional:
		return "optional"
	default:
		return "unknown"
	}
}

// FieldType is the full type of a schema field, including enum variants
// (in declaration order, since EnumBitmap indexes by variant position)
// and an optional wrapper around another FieldType.
type FieldType struct {
	Kind     Kind
	Variants []string   // only for KindEnum, declaration order
	Inner    *FieldType // only for KindOptional
}

// Nullable reports whether an event may omit this field.
func (f FieldType) Nullable() bool {
	return f.Kind == KindOptional
}

// VariantIndex returns the declaration-order index of variant v, or -1.
func (f FieldType) VariantIndex(v string) int {
	for i, want := range f.Variants {
		if want == v {
			return i
		}
	}
	return -1
}

func (f FieldType) String() string {
	if f.Kind == KindOptional && f.Inner != nil {
		return "optional<" + f.Inner.String() + ">"
	}
	if f.Kind == KindEnum {
		return fmt.Sprintf("enum%v", f.Variants)
	}
	return f.Kind.String()
}

// Schema is the registered shape of one event_type.
type Schema struct {
	EventType string
	UID       string
	Fields    map[string]FieldType
}

// Record is the append-only, CRC32-framed on-disk representation of a
// Schema. New fields may be appended to a later Record for the same uid,
// but existing fields are never removed.
type Record struct {
	EventType string
	UID       string
	Fields    map[string]FieldType
}
