// Package models provides the data models shared by the mongobridge stages.
// A Record is one parsed JSON array element or CSV row; a Schema describes
// the relational columns the records are migrated into.
package models

import (
	"sort"
)

// Record is an unordered mapping of field name to scalar or
// sub-structure value.
type Record map[string]interface{}

// Fields returns the record's field names in sorted order.
func (r Record) Fields() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Schema defines the structure of record data.
type Schema struct {
	// Name identifies the schema (the relational table name)
	Name string `json:"name"`

	// Fields defines the structure of the data
	Fields []Field `json:"fields"`
}

// Field represents a single field in the schema.
type Field struct {
	// Name is the field identifier
	Name string `json:"name"`

	// Type specifies the data type (string, integer, float, boolean,
	// datetime, object, array)
	Type string `json:"type"`

	// SQLType is the relational column type the field maps to
	SQLType string `json:"sql_type,omitempty"`

	// Required indicates if the field must be present
	Required bool `json:"required"`

	// PrimaryKey marks the identifier column
	PrimaryKey bool `json:"primary_key,omitempty"`
}

// FieldNames returns the schema's field names in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Has reports whether the schema declares a field named name.
func (s *Schema) Has(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Missing returns the fields of r the schema does not declare, sorted.
func (s *Schema) Missing(r Record) []string {
	var missing []string
	for _, name := range r.Fields() {
		if !s.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
