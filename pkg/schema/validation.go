// Package schema infers relational column definitions from documents and
// checks documents against a declared column set before they are migrated.
package schema

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/mongobridge/pkg/models"
)

// ValidationErrorType classifies a validation failure
type ValidationErrorType string

const (
	// ValidationErrorRequired means a required field is absent or null
	ValidationErrorRequired ValidationErrorType = "required"
	// ValidationErrorUnknownField means the record has a field with no column
	ValidationErrorUnknownField ValidationErrorType = "unknown_field"
)

// ValidationError describes one field that does not fit the schema
type ValidationError struct {
	Field   string              `json:"field"`
	VType   ValidationErrorType `json:"type"`
	Message string              `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Message
}

// ValidateRecord checks that every field of record has a column in schema
// and that required columns are present. Unknown fields are reported in
// sorted order.
func ValidateRecord(record models.Record, schema *models.Schema) []ValidationError {
	var errs []ValidationError

	for _, field := range schema.Fields {
		if !field.Required {
			continue
		}
		if value, exists := record[field.Name]; !exists || value == nil {
			errs = append(errs, ValidationError{
				Field:   field.Name,
				VType:   ValidationErrorRequired,
				Message: fmt.Sprintf("required field '%s' is missing", field.Name),
			})
		}
	}

	for _, name := range schema.Missing(record) {
		errs = append(errs, ValidationError{
			Field:   name,
			VType:   ValidationErrorUnknownField,
			Message: fmt.Sprintf("field '%s' has no column in table '%s'", name, schema.Name),
		})
	}

	return errs
}

// JoinErrors renders validation errors as one message
func JoinErrors(errs []ValidationError) string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}
