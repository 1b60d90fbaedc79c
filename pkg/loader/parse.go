package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"github.com/ajitpratap0/mongobridge/pkg/formats"
	"github.com/ajitpratap0/mongobridge/pkg/json"
	"github.com/ajitpratap0/mongobridge/pkg/models"
)

// Parse turns classified content into records. Unknown content is refused.
func Parse(content []byte, det formats.Detection) ([]models.Record, error) {
	switch det.Format {
	case formats.FormatJSON:
		return ParseJSON(content)
	case formats.FormatCSV:
		return ParseCSV(content, det.Dialect)
	default:
		return nil, errors.New(errors.ErrorTypeFormat, "content is neither JSON nor CSV").
			WithDetail("reason", det.Reason)
	}
}

// ParseJSON parses an array of objects. Integral numbers become int64,
// other numbers float64.
func ParseJSON(content []byte) ([]models.Record, error) {
	v, err := json.Decode(formats.StripBOM(content))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "malformed JSON")
	}

	arr, ok := v.([]interface{})
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeData, "JSON root must be an array of objects, got %s", kindOf(v))
	}

	records := make([]models.Record, 0, len(arr))
	for i, elem := range arr {
		obj, ok := elem.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "JSON array element %d is %s, not an object", i, kindOf(elem)).
				WithDetail("index", i)
		}
		records = append(records, models.Record(obj))
	}
	return records, nil
}

// ParseCSV parses header-driven CSV with the given dialect. Every value is
// kept as a string; a row whose field count differs from the header is an
// error.
func ParseCSV(content []byte, dialect formats.Dialect) ([]models.Record, error) {
	r := csv.NewReader(bytes.NewReader(formats.StripBOM(content)))
	if dialect.Delimiter != 0 {
		r.Comma = dialect.Delimiter
	}
	r.FieldsPerRecord = 0
	r.ReuseRecord = false

	headers, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read CSV header")
	}

	var records []models.Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("malformed CSV row %d", len(records)+1))
		}

		record := make(models.Record, len(headers))
		for i, h := range headers {
			record[h] = row[i]
		}
		records = append(records, record)
	}
	return records, nil
}

func kindOf(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "an object"
	case []interface{}:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	default:
		return "a number"
	}
}
