package migrate

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"github.com/ajitpratap0/mongobridge/pkg/json"
	"github.com/ajitpratap0/mongobridge/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EncodeID renders a document identifier as a key of at most length
// characters. An ObjectID becomes its 24 character hex form; anything else
// is stringified and cut to length, reporting whether it was cut.
func EncodeID(v interface{}, length int) (string, bool) {
	var s string
	switch id := v.(type) {
	case nil:
		return "", false
	case primitive.ObjectID:
		s = id.Hex()
	case string:
		s = id
	default:
		s = fmt.Sprint(id)
	}
	if length > 0 && len(s) > length {
		return s[:length], true
	}
	return s, false
}

// ToRecord converts a stored document into column values. Sub-documents
// and arrays become JSON text; datetimes become time.Time.
func ToRecord(doc bson.M, idField string) (models.Record, error) {
	out := make(models.Record, len(doc))
	for k, v := range doc {
		if k == idField {
			out[k] = v
			continue
		}
		cv, err := ColumnValue(v)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "unsupported value").WithDetail("field", k)
		}
		out[k] = cv
	}
	return out, nil
}

// blankRejecting are the MySQL base types that cannot store an empty string
var blankRejecting = map[string]bool{
	"TINYINT": true, "SMALLINT": true, "MEDIUMINT": true, "INT": true, "INTEGER": true, "BIGINT": true,
	"DECIMAL": true, "NUMERIC": true, "FLOAT": true, "DOUBLE": true, "REAL": true, "BIT": true,
	"BOOL": true, "BOOLEAN": true,
	"DATE": true, "DATETIME": true, "TIMESTAMP": true, "TIME": true, "YEAR": true,
	"JSON": true,
}

// NullBlanks replaces empty strings with NULL in every column of s whose
// type cannot hold text. The primary key is left alone.
func NullBlanks(s *models.Schema, rec models.Record) {
	for _, f := range s.Fields {
		if f.PrimaryKey || !rejectsBlank(f.SQLType) {
			continue
		}
		if v, ok := rec[f.Name].(string); ok && v == "" {
			rec[f.Name] = nil
		}
	}
}

func rejectsBlank(sqlType string) bool {
	base := strings.ToUpper(strings.TrimSpace(sqlType))
	if i := strings.IndexAny(base, "( "); i >= 0 {
		base = base[:i]
	}
	return blankRejecting[base]
}

// ColumnValue converts one document value into a driver argument
func ColumnValue(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return nil, nil
	case string, bool, int64, float64, []byte, time.Time:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float32:
		return float64(t), nil
	case primitive.ObjectID:
		return t.Hex(), nil
	case primitive.DateTime:
		return t.Time().UTC(), nil
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC(), nil
	case primitive.Decimal128:
		return t.String(), nil
	case primitive.Binary:
		return t.Data, nil
	case primitive.Regex:
		return t.String(), nil
	case primitive.Symbol:
		return string(t), nil
	case bson.M, bson.D, bson.A, map[string]interface{}, []interface{}, models.Record:
		plain, err := plainValue(t)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(plain)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return nil, fmt.Errorf("cannot store %T in a column", v)
	}
}

// plainValue rewrites nested documents into maps and slices the JSON
// encoder renders naturally.
func plainValue(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			pv, err := plainValue(e.Value)
			if err != nil {
				return nil, err
			}
			m[e.Key] = pv
		}
		return m, nil
	case bson.M:
		return plainMap(t)
	case models.Record:
		return plainMap(t)
	case map[string]interface{}:
		return plainMap(t)
	case bson.A:
		return plainSlice(t)
	case []interface{}:
		return plainSlice(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano), nil
	default:
		cv, err := ColumnValue(v)
		if err != nil {
			return nil, err
		}
		if tm, ok := cv.(time.Time); ok {
			return tm.Format(time.RFC3339Nano), nil
		}
		return cv, nil
	}
}

func plainMap(m map[string]interface{}) (interface{}, error) {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		pv, err := plainValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = pv
	}
	return out, nil
}

func plainSlice(s []interface{}) (interface{}, error) {
	out := make([]interface{}, len(s))
	for i, v := range s {
		pv, err := plainValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = pv
	}
	return out, nil
}
