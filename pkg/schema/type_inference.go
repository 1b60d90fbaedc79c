package schema

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/ajitpratap0/mongobridge/pkg/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Inferred value types.
const (
	TypeString    = "string"
	TypeInteger   = "integer"
	TypeFloat     = "float"
	TypeBoolean   = "boolean"
	TypeTimestamp = "timestamp"
	TypeObject    = "object"
	TypeArray     = "array"
	TypeObjectID  = "objectid"
	TypeUnknown   = "unknown"
)

// TypeInferenceEngine derives relational columns from observed documents
type TypeInferenceEngine struct {
	logger *zap.Logger

	sampleSize          int
	confidenceThreshold float64
}

// InferredType represents a type inference result with confidence
type InferredType struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Nullable   bool    `json:"nullable"`
	Count      int     `json:"count"`
}

// NewTypeInferenceEngine creates a new type inference engine
func NewTypeInferenceEngine(logger *zap.Logger) *TypeInferenceEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypeInferenceEngine{
		logger:              logger,
		sampleSize:          0,
		confidenceThreshold: 0.95,
	}
}

// WithSampleSize bounds the number of records inspected; 0 inspects all.
func (e *TypeInferenceEngine) WithSampleSize(n int) *TypeInferenceEngine {
	e.sampleSize = n
	return e
}

// InferSchema infers a table schema from sample records. The identifier
// field is always the first column, declared as a primary key of
// VARCHAR(idLength); the other fields follow in sorted order.
func (e *TypeInferenceEngine) InferSchema(name, idField string, idLength int, samples []models.Record) (*models.Schema, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples provided for inference")
	}
	if e.sampleSize > 0 && len(samples) > e.sampleSize {
		samples = samples[:e.sampleSize]
	}

	fieldMap := make(map[string][]interface{})
	for _, sample := range samples {
		for key, value := range sample {
			fieldMap[key] = append(fieldMap[key], value)
		}
	}

	names := make([]string, 0, len(fieldMap))
	for fieldName := range fieldMap {
		if fieldName != idField {
			names = append(names, fieldName)
		}
	}
	sort.Strings(names)

	fields := make([]models.Field, 0, len(names)+1)
	fields = append(fields, IDField(idField, idLength))

	for _, fieldName := range names {
		inferred := e.InferType(fieldMap[fieldName])
		// A field absent from some samples is nullable too
		nullable := inferred.Nullable || len(fieldMap[fieldName]) < len(samples)

		fields = append(fields, models.Field{
			Name:     fieldName,
			Type:     inferred.Type,
			SQLType:  SQLType(inferred.Type),
			Required: !nullable,
		})

		e.logger.Debug("inferred column",
			zap.String("field", fieldName),
			zap.String("type", inferred.Type),
			zap.Float64("confidence", inferred.Confidence),
			zap.Bool("nullable", nullable))
	}

	return &models.Schema{Name: name, Fields: fields}, nil
}

// InferType infers the type of a field from sample values
func (e *TypeInferenceEngine) InferType(values []interface{}) *InferredType {
	if len(values) == 0 {
		return &InferredType{Type: TypeUnknown, Nullable: true}
	}

	typeCounts := make(map[string]int)
	nullCount := 0
	for _, v := range values {
		if isBlank(v) {
			nullCount++
			continue
		}
		typeCounts[detectValueType(v)]++
	}

	nonNull := len(values) - nullCount
	if nonNull == 0 {
		return &InferredType{Type: TypeString, Nullable: true, Count: len(values)}
	}

	// Integers widen to float when both are seen
	if typeCounts[TypeInteger] > 0 && typeCounts[TypeFloat] > 0 {
		typeCounts[TypeFloat] += typeCounts[TypeInteger]
		delete(typeCounts, TypeInteger)
	}

	// Find dominant type; ties break on name so the result is stable
	var dominantType string
	maxCount := 0
	for typ, count := range typeCounts {
		if count > maxCount || (count == maxCount && typ < dominantType) {
			maxCount = count
			dominantType = typ
		}
	}

	confidence := float64(maxCount) / float64(nonNull)
	if confidence < e.confidenceThreshold && len(typeCounts) > 1 {
		// Mixed types, default to string
		dominantType = TypeString
	}

	return &InferredType{
		Type:       dominantType,
		Confidence: confidence,
		Nullable:   nullCount > 0,
		Count:      len(values),
	}
}

// isBlank reports whether v carries no value. An empty CSV cell counts
// as missing.
func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// detectValueType detects the type of a single value. Strings are only
// promoted to finite numbers; anything else stays text.
func detectValueType(value interface{}) string {
	switch v := value.(type) {
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32, float64, primitive.Decimal128:
		return TypeFloat
	case string:
		if _, err := strconv.ParseInt(v, 10, 64); err == nil {
			return TypeInteger
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return TypeFloat
		}
		return TypeString
	case time.Time, primitive.DateTime, primitive.Timestamp:
		return TypeTimestamp
	case primitive.ObjectID:
		return TypeObjectID
	case []interface{}, primitive.A:
		return TypeArray
	case map[string]interface{}, primitive.M, primitive.D, models.Record:
		return TypeObject
	default:
		return TypeUnknown
	}
}

// SQLType maps an inferred type to a MySQL column type.
func SQLType(t string) string {
	switch t {
	case TypeInteger:
		return "BIGINT"
	case TypeFloat:
		return "DOUBLE"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeTimestamp:
		return "DATETIME"
	case TypeObject, TypeArray:
		return "JSON"
	case TypeObjectID:
		return "VARCHAR(24)"
	default:
		return "TEXT"
	}
}

// IDField returns the primary key column for the identifier field.
func IDField(name string, length int) models.Field {
	return models.Field{
		Name:       name,
		Type:       TypeString,
		SQLType:    fmt.Sprintf("VARCHAR(%d)", length),
		Required:   true,
		PrimaryKey: true,
	}
}
