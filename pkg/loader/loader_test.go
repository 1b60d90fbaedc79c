package loader

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"github.com/ajitpratap0/mongobridge/pkg/formats"
	"github.com/ajitpratap0/mongobridge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memoryCollection is an in-memory Inserter with insert_many semantics
type memoryCollection struct {
	docs  []interface{}
	calls int
	err   error
}

func (m *memoryCollection) InsertMany(_ context.Context, docs []interface{}) (int, error) {
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	m.docs = append(m.docs, docs...)
	return len(docs), nil
}

func load(t *testing.T, coll *memoryCollection, content string) (*Result, error) {
	t.Helper()
	data := []byte(content)
	return New(coll, zaptest.NewLogger(t)).Load(context.Background(), data, formats.Detect(data))
}

func TestLoad_JSONArrayInsertsEveryElement(t *testing.T) {
	for _, n := range []int{1, 3, 25} {
		t.Run(fmt.Sprintf("%d elements", n), func(t *testing.T) {
			items := make([]string, n)
			for i := range items {
				items[i] = fmt.Sprintf(`{"title":"dish %d","minutes":%d}`, i, i*5)
			}
			coll := &memoryCollection{}

			res, err := load(t, coll, "["+strings.Join(items, ",")+"]")
			require.NoError(t, err)

			assert.Equal(t, formats.FormatJSON, res.Format)
			assert.Equal(t, n, res.Inserted)
			assert.Len(t, coll.docs, n)
			assert.Equal(t, 1, coll.calls, "single bulk insert")
		})
	}
}

func TestLoad_JSONNumbersNormalized(t *testing.T) {
	coll := &memoryCollection{}
	_, err := load(t, coll, `[{"minutes": 20, "rating": 4.5}]`)
	require.NoError(t, err)

	doc := coll.docs[0].(models.Record)
	assert.Equal(t, int64(20), doc["minutes"])
	assert.Equal(t, 4.5, doc["rating"])
}

func TestLoad_CSVRowsKeyedByHeader(t *testing.T) {
	coll := &memoryCollection{}
	res, err := load(t, coll, "title,minutes\nCarbonara,20\nGricia,25\nAmatriciana,30\n")
	require.NoError(t, err)

	assert.Equal(t, formats.FormatCSV, res.Format)
	require.Len(t, coll.docs, 3)
	for _, d := range coll.docs {
		assert.ElementsMatch(t, []string{"minutes", "title"}, d.(models.Record).Fields())
	}
	assert.Equal(t, models.Record{"title": "Gricia", "minutes": "25"}, coll.docs[1])
}

func TestLoad_CSVSniffedDelimiter(t *testing.T) {
	coll := &memoryCollection{}
	_, err := load(t, coll, "title;minutes\nCarbonara;20\n")
	require.NoError(t, err)
	assert.Equal(t, models.Record{"title": "Carbonara", "minutes": "20"}, coll.docs[0])
}

func TestLoad_RerunDoublesCount(t *testing.T) {
	coll := &memoryCollection{}
	content := `[{"title":"Carbonara"},{"title":"Gricia"}]`

	_, err := load(t, coll, content)
	require.NoError(t, err)
	_, err = load(t, coll, content)
	require.NoError(t, err)

	assert.Len(t, coll.docs, 4)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantType errors.ErrorType
	}{
		{"unknown format", "no delimiters at all\n", errors.ErrorTypeFormat},
		{"object root", `{"title":"Carbonara"}`, errors.ErrorTypeData},
		{"scalar elements", `[1, 2]`, errors.ErrorTypeData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coll := &memoryCollection{}
			_, err := load(t, coll, tt.content)
			require.Error(t, err)

			assert.True(t, errors.IsType(err, tt.wantType), "got %v", err)
			assert.Zero(t, coll.calls, "nothing inserted")
		})
	}
}

func TestLoad_RaggedCSVRow(t *testing.T) {
	coll := &memoryCollection{}
	det := formats.Detection{Format: formats.FormatCSV, Dialect: formats.Dialect{Delimiter: ',', Quote: '"'}}

	_, err := New(coll, zaptest.NewLogger(t)).Load(context.Background(), []byte("a,b\n1,2\n3,4,5\n"), det)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.Zero(t, coll.calls)
}

func TestLoad_EmptyRecordSetSkipsInsert(t *testing.T) {
	for _, content := range []string{"[]", "title,minutes\n"} {
		coll := &memoryCollection{}
		res, err := load(t, coll, content)
		require.NoError(t, err)
		assert.Zero(t, res.Inserted)
		assert.Zero(t, coll.calls)
	}
}

func TestLoad_InsertFailureIsQueryError(t *testing.T) {
	coll := &memoryCollection{err: fmt.Errorf("E11000 duplicate key")}
	_, err := load(t, coll, `[{"a":1}]`)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
}

func TestParse_RefusesUnknown(t *testing.T) {
	_, err := Parse([]byte("x"), formats.Detection{Format: formats.FormatUnknown})
	assert.True(t, errors.IsType(err, errors.ErrorTypeFormat))
}
