// Package json wraps goccy/go-json with the decoding conventions used across mongobridge
package json

import (
	"bytes"
	"io"
	"math"
	"sync"

	gojson "github.com/goccy/go-json"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Valid reports whether data is one complete JSON value
func Valid(data []byte) bool {
	return gojson.Valid(data)
}

// Marshal encodes v without HTML escaping
func Marshal(v interface{}) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	return append([]byte(nil), out...), nil
}

// Unmarshal decodes data into v
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// Decode parses data into a generic value, keeping numbers exact until
// Normalize turns them into int64 or float64.
func Decode(data []byte) (interface{}, error) {
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// Trailing content after the first value is not a single JSON document
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return nil, errTrailingData
		}
		return nil, err
	}
	return Normalize(v), nil
}

// Normalize converts decoded numbers to int64 when integral and float64
// otherwise, walking objects and arrays.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case gojson.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, err := t.Float64()
		if err != nil || math.IsInf(f, 0) {
			return t.String()
		}
		return f
	case map[string]interface{}:
		for k, val := range t {
			t[k] = Normalize(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = Normalize(val)
		}
		return t
	default:
		return v
	}
}

// LineEncoder writes one JSON document per line
type LineEncoder struct {
	enc *gojson.Encoder
}

// NewLineEncoder creates a JSON lines encoder on w
func NewLineEncoder(w io.Writer) *LineEncoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &LineEncoder{enc: enc}
}

// Encode writes v followed by a newline
func (e *LineEncoder) Encode(v interface{}) error {
	return e.enc.Encode(v)
}

type jsonError string

func (e jsonError) Error() string { return string(e) }

const errTrailingData = jsonError("invalid character after top-level value")
