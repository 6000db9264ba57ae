package encoding

import (
	"bytes"
	"encoding/json"
	"sync"
	"sync/atomic"
)

// bufferCap is the initial capacity for pooled buffers. Catalogue pages
// and scoring responses typically serialize to a few kilobytes.
const bufferCap = 4 * 1024

// maxPooledBufferCap keeps oversized buffers out of the pool so a single
// large snapshot export does not pin memory for the rest of the process.
const maxPooledBufferCap = 1 << 20

// OptimizedJSONEncoder marshals through a sync.Pool of byte buffers to
// avoid a fresh allocation per response.
type OptimizedJSONEncoder struct {
	buffers sync.Pool

	marshals   atomic.Int64
	unmarshals atomic.Int64
	discarded  atomic.Int64
}

// NewOptimizedJSONEncoder returns an encoder with an empty buffer pool.
func NewOptimizedJSONEncoder() *OptimizedJSONEncoder {
	e := &OptimizedJSONEncoder{}
	e.buffers.New = func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, bufferCap))
	}
	return e
}

// Marshal encodes v to compact JSON without the trailing newline that
// json.Encoder appends.
func (e *OptimizedJSONEncoder) Marshal(v interface{}) ([]byte, error) {
	e.marshals.Add(1)

	buf := e.buffers.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		e.buffers.Put(buf)
		return nil, err
	}

	data := buf.Bytes()
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}

	// The caller keeps the returned slice, so copy before the buffer
	// goes back into the pool.
	out := make([]byte, len(data))
	copy(out, data)

	if buf.Cap() <= maxPooledBufferCap {
		e.buffers.Put(buf)
	} else {
		e.discarded.Add(1)
	}

	return out, nil
}

// Unmarshal decodes data into v.
func (e *OptimizedJSONEncoder) Unmarshal(data []byte, v interface{}) error {
	e.unmarshals.Add(1)
	return json.Unmarshal(data, v)
}

// GetStats reports pool usage counters for the debug endpoint.
func (e *OptimizedJSONEncoder) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"marshal_count":     e.marshals.Load(),
		"unmarshal_count":   e.unmarshals.Load(),
		"discarded_buffers": e.discarded.Load(),
		"buffer_capacity":   bufferCap,
	}
}

var globalEncoder = NewOptimizedJSONEncoder()

// MarshalJSON encodes v using the process-wide encoder.
func MarshalJSON(v interface{}) ([]byte, error) {
	return globalEncoder.Marshal(v)
}

// UnmarshalJSON decodes data using the process-wide encoder.
func UnmarshalJSON(data []byte, v interface{}) error {
	return globalEncoder.Unmarshal(data, v)
}
