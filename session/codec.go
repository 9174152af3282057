// Codec defines how session records are serialized to and from bytes, so
// they can be handed to a Store. The package includes a default
// implementation using Go's `encoding/gob` and a JSON one for stores that
// are read by other programs.
package session

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"time"
)

// Record is what a Store persists for one session.
type Record struct {
	CreatedAt time.Time
	ExpiresAt time.Time
	Values    map[string]any
}

// expired reports whether the record is past its expiration time at now.
func (r Record) expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Codec is an interface for serializing and deserializing session records.
type Codec interface {
	// Decode decodes a byte slice into a session record.
	Decode(data []byte) (Record, error)

	// Encode encodes a session record into a byte slice.
	Encode(rec Record) ([]byte, error)
}

// Ensure the codecs implement Codec.
var (
	_ Codec = GobCodec{}
	_ Codec = JSONCodec{}
)

// GobCodec is a Codec implementation using Go's encoding/gob. Values of
// custom types stored in a session must be registered with gob.Register.
type GobCodec struct{}

// Encode serializes the record into a byte slice using gob encoding.
func (GobCodec) Encode(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)

	err := encoder.Encode(&rec)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode deserializes the data into a record using gob decoding.
func (GobCodec) Decode(data []byte) (Record, error) {
	decoder := gob.NewDecoder(bytes.NewReader(data))

	var rec Record
	err := decoder.Decode(&rec)
	if rec.Values == nil {
		rec.Values = make(map[string]any)
	}
	return rec, err
}

// JSONCodec is a Codec implementation using encoding/json. Numbers decode
// as float64, so typed getters should be used with care.
type JSONCodec struct{}

type jsonRecord struct {
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Values    map[string]any `json:"values,omitempty"`
}

// Encode serializes the record into JSON.
func (JSONCodec) Encode(rec Record) ([]byte, error) {
	return json.Marshal(jsonRecord(rec))
}

// Decode deserializes a JSON record.
func (JSONCodec) Decode(data []byte) (Record, error) {
	var jr jsonRecord
	err := json.Unmarshal(data, &jr)
	if jr.Values == nil {
		jr.Values = make(map[string]any)
	}
	return Record(jr), err
}
