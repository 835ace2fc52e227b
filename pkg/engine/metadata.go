package engine

import (
	"fmt"
	"io"

	json "github.com/json-iterator/go"
)

// Entry is one metadata key and its value.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metadata is the program information snapshot produced by the engine,
// in engine order. Keys are free-form.
type Metadata struct {
	entries []Entry
}

// NewMetadata keeps entries in the given order.
func NewMetadata(entries ...Entry) Metadata {
	return Metadata{entries: entries}
}

// Entries returns the entries in engine order.
func (m Metadata) Entries() []Entry {
	return m.entries
}

func (m Metadata) Len() int {
	return len(m.entries)
}

// Get returns the value of the first entry named key.
func (m Metadata) Get(key string) (string, bool) {
	for _, e := range m.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// DecodeMetadata reads the JSON array written by ExportMetadata.java.
func DecodeMetadata(r io.Reader) (Metadata, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return Metadata{}, fmt.Errorf("decoding metadata: %w", err)
	}
	return NewMetadata(entries...), nil
}
