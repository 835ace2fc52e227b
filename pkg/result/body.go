package result

import (
	"fmt"
	"io"

	json "github.com/json-iterator/go"
	"github.com/samber/lo"
)

// KV is one body line.
type KV struct {
	Key   string
	Value string
}

// KVBody is a key/value listing that keeps insertion order, also on the wire.
type KVBody struct {
	items []KV
}

// Set appends key, or replaces its value in place when already present.
func (b *KVBody) Set(key, value string) {
	for i := range b.items {
		if b.items[i].Key == key {
			b.items[i].Value = value
			return
		}
	}
	b.items = append(b.items, KV{Key: key, Value: value})
}

// Items returns the pairs in insertion order.
func (b KVBody) Items() []KV {
	return b.items
}

func (b KVBody) Len() int {
	return len(b.items)
}

// MarshalJSON writes the body as an object with keys in insertion order.
func (b KVBody) MarshalJSON() ([]byte, error) {
	stream := json.ConfigCompatibleWithStandardLibrary.BorrowStream(nil)
	defer json.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)

	stream.WriteObjectStart()
	for i, kv := range b.items {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(kv.Key)
		stream.WriteString(kv.Value)
	}
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

func (b *KVBody) UnmarshalJSON(data []byte) error {
	iter := json.ConfigCompatibleWithStandardLibrary.BorrowIterator(data)
	defer json.ConfigCompatibleWithStandardLibrary.ReturnIterator(iter)

	body := KVBody{}
	iter.ReadObjectCB(func(it *json.Iterator, key string) bool {
		body.Set(key, it.ReadString())
		return true
	})
	if iter.Error != nil && iter.Error != io.EOF {
		return fmt.Errorf("decoding key/value body: %w", iter.Error)
	}
	*b = body
	return nil
}

// Tags groups tag values by tag type. Types and values keep the order they
// were first added in; a value is stored once per type.
type Tags struct {
	types  []string
	values map[string][]string
}

// Add appends value under tagType. Empty types and values carry nothing to
// search on and are ignored.
func (t *Tags) Add(tagType, value string) {
	if tagType == "" || value == "" {
		return
	}
	if t.values == nil {
		t.values = make(map[string][]string)
	}
	current, ok := t.values[tagType]
	if !ok {
		t.types = append(t.types, tagType)
	}
	if lo.Contains(current, value) {
		return
	}
	t.values[tagType] = append(current, value)
}

// Get returns the values of tagType in insertion order.
func (t Tags) Get(tagType string) []string {
	return t.values[tagType]
}

// Types returns the tag types in insertion order.
func (t Tags) Types() []string {
	return t.types
}

// Len is the number of tag values across all types.
func (t Tags) Len() int {
	return lo.SumBy(t.types, func(typ string) int {
		return len(t.values[typ])
	})
}

func (t Tags) MarshalJSON() ([]byte, error) {
	stream := json.ConfigCompatibleWithStandardLibrary.BorrowStream(nil)
	defer json.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)

	stream.WriteObjectStart()
	for i, typ := range t.types {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(typ)
		stream.WriteArrayStart()
		for j, v := range t.values[typ] {
			if j > 0 {
				stream.WriteMore()
			}
			stream.WriteString(v)
		}
		stream.WriteArrayEnd()
	}
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

func (t *Tags) UnmarshalJSON(data []byte) error {
	iter := json.ConfigCompatibleWithStandardLibrary.BorrowIterator(data)
	defer json.ConfigCompatibleWithStandardLibrary.ReturnIterator(iter)

	tags := Tags{}
	iter.ReadObjectCB(func(it *json.Iterator, typ string) bool {
		it.ReadArrayCB(func(it *json.Iterator) bool {
			tags.Add(typ, it.ReadString())
			return true
		})
		return true
	})
	if iter.Error != nil && iter.Error != io.EOF {
		return fmt.Errorf("decoding tags: %w", iter.Error)
	}
	*t = tags
	return nil
}
