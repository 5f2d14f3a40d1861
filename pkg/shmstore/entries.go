package shmstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

// entries is the logical map: key -> tagged value text, in insertion order.
//
// It is a decoded view that lives for one operation only. The segment is
// the source of truth.
type entries struct {
	keys []string
	vals map[string]string
}

func newEntries() *entries {
	return &entries{vals: make(map[string]string)}
}

func (e *entries) len() int { return len(e.keys) }

func (e *entries) get(key string) (string, bool) {
	v, ok := e.vals[key]

	return v, ok
}

// set overwrites in place, so an existing key keeps its position.
func (e *entries) set(key, tagged string) {
	if _, ok := e.vals[key]; !ok {
		e.keys = append(e.keys, key)
	}

	e.vals[key] = tagged
}

func (e *entries) remove(key string) bool {
	if _, ok := e.vals[key]; !ok {
		return false
	}

	delete(e.vals, key)
	e.keys = slices.DeleteFunc(e.keys, func(k string) bool { return k == key })

	return true
}

// MarshalJSON writes a JSON object with members in insertion order.
func (e *entries) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, key := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}

		v, err := json.Marshal(e.vals[key])
		if err != nil {
			return nil, err
		}

		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of string members, keeping member order.
// A repeated member keeps its first position and its last value.
func (e *entries) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("map body is %v, want object", tok)
	}

	fresh := newEntries()

	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err
		}

		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("map key is %v, want string", tok)
		}

		var tagged string

		err = dec.Decode(&tagged)
		if err != nil {
			return fmt.Errorf("map value for %q: %w", key, err)
		}

		fresh.set(key, tagged)
	}

	_, err = dec.Token() // closing '}'
	if err != nil {
		return err
	}

	_, err = dec.Token()
	if !errors.Is(err, io.EOF) {
		return errors.New("trailing data after map body")
	}

	*e = *fresh

	return nil
}
