package shmstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

// ValueFromJSON converts a JSON document to a Value.
//
// Strings, booleans and arrays map to their kinds. Numbers without a
// fraction or exponent that fit in int64 become [KindInt], other numbers
// [KindFloat]. JSON objects become [KindObject] values holding a
// google.protobuf.Struct. null is rejected, at any depth outside objects.
func ValueFromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any

	err := dec.Decode(&raw)
	if err != nil {
		return Value{}, fmt.Errorf("parse JSON: %w: %w", ErrInvalidInput, err)
	}

	_, err = dec.Token()
	if !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("parse JSON: trailing data: %w", ErrInvalidInput)
	}

	return valueFromJSONAny(raw)
}

func valueFromJSONAny(raw any) (Value, error) {
	switch typed := raw.(type) {
	case string:
		return String(typed), nil
	case bool:
		return Bool(typed), nil
	case json.Number:
		if !strings.ContainsAny(typed.String(), ".eE") {
			n, err := typed.Int64()
			if err == nil {
				return Int(n), nil
			}
		}

		f, err := typed.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("number %s: %w: %w", typed, ErrInvalidInput, err)
		}

		return Float(f), nil
	case []any:
		elems := make([]Value, len(typed))

		for i, item := range typed {
			elem, err := valueFromJSONAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}

			elems[i] = elem
		}

		return Value{kind: KindArray, elems: elems}, nil
	case map[string]any:
		fields, ok := numbersToFloat(typed).(map[string]any)
		if !ok {
			return Value{}, fmt.Errorf("object: %w", ErrInvalidInput)
		}

		st, err := structpb.NewStruct(fields)
		if err != nil {
			return Value{}, fmt.Errorf("object: %w: %w", ErrInvalidInput, err)
		}

		return Object(st)
	case nil:
		return Value{}, fmt.Errorf("null has no value kind: %w", ErrInvalidInput)
	default:
		return Value{}, fmt.Errorf("unexpected JSON type %T: %w", raw, ErrInvalidInput)
	}
}

// numbersToFloat replaces json.Number with float64, the only number type
// structpb accepts.
func numbersToFloat(raw any) any {
	switch typed := raw.(type) {
	case json.Number:
		f, err := typed.Float64()
		if err != nil {
			return typed.String()
		}

		return f
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = numbersToFloat(item)
		}

		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = numbersToFloat(item)
		}

		return out
	default:
		return raw
	}
}
