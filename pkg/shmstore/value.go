package shmstore

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

// Kind is the type of a [Value].
type Kind uint8

// Value kinds. The zero Kind is [KindString].
const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindArray
	KindObject
)

// Type tags: the first byte of every encoded value.
const (
	tagArray  = 'a'
	tagString = 's'
	tagInt    = 'i'
	tagObject = 'o'
	tagFloat  = 'd'
	tagBool   = 'b'
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a typed value stored under a key.
//
// The kind is chosen by the constructor ([String], [Int], [Float], [Bool],
// [Array], [Object]) and never inferred from content, so "1", 1, 1.0 and
// true stay distinct through a round trip. The zero Value is the empty
// string.
//
// Objects are protobuf messages stored as a serialized google.protobuf.Any.
// Reading one back with [Value.AsObject] requires the message type to be
// linked into the reading program.
type Value struct {
	kind   Kind
	str    string
	num    int64
	flt    float64
	flag   bool
	elems  []Value
	object []byte // deterministic wire form of an anypb.Any
}

// String returns a string value. s must be valid UTF-8 to be stored.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, num: i} }

// Float returns a double value.
func Float(f float64) Value { return Value{kind: KindFloat, flt: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// Array returns an array value holding copies of elems.
func Array(elems ...Value) Value {
	return Value{kind: KindArray, elems: slices.Clone(elems)}
}

// Object returns an object value wrapping msg.
func Object(msg proto.Message) (Value, error) {
	if msg == nil {
		return Value{}, fmt.Errorf("nil object: %w", ErrInvalidInput)
	}

	wrapped, err := anypb.New(msg)
	if err != nil {
		return Value{}, fmt.Errorf("wrap object: %w", err)
	}

	raw, err := proto.MarshalOptions{Deterministic: true}.Marshal(wrapped)
	if err != nil {
		return Value{}, fmt.Errorf("marshal object: %w", err)
	}

	return Value{kind: KindObject, object: raw}, nil
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// AsString returns the string payload and whether v is a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsInt returns the integer payload and whether v is an integer.
func (v Value) AsInt() (int64, bool) { return v.num, v.kind == KindInt }

// AsFloat returns the double payload and whether v is a double.
func (v Value) AsFloat() (float64, bool) { return v.flt, v.kind == KindFloat }

// AsBool returns the boolean payload and whether v is a boolean.
func (v Value) AsBool() (bool, bool) { return v.flag, v.kind == KindBool }

// AsArray returns a copy of the elements and whether v is an array.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}

	return slices.Clone(v.elems), true
}

// AsObject unpacks an object value into a new message of its stored type.
//
// Fails with [ErrInvalidInput] if v is not an object and with [ErrDecode] if
// the payload is malformed or its type is not linked into this program.
func (v Value) AsObject() (proto.Message, error) {
	wrapped, err := v.anyMessage()
	if err != nil {
		return nil, err
	}

	msg, err := wrapped.UnmarshalNew()
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w: %w", wrapped.GetTypeUrl(), ErrDecode, err)
	}

	return msg, nil
}

// ObjectTo unpacks an object value into dst, which must be of the stored
// message type.
func (v Value) ObjectTo(dst proto.Message) error {
	wrapped, err := v.anyMessage()
	if err != nil {
		return err
	}

	err = wrapped.UnmarshalTo(dst)
	if err != nil {
		return fmt.Errorf("unpack %s: %w: %w", wrapped.GetTypeUrl(), ErrDecode, err)
	}

	return nil
}

func (v Value) anyMessage() (*anypb.Any, error) {
	if v.kind != KindObject {
		return nil, fmt.Errorf("value is %s, not object: %w", v.kind, ErrInvalidInput)
	}

	var wrapped anypb.Any

	err := proto.Unmarshal(v.object, &wrapped)
	if err != nil {
		return nil, fmt.Errorf("object payload: %w: %w", ErrDecode, err)
	}

	return &wrapped, nil
}

// Equal reports whether v and other have the same kind and payload.
// Doubles compare by value, with NaN equal to NaN. Arrays compare
// element-wise.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindInt:
		return v.num == other.num
	case KindFloat:
		return v.flt == other.flt || (math.IsNaN(v.flt) && math.IsNaN(other.flt))
	case KindBool:
		return v.flag == other.flag
	case KindArray:
		return slices.EqualFunc(v.elems, other.elems, Value.Equal)
	case KindObject:
		return bytes.Equal(v.object, other.object)
	default:
		return false
	}
}

// String renders v for display: scalars in their text form, arrays and
// objects as JSON.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.flag)
	default:
		data, err := v.MarshalJSON()
		if err != nil {
			return "<" + v.kind.String() + ": " + err.Error() + ">"
		}

		return string(data)
	}
}

// encodeValue returns the tagged text form of v.
func encodeValue(v Value) (string, error) {
	switch v.kind {
	case KindArray:
		parts := make([]string, len(v.elems))

		for i, elem := range v.elems {
			part, err := encodeValue(elem)
			if err != nil {
				return "", fmt.Errorf("element %d: %w", i, err)
			}

			parts[i] = part
		}

		data, err := json.Marshal(parts)
		if err != nil {
			return "", fmt.Errorf("encode array: %w", err)
		}

		return string(tagArray) + string(data), nil
	case KindInt:
		return string(tagInt) + strconv.FormatInt(v.num, 10), nil
	case KindBool:
		if v.flag {
			return string(tagBool) + "1", nil
		}

		return string(tagBool) + "0", nil
	case KindFloat:
		return string(tagFloat) + strconv.FormatFloat(v.flt, 'g', -1, 64), nil
	case KindObject:
		return string(tagObject) + base64.StdEncoding.EncodeToString(v.object), nil
	case KindString:
		if !utf8.ValidString(v.str) {
			return "", fmt.Errorf("string is not valid UTF-8: %w", ErrInvalidInput)
		}

		return string(tagString) + v.str, nil
	default:
		return "", fmt.Errorf("unknown kind %d: %w", v.kind, ErrInvalidInput)
	}
}

// decodeValue parses a tagged text form produced by encodeValue.
func decodeValue(s string) (Value, error) {
	if s == "" {
		return Value{}, fmt.Errorf("missing type tag: %w", ErrDecode)
	}

	tag, payload := s[0], s[1:]

	switch tag {
	case tagArray:
		var parts []string

		err := json.Unmarshal([]byte(payload), &parts)
		if err != nil {
			return Value{}, fmt.Errorf("array: %w: %w", ErrDecode, err)
		}

		elems := make([]Value, len(parts))

		for i, part := range parts {
			elem, err := decodeValue(part)
			if err != nil {
				return Value{}, fmt.Errorf("array element %d: %w", i, err)
			}

			elems[i] = elem
		}

		return Value{kind: KindArray, elems: elems}, nil
	case tagInt:
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("integer: %w: %w", ErrDecode, err)
		}

		return Int(n), nil
	case tagBool:
		return Bool(payload != "" && payload != "0"), nil
	case tagFloat:
		f, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return Value{}, fmt.Errorf("double: %w: %w", ErrDecode, err)
		}

		return Float(f), nil
	case tagObject:
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return Value{}, fmt.Errorf("object: %w: %w", ErrDecode, err)
		}

		err = proto.Unmarshal(raw, &anypb.Any{})
		if err != nil {
			return Value{}, fmt.Errorf("object: %w: %w", ErrDecode, err)
		}

		return Value{kind: KindObject, object: raw}, nil
	case tagString:
		return String(payload), nil
	default:
		return Value{}, fmt.Errorf("unknown type tag %q: %w", tag, ErrDecode)
	}
}

// MarshalJSON renders v as JSON. Objects use the protobuf JSON mapping of
// google.protobuf.Any, which includes an "@type" member.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindInt:
		return []byte(strconv.FormatInt(v.num, 10)), nil
	case KindFloat:
		return json.Marshal(v.flt)
	case KindBool:
		return json.Marshal(v.flag)
	case KindArray:
		elems := v.elems
		if elems == nil {
			elems = []Value{}
		}

		return json.Marshal(elems)
	case KindObject:
		wrapped, err := v.anyMessage()
		if err != nil {
			return nil, err
		}

		return protojson.Marshal(wrapped)
	default:
		return nil, fmt.Errorf("unknown kind %d: %w", v.kind, ErrInvalidInput)
	}
}
