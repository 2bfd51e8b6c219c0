package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

type valueKind int

const (
	kindNull valueKind = iota
	kindString
	kindNumber
	kindBool
	kindMap
)

// Value is a closed variant for custom payload entries: string, number,
// bool, null, or a nested map. Arrays and other JSON shapes are rejected so
// flattening to the gateway wire format is total.
type Value struct {
	kind valueKind
	str  string
	num  float64
	b    bool
	m    Payload
}

func StringValue(s string) Value  { return Value{kind: kindString, str: s} }
func NumberValue(n float64) Value { return Value{kind: kindNumber, num: n} }
func BoolValue(b bool) Value      { return Value{kind: kindBool, b: b} }
func NullValue() Value            { return Value{kind: kindNull} }
func MapValue(m Payload) Value    { return Value{kind: kindMap, m: m} }

func (v Value) IsNull() bool { return v.kind == kindNull }

// String renders the value in wire form: strings verbatim, numbers in
// minimal notation, bools as true/false, null as empty, maps as compact JSON.
func (v Value) String() string {
	switch v.kind {
	case kindString:
		return v.str
	case kindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case kindBool:
		return strconv.FormatBool(v.b)
	case kindMap:
		encoded, err := json.Marshal(v.m)
		if err != nil {
			return ""
		}
		return string(encoded)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindString:
		return json.Marshal(v.str)
	case kindNumber:
		return json.Marshal(v.num)
	case kindBool:
		return json.Marshal(v.b)
	case kindMap:
		return json.Marshal(v.m)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty data value", ErrValidation)
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("%w: invalid string data value", ErrValidation)
		}
		*v = StringValue(s)
		return nil
	case '{':
		var m Payload
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return err
		}
		*v = MapValue(m)
		return nil
	case '[':
		return fmt.Errorf("%w: array values are not supported in data payload", ErrValidation)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return fmt.Errorf("%w: invalid bool data value", ErrValidation)
		}
		*v = BoolValue(b)
		return nil
	case 'n':
		if !bytes.Equal(trimmed, []byte("null")) {
			return fmt.Errorf("%w: invalid data value", ErrValidation)
		}
		*v = NullValue()
		return nil
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("%w: invalid numeric data value", ErrValidation)
		}
		*v = NumberValue(n)
		return nil
	}
}

// Payload is the custom data carried alongside a notification.
type Payload map[string]Value

// StringMap flattens the payload to the gateway wire format.
func (p Payload) StringMap() map[string]string {
	if len(p) == 0 {
		return nil
	}
	flat := make(map[string]string, len(p))
	for key, value := range p {
		flat[key] = value.String()
	}
	return flat
}

// Size reports the serialized payload size in bytes. Keys are encoded in
// sorted order so the result is deterministic.
func (p Payload) Size() int {
	if len(p) == 0 {
		return 0
	}

	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyEncoded, _ := json.Marshal(key)
		buf.Write(keyEncoded)
		buf.WriteByte(':')
		valueEncoded, err := json.Marshal(p[key])
		if err != nil {
			continue
		}
		buf.Write(valueEncoded)
	}
	buf.WriteByte('}')

	return buf.Len()
}
