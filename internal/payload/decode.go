package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxDepth bounds nesting so hostile payloads cannot exhaust the stack.
const maxDepth = 512

// ErrTooDeep is returned when a payload nests deeper than maxDepth.
var ErrTooDeep = errors.New("payload nested too deeply")

// Decode parses JSON text into a Value, preserving mapping key order.
// Trailing non-whitespace data is an error.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec, 0)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return Value{}, errors.New("trailing data after payload")
		}
		return Value{}, fmt.Errorf("trailing data: %w", err)
	}
	return v, nil
}

// xssiPrefix guards some RPC responses against script inclusion.
const xssiPrefix = ")]}'"

// DecodeString decodes s, unwrapping one extra level when the decoded value is
// itself a string holding a JSON sequence or mapping. A leading XSSI guard
// line is dropped.
func DecodeString(s string) (Value, error) {
	if rest, ok := strings.CutPrefix(strings.TrimLeft(s, " \t\r\n"), xssiPrefix); ok {
		s = rest
	}
	v, err := Decode([]byte(s))
	if err != nil {
		return Value{}, err
	}
	if inner, ok := v.Str(); ok && looksLikeJSONContainer(inner) {
		if nested, err := Decode([]byte(inner)); err == nil {
			return nested, nil
		}
	}
	return v, nil
}

func looksLikeJSONContainer(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return false
	}
	return (s[0] == '[' && s[len(s)-1] == ']') || (s[0] == '{' && s[len(s)-1] == '}')
}

func decodeValue(dec *json.Decoder, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, ErrTooDeep
	}
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return Value{}, io.ErrUnexpectedEOF
		}
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Value{}, nil
	case bool:
		return NewBool(t), nil
	case string:
		return NewString(t), nil
	case json.Number:
		// Out-of-range numbers saturate to ±Inf instead of failing the payload.
		f, err := t.Float64()
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return Value{}, fmt.Errorf("number %q: %w", t.String(), err)
		}
		return NewNumber(f), nil
	case json.Delim:
		switch t {
		case '[':
			var items []Value
			for dec.More() {
				item, err := decodeValue(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return NewSequence(items...), nil
		case '{':
			var fields []Field
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected key token %v", keyTok)
				}
				val, err := decodeValue(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				fields = append(fields, Field{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return NewMapping(fields...), nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}
