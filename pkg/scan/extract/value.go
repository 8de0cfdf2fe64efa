package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Kind tags a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Mapping
	Sequence
)

// Value is a tagged-union representation of an arbitrary JSON
// document.  Unlike unmarshalling into map[string]any, mapping members
// keep their document order, so walks over the tree are deterministic.
type Value struct {
	Kind    Kind
	Bool    bool
	Num     float64
	Str     string
	Members []Member
	Items   []Value
}

// Member is a single key/value pair of a Mapping.
type Member struct {
	Key   string
	Value Value
}

// ParseValue decodes a complete JSON document into a Value.
func ParseValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return Value{}, err
	}

	// Trailing garbage after the document is an error.
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("unexpected data after JSON document")
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return parseToken(dec, tok)
}

func parseToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			v := Value{Kind: Mapping}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("expected object key, got %v", keyTok)
				}
				member, err := parseValue(dec)
				if err != nil {
					return Value{}, err
				}
				v.Members = append(v.Members, Member{Key: key, Value: member})
			}
			// Consume the closing '}'.
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return v, nil
		case '[':
			v := Value{Kind: Sequence}
			for dec.More() {
				item, err := parseValue(dec)
				if err != nil {
					return Value{}, err
				}
				v.Items = append(v.Items, item)
			}
			// Consume the closing ']'.
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return v, nil
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %q", t)
		}
	case string:
		return Value{Kind: String, Str: t}, nil
	case json.Number:
		f, _ := t.Float64()
		return Value{Kind: Number, Num: f}, nil
	case bool:
		return Value{Kind: Bool, Bool: t}, nil
	case nil:
		return Value{Kind: Null}, nil
	default:
		return Value{}, fmt.Errorf("unexpected token %v", tok)
	}
}

// EachString walks the tree depth-first in document order and calls fn
// for every string leaf.  The walk stops early when fn returns false.
// Returns false if the walk was stopped.
func (v Value) EachString(fn func(s string) bool) bool {
	switch v.Kind {
	case String:
		return fn(v.Str)
	case Mapping:
		for _, m := range v.Members {
			if !m.Value.EachString(fn) {
				return false
			}
		}
	case Sequence:
		for _, item := range v.Items {
			if !item.EachString(fn) {
				return false
			}
		}
	}
	return true
}
