package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Kind is the JSON type of a Node.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Node is a parsed JSON value. Objects keep their keys in document order,
// which map[string]any would lose.
type Node struct {
	Kind   Kind
	Str    string // string value, or the literal text of a number
	Bool   bool
	Items  []*Node
	Fields []Field
}

// Field is one key/value pair of an object.
type Field struct {
	Key   string
	Value *Node
}

// Get returns the value for key, or nil. With duplicate keys the last one
// wins, matching encoding/json.
func (n *Node) Get(key string) *Node {
	if n == nil || n.Kind != KindObject {
		return nil
	}
	var found *Node
	for _, f := range n.Fields {
		if f.Key == key {
			found = f.Value
		}
	}
	return found
}

// String returns the value of a string node, or "" for any other kind.
func (n *Node) String() string {
	if n == nil || n.Kind != KindString {
		return ""
	}
	return n.Str
}

// Parse decodes data into a Node tree. Trailing data after the first value
// is an error.
func Parse(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	root, err := parseValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("unexpected data after top-level value")
		}
		return nil, err
	}
	return root, nil
}

func parseValue(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return parseObject(dec)
		case '[':
			return parseArray(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", v)
		}
	case string:
		return &Node{Kind: KindString, Str: v}, nil
	case json.Number:
		return &Node{Kind: KindNumber, Str: v.String()}, nil
	case bool:
		return &Node{Kind: KindBool, Bool: v}, nil
	case nil:
		return &Node{Kind: KindNull}, nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

func parseObject(dec *json.Decoder) (*Node, error) {
	n := &Node{Kind: KindObject}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T", tok)
		}
		val, err := parseValue(dec)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", key, err)
		}
		n.Fields = append(n.Fields, Field{Key: key, Value: val})
	}
	// closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return n, nil
}

func parseArray(dec *json.Decoder) (*Node, error) {
	n := &Node{Kind: KindArray}
	for dec.More() {
		val, err := parseValue(dec)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", len(n.Items), err)
		}
		n.Items = append(n.Items, val)
	}
	// closing ']'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return n, nil
}
