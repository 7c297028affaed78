package engine

import (
	"encoding/json"
	"strconv"
	"strings"
)

const defaultState = `{"people":[],"activePersonId":null,"ui":{"search":""}}`

// DefaultState is the document every new room starts with.
func DefaultState() json.RawMessage {
	return json.RawMessage(defaultState)
}

type person map[string]json.RawMessage

func decodePerson(raw json.RawMessage) (person, bool) {
	if !isObject(raw) {
		return nil, false
	}
	var p person
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	return p, true
}

// stringField returns the field as a string, or "" when missing or not a string.
func (p person) stringField(name string) string {
	var s string
	if err := json.Unmarshal(p[name], &s); err != nil {
		return ""
	}
	return s
}

// idKey turns any JSON id into a comparable map key. Missing ids all share "null".
func (p person) idKey() string {
	raw, ok := p["id"]
	if !ok {
		return "null"
	}
	return compact(raw)
}

func (p person) displayName() string {
	if name := strings.TrimSpace(p.stringField("name")); name != "" {
		return name
	}
	return "unknown"
}

func (p person) cart() map[string]json.RawMessage {
	var cart map[string]json.RawMessage
	if err := json.Unmarshal(p["cart"], &cart); err != nil {
		return nil
	}
	return cart
}

// quantity reads a cart value as an integer. Anything non-numeric counts as 0.
func quantity(raw json.RawMessage) int {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i
		}
	}
	return 0
}

func compact(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(b)
}
