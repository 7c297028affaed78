package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var ErrUnsupportedOperation = errors.New("unsupported patch op")
var ErrInvalidState = errors.New("state must be an object")
var ErrInvalidPeople = errors.New("invalid people")
var ErrMissingActivePerson = errors.New("missing activePersonId")
var ErrDuplicateNames = errors.New("duplicate person names are not allowed")

type Op string

const (
	OpSetState Op = "set_state"
)

// Patch is the body of a client "patch" message: { "op": "set_state", "state": {...} }
type Patch struct {
	Op    Op              `json:"op"`
	State json.RawMessage `json:"state"`
}

// Validate checks a raw patch body and returns the state that should replace the room's
// current state. The returned document is the submitted one, byte for byte.
func Validate(body json.RawMessage) (json.RawMessage, error) {
	if !isObject(body) {
		return nil, ErrUnsupportedOperation
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, ErrUnsupportedOperation
	}
	var op Op
	if err := json.Unmarshal(fields["op"], &op); err != nil || op != OpSetState {
		return nil, ErrUnsupportedOperation
	}

	state := fields["state"]
	if !isObject(state) {
		return nil, ErrInvalidState
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(state, &doc); err != nil {
		return nil, ErrInvalidState
	}

	people, ok := doc["people"]
	if !ok || !isArray(people) {
		return nil, ErrInvalidPeople
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(people, &entries); err != nil {
		return nil, ErrInvalidPeople
	}

	// null is a valid value here, only the key has to be there
	if _, ok := doc["activePersonId"]; !ok {
		return nil, ErrMissingActivePerson
	}

	if hasDuplicateNames(entries) {
		return nil, ErrDuplicateNames
	}

	return state, nil
}

func hasDuplicateNames(entries []json.RawMessage) bool {
	lower := cases.Lower(language.Und)
	seen := make(map[string]struct{}, len(entries))

	for _, raw := range entries {
		p, ok := decodePerson(raw)
		if !ok {
			continue // not a person record
		}
		key := lower.String(strings.TrimSpace(p.stringField("name")))
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
	}
	return false
}

func isObject(raw json.RawMessage) bool { return firstByte(raw) == '{' }

func isArray(raw json.RawMessage) bool { return firstByte(raw) == '[' }

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
