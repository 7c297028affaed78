package engine

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func setState(state string) json.RawMessage {
	return json.RawMessage(`{"op":"set_state","state":` + state + `}`)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		body    json.RawMessage
		wantErr error
	}{
		{
			name:    "unique names accepted",
			body:    setState(`{"people":[{"id":"p1","name":"Alice"},{"id":"p2","name":"Bob"}],"activePersonId":"p1"}`),
			wantErr: nil,
		},
		{
			name:    "null active person accepted",
			body:    setState(`{"people":[],"activePersonId":null}`),
			wantErr: nil,
		},
		{
			name:    "names collide after trim and lower",
			body:    setState(`{"people":[{"id":"p1","name":"Alice"},{"id":"p2","name":" alice "}],"activePersonId":null}`),
			wantErr: ErrDuplicateNames,
		},
		{
			name:    "missing names collide as empty",
			body:    setState(`{"people":[{"id":"p1"},{"id":"p2","name":42}],"activePersonId":null}`),
			wantErr: ErrDuplicateNames,
		},
		{
			name:    "non object entries are ignored",
			body:    setState(`{"people":["Alice","Alice",{"id":"p1","name":"Alice"}],"activePersonId":null}`),
			wantErr: nil,
		},
		{
			name:    "missing active person",
			body:    setState(`{"people":[]}`),
			wantErr: ErrMissingActivePerson,
		},
		{
			name:    "missing people",
			body:    setState(`{"activePersonId":null}`),
			wantErr: ErrInvalidPeople,
		},
		{
			name:    "people not an array",
			body:    setState(`{"people":{"id":"p1"},"activePersonId":null}`),
			wantErr: ErrInvalidPeople,
		},
		{
			name:    "people null",
			body:    setState(`{"people":null,"activePersonId":null}`),
			wantErr: ErrInvalidPeople,
		},
		{
			name:    "state not an object",
			body:    setState(`[1,2,3]`),
			wantErr: ErrInvalidState,
		},
		{
			name:    "unknown op",
			body:    json.RawMessage(`{"op":"merge","state":{"people":[],"activePersonId":null}}`),
			wantErr: ErrUnsupportedOperation,
		},
		{
			name:    "patch not an object",
			body:    json.RawMessage(`"set_state"`),
			wantErr: ErrUnsupportedOperation,
		},
		{
			name:    "patch missing",
			body:    nil,
			wantErr: ErrUnsupportedOperation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(tc.body)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidate_ReturnsStateUnchanged(t *testing.T) {
	state := `{"people":[{"id":"p1","name":"Alice","cart":{"tea":2}}],"activePersonId":"p1","ui":{"search":"al"},"extra":true}`

	got, err := Validate(setState(state))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if string(got) != state {
		t.Fatalf("state changed:\n got %s\nwant %s", got, state)
	}
}

func TestDefaultState_IsValid(t *testing.T) {
	if _, err := Validate(setState(string(DefaultState()))); err != nil {
		t.Fatalf("default state should validate, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
		want []string
	}{
		{
			name: "nothing changed",
			from: `{"people":[],"activePersonId":null}`,
			to:   `{"people":[],"activePersonId":null}`,
			want: []string{"no_change"},
		},
		{
			name: "person added and made active",
			from: `{"people":[],"activePersonId":null}`,
			to:   `{"people":[{"id":"p1","name":"Alice"}],"activePersonId":"p1"}`,
			want: []string{"people_added=1(Alice)", "active_changed=p1"},
		},
		{
			name: "person removed",
			from: `{"people":[{"id":"p1","name":"Alice"},{"id":"p2","name":""}],"activePersonId":null}`,
			to:   `{"people":[{"id":"p1","name":"Alice"}],"activePersonId":null}`,
			want: []string{"people_removed=1(unknown)"},
		},
		{
			name: "rename and cart changes",
			from: `{"people":[{"id":"p1","name":"Alice","cart":{"tea":1,"cake":"2"}}],"activePersonId":"p1"}`,
			to:   `{"people":[{"id":"p1","name":"Alicia","cart":{"tea":3}}],"activePersonId":"p1"}`,
			want: []string{"people_renamed=1", "cart_changes=2", "cart_detail=Alicia:cake:2->0,Alicia:tea:1->3"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Describe(json.RawMessage(tc.from), json.RawMessage(tc.to))
			if want := strings.Join(tc.want, " "); got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		})
	}
}
