package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type roster struct {
	order []string
	byID  map[string]person
}

func newRoster(state json.RawMessage) roster {
	r := roster{byID: map[string]person{}}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(state, &doc); err != nil {
		return r
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(doc["people"], &entries); err != nil {
		return r
	}
	for _, raw := range entries {
		p, ok := decodePerson(raw)
		if !ok {
			continue
		}
		id := p.idKey()
		if _, exists := r.byID[id]; !exists {
			r.order = append(r.order, id)
		}
		r.byID[id] = p // last one with a given id wins
	}
	return r
}

// Describe summarises what changed between two room states, for logs and the audit trail.
// It returns "no_change" when nothing it tracks differs.
func Describe(from, to json.RawMessage) string {
	before, after := newRoster(from), newRoster(to)

	var added, removed []string
	renamed := 0
	var cartDetail []string

	for _, id := range after.order {
		p := after.byID[id]
		prev, ok := before.byID[id]
		if !ok {
			added = append(added, p.displayName())
			continue
		}

		if strings.TrimSpace(prev.stringField("name")) != strings.TrimSpace(p.stringField("name")) {
			renamed++
		}

		oldCart, newCart := prev.cart(), p.cart()
		for _, key := range cartKeys(oldCart, newCart) {
			oldQty, newQty := quantity(oldCart[key]), quantity(newCart[key])
			if oldQty != newQty {
				cartDetail = append(cartDetail, fmt.Sprintf("%s:%s:%d->%d", p.displayName(), key, oldQty, newQty))
			}
		}
	}

	for _, id := range before.order {
		if _, ok := after.byID[id]; !ok {
			removed = append(removed, before.byID[id].displayName())
		}
	}

	var parts []string
	if len(added) > 0 {
		parts = append(parts, fmt.Sprintf("people_added=%d(%s)", len(added), strings.Join(added, ",")))
	}
	if len(removed) > 0 {
		parts = append(parts, fmt.Sprintf("people_removed=%d(%s)", len(removed), strings.Join(removed, ",")))
	}
	if renamed > 0 {
		parts = append(parts, fmt.Sprintf("people_renamed=%d", renamed))
	}
	if activeOld, activeNew := activeID(from), activeID(to); activeOld != activeNew {
		parts = append(parts, "active_changed="+activeNew)
	}
	if len(cartDetail) > 0 {
		parts = append(parts, fmt.Sprintf("cart_changes=%d", len(cartDetail)))
		parts = append(parts, "cart_detail="+strings.Join(cartDetail, ","))
	}

	if len(parts) == 0 {
		return "no_change"
	}
	return strings.Join(parts, " ")
}

func activeID(state json.RawMessage) string {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(state, &doc); err != nil {
		return "null"
	}
	raw, ok := doc["activePersonId"]
	if !ok {
		return "null"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return compact(raw)
}

func cartKeys(a, b map[string]json.RawMessage) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
