package intx

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Record types of the interchange API.
const (
	TypeEvent         = "http://schema.kolola.net/kolola/1/event"
	TypeEventEvidence = "http://schema.kolola.net/kolola/1/eventevidence"
	TypeEvidence      = "http://schema.kolola.net/kolola/1/evidence"
)

type record map[string]any

func (r record) id() string {
	s, _ := r["@id"].(string)
	return s
}

func (r record) typ() string {
	s, _ := r["@type"].(string)
	return s
}

// pointers returns the uris this record points at.
func (r record) pointers() []string {
	data, _ := r["data"].(map[string]any)
	var out []string
	for _, v := range data {
		field, _ := v.(map[string]any)
		if field["type"] == "pointer" {
			if uri, ok := field["uri"].(string); ok {
				out = append(out, uri)
			}
		}
	}
	return out
}

// index is built once per fetch and never mutated afterwards.
type index struct {
	order     []string
	byID      map[string]record
	referrers map[string][]string
}

// buildIndex decodes result.records.records and links pointer fields to
// their targets. Pointers to records outside the result set are ignored.
func buildIndex(body []byte) (*index, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	list := gjson.GetBytes(body, "result.records.records")
	if !list.IsArray() {
		return nil, fmt.Errorf("response has no result.records.records list")
	}

	idx := &index{
		byID:      make(map[string]record),
		referrers: make(map[string][]string),
	}
	for _, raw := range list.Array() {
		var r record
		if err := json.Unmarshal([]byte(raw.Raw), &r); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		id := r.id()
		if id == "" {
			continue
		}
		if _, dup := idx.byID[id]; !dup {
			idx.order = append(idx.order, id)
		}
		idx.byID[id] = r
	}

	for _, id := range idx.order {
		for _, uri := range idx.byID[id].pointers() {
			if _, ok := idx.byID[uri]; ok {
				idx.referrers[uri] = append(idx.referrers[uri], id)
			}
		}
	}
	return idx, nil
}

// ofType returns the ids of all records with the given type, in response
// order.
func (idx *index) ofType(typ string) []string {
	var out []string
	for _, id := range idx.order {
		if idx.byID[id].typ() == typ {
			out = append(out, id)
		}
	}
	return out
}

// document renders a record together with the records referring to it,
// grouped by the last segment of their type:
//
//	{"_id": ..., "@type": ..., "data": {...}, "references": {"eventevidence": [...]}}
func (idx *index) document(id string) ([]byte, error) {
	r := idx.byID[id]
	doc := make(map[string]any, len(r)+2)
	for k, v := range r {
		doc[k] = v
	}
	doc["_id"] = id

	refs := make(map[string][]record)
	for _, from := range idx.referrers[id] {
		ref := idx.byID[from]
		key := lastSegment(ref.typ())
		refs[key] = append(refs[key], ref)
	}
	doc["references"] = refs

	return json.Marshal(doc)
}

func lastSegment(uri string) string {
	uri = strings.TrimRight(uri, "/")
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
