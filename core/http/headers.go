package http

import "strings"

// HeaderField is one name/value pair.
type HeaderField struct {
	Name  string
	Value string
}

// Headers is a multi-valued header map that preserves insertion order.
// Duplicate names are kept as separate entries. Lookup is ASCII
// case-insensitive; the parser stores names uppercased, response
// headers keep the casing they were added with.
type Headers struct {
	fields []HeaderField
}

// Add appends a field. The name is stored verbatim.
func (h *Headers) Add(name, value string) {
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Get returns the first value for name and whether one exists.
func (h *Headers) Get(name string) (string, bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value for name, in the order received.
func (h *Headers) Values(name string) []string {
	var vals []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			vals = append(vals, f.Value)
		}
	}
	return vals
}

// Count returns the number of entries for name.
func (h *Headers) Count(name string) int {
	n := 0
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			n++
		}
	}
	return n
}

// Has reports whether at least one entry for name exists.
func (h *Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Del removes every entry for name.
func (h *Headers) Del(name string) {
	kept := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			kept = append(kept, f)
		}
	}
	h.fields = kept
}

// Fields returns the full list in insertion order.
func (h *Headers) Fields() []HeaderField {
	return h.fields
}

// Len returns the number of entries.
func (h *Headers) Len() int {
	return len(h.fields)
}
