package model

import "strings"

// ValueKind distinguishes plain values from references to tracker objects.
type ValueKind int

const (
	Scalar ValueKind = iota
	Reference
)

// FieldValue is a ticket field value. References carry the tracker id used
// in update payloads; Text is what gets compared and shown.
type FieldValue struct {
	Kind ValueKind
	ID   int
	Text string
}

// ScalarValue returns a plain text value.
func ScalarValue(text string) FieldValue {
	return FieldValue{Kind: Scalar, Text: text}
}

// RefValue returns a reference value for a tracker object.
func RefValue(r Ref) FieldValue {
	return FieldValue{Kind: Reference, ID: r.ID, Text: r.Name}
}

// Normalized returns the text used for comparison: trimmed, with CRLF
// line endings folded to LF.
func (v FieldValue) Normalized() string {
	return Normalize(v.Text)
}

// Normalize trims s and folds CRLF line endings to LF.
func Normalize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}

// Field is one named ticket field.
type Field struct {
	Name  string
	Value FieldValue
}

// FieldSet is an ordered set of ticket fields derived from a card.
type FieldSet []Field

// Get returns the value of the named field.
func (fs FieldSet) Get(name string) (FieldValue, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.Value, true
		}
	}
	return FieldValue{}, false
}

// Has reports whether the named field is present.
func (fs FieldSet) Has(name string) bool {
	_, ok := fs.Get(name)
	return ok
}

// Payload converts the set into a tracker request body. Reference fields are
// sent by id under "<name>_id".
func (fs FieldSet) Payload() map[string]any {
	payload := make(map[string]any, len(fs))
	for _, f := range fs {
		if f.Value.Kind == Reference {
			payload[f.Name+"_id"] = f.Value.ID
		} else {
			payload[f.Name] = f.Value.Text
		}
	}
	return payload
}

// FieldChange is a pending update to one ticket field.
type FieldChange struct {
	Name string
	Old  string
	New  FieldValue
	// Diff is the rendered line diff from Old to New.
	Diff string
}

// Changes is a set of pending field updates for one ticket.
type Changes []FieldChange

// Names returns the changed field names in order.
func (cs Changes) Names() []string {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.Name)
	}
	return names
}

// Fields returns the new values as a FieldSet.
func (cs Changes) Fields() FieldSet {
	fs := make(FieldSet, 0, len(cs))
	for _, c := range cs {
		fs = append(fs, Field{Name: c.Name, Value: c.New})
	}
	return fs
}
