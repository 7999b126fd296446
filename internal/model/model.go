// Package model defines the core data structures shared by the board and
// tracker gateways, the reconciliation engine and the report generator.
package model

import (
	"strings"
	"time"
)

// Ticket reference custom field value meaning "no ticket yet, create one".
const NewTicketRef = "new"

// Member is a board member.
type Member struct {
	ID       string
	Username string
	FullName string
}

// CustomFieldOption is one choice of a list-type custom field.
type CustomFieldOption struct {
	ID    string
	Value string
}

// CustomFieldDef describes a custom field defined on the board.
type CustomFieldDef struct {
	ID      string
	Name    string
	Options []CustomFieldOption
}

// OptionValue returns the display value of the option with the given id.
func (d *CustomFieldDef) OptionValue(optionID string) (string, bool) {
	for _, o := range d.Options {
		if o.ID == optionID {
			return o.Value, true
		}
	}
	return "", false
}

// CustomFieldItem is the value a card carries for one custom field.
// Text fields fill Text, list fields fill OptionID.
type CustomFieldItem struct {
	DefinitionID string
	Text         string
	OptionID     string
}

// Card is a work item on the board.
type Card struct {
	ID           string
	Name         string
	Description  string
	ListName     string
	MemberIDs    []string
	CustomFields []CustomFieldItem
}

// CustomField returns the card's item for the given definition id.
func (c *Card) CustomField(definitionID string) (CustomFieldItem, bool) {
	for _, item := range c.CustomFields {
		if item.DefinitionID == definitionID {
			return item, true
		}
	}
	return CustomFieldItem{}, false
}

// HasMember reports whether memberID is assigned to the card.
func (c *Card) HasMember(memberID string) bool {
	for _, id := range c.MemberIDs {
		if id == memberID {
			return true
		}
	}
	return false
}

// Comment is an immutable comment on a card.
type Comment struct {
	ID             string
	AuthorUsername string
	AuthorFullName string
	Date           time.Time
	// RawDate is the timestamp as the board returned it; notes quote it verbatim.
	RawDate string
	Text    string
}

// Board holds the board properties needed for a run. It is loaded once
// and shared read-only by the sync engine and the standup report.
type Board struct {
	ID            string
	Name          string
	CategoryField *CustomFieldDef
	TicketField   *CustomFieldDef
	Members       []Member
}

// Member returns the board member with the given id.
func (b *Board) Member(id string) (Member, bool) {
	for _, m := range b.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

// MemberByUsername returns the board member with the given username.
func (b *Board) MemberByUsername(username string) (Member, bool) {
	for _, m := range b.Members {
		if m.Username == username {
			return m, true
		}
	}
	return Member{}, false
}

// TicketRef returns the trimmed ticket reference stored on the card, or ""
// when the card carries none.
func (b *Board) TicketRef(c *Card) string {
	if b.TicketField == nil {
		return ""
	}
	item, ok := c.CustomField(b.TicketField.ID)
	if !ok {
		return ""
	}
	return strings.TrimSpace(item.Text)
}

// Category returns the display value of the card's category field.
func (b *Board) Category(c *Card) (string, bool) {
	if b.CategoryField == nil {
		return "", false
	}
	item, ok := c.CustomField(b.CategoryField.ID)
	if !ok {
		return "", false
	}
	if item.OptionID != "" {
		return b.CategoryField.OptionValue(item.OptionID)
	}
	if item.Text != "" {
		return item.Text, true
	}
	return "", false
}

// Ref is a tracker enumeration value or related object (priority, category,
// version, user).
type Ref struct {
	ID   int
	Name string
}

// Version is a tracker target version.
type Version struct {
	ID      int
	Name    string
	Status  string
	DueDate *time.Time
}

// Journal is one entry in a ticket's history.
type Journal struct {
	ID    int
	Notes string
}

// Ticket is an issue in the tracker.
type Ticket struct {
	ID           int
	Subject      string
	Description  string
	Priority     *Ref
	Category     *Ref
	FixedVersion *Ref
	AssignedTo   *Ref
	Journals     []Journal
}

// Ticket field names, as the tracker names them.
const (
	FieldSubject      = "subject"
	FieldDescription  = "description"
	FieldPriority     = "priority"
	FieldCategory     = "category"
	FieldFixedVersion = "fixed_version"
	FieldAssignedTo   = "assigned_to"
)

// FieldText returns the display text of the named field, "" when unset.
func (t *Ticket) FieldText(name string) string {
	refName := func(r *Ref) string {
		if r == nil {
			return ""
		}
		return r.Name
	}
	switch name {
	case FieldSubject:
		return t.Subject
	case FieldDescription:
		return t.Description
	case FieldPriority:
		return refName(t.Priority)
	case FieldCategory:
		return refName(t.Category)
	case FieldFixedVersion:
		return refName(t.FixedVersion)
	case FieldAssignedTo:
		return refName(t.AssignedTo)
	}
	return ""
}

// HasNoteContaining reports whether any journal note contains s. An empty s
// matches nothing.
func (t *Ticket) HasNoteContaining(s string) bool {
	if s == "" {
		return false
	}
	for _, j := range t.Journals {
		if strings.Contains(j.Notes, s) {
			return true
		}
	}
	return false
}
