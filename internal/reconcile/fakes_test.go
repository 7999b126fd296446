package reconcile

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chameleoncloud/taskblaster/internal/config"
	"github.com/chameleoncloud/taskblaster/internal/model"
	"github.com/chameleoncloud/taskblaster/internal/present"
)

// fakeBoard is an in-memory board.
type fakeBoard struct {
	cards    []model.Card
	comments map[string][]model.Comment
	writes   map[string]string
}

func (b *fakeBoard) Cards(_ context.Context, _ time.Time, _ ...string) ([]model.Card, error) {
	out := make([]model.Card, len(b.cards))
	for i, c := range b.cards {
		c.CustomFields = append([]model.CustomFieldItem(nil), c.CustomFields...)
		out[i] = c
	}
	return out, nil
}

func (b *fakeBoard) Comments(_ context.Context, cardID string) ([]model.Comment, error) {
	return b.comments[cardID], nil
}

func (b *fakeBoard) SetCustomField(_ context.Context, cardID, fieldID, value string) error {
	if b.writes == nil {
		b.writes = map[string]string{}
	}
	b.writes[cardID] = value
	for i := range b.cards {
		if b.cards[i].ID != cardID {
			continue
		}
		for j := range b.cards[i].CustomFields {
			if b.cards[i].CustomFields[j].DefinitionID == fieldID {
				b.cards[i].CustomFields[j].Text = value
				return nil
			}
		}
		b.cards[i].CustomFields = append(b.cards[i].CustomFields, model.CustomFieldItem{DefinitionID: fieldID, Text: value})
	}
	return nil
}

// fakeTracker is an in-memory tracker that applies payloads the way the
// real one does.
type fakeTracker struct {
	tickets    map[int]*model.Ticket
	nextID     int
	priorities []model.Ref
	categories []model.Ref
	members    []model.Ref
	versions   []model.Version

	creates int
	updates []map[string]any
}

func newFakeTracker() *fakeTracker {
	due := func(s string) *time.Time {
		d, _ := time.Parse("2006-01-02", s)
		return &d
	}
	return &fakeTracker{
		tickets:    map[int]*model.Ticket{},
		nextID:     100,
		priorities: []model.Ref{{ID: 4, Name: "Normal"}, {ID: 5, Name: "High"}},
		categories: []model.Ref{
			{ID: 1, Name: "Outreach"},
			{ID: 2, Name: "Systems operations (technical debt)"},
		},
		members: []model.Ref{{ID: 10, Name: "Jason Anderson"}, {ID: 11, Name: "Zhuo Zhen"}},
		versions: []model.Version{
			{ID: 20, Name: "Sprint 1", Status: "open", DueDate: due("2025-01-10")},
			{ID: 21, Name: "Sprint 2", Status: "open", DueDate: due("2025-02-01")},
		},
	}
}

func (t *fakeTracker) Ticket(_ context.Context, id int) (*model.Ticket, error) {
	ticket, ok := t.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %d not found", id)
	}
	cp := *ticket
	cp.Journals = append([]model.Journal(nil), ticket.Journals...)
	return &cp, nil
}

func (t *fakeTracker) CreateTicket(_ context.Context, fields map[string]any) (*model.Ticket, error) {
	t.creates++
	ticket := &model.Ticket{ID: t.nextID}
	t.nextID++
	t.apply(ticket, fields)
	t.tickets[ticket.ID] = ticket
	cp := *ticket
	return &cp, nil
}

func (t *fakeTracker) UpdateTicket(_ context.Context, id int, fields map[string]any) error {
	ticket, ok := t.tickets[id]
	if !ok {
		return fmt.Errorf("ticket %d not found", id)
	}
	t.updates = append(t.updates, fields)
	t.apply(ticket, fields)
	return nil
}

func (t *fakeTracker) apply(ticket *model.Ticket, fields map[string]any) {
	lookup := func(refs []model.Ref, id any) *model.Ref {
		for _, r := range refs {
			if r.ID == id.(int) {
				r := r
				return &r
			}
		}
		return nil
	}
	for k, v := range fields {
		switch k {
		case "subject":
			ticket.Subject = v.(string)
		case "description":
			ticket.Description = v.(string)
		case "priority_id":
			ticket.Priority = lookup(t.priorities, v)
		case "category_id":
			ticket.Category = lookup(t.categories, v)
		case "assigned_to_id":
			ticket.AssignedTo = lookup(t.members, v)
		case "fixed_version_id":
			for _, ver := range t.versions {
				if ver.ID == v.(int) {
					ticket.FixedVersion = &model.Ref{ID: ver.ID, Name: ver.Name}
				}
			}
		case "notes":
			ticket.Journals = append(ticket.Journals, model.Journal{ID: len(ticket.Journals) + 1, Notes: v.(string)})
		}
	}
}

func (t *fakeTracker) Priorities(context.Context) ([]model.Ref, error) { return t.priorities, nil }
func (t *fakeTracker) Categories(context.Context) ([]model.Ref, error) { return t.categories, nil }
func (t *fakeTracker) Members(context.Context) ([]model.Ref, error)    { return t.members, nil }
func (t *fakeTracker) Versions(context.Context) ([]model.Version, error) {
	return t.versions, nil
}

const (
	categoryFieldID = "cf-cat"
	ticketFieldID   = "cf-ticket"
)

var testNow = time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)

func testBoardMeta() *model.Board {
	return &model.Board{
		ID:   "b1",
		Name: "Chameleon",
		CategoryField: &model.CustomFieldDef{ID: categoryFieldID, Options: []model.CustomFieldOption{
			{ID: "opt-ops", Value: "Operations"},
			{ID: "opt-out", Value: "Outreach"},
			{ID: "opt-app", Value: "Appliances"},
			{ID: "opt-mys", Value: "Mystery"},
		}},
		TicketField: &model.CustomFieldDef{ID: ticketFieldID},
		Members: []model.Member{
			{ID: "m-jason", Username: "jasonandersonatuchicago", FullName: "Jason Anderson"},
			{ID: "m-zhen", Username: "zhenz-uchicago", FullName: "Z. Zhen"},
			{ID: "m-ghost", Username: "ghost", FullName: "Nobody Known"},
		},
	}
}

func newCard(id, name, categoryOption, ref string, members ...string) model.Card {
	card := model.Card{
		ID:          id,
		Name:        name,
		Description: "Description of " + name,
		ListName:    "Doing",
		MemberIDs:   members,
	}
	if categoryOption != "" {
		card.CustomFields = append(card.CustomFields, model.CustomFieldItem{DefinitionID: categoryFieldID, OptionID: categoryOption})
	}
	if ref != "" {
		card.CustomFields = append(card.CustomFields, model.CustomFieldItem{DefinitionID: ticketFieldID, Text: ref})
	}
	return card
}

type harness struct {
	board   *fakeBoard
	tracker *fakeTracker
	meta    *model.Board
	out     *strings.Builder
	prompts []string
}

func newHarness(cards ...model.Card) *harness {
	return &harness{
		board:   &fakeBoard{cards: cards, comments: map[string][]model.Comment{}},
		tracker: newFakeTracker(),
		meta:    testBoardMeta(),
		out:     &strings.Builder{},
	}
}

// engine builds an engine whose confirmer records prompts and answers with
// answer.
func (h *harness) engine(answer func(prompt string) bool) *Engine {
	tctx, err := ResolveContext(context.Background(), h.tracker, "High", testNow)
	if err != nil {
		panic(err)
	}
	confirm := present.ConfirmFunc(func(prompt string) bool {
		h.prompts = append(h.prompts, prompt)
		return answer(prompt)
	})
	var out io.Writer = h.out
	return NewEngine(h.board, h.tracker, h.meta, tctx, config.DefaultMappings(), present.New(out, confirm, false))
}

func acceptAll(string) bool { return true }
func rejectAll(string) bool { return false }
