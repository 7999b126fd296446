// Package reconcile decides, for every board card that references a
// tracker ticket, what must be created or updated on the tracker, and
// transfers card comments to ticket notes.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/chameleoncloud/taskblaster/internal/config"
	"github.com/chameleoncloud/taskblaster/internal/model"
	"github.com/chameleoncloud/taskblaster/internal/present"
)

// Board is the kanban side of the sync.
type Board interface {
	Cards(ctx context.Context, since time.Time, skipLists ...string) ([]model.Card, error)
	Comments(ctx context.Context, cardID string) ([]model.Comment, error)
	SetCustomField(ctx context.Context, cardID, fieldID, value string) error
}

// Tracker is the issue tracker side of the sync.
type Tracker interface {
	Ticket(ctx context.Context, id int) (*model.Ticket, error)
	CreateTicket(ctx context.Context, fields map[string]any) (*model.Ticket, error)
	UpdateTicket(ctx context.Context, id int, fields map[string]any) error
	Priorities(ctx context.Context) ([]model.Ref, error)
	Categories(ctx context.Context) ([]model.Ref, error)
	Members(ctx context.Context) ([]model.Ref, error)
	Versions(ctx context.Context) ([]model.Version, error)
}

// ActionKind is what a card needs on the tracker side.
type ActionKind int

const (
	ActionNoOp ActionKind = iota
	ActionCreate
	ActionUpdate
)

func (k ActionKind) String() string {
	switch k {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	}
	return "noop"
}

// Action is the planned outcome for one card.
type Action struct {
	Kind ActionKind
	Card *model.Card
	// Fields is the full derived field set.
	Fields model.FieldSet
	// Ticket is the existing ticket; nil for creates.
	Ticket *model.Ticket
	// Changes holds the differing fields of an update.
	Changes model.Changes
}

// Summary counts what a run did.
type Summary struct {
	Cards       int
	Created     int
	Updated     int
	Unchanged   int
	Declined    int
	InvalidRefs int
	NotesAdded  int
}

// Engine reconciles cards with tickets.
type Engine struct {
	board   Board
	tracker Tracker
	meta    *model.Board
	tctx    *TrackerContext
	maps    config.Mappings
	ui      *present.Presenter
}

// NewEngine creates an engine. meta and tctx are read-only snapshots taken
// at the start of the run.
func NewEngine(board Board, tracker Tracker, meta *model.Board, tctx *TrackerContext, maps config.Mappings, ui *present.Presenter) *Engine {
	return &Engine{
		board:   board,
		tracker: tracker,
		meta:    meta,
		tctx:    tctx,
		maps:    maps,
		ui:      ui,
	}
}

// ValidateBoard checks that the board defines the custom fields the sync
// reads and writes.
func ValidateBoard(meta *model.Board, maps config.Mappings) error {
	if meta.CategoryField == nil {
		return &ConfigurationError{Message: "could not find custom field on board " + meta.Name, Value: maps.CategoryField}
	}
	if meta.TicketField == nil {
		return &ConfigurationError{Message: "could not find custom field on board " + meta.Name, Value: maps.TicketField}
	}
	return nil
}

// Run processes every card active since the cutoff that carries a ticket
// reference, in board order. A ConfigurationError or a remote failure stops
// the run; an invalid reference only skips its card. Category and assignee
// mappings of all cards are checked before the first card is touched.
func (e *Engine) Run(ctx context.Context, since time.Time) (Summary, error) {
	var summary Summary

	cards, err := e.board.Cards(ctx, since)
	if err != nil {
		return summary, err
	}

	var eligible []model.Card
	for _, c := range cards {
		if e.meta.TicketRef(&c) != "" {
			eligible = append(eligible, c)
		}
	}
	summary.Cards = len(eligible)

	// Mapping problems abort the run before anything is written.
	for i := range eligible {
		card := &eligible[i]
		if _, _, err := parseRef(card, e.meta.TicketRef(card)); err != nil {
			continue
		}
		if _, err := e.Fields(card); err != nil {
			return summary, err
		}
	}

	e.ui.Printf("Will process %d cards.\n\n", len(eligible))

	for i := range eligible {
		card := &eligible[i]
		action, err := e.Plan(ctx, card, e.meta.TicketRef(card))
		if err != nil {
			var refErr *InvalidReferenceError
			if errors.As(err, &refErr) {
				slog.Warn("skipping card with invalid ticket reference", "card", card.ID, "name", card.Name, "ref", refErr.Ref)
				summary.InvalidRefs++
				continue
			}
			return summary, err
		}

		slog.Debug("planned card", "card", card.ID, "action", action.Kind.String(), "changes", action.Changes.Names())
		ticket, err := e.apply(ctx, action, &summary)
		if err != nil {
			return summary, err
		}
		if ticket == nil {
			continue
		}
		if err := e.transferNotes(ctx, card, ticket, &summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// Plan works out what a card needs without changing anything.
func (e *Engine) Plan(ctx context.Context, card *model.Card, ref string) (*Action, error) {
	id, isNew, err := parseRef(card, ref)
	if err != nil {
		return nil, err
	}

	fields, err := e.Fields(card)
	if err != nil {
		return nil, err
	}

	if isNew {
		return &Action{Kind: ActionCreate, Card: card, Fields: fields}, nil
	}

	ticket, err := e.tracker.Ticket(ctx, id)
	if err != nil {
		return nil, err
	}
	changes := Diff(fields, ticket)
	kind := ActionUpdate
	if len(changes) == 0 {
		kind = ActionNoOp
	}
	return &Action{Kind: kind, Card: card, Fields: fields, Ticket: ticket, Changes: changes}, nil
}

var errNonPositiveID = errors.New("ticket id must be positive")

// parseRef reads a ticket reference: "new" (any case) or a positive ticket id.
func parseRef(card *model.Card, ref string) (id int, isNew bool, err error) {
	ref = strings.TrimSpace(ref)
	if strings.EqualFold(ref, model.NewTicketRef) {
		return 0, true, nil
	}
	id, err = strconv.Atoi(ref)
	if err == nil && id <= 0 {
		err = errNonPositiveID
	}
	if err != nil {
		return 0, false, &InvalidReferenceError{CardID: card.ID, CardName: card.Name, Ref: ref, Err: err}
	}
	return id, false, nil
}

// Fields derives the tracker fields for a card.
func (e *Engine) Fields(card *model.Card) (model.FieldSet, error) {
	category, err := e.category(card)
	if err != nil {
		return nil, err
	}

	fields := model.FieldSet{
		{Name: model.FieldSubject, Value: model.ScalarValue(card.Name)},
		{Name: model.FieldDescription, Value: model.ScalarValue(card.Description)},
		// Synced tickets are always High, whatever the board says.
		{Name: model.FieldPriority, Value: model.RefValue(e.tctx.HighPriority)},
		{Name: model.FieldCategory, Value: model.RefValue(category)},
	}

	if len(card.MemberIDs) > 0 {
		assignee, err := e.assignee(card.MemberIDs[0])
		if err != nil {
			return nil, err
		}
		fields = append(fields, model.Field{Name: model.FieldAssignedTo, Value: model.RefValue(assignee)})
	}

	if !e.IsFuture(card) {
		fields = append(fields, model.Field{Name: model.FieldFixedVersion, Value: model.RefValue(e.tctx.Version)})
	}
	return fields, nil
}

// IsFuture reports whether the card belongs to the roadmap and must stay
// unscheduled.
func (e *Engine) IsFuture(card *model.Card) bool {
	return (e.maps.FutureBoard != "" && e.meta.Name == e.maps.FutureBoard) ||
		(e.maps.FutureList != "" && card.ListName == e.maps.FutureList)
}

func (e *Engine) category(card *model.Card) (model.Ref, error) {
	boardCategory, ok := e.meta.Category(card)
	if !ok {
		return model.Ref{}, &ConfigurationError{Message: "could not find category for card", Value: card.Name}
	}
	name, ok := e.maps.Categories[boardCategory]
	if !ok {
		return model.Ref{}, &ConfigurationError{Message: "no Redmine category mapped for Trello category", Value: boardCategory}
	}
	ref, ok := findRef(e.tctx.Categories, name)
	if !ok {
		return model.Ref{}, &ConfigurationError{Message: "could not find Redmine category for Trello category", Value: boardCategory}
	}
	return ref, nil
}

func (e *Engine) assignee(memberID string) (model.Ref, error) {
	member, ok := e.meta.Member(memberID)
	if !ok {
		return model.Ref{}, &ConfigurationError{Message: "card is assigned to a member not on the board", Value: memberID}
	}

	if ref, ok := findRef(e.tctx.Members, member.FullName); ok {
		return ref, nil
	}
	for _, key := range []string{member.FullName, member.Username} {
		if name, ok := e.maps.Users[key]; ok {
			if ref, ok := findRef(e.tctx.Members, name); ok {
				return ref, nil
			}
		}
	}
	return model.Ref{}, &ConfigurationError{Message: "could not find Redmine user for Trello user", Value: member.FullName}
}

// Diff returns the fields whose normalized text differs from the ticket.
func Diff(fields model.FieldSet, ticket *model.Ticket) model.Changes {
	var changes model.Changes
	for _, f := range fields {
		old := ticket.FieldText(f.Name)
		if model.Normalize(old) == f.Value.Normalized() {
			continue
		}
		changes = append(changes, model.FieldChange{
			Name: f.Name,
			Old:  old,
			New:  f.Value,
			Diff: present.LineDiff(old, f.Value.Text),
		})
	}
	return changes
}

// apply carries out a planned action after confirmation and returns the
// ticket the card is now linked to, or nil when no ticket exists.
func (e *Engine) apply(ctx context.Context, a *Action, summary *Summary) (*model.Ticket, error) {
	switch a.Kind {
	case ActionCreate:
		e.ui.Printf("\n%s (new ticket)\n", a.Card.Name)
		ok, err := e.ui.ConfirmCreate(a.Fields)
		if err != nil {
			return nil, err
		}
		if !ok {
			summary.Declined++
			return nil, nil
		}
		ticket, err := e.tracker.CreateTicket(ctx, a.Fields.Payload())
		if err != nil {
			return nil, err
		}
		e.ui.Printf("\nCreated ticket %d\n", ticket.ID)
		if err := e.board.SetCustomField(ctx, a.Card.ID, e.meta.TicketField.ID, strconv.Itoa(ticket.ID)); err != nil {
			return nil, err
		}
		slog.Info("created ticket", "card", a.Card.ID, "ticket", ticket.ID)
		summary.Created++
		return ticket, nil

	case ActionUpdate:
		e.ui.TicketHeader(a.Ticket)
		accepted, err := e.ui.ConfirmUpdate(a.Changes)
		if err != nil {
			return nil, err
		}
		if len(accepted) == 0 {
			summary.Declined++
			return a.Ticket, nil
		}
		if err := e.tracker.UpdateTicket(ctx, a.Ticket.ID, accepted.Fields().Payload()); err != nil {
			return nil, err
		}
		slog.Info("updated ticket", "card", a.Card.ID, "ticket", a.Ticket.ID, "fields", accepted.Names())
		summary.Updated++
		return a.Ticket, nil
	}

	e.ui.TicketHeader(a.Ticket)
	e.ui.Dim("(skipped, no updates)")
	summary.Unchanged++
	return a.Ticket, nil
}

func (e *Engine) transferNotes(ctx context.Context, card *model.Card, ticket *model.Ticket, summary *Summary) error {
	comments, err := e.board.Comments(ctx, card.ID)
	if err != nil {
		return err
	}

	pending := PendingComments(comments, ticket)
	if len(pending) == 0 {
		e.ui.Dim("(no new comments)")
		return nil
	}

	for _, c := range pending {
		note := RenderNote(c)
		ok, err := e.ui.ConfirmNote(note)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := e.tracker.UpdateTicket(ctx, ticket.ID, map[string]any{"notes": note}); err != nil {
			return err
		}
		slog.Debug("added note", "ticket", ticket.ID, "comment", c.ID)
		summary.NotesAdded++
	}
	return nil
}
