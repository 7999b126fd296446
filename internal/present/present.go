// Package present renders pending tracker changes and asks the operator
// to confirm each mutating action.
package present

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/chameleoncloud/taskblaster/internal/model"
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Presenter shows changes on out and gates them through a Confirmer.
type Presenter struct {
	out     io.Writer
	confirm Confirmer
	// perField additionally asks about each field of a multi-field update.
	perField bool
}

// New creates a Presenter. With perField set, every field of an update is
// confirmed on its own before the combined update is offered.
func New(out io.Writer, confirm Confirmer, perField bool) *Presenter {
	return &Presenter{out: out, confirm: confirm, perField: perField}
}

// Printf writes a plain line to the output.
func (p *Presenter) Printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// Dim writes a de-emphasized status line, e.g. "(no new comments)".
func (p *Presenter) Dim(msg string) {
	fmt.Fprintln(p.out, dimStyle.Render(msg))
}

// TicketHeader announces the ticket about to be reconciled.
func (p *Presenter) TicketHeader(t *model.Ticket) {
	fmt.Fprintf(p.out, "\n%s\n", headerStyle.Render(fmt.Sprintf("#%d: %s", t.ID, t.Subject)))
}

// ConfirmCreate shows every field of a ticket about to be created.
func (p *Presenter) ConfirmCreate(fields model.FieldSet) (bool, error) {
	rows := make([][]string, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, []string{f.Name, f.Value.Text})
	}
	fmt.Fprintln(p.out, grid(rows))
	return p.confirm.Confirm("Create this ticket?")
}

// ConfirmUpdate shows the pending changes and returns the accepted subset.
// A nil result means nothing should be applied.
func (p *Presenter) ConfirmUpdate(changes model.Changes) (model.Changes, error) {
	accepted := changes
	if p.perField {
		accepted = nil
		for _, c := range changes {
			fmt.Fprintln(p.out, plain([][]string{{c.Name, c.Diff}}))
			ok, err := p.confirm.Confirm(fmt.Sprintf("Apply update to %s?", c.Name))
			if err != nil {
				return nil, err
			}
			if ok {
				accepted = append(accepted, c)
			}
		}
		if len(accepted) == 0 {
			p.Dim("(skipped, all fields declined)")
			return nil, nil
		}
	}

	rows := make([][]string, 0, len(accepted))
	for _, c := range accepted {
		rows = append(rows, []string{c.Name, c.Diff})
	}
	fmt.Fprintln(p.out, grid(rows))
	ok, err := p.confirm.Confirm("Apply this update?")
	if err != nil || !ok {
		return nil, err
	}
	return accepted, nil
}

// ConfirmNote shows a note about to be appended to a ticket.
func (p *Presenter) ConfirmNote(note string) (bool, error) {
	fmt.Fprintln(p.out, note)
	return p.confirm.Confirm("Add this note?")
}

// grid renders rows as a bordered table with a rule between rows.
func grid(rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderRow(true).
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle }).
		Rows(rows...).
		String()
}

// plain renders rows without borders.
func plain(rows [][]string) string {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle }).
		Rows(rows...).
		String()
}
