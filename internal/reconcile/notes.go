package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/chameleoncloud/taskblaster/internal/model"
)

// PendingComments returns the comments whose id appears in none of the
// ticket's journal notes.
func PendingComments(comments []model.Comment, ticket *model.Ticket) []model.Comment {
	var pending []model.Comment
	for _, c := range comments {
		if !ticket.HasNoteContaining(c.ID) {
			pending = append(pending, c)
		}
	}
	return pending
}

// RenderNote formats a comment as a ticket note. The trailing ~id~ marker
// is what later runs look for.
func RenderNote(c model.Comment) string {
	date := c.RawDate
	if date == "" {
		date = c.Date.Format(time.RFC3339)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s said at %s:\n\n", c.AuthorFullName, date)
	for _, line := range strings.Split(strings.ReplaceAll(c.Text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			b.WriteString(line)
		} else {
			b.WriteString("> " + line)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n~%s~\n", c.ID)
	return b.String()
}
