// Package report renders a daily standup digest from a member's card
// comments.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chameleoncloud/taskblaster/internal/model"
)

// Header is the first line of every standup report.
const Header = "*Today*"

// windowDays is how far back card activity is considered.
const windowDays = 7

// Source is the part of the board the report reads.
type Source interface {
	Cards(ctx context.Context, since time.Time, skipLists ...string) ([]model.Card, error)
	Comments(ctx context.Context, cardID string) ([]model.Comment, error)
}

// Options configures a standup report.
type Options struct {
	Username string
	// Now is the report time; its location defines local midnight.
	Now time.Time
	// SkipLists names lists whose cards never appear in the report.
	SkipLists []string
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Standup builds the report lines: the header, then for every card the
// member commented on today a blank line, the italic card title and one
// bullet per comment line.
func Standup(ctx context.Context, src Source, board *model.Board, opts Options) ([]string, error) {
	member, ok := board.MemberByUsername(opts.Username)
	if !ok {
		return nil, fmt.Errorf("member %s is not part of board %s", opts.Username, board.Name)
	}

	today := StartOfDay(opts.Now)
	cards, err := src.Cards(ctx, today.AddDate(0, 0, -windowDays), opts.SkipLists...)
	if err != nil {
		return nil, err
	}

	lines := []string{Header}
	for _, card := range cards {
		if !card.HasMember(member.ID) {
			continue
		}
		comments, err := src.Comments(ctx, card.ID)
		if err != nil {
			return nil, err
		}

		var updates []string
		for _, c := range comments {
			if c.AuthorUsername == opts.Username && c.Date.After(today) {
				updates = append(updates, FormatComment(c.Text)...)
			}
		}
		if len(updates) == 0 {
			continue
		}
		lines = append(lines, "", fmt.Sprintf("_%s_", card.Name))
		lines = append(lines, updates...)
	}
	return lines, nil
}

// bulletPrefixes are stripped from comment lines before re-bulleting.
var bulletPrefixes = []string{"- ", "* ", "• "}

// FormatComment turns a comment into bullet lines, one per non-empty line.
func FormatComment(text string) []string {
	var bullets []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		for _, p := range bulletPrefixes {
			if strings.HasPrefix(line, p) {
				line = strings.TrimSpace(strings.TrimPrefix(line, p))
				break
			}
		}
		if line == "" {
			continue
		}
		bullets = append(bullets, "- "+line)
	}
	return bullets
}

// Print writes the report lines to out.
func Print(out io.Writer, lines []string) {
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}
