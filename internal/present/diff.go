package present

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/chameleoncloud/taskblaster/internal/model"
)

// LineDiff renders the line-by-line difference between old and new. Both
// sides are normalized first. Unchanged lines are prefixed with "  ",
// removed lines with "- " and added lines with "+ ".
func LineDiff(old, new string) string {
	a := splitLines(model.Normalize(old))
	b := splitLines(model.Normalize(new))

	var lines []string
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		switch op.Tag {
		case 'e':
			for _, l := range a[op.I1:op.I2] {
				lines = append(lines, "  "+l)
			}
		case 'd':
			for _, l := range a[op.I1:op.I2] {
				lines = append(lines, "- "+l)
			}
		case 'i':
			for _, l := range b[op.J1:op.J2] {
				lines = append(lines, "+ "+l)
			}
		case 'r':
			for _, l := range a[op.I1:op.I2] {
				lines = append(lines, "- "+l)
			}
			for _, l := range b[op.J1:op.J2] {
				lines = append(lines, "+ "+l)
			}
		}
	}
	return strings.Join(lines, "\n")
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
