// Package clipboard copies report text to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"

	sysclip "github.com/atotto/clipboard"
)

// ErrUnavailable is returned when no clipboard utility is installed.
var ErrUnavailable = errors.New("no suitable clipboard tool found (install wl-copy, xclip or xsel)")

// Indirections for tests.
var (
	unsupported = func() bool { return sysclip.Unsupported }
	writeAll    = sysclip.WriteAll
)

// CopyText copies plain text to the system clipboard.
func CopyText(text string) error {
	if unsupported() {
		return ErrUnavailable
	}
	if err := writeAll(text); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}
