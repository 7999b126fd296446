package clipboard

import (
	"errors"
	"testing"
)

func stubClipboard(t *testing.T, isUnsupported bool, writeErr error) *string {
	t.Helper()
	var copied string
	origUnsupported, origWrite := unsupported, writeAll
	t.Cleanup(func() { unsupported, writeAll = origUnsupported, origWrite })

	unsupported = func() bool { return isUnsupported }
	writeAll = func(text string) error {
		if writeErr != nil {
			return writeErr
		}
		copied = text
		return nil
	}
	return &copied
}

func TestCopyText(t *testing.T) {
	copied := stubClipboard(t, false, nil)

	if err := CopyText("*Today*\n\n_Fix the bug_\n- done"); err != nil {
		t.Fatalf("CopyText failed: %v", err)
	}
	if *copied != "*Today*\n\n_Fix the bug_\n- done" {
		t.Errorf("unexpected clipboard content %q", *copied)
	}
}

func TestCopyTextUnavailable(t *testing.T) {
	copied := stubClipboard(t, true, nil)

	if err := CopyText("x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if *copied != "" {
		t.Errorf("nothing should be copied, got %q", *copied)
	}
}

func TestCopyTextWriteFailure(t *testing.T) {
	failure := errors.New("exit status 1")
	stubClipboard(t, false, failure)

	if err := CopyText("x"); !errors.Is(err, failure) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
}
