package present

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoInput is returned by Prompter when the input ends before an answer.
var ErrNoInput = errors.New("no answer: input closed")

// Confirmer decides whether a mutating action goes ahead.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// Auto answers every prompt the same way. Auto(true) applies everything,
// Auto(false) is a dry run.
type Auto bool

// Confirm implements Confirmer.
func (a Auto) Confirm(string) (bool, error) {
	return bool(a), nil
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(prompt string) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(prompt string) (bool, error) {
	return f(prompt), nil
}

// Prompter asks a y/N question on out and reads the answer from in.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter creates a Prompter.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Confirm implements Confirmer. An empty answer means no; anything other
// than yes or no asks again.
func (p *Prompter) Confirm(prompt string) (bool, error) {
	for {
		fmt.Fprintf(p.out, "%s [y/N]: ", prompt)
		line, err := p.in.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			fmt.Fprintln(p.out)
			if err == io.EOF {
				return false, ErrNoInput
			}
			return false, fmt.Errorf("failed to read answer: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		fmt.Fprintln(p.out, "Error: invalid input")
	}
}
