package reconcile

import "fmt"

// ConfigurationError means the mapping between board and tracker is
// incomplete: a missing priority or version, an unmapped category, an
// unresolvable assignee. It aborts the whole run.
type ConfigurationError struct {
	Message string
	Value   string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return e.Message
	}
	return fmt.Sprintf("%s '%s'", e.Message, e.Value)
}

// InvalidReferenceError means a card's ticket reference is neither "new"
// nor a ticket number. Only that card is skipped.
type InvalidReferenceError struct {
	CardID   string
	CardName string
	Ref      string
	Err      error
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("card '%s' has invalid ticket reference '%s'", e.CardName, e.Ref)
}

func (e *InvalidReferenceError) Unwrap() error {
	return e.Err
}
