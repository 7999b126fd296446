package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/chameleoncloud/taskblaster/internal/model"
)

// TrackerContext is the snapshot of tracker enumerations a run derives
// ticket fields from. It is resolved once, before any card is touched, and
// never modified afterwards.
type TrackerContext struct {
	HighPriority model.Ref
	Version      model.Ref
	Categories   []model.Ref
	Members      []model.Ref
}

// ResolveContext loads the tracker enumerations. It fails with a
// ConfigurationError when the named priority or a current version cannot
// be found. now decides which versions are still in the future.
func ResolveContext(ctx context.Context, tracker Tracker, highPriority string, now time.Time) (*TrackerContext, error) {
	priorities, err := tracker.Priorities(ctx)
	if err != nil {
		return nil, err
	}
	high, ok := findRef(priorities, highPriority)
	if !ok {
		return nil, &ConfigurationError{Message: "could not find Redmine priority enumeration", Value: highPriority}
	}

	versions, err := tracker.Versions(ctx)
	if err != nil {
		return nil, err
	}
	version, ok := CurrentVersion(versions, now)
	if !ok {
		return nil, &ConfigurationError{Message: fmt.Sprintf("could not determine current Redmine version: no open version due after %s", now.Format("2006-01-02"))}
	}

	categories, err := tracker.Categories(ctx)
	if err != nil {
		return nil, err
	}
	members, err := tracker.Members(ctx)
	if err != nil {
		return nil, err
	}

	return &TrackerContext{
		HighPriority: high,
		Version:      model.Ref{ID: version.ID, Name: version.Name},
		Categories:   categories,
		Members:      members,
	}, nil
}

// CurrentVersion picks the open version with the earliest due date strictly
// after the calendar day of now. Versions without a due date never qualify.
func CurrentVersion(versions []model.Version, now time.Time) (model.Version, bool) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var best *model.Version
	for i := range versions {
		v := &versions[i]
		if v.Status != "" && v.Status != "open" {
			continue
		}
		if v.DueDate == nil {
			continue
		}
		dy, dm, dd := v.DueDate.Date()
		due := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
		if !due.After(today) {
			continue
		}
		if best == nil || v.DueDate.Before(*best.DueDate) {
			best = v
		}
	}
	if best == nil {
		return model.Version{}, false
	}
	return *best, true
}

func findRef(refs []model.Ref, name string) (model.Ref, bool) {
	for _, r := range refs {
		if r.Name == name {
			return r, true
		}
	}
	return model.Ref{}, false
}
