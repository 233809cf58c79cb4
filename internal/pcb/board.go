package pcb

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// Sentinel errors for board validation.
var (
	// ErrDuplicateID indicates two features share the same identifier.
	ErrDuplicateID = errors.New("duplicate feature ID")
	// ErrInvalidFeature indicates a feature whose geometry or fields are malformed.
	ErrInvalidFeature = errors.New("invalid feature")
	// ErrMissingField indicates a required field is empty.
	ErrMissingField = errors.New("required field missing")
)

// ValidationError records one problem found while loading a board.
type ValidationError struct {
	Source    string
	FeatureID string
	Field     string
	Err       error
}

// Error returns a human-readable string including source and feature context.
func (e *ValidationError) Error() string {
	msg := e.Err.Error()
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.FeatureID != "" {
		return e.Source + ": " + e.FeatureID + ": " + msg
	}
	return e.Source + ": " + msg
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Board is the set of copper features plus the net name table.
type Board struct {
	Nets     map[int]string
	Features []Feature
}

// NetName returns the declared name of a net, or a generated one.
func (b *Board) NetName(code int) string {
	if code <= 0 {
		return "<no net>"
	}
	if b != nil {
		if name, ok := b.Nets[code]; ok && name != "" {
			return name
		}
	}
	return fmt.Sprintf("Net-%d", code)
}

// Feature returns the feature with the given ID, or nil.
func (b *Board) Feature(id string) Feature {
	for _, f := range b.Features {
		if f.ID() == id {
			return f
		}
	}
	return nil
}

// Changes is the difference between two revisions of a board.
type Changes struct {
	Added   []Feature
	Removed []Feature
	Updated []Feature // new revision of features whose content changed
}

// Empty reports whether there are no changes.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Updated) == 0
}

// Diff compares two boards by feature ID. Added and updated features keep
// the order of next; removed features keep the order of prev.
func Diff(prev, next *Board) Changes {
	old := make(map[string]Feature, len(prev.Features))
	for _, f := range prev.Features {
		old[f.ID()] = f
	}
	seen := make(map[string]bool, len(next.Features))

	var c Changes
	for _, f := range next.Features {
		seen[f.ID()] = true
		o, ok := old[f.ID()]
		switch {
		case !ok:
			c.Added = append(c.Added, f)
		case !reflect.DeepEqual(o, f):
			c.Updated = append(c.Updated, f)
		}
	}
	for _, f := range prev.Features {
		if !seen[f.ID()] {
			c.Removed = append(c.Removed, f)
		}
	}
	return c
}

// NetCodes returns every net code used by a feature or declared in the net
// table, ascending.
func (b *Board) NetCodes() []int {
	set := make(map[int]bool)
	for code := range b.Nets {
		set[code] = true
	}
	for _, f := range b.Features {
		if f.NetCode() > 0 {
			set[f.NetCode()] = true
		}
	}
	codes := make([]int, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}
