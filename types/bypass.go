package types

import (
	"fmt"
	"strings"
)

// BypassMode is a set of independent flags controlling how a node behaves
// once a failure has been recorded in its context.
type BypassMode uint8

const (
	// BypassBeforeOnBypassMode suppresses the node's before hooks once bypass mode is active.
	BypassBeforeOnBypassMode BypassMode = 1 << iota
	// BypassAfterOnBypassMode suppresses the node's after hooks once bypass mode is active.
	BypassAfterOnBypassMode
	// BypassChildrenAfterIterationError stops iterating the remaining children once one has failed.
	BypassChildrenAfterIterationError
)

// BypassNone disables every bypass behaviour
const BypassNone BypassMode = 0

// BypassAll enables every bypass behaviour
const BypassAll = BypassBeforeOnBypassMode | BypassAfterOnBypassMode | BypassChildrenAfterIterationError

var bypassNames = []struct {
	mode BypassMode
	name string
}{
	{BypassBeforeOnBypassMode, "before"},
	{BypassAfterOnBypassMode, "after"},
	{BypassChildrenAfterIterationError, "children"},
}

// Has reports whether every flag of f is set in m
func (m BypassMode) Has(f BypassMode) bool {
	return m&f == f
}

// String returns the flag names joined by '|', or "none"
func (m BypassMode) String() string {
	var parts []string
	for _, b := range bypassNames {
		if m.Has(b.mode) {
			parts = append(parts, b.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseBypassModes builds a BypassMode from flag names ("before", "after",
// "children", "all", "none").
func ParseBypassModes(names []string) (BypassMode, error) {
	var m BypassMode
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "all":
			m |= BypassAll
			continue
		case "none", "":
			continue
		}
		found := false
		for _, b := range bypassNames {
			if b.name == name {
				m |= b.mode
				found = true
				break
			}
		}
		if !found {
			return BypassNone, fmt.Errorf("unknown bypass mode %q", raw)
		}
	}
	return m, nil
}
