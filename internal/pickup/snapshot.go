package pickup

import (
	"sort"
	"strings"
)

const displaySep = ", "

// Snapshot is the sorted, deduplicated list of store names that currently
// offer pickup.
type Snapshot []string

// Extract collects the stores with the tracked flag set. The result does not
// depend on the order of r.Stores.
func Extract(r *Response) Snapshot {
	seen := make(map[string]struct{}, len(r.Stores))
	snap := Snapshot{}
	for _, s := range r.Stores {
		if !s.PickupEnabled {
			continue
		}
		if _, ok := seen[s.Name]; ok {
			continue
		}
		seen[s.Name] = struct{}{}
		snap = append(snap, s.Name)
	}
	sort.Strings(snap)
	return snap
}

// HasChanged compares element-wise so it keeps working even if a caller hands
// it snapshots that were not produced by Extract.
func HasChanged(previous, current Snapshot) bool {
	if len(previous) != len(current) {
		return true
	}
	for i := range previous {
		if previous[i] != current[i] {
			return true
		}
	}
	return false
}

// Display joins the names for humans.
func (s Snapshot) Display() string {
	return strings.Join(s, displaySep)
}

// ParseDisplay reverses Display.
func ParseDisplay(text string) Snapshot {
	snap := Snapshot{}
	if strings.TrimSpace(text) == "" {
		return snap
	}
	for _, part := range strings.Split(text, ",") {
		if name := strings.TrimSpace(part); name != "" {
			snap = append(snap, name)
		}
	}
	sort.Strings(snap)
	return snap
}
