package playlist

import "time"

// Slot binds one playlist position to a shared source.
type Slot struct {
	Source      int
	MaxDuration time.Duration
}

// Binding groups playlist entries that reference the same media into one
// source. Sources are numbered in order of first appearance.
type Binding struct {
	Sources []string
	Slots   []Slot

	bySource [][]int
}

// Bind builds the binding for refs.
func Bind(refs []MediaReference) Binding {
	b := Binding{}
	index := make(map[string]int, len(refs))
	for pos, ref := range refs {
		src, found := index[ref.Path]
		if !found {
			src = len(b.Sources)
			index[ref.Path] = src
			b.Sources = append(b.Sources, ref.Path)
			b.bySource = append(b.bySource, nil)
		}
		b.Slots = append(b.Slots, Slot{Source: src, MaxDuration: ref.MaxDuration})
		b.bySource[src] = append(b.bySource[src], pos)
	}
	return b
}

// SlotsFor returns the playlist positions bound to source.
func (b Binding) SlotsFor(source int) []int {
	if source < 0 || source >= len(b.bySource) {
		return nil
	}
	return b.bySource[source]
}

// Filter returns the references whose path is not in drop, keeping order.
func Filter(refs []MediaReference, drop map[string]bool) []MediaReference {
	if len(drop) == 0 {
		return refs
	}
	kept := make([]MediaReference, 0, len(refs))
	for _, r := range refs {
		if !drop[r.Path] {
			kept = append(kept, r)
		}
	}
	return kept
}
