// Package textdiff diffs regulatory requirement text at word-token
// granularity and grades how much a change matters. Everything here is
// pure and deterministic; the drift detector builds its classification
// on top of it.
package textdiff

import "strings"

// SegmentKind labels one stretch of a diff.
type SegmentKind string

const (
	SegmentUnchanged SegmentKind = "unchanged"
	SegmentAdded     SegmentKind = "added"
	SegmentRemoved   SegmentKind = "removed"
	SegmentModified  SegmentKind = "modified"
)

// Segment is one contiguous stretch of the diff in original text order.
// Unchanged and modified segments carry both sides; added carries only
// NewText, removed only OldText.
type Segment struct {
	Kind    SegmentKind `json:"kind"`
	OldText string      `json:"old_text,omitempty"`
	NewText string      `json:"new_text,omitempty"`
}

// match is one aligned token position pair from the LCS backtrace.
type match struct {
	oldIdx int
	newIdx int
}

// Diff computes the token-level difference between two texts using a
// longest-common-subsequence alignment. Adjacent removed and added runs
// collapse into one modified segment. Joining every segment's old sides
// reproduces oldText's tokens, and likewise the new sides for newText.
func Diff(oldText, newText string) []Segment {
	oldTokens := strings.Fields(oldText)
	newTokens := strings.Fields(newText)

	matches := align(oldTokens, newTokens)

	var segments []Segment
	var unchanged, removed, added []string

	flushChanged := func() {
		switch {
		case len(removed) > 0 && len(added) > 0:
			segments = append(segments, Segment{
				Kind:    SegmentModified,
				OldText: strings.Join(removed, " "),
				NewText: strings.Join(added, " "),
			})
		case len(removed) > 0:
			segments = append(segments, Segment{Kind: SegmentRemoved, OldText: strings.Join(removed, " ")})
		case len(added) > 0:
			segments = append(segments, Segment{Kind: SegmentAdded, NewText: strings.Join(added, " ")})
		}
		removed, added = nil, nil
	}
	flushUnchanged := func() {
		if len(unchanged) > 0 {
			text := strings.Join(unchanged, " ")
			segments = append(segments, Segment{Kind: SegmentUnchanged, OldText: text, NewText: text})
			unchanged = nil
		}
	}

	i, j := 0, 0
	for _, m := range matches {
		for ; i < m.oldIdx; i++ {
			removed = append(removed, oldTokens[i])
		}
		for ; j < m.newIdx; j++ {
			added = append(added, newTokens[j])
		}
		if len(removed) > 0 || len(added) > 0 {
			flushUnchanged()
			flushChanged()
		}
		unchanged = append(unchanged, oldTokens[m.oldIdx])
		i++
		j++
	}
	remainder := i < len(oldTokens) || j < len(newTokens)
	if remainder {
		flushUnchanged()
	}
	for ; i < len(oldTokens); i++ {
		removed = append(removed, oldTokens[i])
	}
	for ; j < len(newTokens); j++ {
		added = append(added, newTokens[j])
	}
	flushUnchanged()
	flushChanged()

	return segments
}

// align returns the longest-common-subsequence positions of two token
// slices, in ascending order on both sides.
func align(a, b []string) []match {
	table := make([][]int, len(a)+1)
	for i := range table {
		table[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				table[i][j] = table[i+1][j+1] + 1
			} else if table[i+1][j] >= table[i][j+1] {
				table[i][j] = table[i+1][j]
			} else {
				table[i][j] = table[i][j+1]
			}
		}
	}

	out := make([]match, 0, table[0][0])
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, match{oldIdx: i, newIdx: j})
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			i++
		default:
			j++
		}
	}
	return out
}
