package textdiff

import (
	"strings"
	"unicode"
)

// Significance grades how much a text change matters to compliance.
type Significance string

const (
	SignificanceCosmetic      Significance = "cosmetic"
	SignificanceClarification Significance = "clarification"
	SignificanceSubstantive   Significance = "substantive"
	SignificanceBreaking      Significance = "breaking"
)

var significanceRank = map[Significance]int{
	SignificanceCosmetic:      1,
	SignificanceClarification: 2,
	SignificanceSubstantive:   3,
	SignificanceBreaking:      4,
}

// AtLeast reports whether s is equal to or graver than other.
func (s Significance) AtLeast(other Significance) bool {
	return significanceRank[s] >= significanceRank[other]
}

func maxSignificance(a, b Significance) Significance {
	if significanceRank[b] > significanceRank[a] {
		return b
	}
	return a
}

// modalTokens mark mandatory obligations in regulatory prose.
var modalTokens = map[string]struct{}{
	"must":       {},
	"shall":      {},
	"required":   {},
	"mandatory":  {},
	"prohibited": {},
}

// stopTokens carry no obligation content and are ignored when deciding
// whether meaning was dropped.
var stopTokens = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "of": {}, "for": {},
	"with": {}, "and": {}, "or": {}, "in": {}, "on": {}, "by": {},
	"is": {}, "are": {}, "be": {}, "as": {}, "at": {},
}

// Comparison is the full result of diffing two requirement texts.
type Comparison struct {
	Segments        []Segment    `json:"segments"`
	Significance    Significance `json:"significance"`
	AddedSegments   int          `json:"added_segments"`
	RemovedSegments int          `json:"removed_segments"`
}

// Classify grades one segment in isolation:
//
//	cosmetic      — both sides normalize to the same tokens (case,
//	                whitespace, punctuation only)
//	breaking      — an obligation modal or a numeric value disappears
//	                or changes
//	substantive   — a new obligation modal or numeric value appears
//	clarification — any other wording change
//
// Compare applies one further whole-text rule on top of this.
func Classify(segment Segment) Significance {
	if segment.Kind == SegmentUnchanged {
		return SignificanceCosmetic
	}
	oldNorm := normalizeTokens(segment.OldText)
	newNorm := normalizeTokens(segment.NewText)
	if equalTokens(oldNorm, newNorm) {
		return SignificanceCosmetic
	}

	oldModals := countModals(oldNorm)
	newModals := countModals(newNorm)
	oldNumbers := numberSet(oldNorm)
	newNumbers := numberSet(newNorm)

	if oldModals > newModals {
		return SignificanceBreaking
	}
	for n := range oldNumbers {
		if _, kept := newNumbers[n]; !kept {
			return SignificanceBreaking
		}
	}
	if newModals > oldModals {
		return SignificanceSubstantive
	}
	if len(newNumbers) > len(oldNumbers) {
		return SignificanceSubstantive
	}
	return SignificanceClarification
}

// Compare diffs two texts and grades the overall change as the gravest
// segment. One rule needs whole-text context: a removed or modified
// segment whose content words vanish from the entire new text counts as
// a dropped obligation and is breaking, even without a modal. Rewording
// that keeps every content word is at most a clarification.
func Compare(oldText, newText string) Comparison {
	segments := Diff(oldText, newText)
	newContent := contentSet(normalizeTokens(newText))

	cmp := Comparison{Segments: segments, Significance: SignificanceCosmetic}
	for _, seg := range segments {
		switch seg.Kind {
		case SegmentAdded:
			cmp.AddedSegments++
		case SegmentRemoved:
			cmp.RemovedSegments++
		case SegmentModified:
			cmp.AddedSegments++
			cmp.RemovedSegments++
		}

		sig := Classify(seg)
		if (seg.Kind == SegmentRemoved || seg.Kind == SegmentModified) && sig != SignificanceCosmetic {
			if dropsContent(seg.OldText, newContent) {
				sig = SignificanceBreaking
			}
		}
		cmp.Significance = maxSignificance(cmp.Significance, sig)
	}
	return cmp
}

// dropsContent reports whether any content word of oldSide is absent
// from the new text as a whole.
func dropsContent(oldSide string, newContent map[string]struct{}) bool {
	for _, tok := range normalizeTokens(oldSide) {
		if _, stop := stopTokens[tok]; stop {
			continue
		}
		if _, kept := newContent[tok]; !kept {
			return true
		}
	}
	return false
}

func contentSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

// normalizeTokens lowercases and strips punctuation so cosmetic edits
// compare equal. Digits and letters survive; "99.9%" keeps "999".
func normalizeTokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		var b strings.Builder
		for _, r := range f {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			out = append(out, b.String())
		}
	}
	return out
}

func equalTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func countModals(tokens []string) int {
	n := 0
	for _, t := range tokens {
		if _, ok := modalTokens[t]; ok {
			n++
		}
	}
	return n
}

func numberSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokens {
		if hasDigit(t) {
			set[t] = struct{}{}
		}
	}
	return set
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
