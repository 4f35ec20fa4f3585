package transcript

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// normalizeText prepares text for similarity comparison: NFKC-fold,
// lowercase, strip punctuation, collapse whitespace. NFKC matters for
// transcripts in scripts with compatibility variants; without it two
// providers spelling the same word differently never match.
func normalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// trigrams returns the set of rune trigrams of the normalized text,
// spaces excluded.
func trigrams(s string) map[string]struct{} {
	runes := make([]rune, 0, len(s))
	for _, r := range s {
		if r != ' ' {
			runes = append(runes, r)
		}
	}

	set := make(map[string]struct{})
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}

// Similarity returns the trigram Jaccard similarity of two texts in
// [0, 1]. Texts too short to form a trigram are compared for normalized
// equality instead.
func Similarity(a, b string) float64 {
	na, nb := normalizeText(a), normalizeText(b)
	if na == "" || nb == "" {
		return 0
	}

	ta, tb := trigrams(na), trigrams(nb)
	if len(ta) == 0 || len(tb) == 0 {
		if na == nb {
			return 1
		}
		return 0
	}

	intersection := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}
