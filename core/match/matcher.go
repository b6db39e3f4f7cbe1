// Package match decides whether a free-text search result or filename refers
// to a given track title. Candidate names come from third-party sources and
// are inconsistently formatted, so a graduated policy is used instead of
// plain equality or substring checks.
package match

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
	whitespace    = regexp.MustCompile(`\s+`)

	// NFD decomposition followed by combining-mark removal strips diacritics.
	deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	apostrophes = strings.NewReplacer("'", "", "’", "", "`", "", "´", "", "ʼ", "")
)

// Stop words that carry no identity: Italian and English articles and
// prepositions, plus audio format extensions that show up in filenames.
var stopWords = map[string]struct{}{
	// Italian
	"il": {}, "lo": {}, "la": {}, "le": {}, "gli": {}, "un": {}, "uno": {},
	"una": {}, "di": {}, "da": {}, "del": {}, "della": {}, "dei": {},
	"delle": {}, "al": {}, "alla": {}, "ai": {}, "alle": {}, "nel": {},
	"nella": {}, "con": {}, "su": {}, "per": {}, "tra": {}, "fra": {},
	"ed": {},
	// English
	"the": {}, "an": {}, "of": {}, "to": {}, "and": {}, "or": {}, "in": {},
	"on": {}, "at": {}, "for": {}, "with": {}, "by": {}, "from": {},
	"feat": {}, "ft": {},
	// audio extensions
	"mp3": {}, "flac": {}, "m4a": {}, "wav": {}, "aac": {}, "ogg": {},
}

// Normalize lowercases, strips diacritics and apostrophes, removes
// parenthetical and bracketed segments, drops non-alphanumeric characters
// and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)
	if out, _, err := transform.String(deaccent, s); err == nil {
		s = out
	}
	s = apostrophes.Replace(s)
	s = parenthetical.ReplaceAllString(s, " ")
	s = nonAlnum.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// significantWords splits a normalized string into the words that actually
// identify it: stop words, single characters and purely numeric tokens are
// dropped.
func significantWords(normalized string) []string {
	var out []string
	for _, w := range strings.Fields(normalized) {
		if len(w) <= 1 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if isNumeric(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Titles reports whether candidate refers to the same song as target.
// It is pure and deterministic.
func Titles(candidate, target string) bool {
	cand := Normalize(candidate)
	tgt := Normalize(target)
	if cand == "" || tgt == "" {
		return false
	}

	// Exact containment short-circuits everything else. The reverse
	// direction only counts for targets long enough to not match by
	// accident.
	if strings.Contains(cand, tgt) {
		return true
	}
	if len(tgt) > 3 && len(cand) > 3 && strings.Contains(tgt, cand) {
		return true
	}

	words := significantWords(tgt)
	if len(words) == 0 {
		return false
	}

	present := 0
	for _, w := range words {
		if strings.Contains(cand, w) {
			present++
		}
	}

	if present == len(words) {
		return true
	}
	// Longer titles tolerate minor truncation; targets of three or fewer
	// significant words need full coverage to avoid false positives.
	if len(words) >= 4 && present >= 3 {
		return true
	}

	return symmetricFallback(cand, tgt)
}

// symmetricFallback handles candidates shorter than the target, such as
// truncated filenames: if at least 80% of the candidate's own significant
// words (and no fewer than 2) appear in the target, it still counts.
func symmetricFallback(cand, tgt string) bool {
	candWords := significantWords(cand)
	if len(candWords) < 2 {
		return false
	}
	matched := 0
	for _, w := range candWords {
		if strings.Contains(tgt, w) {
			matched++
		}
	}
	return matched >= 2 && float64(matched)/float64(len(candWords)) >= 0.8
}

// Rank orders candidates that already passed Titles by edit distance to the
// target, closest first. Used to break ties when several files of a bulk
// listing match the same track.
func Rank(candidates []string, target string) []string {
	tgt := Normalize(target)
	ranked := make([]string, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return levenshtein.ComputeDistance(Normalize(ranked[i]), tgt) <
			levenshtein.ComputeDistance(Normalize(ranked[j]), tgt)
	})
	return ranked
}
