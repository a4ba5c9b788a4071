// Package jurisdiction normalizes and fuzzily compares city and
// municipality names.
//
// Matching uses prefix/suffix stripping, substring
// containment guarded by a minimum length, and a static alias table of known
// name variants. There is no edit-distance fallback.
package jurisdiction

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// minContainedLength is the minimum rune length of the shorter normalized
// name for the substring rule to apply.
const minContainedLength = 3

var (
	prefixes = []string{"city of ", "municipality of ", "mun. of "}
	suffixes = []string{" city", " municipality", " mun.", " mun"}
)

// Normalize lower-cases and trims name, strips a leading "city of" style
// prefix and a trailing " city" style suffix, and collapses internal
// whitespace. Blank input normalizes to "".
func Normalize(name string) string {
	// A Caser is stateful, so one is built per call.
	s := cases.Lower(language.Und).String(name)
	s = strings.Join(strings.Fields(s), " ")

	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			s = strings.TrimSpace(s[:len(s)-len(suf)])
			break
		}
	}
	return s
}

// Matcher compares jurisdiction names using the normalization rules plus an
// alias table.
type Matcher struct {
	// variant (lower-cased, whitespace-collapsed) -> canonical key
	index map[string]string
}

// NewMatcher builds a Matcher over the given alias table. Each key is a
// canonical jurisdiction and its values are the known spellings.
func NewMatcher(aliases map[string][]string) *Matcher {
	m := &Matcher{index: make(map[string]string)}
	for key, variants := range aliases {
		m.index[fold(key)] = key
		for _, v := range variants {
			m.index[fold(v)] = key
			if n := Normalize(v); n != "" {
				m.index[n] = key
			}
		}
	}
	return m
}

// Compare reports whether a and b name the same jurisdiction. It is
// symmetric, and blank input never matches anything.
func (m *Matcher) Compare(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}

	shorter, longer := na, nb
	if utf8.RuneCountInString(shorter) > utf8.RuneCountInString(longer) {
		shorter, longer = longer, shorter
	}
	if utf8.RuneCountInString(shorter) >= minContainedLength && strings.Contains(longer, shorter) {
		return true
	}

	ka, okA := m.aliasKey(a)
	kb, okB := m.aliasKey(b)
	return okA && okB && ka == kb
}

// Canonical returns the alias-table key for name, or its normalized form
// when the name is not a known variant.
func (m *Matcher) Canonical(name string) string {
	if key, ok := m.aliasKey(name); ok {
		return key
	}
	return Normalize(name)
}

func (m *Matcher) aliasKey(name string) (string, bool) {
	if key, ok := m.index[fold(name)]; ok {
		return key, true
	}
	if n := Normalize(name); n != "" {
		key, ok := m.index[n]
		return key, ok
	}
	return "", false
}

func fold(s string) string {
	return strings.Join(strings.Fields(cases.Lower(language.Und).String(s)), " ")
}

var defaultMatcher = NewMatcher(DefaultAliases)

// Default returns the Matcher built over DefaultAliases.
func Default() *Matcher {
	return defaultMatcher
}

// Compare compares a and b with the default Matcher.
func Compare(a, b string) bool {
	return defaultMatcher.Compare(a, b)
}
