// Package normalize canonicalizes team and league names before they are compared.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Name is a comparison-only form of a team or league string. It is never an identity key.
type Name struct {
	Canonical string
	Tokens    []string
}

func (n Name) Empty() bool { return n.Canonical == "" }

// letters with no Unicode decomposition that still need an ASCII form
var folds = map[rune]string{
	'ø': "o", 'Ø': "o",
	'ß': "ss", 'ẞ': "ss",
	'æ': "ae", 'Æ': "ae",
	'œ': "oe", 'Œ': "oe",
	'ł': "l", 'Ł': "l",
	'đ': "d", 'Đ': "d",
	'ð': "d", 'Ð': "d",
	'þ': "th", 'Þ': "th",
	'ı': "i",
}

var teamStopwords = setOf(
	"fc", "cf", "sc", "ac", "afc", "bk", "fk", "sk", "ik", "cd", "ud", "ca", "ss",
	"club", "sporting", "deportivo", "atletico",
	"de", "del", "la", "las", "los", "le", "el", "the", "of", "and", "y", "e", "da", "do", "di",
)

// Leagues keep discriminative words such as "premier" or "liga".
var leagueStopwords = setOf(
	"league", "cup", "division", "group", "round",
	"the", "of",
)

func setOf(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Team normalizes a team name, dropping club and legal-entity noise.
func Team(s string) Name {
	return normalize(s, teamStopwords)
}

// League normalizes a league name with the lighter league stopword set.
func League(s string) Name {
	return normalize(s, leagueStopwords)
}

// Country normalizes a country for exact comparison.
func Country(s string) string {
	return Plain(s)
}

// Plain folds and tokenizes without dropping any stopwords.
func Plain(s string) string {
	return strings.Join(tokenize(s), " ")
}

func normalize(s string, stopwords map[string]struct{}) Name {
	tokens := tokenize(s)
	if len(tokens) == 0 {
		return Name{}
	}

	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := stopwords[tok]; !stop {
			kept = append(kept, tok)
		}
	}
	// a name made only of stopwords ("AC", "Club") keeps what it has
	if len(kept) == 0 {
		kept = tokens
	}
	return Name{Canonical: strings.Join(kept, " "), Tokens: kept}
}

func tokenize(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	// invalid bytes would block decomposition of the letter that follows
	s = strings.ToValidUTF8(s, " ")
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if f, ok := folds[r]; ok {
			b.WriteString(f)
			continue
		}
		r = unicode.ToLower(r)
		if f, ok := folds[r]; ok {
			b.WriteString(f)
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte(' ')
	}
	return strings.Fields(b.String())
}
