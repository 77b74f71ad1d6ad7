// Package similarity scores how alike two names are on a 0..1 scale.
package similarity

import (
	"fixture-edge/internal/normalize"
)

const (
	jaroWeight    = 0.6
	jaccardWeight = 0.4
	subsetBonus   = 0.05

	winklerPrefix = 4
	winklerScale  = 0.1
)

// JaroWinkler compares rune sequences. The arguments are ordered first so the
// greedy match pass gives the same result in both directions.
func JaroWinkler(a, b string) float64 {
	if a > b {
		a, b = b, a
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	j := jaro(ra, rb)

	prefix := 0
	for prefix < winklerPrefix && prefix < len(ra) && prefix < len(rb) && ra[prefix] == rb[prefix] {
		prefix++
	}
	return j + float64(prefix)*winklerScale*(1-j)
}

func jaro(a, b []rune) float64 {
	window := max(len(a), len(b))/2 - 1
	if window < 0 {
		window = 0
	}

	matchedA := make([]bool, len(a))
	matchedB := make([]bool, len(b))
	matches := 0
	for i := range a {
		lo := max(0, i-window)
		hi := min(len(b), i+window+1)
		for k := lo; k < hi; k++ {
			if matchedB[k] || a[i] != b[k] {
				continue
			}
			matchedA[i], matchedB[k] = true, true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := range a {
		if !matchedA[i] {
			continue
		}
		for !matchedB[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2
	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Jaccard is |A∩B| / |A∪B| over distinct tokens. Two empty sets are identical.
func Jaccard(a, b []string) float64 {
	setA, setB := toSet(a), toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// Names scores two team names after team normalization.
func Names(a, b string) float64 {
	return Compare(normalize.Team(a), normalize.Team(b))
}

// Leagues scores two league names after league normalization.
func Leagues(a, b string) float64 {
	return Compare(normalize.League(a), normalize.League(b))
}

// Compare scores two already-normalized names.
func Compare(a, b normalize.Name) float64 {
	score := jaroWeight*JaroWinkler(a.Canonical, b.Canonical) + jaccardWeight*Jaccard(a.Tokens, b.Tokens)
	if len(a.Tokens) > 0 && len(b.Tokens) > 0 {
		setA, setB := toSet(a.Tokens), toSet(b.Tokens)
		if subset(setA, setB) || subset(setB, setA) {
			score += subsetBonus
		}
	}
	return Clamp(score, 0, 1)
}

// Clamp bounds v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if v != v || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func subset(small, big map[string]struct{}) bool {
	if len(small) > len(big) {
		return false
	}
	for t := range small {
		if _, ok := big[t]; !ok {
			return false
		}
	}
	return true
}
