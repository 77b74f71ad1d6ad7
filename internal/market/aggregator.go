// Package market turns raw bookmaker quotes into per-outcome consensus prices.
package market

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"fixture-edge/internal/domain"
)

const (
	H2H     = "h2h"
	Totals  = "totals"
	BTTS    = "btts"
	DNB     = "dnb"
	Spreads = "spreads"
)

var aliases = map[string]string{
	"h2h":                 H2H,
	"1x2":                 H2H,
	"match_odds":          H2H,
	"moneyline":           H2H,
	"totals":              Totals,
	"over_under":          Totals,
	"ou":                  Totals,
	"both_teams_to_score": BTTS,
	"btts":                BTTS,
	"draw_no_bet":         DNB,
	"dnb":                 DNB,
	"spreads":             Spreads,
	"handicap":            Spreads,
	"asian_handicap":      Spreads,
}

// CanonicalMarket maps a provider market key onto one of the known markets.
func CanonicalMarket(key string) (string, bool) {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.NewReplacer("-", "_", " ", "_").Replace(k)
	m, ok := aliases[k]
	return m, ok
}

// outcomeSets lists the outcomes that make up a complete book for each market.
var outcomeSets = map[string][]string{
	H2H:     {"home", "draw", "away"},
	Totals:  {"over", "under"},
	BTTS:    {"yes", "no"},
	DNB:     {"home", "away"},
	Spreads: {"home", "away"},
}

// completeBook reports whether outcomes is exactly the market's outcome set.
func completeBook(market string, outcomes []string) bool {
	want, ok := outcomeSets[market]
	if !ok || len(outcomes) != len(want) {
		return false
	}
	seen := make(map[string]struct{}, len(outcomes))
	for _, o := range outcomes {
		seen[o] = struct{}{}
	}
	for _, o := range want {
		if _, ok := seen[o]; !ok {
			return false
		}
	}
	return true
}

func isLineMarket(m string) bool {
	return m == Totals || m == Spreads
}

// lineOf identifies the line a quote belongs to. Spread sides quote opposite signs
// of the same line.
func lineOf(market string, point float64) float64 {
	if market == Spreads {
		return math.Abs(point)
	}
	return point
}

type Config struct {
	MinBooks        map[string]int     `yaml:"min_books"`
	ReferencePoints map[string]float64 `yaml:"reference_points"`
}

func DefaultConfig() Config {
	return Config{
		MinBooks:        map[string]int{H2H: 1, Totals: 1, BTTS: 1, DNB: 1, Spreads: 1},
		ReferencePoints: map[string]float64{Totals: 2.5, Spreads: 0},
	}
}

func (c Config) Validate() error {
	var errs []error
	for m, n := range c.MinBooks {
		canon, ok := aliases[m]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("min_books: unknown market %q", m))
		case canon != m:
			errs = append(errs, fmt.Errorf("min_books: use the canonical key %q instead of %q", canon, m))
		}
		if n < 1 {
			errs = append(errs, fmt.Errorf("min_books[%s]=%d must be at least 1", m, n))
		}
	}
	for m, p := range c.ReferencePoints {
		if !isLineMarket(m) {
			errs = append(errs, fmt.Errorf("reference_points: %q is not a line market", m))
		}
		if math.IsNaN(p) || math.IsInf(p, 0) {
			errs = append(errs, fmt.Errorf("reference_points[%s] is not finite", m))
		}
	}
	return errors.Join(errs...)
}

func (c Config) minBooks(market string) int {
	if n, ok := c.MinBooks[market]; ok && n > 0 {
		return n
	}
	return 1
}

func (c Config) referencePoint(market string) float64 {
	if p, ok := c.ReferencePoints[market]; ok {
		return p
	}
	if market == Totals {
		return 2.5
	}
	return 0
}

// Report counts what Aggregate dropped and why.
type Report struct {
	Accepted       int `json:"accepted"`
	UnknownMarket  int `json:"unknown_market"`
	InvalidPrice   int `json:"invalid_price"`
	MissingPoint   int `json:"missing_point"`
	Duplicates     int `json:"duplicates"`
	OffLine        int `json:"off_line"`
	DroppedBuckets int `json:"dropped_buckets"`
}

// Err summarizes malformed input as InvalidMarketData, or nil when the input was clean.
// Unknown markets and off-line quotes are expected and not reported.
func (r Report) Err() error {
	if r.InvalidPrice == 0 && r.MissingPoint == 0 && r.Duplicates == 0 {
		return nil
	}
	return domain.Errorf(domain.KindInvalidMarketData, "malformed_quotes",
		"invalid_price=%d missing_point=%d duplicates=%d", r.InvalidPrice, r.MissingPoint, r.Duplicates)
}

type quoteKey struct {
	bookmaker string
	market    string
	outcome   string
	point     float64
	hasPoint  bool
}

type bucketKey struct {
	market   string
	outcome  string
	point    float64
	hasPoint bool
}

// Aggregate builds one consensus per (market, outcome, point) bucket. Line markets
// are first reduced to the single line per bookmaker nearest the configured
// reference point, so prices from different lines are never mixed.
func Aggregate(quotes []domain.MarketQuote, cfg Config) ([]domain.MarketConsensus, Report) {
	var rep Report

	latest := make(map[quoteKey]domain.MarketQuote, len(quotes))
	order := make([]quoteKey, 0, len(quotes))
	for _, q := range quotes {
		m, ok := CanonicalMarket(q.MarketKey)
		if !ok {
			rep.UnknownMarket++
			continue
		}
		if !ValidPrice(q.Price) {
			rep.InvalidPrice++
			continue
		}
		if isLineMarket(m) && q.Point == nil {
			rep.MissingPoint++
			continue
		}
		q.MarketKey = m
		q.Outcome = strings.ToLower(strings.TrimSpace(q.Outcome))
		q.Bookmaker = strings.TrimSpace(q.Bookmaker)

		k := quoteKey{bookmaker: strings.ToLower(q.Bookmaker), market: m, outcome: q.Outcome}
		if q.Point != nil {
			k.point, k.hasPoint = *q.Point, true
		}
		if prev, seen := latest[k]; seen {
			rep.Duplicates++
			if q.ObservedAt.After(prev.ObservedAt) {
				latest[k] = q
			}
			continue
		}
		latest[k] = q
		order = append(order, k)
	}

	lines := selectLines(latest, cfg)

	buckets := make(map[bucketKey][]domain.MarketQuote)
	var keys []bucketKey
	for _, k := range order {
		q := latest[k]
		if isLineMarket(k.market) && lineOf(k.market, k.point) != lines[bookLine{k.bookmaker, k.market}] {
			rep.OffLine++
			continue
		}
		bk := bucketKey{market: k.market, outcome: k.outcome, point: k.point, hasPoint: k.hasPoint}
		if _, ok := buckets[bk]; !ok {
			keys = append(keys, bk)
		}
		buckets[bk] = append(buckets[bk], q)
		rep.Accepted++
	}

	out := make([]domain.MarketConsensus, 0, len(keys))
	for _, bk := range keys {
		qs := buckets[bk]
		if len(qs) < cfg.minBooks(bk.market) {
			rep.DroppedBuckets++
			continue
		}
		out = append(out, consensus(bk, qs))
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.MarketKey != b.MarketKey {
			return a.MarketKey < b.MarketKey
		}
		if pa, pb := pointOrder(a.Point), pointOrder(b.Point); pa != pb {
			return pa < pb
		}
		return a.Outcome < b.Outcome
	})
	return out, rep
}

type bookLine struct {
	bookmaker string
	market    string
}

// selectLines picks, per bookmaker and line market, the line nearest the reference.
// Ties go to the smaller line.
func selectLines(quotes map[quoteKey]domain.MarketQuote, cfg Config) map[bookLine]float64 {
	chosen := make(map[bookLine]float64)
	for k := range quotes {
		if !isLineMarket(k.market) {
			continue
		}
		bl := bookLine{k.bookmaker, k.market}
		line := lineOf(k.market, k.point)
		ref := cfg.referencePoint(k.market)
		cur, ok := chosen[bl]
		if !ok {
			chosen[bl] = line
			continue
		}
		dNew, dCur := math.Abs(line-ref), math.Abs(cur-ref)
		if dNew < dCur || (dNew == dCur && line < cur) {
			chosen[bl] = line
		}
	}
	return chosen
}

func consensus(bk bucketKey, qs []domain.MarketQuote) domain.MarketConsensus {
	sorted := append([]domain.MarketQuote(nil), qs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Price != sorted[j].Price {
			return sorted[i].Price > sorted[j].Price
		}
		return sorted[i].Bookmaker < sorted[j].Bookmaker
	})

	prices := make([]float64, len(sorted))
	for i, q := range sorted {
		prices[i] = q.Price
	}

	c := domain.MarketConsensus{
		MarketKey:      bk.market,
		Outcome:        bk.outcome,
		Best:           sorted[0],
		MedianPrice:    Median(prices),
		Top3:           sorted[:min(3, len(sorted))],
		BookmakerCount: len(sorted),
	}
	if bk.hasPoint {
		p := bk.point
		c.Point = &p
	}
	return c
}

// Median returns the statistical median, averaging the two middle values for even counts.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func pointOrder(p *float64) float64 {
	if p == nil {
		return math.Inf(-1)
	}
	return *p
}

// FairProbabilities fills FairProbability on every bucket whose market line quotes
// the market's full outcome set, using the median prices with the margin removed.
func FairProbabilities(cs []domain.MarketConsensus) {
	type group struct {
		market string
		line   float64
	}
	groups := make(map[group][]int)
	for i, c := range cs {
		g := group{market: c.MarketKey}
		if c.Point != nil {
			g.line = lineOf(c.MarketKey, *c.Point)
		}
		groups[g] = append(groups[g], i)
	}
	for g, idx := range groups {
		prices := make([]float64, len(idx))
		outcomes := make([]string, len(idx))
		for n, i := range idx {
			prices[n] = cs[i].MedianPrice
			outcomes[n] = cs[i].Outcome
		}
		if !completeBook(g.market, outcomes) {
			continue
		}
		fair, err := RemoveVig(prices)
		if err != nil {
			continue
		}
		for n, i := range idx {
			cs[i].FairProbability = fair[n]
		}
	}
}
