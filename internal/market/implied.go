package market

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidPrice = errors.New("invalid price")

// ImpliedProbability converts decimal odds to a probability. Values in [0,1) are
// taken to be probabilities already and pass through unchanged. A price of exactly
// 1.0 carries no payout and is rejected along with negatives, NaN and Inf.
func ImpliedProbability(v float64) (float64, error) {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v == 1:
		return 0, fmt.Errorf("%w: %v", ErrInvalidPrice, v)
	case v > 1:
		return 1 / v, nil
	default:
		return v, nil
	}
}

// ValidPrice reports whether v is usable as decimal odds.
func ValidPrice(v float64) bool {
	return v > 1 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// RemoveVig normalizes implied probabilities multiplicatively so they sum to 1.
// It fails when the book is incomplete, i.e. the probabilities sum to less than 1.
func RemoveVig(prices []float64) ([]float64, error) {
	if len(prices) < 2 {
		return nil, fmt.Errorf("need at least 2 outcomes, got %d", len(prices))
	}
	probs := make([]float64, len(prices))
	total := 0.0
	for i, p := range prices {
		if !ValidPrice(p) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, p)
		}
		probs[i] = 1 / p
		total += probs[i]
	}
	if total < 1 {
		return nil, fmt.Errorf("incomplete book: implied probabilities sum to %.4f", total)
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs, nil
}
