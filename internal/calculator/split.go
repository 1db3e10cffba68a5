package calculator

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrNoParticipants    = errors.New("must have at least one participant")
	ErrNonPositive       = errors.New("amount must be positive")
	ErrNegativeShare     = errors.New("share amounts cannot be negative")
	ErrDuplicateShare    = errors.New("participant appears more than once")
	ErrMissingUser       = errors.New("participant user id is required")
	ErrSharesMismatch    = errors.New("participant shares do not add up to the expense amount")
	ErrNonPositiveWeight = errors.New("weights must be positive")
)

var hundred = decimal.NewFromInt(100)

// SplitEqually divides amount among participants to the cent. Leftover cents
// go to the first participants in order. The payer's own share is marked as
// already paid.
func SplitEqually(amount float64, payerID string, participants []string) ([]ShareForBalance, error) {
	weights := make(map[string]float64, len(participants))
	for _, p := range participants {
		weights[p] = 1
	}
	if len(weights) != len(participants) {
		return nil, ErrDuplicateShare
	}
	return splitWeighted(amount, payerID, participants, weights)
}

// SplitByWeights divides amount in proportion to each participant's weight
// (percentages or share counts). Participants are ordered as in order.
func SplitByWeights(amount float64, payerID string, order []string, weights map[string]float64) ([]ShareForBalance, error) {
	if len(order) != len(weights) {
		return nil, fmt.Errorf("order lists %d participants but %d weights given", len(order), len(weights))
	}
	return splitWeighted(amount, payerID, order, weights)
}

func splitWeighted(amount float64, payerID string, order []string, weights map[string]float64) ([]ShareForBalance, error) {
	if len(order) == 0 {
		return nil, ErrNoParticipants
	}
	if amount <= 0 {
		return nil, ErrNonPositive
	}

	totalWeight := decimal.Zero
	for _, p := range order {
		if p == "" {
			return nil, ErrMissingUser
		}
		w, ok := weights[p]
		if !ok {
			return nil, fmt.Errorf("no weight for participant %q", p)
		}
		if w <= 0 {
			return nil, ErrNonPositiveWeight
		}
		totalWeight = totalWeight.Add(decimal.NewFromFloat(w))
	}

	// Work in whole cents so the parts always sum back to the amount.
	totalCents := decimal.NewFromFloat(amount).Mul(hundred).Round(0)
	cents := make([]decimal.Decimal, len(order))
	allocated := decimal.Zero
	for i, p := range order {
		cents[i] = totalCents.Mul(decimal.NewFromFloat(weights[p])).Div(totalWeight).Floor()
		allocated = allocated.Add(cents[i])
	}
	remainder := totalCents.Sub(allocated).IntPart()
	for i := 0; remainder > 0; i = (i + 1) % len(order) {
		cents[i] = cents[i].Add(decimal.NewFromInt(1))
		remainder--
	}

	shares := make([]ShareForBalance, len(order))
	for i, p := range order {
		owed, _ := cents[i].Div(hundred).Float64()
		shares[i] = ShareForBalance{UserID: p, AmountOwed: owed}
		if p == payerID {
			shares[i].AmountPaid = owed
		}
	}
	return shares, nil
}

// ValidateShares checks the invariants the balance engine assumes but does not
// enforce: at least one share, unique non-empty user IDs, non-negative
// amounts, and owed amounts summing to amount within Epsilon.
func ValidateShares(amount float64, shares []ShareForBalance) error {
	if amount <= 0 {
		return ErrNonPositive
	}
	if len(shares) == 0 {
		return ErrNoParticipants
	}

	seen := make(map[string]bool, len(shares))
	var sum float64
	for _, s := range shares {
		if s.UserID == "" {
			return ErrMissingUser
		}
		if seen[s.UserID] {
			return fmt.Errorf("%w: %s", ErrDuplicateShare, s.UserID)
		}
		seen[s.UserID] = true
		if s.AmountOwed < 0 || s.AmountPaid < 0 {
			return fmt.Errorf("%w: %s", ErrNegativeShare, s.UserID)
		}
		sum += s.AmountOwed
	}

	if math.Abs(sum-amount) > Epsilon {
		return fmt.Errorf("%w: shares total %.2f, expense is %.2f", ErrSharesMismatch, sum, amount)
	}
	return nil
}
