package models

import (
	"errors"

	"github.com/mmynk/splitledger/internal/calculator"
)

var (
	ErrSelfSettlement     = errors.New("cannot record a settlement with yourself")
	ErrNonPositiveAmount  = errors.New("amount must be greater than zero")
	ErrMissingParticipant = errors.New("both payer and receiver are required")
)

// Settlement is a direct payment from one member to another, recorded
// outside any expense to pay down debt.
type Settlement struct {
	ID      string
	GroupID string

	// FromUserID paid; ToUserID received.
	FromUserID string
	ToUserID   string

	Amount float64

	// Note is optional free text ("cash at dinner").
	Note string

	CreatedBy string
	CreatedAt int64
	UpdatedAt int64
}

// Validate rejects settlements the ledger cannot meaningfully apply.
func (s *Settlement) Validate() error {
	if s.FromUserID == "" || s.ToUserID == "" {
		return ErrMissingParticipant
	}
	if s.FromUserID == s.ToUserID {
		return ErrSelfSettlement
	}
	if s.Amount <= 0 {
		return ErrNonPositiveAmount
	}
	return nil
}

// ForBalance converts the settlement into balance engine input.
func (s *Settlement) ForBalance() calculator.SettlementForBalance {
	return calculator.SettlementForBalance{
		FromUserID: s.FromUserID,
		ToUserID:   s.ToUserID,
		Amount:     s.Amount,
	}
}

// SettlementsForBalance converts settlements, preserving order.
func SettlementsForBalance(settlements []*Settlement) []calculator.SettlementForBalance {
	out := make([]calculator.SettlementForBalance, len(settlements))
	for i, s := range settlements {
		out[i] = s.ForBalance()
	}
	return out
}
