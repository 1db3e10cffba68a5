package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmynk/splitledger/internal/calculator"
)

// Expense represents a single spend event within a group.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// GroupID is the group this expense belongs to.
	GroupID string

	// Description is a short label (e.g., "Groceries").
	Description string

	// Amount is the total spent. Participant AmountOwed values add up to it.
	Amount float64

	// PaidBy is the user ID of the member who paid.
	PaidBy string

	// Participants are the members sharing the expense.
	Participants []ParticipantShare

	// CreatedBy is the user ID that recorded the expense.
	CreatedBy string

	// CreatedAt is the Unix timestamp when the expense was recorded.
	CreatedAt int64

	// UpdatedAt is the Unix timestamp of the last edit.
	UpdatedAt int64
}

// ParticipantShare is one member's obligation within an expense.
type ParticipantShare struct {
	// UserID is the participating member.
	UserID string

	// AmountOwed is what this member is responsible for.
	AmountOwed float64

	// AmountPaid is how much of AmountOwed the member has already covered.
	// The payer's own share is normally fully paid.
	AmountPaid float64
}

// ErrMissingPayer is returned when an expense has no payer.
var ErrMissingPayer = errors.New("paid_by is required")

// Validate checks the expense invariants the balance engine relies on.
func (e *Expense) Validate() error {
	if e.PaidBy == "" {
		return ErrMissingPayer
	}
	return calculator.ValidateShares(e.Amount, e.shares())
}

func (e *Expense) shares() []calculator.ShareForBalance {
	shares := make([]calculator.ShareForBalance, len(e.Participants))
	for i, p := range e.Participants {
		shares[i] = calculator.ShareForBalance{
			UserID:     p.UserID,
			AmountOwed: p.AmountOwed,
			AmountPaid: p.AmountPaid,
		}
	}
	return shares
}

// ForBalance converts the expense into balance engine input.
func (e *Expense) ForBalance() calculator.ExpenseForBalance {
	return calculator.ExpenseForBalance{
		ID:           e.ID,
		PaidBy:       e.PaidBy,
		Amount:       e.Amount,
		Participants: e.shares(),
	}
}

// ExpensesForBalance converts a list of expenses.
func ExpensesForBalance(expenses []*Expense) []calculator.ExpenseForBalance {
	out := make([]calculator.ExpenseForBalance, len(expenses))
	for i, e := range expenses {
		out[i] = e.ForBalance()
	}
	return out
}

// SharesFromBalance converts calculator shares (e.g. from an equal split).
func SharesFromBalance(shares []calculator.ShareForBalance) []ParticipantShare {
	out := make([]ParticipantShare, len(shares))
	for i, s := range shares {
		out[i] = ParticipantShare{UserID: s.UserID, AmountOwed: s.AmountOwed, AmountPaid: s.AmountPaid}
	}
	return out
}

// DefaultDescription names an expense after its participants, or after the
// current date when there are none.
func (e *Expense) DefaultDescription() string {
	names := make([]string, len(e.Participants))
	for i, share := range e.Participants {
		names[i] = share.UserID
	}
	if len(names) == 0 {
		return fmt.Sprintf("Expense - %s", time.Now().Format("Jan 2, 2006"))
	}
	if len(names) <= 3 {
		return fmt.Sprintf("Split with %s", strings.Join(names, ", "))
	}
	return fmt.Sprintf("Split with %s and %d others",
		strings.Join(names[:2], ", "),
		len(names)-2,
	)
}
