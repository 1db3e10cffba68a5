// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
)

// ErrNotFound is wrapped by every store when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// GroupStore persists groups and their membership.
type GroupStore interface {
	// CreateGroup persists a new group. ID and CreatedAt are filled in when empty.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group with its current members.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroupsForUser returns the groups userID currently belongs to, newest first.
	ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error)

	// UpdateGroup renames a group. Membership is changed through
	// AddGroupMembers and RemoveGroupMember.
	UpdateGroup(ctx context.Context, group *models.Group) error

	// DeleteGroup removes a group and everything recorded in it.
	DeleteGroup(ctx context.Context, groupID string) error

	// AddGroupMembers adds members, ignoring ones already present.
	AddGroupMembers(ctx context.Context, groupID string, userIDs []string) error

	// RemoveGroupMember removes one member. Their past expenses and
	// settlements are kept.
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
}

// ExpenseStore persists expenses and their participant shares.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, expense *models.Expense) error
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// UpdateExpense replaces the expense fields and its full set of shares.
	UpdateExpense(ctx context.Context, expense *models.Expense) error

	DeleteExpense(ctx context.Context, expenseID string) error

	// ListExpensesByGroup returns a group's expenses with shares, oldest first.
	ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error)
}

// SettlementStore persists direct payments between members.
type SettlementStore interface {
	CreateSettlement(ctx context.Context, settlement *models.Settlement) error
	GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error)
	UpdateSettlement(ctx context.Context, settlement *models.Settlement) error
	DeleteSettlement(ctx context.Context, settlementID string) error

	// ListSettlementsByGroup returns settlements oldest first, which is the
	// order they are applied to balances.
	ListSettlementsByGroup(ctx context.Context, groupID string) ([]*models.Settlement, error)
}

// BalanceStore computes balances next to the data.
type BalanceStore interface {
	// ComputeGroupBalances aggregates expense debts in the database and nets
	// settlements through calculator.Ledger. The result must agree with
	// calculator.ComputeBalances over the same rows.
	ComputeGroupBalances(ctx context.Context, groupID string) (map[string]calculator.MemberBalance, error)
}

// Store defines the full storage surface used by the services.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the service layer.
type Store interface {
	GroupStore
	ExpenseStore
	SettlementStore
	BalanceStore

	// Close releases any resources held by the store.
	Close() error
}

// TotalsRow is one member's aggregated share totals within a group.
type TotalsRow struct {
	UserID string  `db:"user_id"`
	Owed   float64 `db:"owed"`
	Paid   float64 `db:"paid"`
}

// DebtRow is the aggregated unpaid remainder one member owes a payer.
type DebtRow struct {
	Debtor   string  `db:"debtor"`
	Creditor string  `db:"creditor"`
	Amount   float64 `db:"amount"`
}

// BuildBalances feeds database aggregates into a ledger seeded with members
// and applies settlements in order. Both SQL stores finish their server-side
// computation here so netting is never reimplemented.
func BuildBalances(members []string, totals []TotalsRow, debts []DebtRow, settlements []*models.Settlement) map[string]calculator.MemberBalance {
	l := calculator.NewLedger(members)
	for _, t := range totals {
		l.AddTotals(t.UserID, t.Owed, t.Paid)
	}
	for _, d := range debts {
		l.AddDebt(d.Debtor, d.Creditor, d.Amount)
	}
	for _, s := range settlements {
		l.ApplySettlement(s.ForBalance())
	}
	return l.Balances()
}

// NotFound builds an error wrapping ErrNotFound, e.g. "expense not found: <id>".
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %w: %s", kind, ErrNotFound, id)
}
