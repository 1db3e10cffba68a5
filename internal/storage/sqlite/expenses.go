package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// CreateExpense persists a new expense and its shares.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}
	expense.UpdatedAt = expense.CreatedAt
	if expense.Description == "" {
		expense.Description = expense.DefaultDescription()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, group_id, description, amount, paid_by, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.GroupID, expense.Description, expense.Amount, expense.PaidBy,
		expense.CreatedBy, expense.CreatedAt, expense.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	if err := insertShares(ctx, tx, expense.ID, expense.Participants); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertShares(ctx context.Context, tx *sql.Tx, expenseID string, shares []models.ParticipantShare) error {
	for i, share := range shares {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expense_participants (expense_id, user_id, position, amount_owed, amount_paid)
			 VALUES (?, ?, ?, ?, ?)`,
			expenseID, share.UserID, i, share.AmountOwed, share.AmountPaid,
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant share: %w", err)
		}
	}
	return nil
}

// GetExpense retrieves an expense by ID, including its shares.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense := &models.Expense{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, description, amount, paid_by, created_by, created_at, updated_at
		 FROM expenses WHERE id = ?`,
		expenseID,
	).Scan(&expense.ID, &expense.GroupID, &expense.Description, &expense.Amount, &expense.PaidBy,
		&expense.CreatedBy, &expense.CreatedAt, &expense.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("expense", expenseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, amount_owed, amount_paid FROM expense_participants
		 WHERE expense_id = ? ORDER BY position`,
		expenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get participant shares: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var share models.ParticipantShare
		if err := rows.Scan(&share.UserID, &share.AmountOwed, &share.AmountPaid); err != nil {
			return nil, fmt.Errorf("failed to scan participant share: %w", err)
		}
		expense.Participants = append(expense.Participants, share)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participant shares: %w", err)
	}

	return expense, nil
}

// UpdateExpense rewrites an expense and replaces all of its shares.
func (s *SQLiteStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	expense.UpdatedAt = time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE expenses SET description = ?, amount = ?, paid_by = ?, updated_at = ? WHERE id = ?",
		expense.Description, expense.Amount, expense.PaidBy, expense.UpdatedAt, expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if err := requireAffected(result, "expense", expense.ID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM expense_participants WHERE expense_id = ?", expense.ID); err != nil {
		return fmt.Errorf("failed to delete old participant shares: %w", err)
	}
	if err := insertShares(ctx, tx, expense.ID, expense.Participants); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteExpense removes an expense; its shares cascade.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, expenseID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return requireAffected(result, "expense", expenseID)
}

// ListExpensesByGroup retrieves all expenses for a group with their shares.
// Expenses and shares are read in one transaction.
func (s *SQLiteStore) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	var expenses []*models.Expense
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		var err error
		expenses, err = listExpenses(ctx, tx, groupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

func listExpenses(ctx context.Context, q queryer, groupID string) ([]*models.Expense, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, group_id, description, amount, paid_by, created_by, created_at, updated_at
		 FROM expenses WHERE group_id = ? ORDER BY created_at, rowid`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses by group: %w", err)
	}

	var expenses []*models.Expense
	byID := make(map[string]*models.Expense)
	for rows.Next() {
		expense := &models.Expense{}
		if err := rows.Scan(&expense.ID, &expense.GroupID, &expense.Description, &expense.Amount,
			&expense.PaidBy, &expense.CreatedBy, &expense.CreatedAt, &expense.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
		byID[expense.ID] = expense
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	shareRows, err := q.QueryContext(ctx,
		`SELECT p.expense_id, p.user_id, p.amount_owed, p.amount_paid
		 FROM expense_participants p JOIN expenses e ON e.id = p.expense_id
		 WHERE e.group_id = ?
		 ORDER BY p.expense_id, p.position`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list participant shares: %w", err)
	}
	defer shareRows.Close()

	for shareRows.Next() {
		var expenseID string
		var share models.ParticipantShare
		if err := shareRows.Scan(&expenseID, &share.UserID, &share.AmountOwed, &share.AmountPaid); err != nil {
			return nil, fmt.Errorf("failed to scan participant share: %w", err)
		}
		if expense, ok := byID[expenseID]; ok {
			expense.Participants = append(expense.Participants, share)
		}
	}
	if err := shareRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participant shares: %w", err)
	}

	return expenses, nil
}
