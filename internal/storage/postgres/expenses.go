package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

type expenseRow struct {
	ID          string  `db:"id"`
	GroupID     string  `db:"group_id"`
	Description string  `db:"description"`
	Amount      float64 `db:"amount"`
	PaidBy      string  `db:"paid_by"`
	CreatedBy   string  `db:"created_by"`
	CreatedAt   int64   `db:"created_at"`
	UpdatedAt   int64   `db:"updated_at"`
}

type shareRow struct {
	ExpenseID  string  `db:"expense_id"`
	UserID     string  `db:"user_id"`
	AmountOwed float64 `db:"amount_owed"`
	AmountPaid float64 `db:"amount_paid"`
}

func (r expenseRow) toModel() *models.Expense {
	return &models.Expense{
		ID:          r.ID,
		GroupID:     r.GroupID,
		Description: r.Description,
		Amount:      r.Amount,
		PaidBy:      r.PaidBy,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

const expenseColumns = `id, group_id, description, amount, paid_by, created_by, created_at, updated_at`

// CreateExpense persists a new expense and its shares.
func (s *PostgresStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
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

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		expense.ID, expense.GroupID, expense.Description, expense.Amount, expense.PaidBy,
		expense.CreatedBy, expense.CreatedAt, expense.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", groupError(err, expense.GroupID))
	}

	if err := insertShares(ctx, tx, expense.ID, expense.Participants); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertShares(ctx context.Context, tx *sqlx.Tx, expenseID string, shares []models.ParticipantShare) error {
	for i, share := range shares {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expense_participants (expense_id, user_id, position, amount_owed, amount_paid)
			 VALUES ($1, $2, $3, $4, $5)`,
			expenseID, share.UserID, i, share.AmountOwed, share.AmountPaid,
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant share: %w", err)
		}
	}
	return nil
}

// GetExpense retrieves an expense by ID, including its shares.
func (s *PostgresStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	var row expenseRow
	err := s.db.GetContext(ctx, &row, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, expenseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("expense", expenseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	var shares []shareRow
	err = s.db.SelectContext(ctx, &shares,
		`SELECT expense_id, user_id, amount_owed, amount_paid FROM expense_participants
		 WHERE expense_id = $1 ORDER BY position`,
		expenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get participant shares: %w", err)
	}

	expense := row.toModel()
	for _, share := range shares {
		expense.Participants = append(expense.Participants, models.ParticipantShare{
			UserID:     share.UserID,
			AmountOwed: share.AmountOwed,
			AmountPaid: share.AmountPaid,
		})
	}
	return expense, nil
}

// UpdateExpense rewrites an expense and replaces all of its shares.
func (s *PostgresStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	expense.UpdatedAt = time.Now().Unix()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE expenses SET description = $1, amount = $2, paid_by = $3, updated_at = $4 WHERE id = $5",
		expense.Description, expense.Amount, expense.PaidBy, expense.UpdatedAt, expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if err := requireAffected(result, "expense", expense.ID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM expense_participants WHERE expense_id = $1", expense.ID); err != nil {
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
func (s *PostgresStore) DeleteExpense(ctx context.Context, expenseID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = $1", expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return requireAffected(result, "expense", expenseID)
}

// ListExpensesByGroup retrieves all expenses for a group with their shares.
// Expenses and shares are read from one snapshot.
func (s *PostgresStore) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	var expenses []*models.Expense
	err := s.readTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		expenses, err = listExpenses(ctx, tx, groupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

func listExpenses(ctx context.Context, tx *sqlx.Tx, groupID string) ([]*models.Expense, error) {
	var rows []expenseRow
	err := tx.SelectContext(ctx, &rows,
		`SELECT `+expenseColumns+` FROM expenses WHERE group_id = $1 ORDER BY created_at, seq`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses by group: %w", err)
	}

	var shares []shareRow
	err = tx.SelectContext(ctx, &shares,
		`SELECT p.expense_id, p.user_id, p.amount_owed, p.amount_paid
		 FROM expense_participants p JOIN expenses e ON e.id = p.expense_id
		 WHERE e.group_id = $1
		 ORDER BY p.expense_id, p.position`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list participant shares: %w", err)
	}

	expenses := make([]*models.Expense, len(rows))
	byID := make(map[string]*models.Expense, len(rows))
	for i, row := range rows {
		expenses[i] = row.toModel()
		byID[row.ID] = expenses[i]
	}
	for _, share := range shares {
		if expense, ok := byID[share.ExpenseID]; ok {
			expense.Participants = append(expense.Participants, models.ParticipantShare{
				UserID:     share.UserID,
				AmountOwed: share.AmountOwed,
				AmountPaid: share.AmountPaid,
			})
		}
	}
	return expenses, nil
}
