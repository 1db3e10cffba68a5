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

type settlementRow struct {
	ID         string         `db:"id"`
	GroupID    string         `db:"group_id"`
	FromUserID string         `db:"from_user_id"`
	ToUserID   string         `db:"to_user_id"`
	Amount     float64        `db:"amount"`
	Note       sql.NullString `db:"note"`
	CreatedBy  string         `db:"created_by"`
	CreatedAt  int64          `db:"created_at"`
	UpdatedAt  int64          `db:"updated_at"`
}

func (r settlementRow) toModel() *models.Settlement {
	return &models.Settlement{
		ID:         r.ID,
		GroupID:    r.GroupID,
		FromUserID: r.FromUserID,
		ToUserID:   r.ToUserID,
		Amount:     r.Amount,
		Note:       r.Note.String,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

const settlementColumns = `id, group_id, from_user_id, to_user_id, amount, note, created_by, created_at, updated_at`

func nullableNote(note string) sql.NullString {
	return sql.NullString{String: note, Valid: note != ""}
}

// CreateSettlement persists a new settlement.
func (s *PostgresStore) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	if settlement.ID == "" {
		settlement.ID = uuid.New().String()
	}
	if settlement.CreatedAt == 0 {
		settlement.CreatedAt = time.Now().Unix()
	}
	settlement.UpdatedAt = settlement.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settlements (`+settlementColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		settlement.ID, settlement.GroupID, settlement.FromUserID, settlement.ToUserID,
		settlement.Amount, nullableNote(settlement.Note), settlement.CreatedBy,
		settlement.CreatedAt, settlement.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", groupError(err, settlement.GroupID))
	}
	return nil
}

// GetSettlement retrieves a settlement by ID.
func (s *PostgresStore) GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error) {
	var row settlementRow
	err := s.db.GetContext(ctx, &row, `SELECT `+settlementColumns+` FROM settlements WHERE id = $1`, settlementID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("settlement", settlementID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return row.toModel(), nil
}

// UpdateSettlement changes the parties, amount and note of a settlement.
func (s *PostgresStore) UpdateSettlement(ctx context.Context, settlement *models.Settlement) error {
	settlement.UpdatedAt = time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`UPDATE settlements SET from_user_id = $1, to_user_id = $2, amount = $3, note = $4, updated_at = $5
		 WHERE id = $6`,
		settlement.FromUserID, settlement.ToUserID, settlement.Amount, nullableNote(settlement.Note),
		settlement.UpdatedAt, settlement.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update settlement: %w", err)
	}
	return requireAffected(result, "settlement", settlement.ID)
}

// ListSettlementsByGroup retrieves all settlements for a group, oldest first.
func (s *PostgresStore) ListSettlementsByGroup(ctx context.Context, groupID string) ([]*models.Settlement, error) {
	return listSettlements(ctx, s.db, groupID)
}

func listSettlements(ctx context.Context, q sqlx.QueryerContext, groupID string) ([]*models.Settlement, error) {
	var rows []settlementRow
	err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT `+settlementColumns+` FROM settlements WHERE group_id = $1 ORDER BY created_at, seq`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements by group: %w", err)
	}

	settlements := make([]*models.Settlement, len(rows))
	for i, row := range rows {
		settlements[i] = row.toModel()
	}
	return settlements, nil
}

// DeleteSettlement removes a settlement by ID.
func (s *PostgresStore) DeleteSettlement(ctx context.Context, settlementID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM settlements WHERE id = $1", settlementID)
	if err != nil {
		return fmt.Errorf("failed to delete settlement: %w", err)
	}
	return requireAffected(result, "settlement", settlementID)
}
