// Package postgres provides a PostgreSQL-backed implementation of the
// storage.Store interface built on sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

var _ storage.Store = (*PostgresStore)(nil)

// foreignKeyViolation is the SQLSTATE raised when a referenced group is gone.
const foreignKeyViolation = "23503"

// PostgresStore implements storage.Store using PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// New connects to PostgreSQL, configures the pool and creates the schema.
func New(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an existing connection. The schema is assumed to exist.
func NewWithDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type groupRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	CreatedBy string         `db:"created_by"`
	CreatedAt int64          `db:"created_at"`
	Members   pq.StringArray `db:"members"`
}

func (r groupRow) toModel() *models.Group {
	members := []string(r.Members)
	if members == nil {
		members = []string{}
	}
	return &models.Group{
		ID:        r.ID,
		Name:      r.Name,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
		Members:   members,
	}
}

const groupSelect = `
SELECT g.id, g.name, g.created_by, g.created_at,
       ARRAY(SELECT m.user_id FROM group_members m
             WHERE m.group_id = g.id ORDER BY m.joined_at, m.user_id) AS members
FROM groups g`

// CreateGroup persists a new group with its initial members.
func (s *PostgresStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO groups (id, name, created_by, created_at) VALUES ($1, $2, $3, $4)",
		group.ID, group.Name, group.CreatedBy, group.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	if err := insertMembers(ctx, tx, group.ID, group.Members, group.CreatedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertMembers(ctx context.Context, tx *sqlx.Tx, groupID string, userIDs []string, joinedAt int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, joined_at)
		 SELECT $1, unnest($2::text[]), $3
		 ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, pq.Array(userIDs), joinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group members: %w", err)
	}
	return nil
}

// readTx runs fn in a read-only REPEATABLE READ transaction so every
// statement in fn sees the same snapshot.
func (s *PostgresStore) readTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit read transaction: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID, including its members.
func (s *PostgresStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return getGroup(ctx, s.db, groupID)
}

func getGroup(ctx context.Context, q sqlx.QueryerContext, groupID string) (*models.Group, error) {
	var row groupRow
	err := sqlx.GetContext(ctx, q, &row, groupSelect+" WHERE g.id = $1", groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("group", groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return row.toModel(), nil
}

// ListGroupsForUser returns every group the user belongs to, newest first.
func (s *PostgresStore) ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error) {
	var rows []groupRow
	err := s.db.SelectContext(ctx, &rows,
		groupSelect+`
		 WHERE EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = $1)
		 ORDER BY g.created_at DESC, g.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	groups := make([]*models.Group, len(rows))
	for i, row := range rows {
		groups[i] = row.toModel()
	}
	return groups, nil
}

// UpdateGroup renames an existing group.
func (s *PostgresStore) UpdateGroup(ctx context.Context, group *models.Group) error {
	result, err := s.db.ExecContext(ctx, "UPDATE groups SET name = $1 WHERE id = $2", group.Name, group.ID)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	return requireAffected(result, "group", group.ID)
}

// DeleteGroup removes a group. Members, expenses and settlements cascade.
func (s *PostgresStore) DeleteGroup(ctx context.Context, groupID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM groups WHERE id = $1", groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return requireAffected(result, "group", groupID)
}

// AddGroupMembers adds members to an existing group.
func (s *PostgresStore) AddGroupMembers(ctx context.Context, groupID string, userIDs []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertMembers(ctx, tx, groupID, userIDs, time.Now().Unix()); err != nil {
		return groupError(err, groupID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RemoveGroupMember removes a member from a group.
func (s *PostgresStore) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM group_members WHERE group_id = $1 AND user_id = $2",
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return requireAffected(result, "group member", userID)
}

// groupError maps a foreign key violation on group_id to storage.ErrNotFound.
func groupError(err error, groupID string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return storage.NotFound("group", groupID)
	}
	return err
}

func requireAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return storage.NotFound(kind, id)
	}
	return nil
}
