package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

func setupMockDB(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewWithDB(sqlx.NewDb(db, "postgres")), mock
}

var groupColumns = []string{"id", "name", "created_by", "created_at", "members"}

func TestPostgresStore_GetGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT g.id, g.name")).
			WithArgs("g1").
			WillReturnRows(sqlmock.NewRows(groupColumns).AddRow("g1", "Trip", "alice", int64(100), "{alice,bob}"))

		group, err := store.GetGroup(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "Trip", group.Name)
		assert.Equal(t, []string{"alice", "bob"}, group.Members)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT g.id, g.name")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(groupColumns))

		_, err := store.GetGroup(ctx, "missing")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_CreateGroup(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO groups (id, name, created_by, created_at)")).
		WithArgs(sqlmock.AnyArg(), "Trip", "alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO group_members")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	group := &models.Group{Name: "Trip", CreatedBy: "alice", Members: []string{"alice", "bob"}}
	require.NoError(t, store.CreateGroup(context.Background(), group))
	assert.NotEmpty(t, group.ID)
	assert.NotZero(t, group.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddGroupMembersMissingGroup(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO group_members")).
		WillReturnError(&pq.Error{Code: foreignKeyViolation})
	mock.ExpectRollback()

	err := store.AddGroupMembers(context.Background(), "missing", []string{"carol"})
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpense(t *testing.T) {
	ctx := context.Background()

	t.Run("deleted", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM expenses WHERE id = $1")).
			WithArgs("e1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.DeleteExpense(ctx, "e1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM expenses WHERE id = $1")).
			WithArgs("e1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.DeleteExpense(ctx, "e1")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
}

func TestPostgresStore_GetExpense(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + expenseColumns + " FROM expenses WHERE id = $1")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "description", "amount", "paid_by", "created_by", "created_at", "updated_at"}).
			AddRow("e1", "g1", "Dinner", 30.0, "alice", "alice", int64(100), int64(100)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM expense_participants")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"expense_id", "user_id", "amount_owed", "amount_paid"}).
			AddRow("e1", "alice", 15.0, 15.0).
			AddRow("e1", "bob", 15.0, 0.0))

	expense, err := store.GetExpense(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "Dinner", expense.Description)
	require.Len(t, expense.Participants, 2)
	assert.Equal(t, models.ParticipantShare{UserID: "bob", AmountOwed: 15}, expense.Participants[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

var settlementColumnNames = []string{"id", "group_id", "from_user_id", "to_user_id", "amount", "note", "created_by", "created_at", "updated_at"}

func TestPostgresStore_ListSettlementsByGroup(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM settlements WHERE group_id = $1 ORDER BY created_at, seq")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows(settlementColumnNames).
			AddRow("s1", "g1", "bob", "alice", 10.0, nil, "bob", int64(100), int64(100)).
			AddRow("s2", "g1", "alice", "bob", 4.0, "refund", "alice", int64(101), int64(101)))

	settlements, err := store.ListSettlementsByGroup(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, settlements, 2)
	assert.Equal(t, "", settlements[0].Note)
	assert.Equal(t, "refund", settlements[1].Note)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ComputeGroupBalances(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT g.id, g.name")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows(groupColumns).AddRow("g1", "Trip", "alice", int64(100), "{alice,bob,carol}"))
	mock.ExpectQuery(regexp.QuoteMeta("SUM(p.amount_owed) AS owed")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "owed", "paid"}).
			AddRow("alice", 30.0, 30.0).
			AddRow("bob", 30.0, 0.0).
			AddRow("carol", 30.0, 0.0))
	mock.ExpectQuery(regexp.QuoteMeta("AS debtor")).
		WithArgs("g1", calculator.Epsilon).
		WillReturnRows(sqlmock.NewRows([]string{"debtor", "creditor", "amount"}).
			AddRow("bob", "alice", 30.0).
			AddRow("carol", "alice", 30.0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM settlements WHERE group_id = $1")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows(settlementColumnNames).
			AddRow("s1", "g1", "bob", "alice", 30.0, nil, "bob", int64(200), int64(200)))
	mock.ExpectCommit()

	balances, err := store.ComputeGroupBalances(context.Background(), "g1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	// Same scenario through the local engine.
	local := calculator.ComputeBalances(
		[]calculator.ExpenseForBalance{{
			ID: "e1", PaidBy: "alice", Amount: 90,
			Participants: []calculator.ShareForBalance{
				{UserID: "alice", AmountOwed: 30, AmountPaid: 30},
				{UserID: "bob", AmountOwed: 30},
				{UserID: "carol", AmountOwed: 30},
			},
		}},
		[]string{"alice", "bob", "carol"},
		[]calculator.SettlementForBalance{{FromUserID: "bob", ToUserID: "alice", Amount: 30}},
	)
	assert.Empty(t, calculator.Equivalent(balances, local))

	assert.Empty(t, balances["bob"].OwesTo)
	require.Len(t, balances["alice"].OwedBy, 1)
	assert.Equal(t, "carol", balances["alice"].OwedBy[0].UserID)
	assert.InDelta(t, 30.0, balances["alice"].NetBalance, 0.001)
}

func TestPostgresStore_ComputeGroupBalancesMissingGroup(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT g.id, g.name")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(groupColumns))
	mock.ExpectRollback()

	_, err := store.ComputeGroupBalances(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListGroupsForUser(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = $1)")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(groupColumns).
			AddRow("g2", "Flat", "bob", int64(200), "{bob,alice}").
			AddRow("g1", "Trip", "alice", int64(100), "{alice}"))

	groups, err := store.ListGroupsForUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "g2", groups[0].ID)
	assert.Equal(t, []string{"bob", "alice"}, groups[0].Members)
	assert.Equal(t, []string{"alice"}, groups[1].Members)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RemoveGroupMember(t *testing.T) {
	ctx := context.Background()
	const query = "DELETE FROM group_members WHERE group_id = $1 AND user_id = $2"

	t.Run("removed", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectExec(regexp.QuoteMeta(query)).
			WithArgs("g1", "bob").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.RemoveGroupMember(ctx, "g1", "bob"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not a member", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectExec(regexp.QuoteMeta(query)).
			WithArgs("g1", "zed").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.RemoveGroupMember(ctx, "g1", "zed")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_CreateExpenseMissingGroup(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO expenses")).
		WillReturnError(&pq.Error{Code: foreignKeyViolation})
	mock.ExpectRollback()

	err := store.CreateExpense(context.Background(), &models.Expense{
		GroupID: "missing", Amount: 10, PaidBy: "alice", CreatedBy: "alice",
		Participants: []models.ParticipantShare{{UserID: "alice", AmountOwed: 10, AmountPaid: 10}},
	})
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSettlementMissingGroup(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settlements")).
		WillReturnError(&pq.Error{Code: foreignKeyViolation})

	err := store.CreateSettlement(context.Background(), &models.Settlement{
		GroupID: "missing", FromUserID: "bob", ToUserID: "alice", Amount: 5, CreatedBy: "bob",
	})
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSettlementOtherError(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settlements")).
		WillReturnError(&pq.Error{Code: "23514"})

	err := store.CreateSettlement(context.Background(), &models.Settlement{
		GroupID: "g1", FromUserID: "bob", ToUserID: "bob", Amount: 5, CreatedBy: "bob",
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, storage.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateExpense(t *testing.T) {
	ctx := context.Background()
	const update = "UPDATE expenses SET description = $1, amount = $2, paid_by = $3, updated_at = $4 WHERE id = $5"
	expense := func() *models.Expense {
		return &models.Expense{
			ID: "e1", GroupID: "g1", Description: "Taxi", Amount: 40, PaidBy: "alice",
			Participants: []models.ParticipantShare{
				{UserID: "alice", AmountOwed: 20, AmountPaid: 40},
				{UserID: "bob", AmountOwed: 20},
			},
		}
	}

	t.Run("replaces shares", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(update)).
			WithArgs("Taxi", 40.0, "alice", sqlmock.AnyArg(), "e1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM expense_participants WHERE expense_id = $1")).
			WithArgs("e1").
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO expense_participants")).
			WithArgs("e1", "alice", sqlmock.AnyArg(), 20.0, 40.0).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO expense_participants")).
			WithArgs("e1", "bob", sqlmock.AnyArg(), 20.0, 0.0).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		e := expense()
		require.NoError(t, store.UpdateExpense(ctx, e))
		assert.NotZero(t, e.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("share insert failure rolls back", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(update)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM expense_participants")).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO expense_participants")).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := store.UpdateExpense(ctx, expense())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert participant share")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(update)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.UpdateExpense(ctx, expense())
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_UpdateSettlement(t *testing.T) {
	ctx := context.Background()
	const update = "UPDATE settlements SET from_user_id = $1, to_user_id = $2, amount = $3, note = $4, updated_at = $5"

	t.Run("updated", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectExec(regexp.QuoteMeta(update)).
			WithArgs("bob", "alice", 4.0, sqlmock.AnyArg(), sqlmock.AnyArg(), "s1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		settlement := &models.Settlement{ID: "s1", FromUserID: "bob", ToUserID: "alice", Amount: 4, Note: "cash"}
		require.NoError(t, store.UpdateSettlement(ctx, settlement))
		assert.NotZero(t, settlement.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectExec(regexp.QuoteMeta(update)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.UpdateSettlement(ctx, &models.Settlement{ID: "missing", FromUserID: "bob", ToUserID: "alice", Amount: 4})
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_ListExpensesByGroup(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM expenses WHERE group_id = $1 ORDER BY created_at, seq")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "description", "amount", "paid_by", "created_by", "created_at", "updated_at"}).
			AddRow("e1", "g1", "Dinner", 30.0, "alice", "alice", int64(100), int64(100)).
			AddRow("e2", "g1", "Cab", 10.0, "bob", "bob", int64(100), int64(100)))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY p.expense_id, p.position")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"expense_id", "user_id", "amount_owed", "amount_paid"}).
			AddRow("e1", "alice", 15.0, 30.0).
			AddRow("e1", "bob", 15.0, 0.0).
			AddRow("e2", "bob", 10.0, 10.0))
	mock.ExpectCommit()

	expenses, err := store.ListExpensesByGroup(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, expenses, 2)
	assert.Equal(t, "e1", expenses[0].ID)
	assert.Equal(t, []models.ParticipantShare{
		{UserID: "alice", AmountOwed: 15, AmountPaid: 30},
		{UserID: "bob", AmountOwed: 15},
	}, expenses[0].Participants)
	assert.Equal(t, []models.ParticipantShare{{UserID: "bob", AmountOwed: 10, AmountPaid: 10}}, expenses[1].Participants)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListExpensesByGroupShareQueryFails(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM expenses WHERE group_id = $1")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "description", "amount", "paid_by", "created_by", "created_at", "updated_at"}).
			AddRow("e1", "g1", "Dinner", 30.0, "alice", "alice", int64(100), int64(100)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM expense_participants p")).
		WillReturnError(errors.New("canceling statement due to conflict with recovery"))
	mock.ExpectRollback()

	_, err := store.ListExpensesByGroup(context.Background(), "g1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
