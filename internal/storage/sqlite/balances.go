package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/storage"
)

const totalsQuery = `
SELECT p.user_id, SUM(p.amount_owed), SUM(p.amount_paid)
FROM expense_participants p
JOIN expenses e ON e.id = p.expense_id
WHERE e.group_id = ?
GROUP BY p.user_id`

// Each share is filtered before summing so a pair of tiny remainders never
// adds up to a debt the local engine would not record.
const debtsQuery = `
SELECT p.user_id, e.paid_by, SUM(p.amount_owed - p.amount_paid)
FROM expense_participants p
JOIN expenses e ON e.id = p.expense_id
WHERE e.group_id = ?
  AND p.user_id <> e.paid_by
  AND (p.amount_owed - p.amount_paid) > ?
GROUP BY p.user_id, e.paid_by`

// ComputeGroupBalances aggregates share totals and pairwise debts in SQLite
// and nets settlements through the shared ledger. All four reads share one
// read-only transaction.
func (s *SQLiteStore) ComputeGroupBalances(ctx context.Context, groupID string) (map[string]calculator.MemberBalance, error) {
	var balances map[string]calculator.MemberBalance
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		group, err := getGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}

		totals, err := queryTotals(ctx, tx, groupID)
		if err != nil {
			return err
		}

		debts, err := queryDebts(ctx, tx, groupID)
		if err != nil {
			return err
		}

		settlements, err := listSettlements(ctx, tx, groupID)
		if err != nil {
			return err
		}

		balances = storage.BuildBalances(group.Members, totals, debts, settlements)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balances, nil
}

func queryTotals(ctx context.Context, q queryer, groupID string) ([]storage.TotalsRow, error) {
	rows, err := q.QueryContext(ctx, totalsQuery, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate share totals: %w", err)
	}
	defer rows.Close()

	var totals []storage.TotalsRow
	for rows.Next() {
		var row storage.TotalsRow
		if err := rows.Scan(&row.UserID, &row.Owed, &row.Paid); err != nil {
			return nil, fmt.Errorf("failed to scan share totals: %w", err)
		}
		totals = append(totals, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate share totals: %w", err)
	}
	return totals, nil
}

func queryDebts(ctx context.Context, q queryer, groupID string) ([]storage.DebtRow, error) {
	rows, err := q.QueryContext(ctx, debtsQuery, groupID, calculator.Epsilon)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate debts: %w", err)
	}
	defer rows.Close()

	var debts []storage.DebtRow
	for rows.Next() {
		var row storage.DebtRow
		if err := rows.Scan(&row.Debtor, &row.Creditor, &row.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		debts = append(debts, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate debts: %w", err)
	}
	return debts, nil
}
