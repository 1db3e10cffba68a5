package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/storage"
)

const totalsQuery = `
SELECT p.user_id, SUM(p.amount_owed) AS owed, SUM(p.amount_paid) AS paid
FROM expense_participants p
JOIN expenses e ON e.id = p.expense_id
WHERE e.group_id = $1
GROUP BY p.user_id`

// Shares are filtered individually before summing, matching the local engine.
const debtsQuery = `
SELECT p.user_id AS debtor, e.paid_by AS creditor, SUM(p.amount_owed - p.amount_paid) AS amount
FROM expense_participants p
JOIN expenses e ON e.id = p.expense_id
WHERE e.group_id = $1
  AND p.user_id <> e.paid_by
  AND (p.amount_owed - p.amount_paid) > $2
GROUP BY p.user_id, e.paid_by`

// ComputeGroupBalances aggregates share totals and pairwise debts in
// PostgreSQL and nets settlements through the shared ledger. All four reads
// share one snapshot.
func (s *PostgresStore) ComputeGroupBalances(ctx context.Context, groupID string) (map[string]calculator.MemberBalance, error) {
	var balances map[string]calculator.MemberBalance
	err := s.readTx(ctx, func(tx *sqlx.Tx) error {
		group, err := getGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}

		var totals []storage.TotalsRow
		if err := tx.SelectContext(ctx, &totals, totalsQuery, groupID); err != nil {
			return fmt.Errorf("failed to aggregate share totals: %w", err)
		}

		var debts []storage.DebtRow
		if err := tx.SelectContext(ctx, &debts, debtsQuery, groupID, calculator.Epsilon); err != nil {
			return fmt.Errorf("failed to aggregate debts: %w", err)
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
