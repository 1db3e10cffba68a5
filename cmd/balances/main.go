// Command balances computes group balances offline from a JSON snapshot.
//
// Usage:
//
//	balances -in snapshot.json [-member alice]
//
// The snapshot has the shape
//
//	{"members": ["alice", "bob"], "expenses": [...], "settlements": [...]}
//
// where expenses and settlements use the same JSON fields as the RPC API.
// Settlements apply in the order listed.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/pflag"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/pkg/api"
	"github.com/mmynk/splitledger/pkg/logging"
)

type snapshot struct {
	Members     []string         `json:"members"`
	Expenses    []api.Expense    `json:"expenses"`
	Settlements []api.Settlement `json:"settlements"`
}

func main() {
	logging.Setup()

	flags := pflag.NewFlagSet("balances", pflag.ExitOnError)
	in := flags.StringP("in", "i", "-", "snapshot file, - for stdin")
	member := flags.StringP("member", "m", "", "print only this member's balance")
	_ = flags.Parse(os.Args[1:])

	if err := run(*in, *member, os.Stdin, os.Stdout); err != nil {
		slog.Error("Failed to compute balances", "error", err)
		os.Exit(1)
	}
}

func run(path, member string, stdin io.Reader, stdout io.Writer) error {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	result, err := compute(snap, member)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// compute validates the snapshot and returns either every balance or the
// requested member's. A member with no entry yields null.
func compute(snap snapshot, member string) (any, error) {
	expenses := make([]*models.Expense, len(snap.Expenses))
	for i, e := range snap.Expenses {
		expense := &models.Expense{
			ID:           e.ID,
			Amount:       e.Amount,
			PaidBy:       e.PaidBy,
			Participants: make([]models.ParticipantShare, len(e.Participants)),
		}
		for j, p := range e.Participants {
			expense.Participants[j] = models.ParticipantShare{UserID: p.UserID, AmountOwed: p.AmountOwed, AmountPaid: p.AmountPaid}
		}
		if err := expense.Validate(); err != nil {
			return nil, fmt.Errorf("expense %d (%s): %w", i, e.ID, err)
		}
		expenses[i] = expense
	}

	settlements := make([]*models.Settlement, len(snap.Settlements))
	for i, s := range snap.Settlements {
		settlement := &models.Settlement{ID: s.ID, FromUserID: s.FromUserID, ToUserID: s.ToUserID, Amount: s.Amount}
		if err := settlement.Validate(); err != nil {
			return nil, fmt.Errorf("settlement %d (%s): %w", i, s.ID, err)
		}
		settlements[i] = settlement
	}

	expenseInput := models.ExpensesForBalance(expenses)
	settlementInput := models.SettlementsForBalance(settlements)

	if member != "" {
		bal, ok := calculator.GetMemberBalance(expenseInput, snap.Members, member, settlementInput)
		if !ok {
			return nil, nil
		}
		return bal, nil
	}

	balances := calculator.ComputeBalances(expenseInput, snap.Members, settlementInput)
	out := make([]calculator.MemberBalance, 0, len(balances))
	for _, id := range memberOrder(balances) {
		out = append(out, balances[id])
	}
	return out, nil
}

func memberOrder(balances map[string]calculator.MemberBalance) []string {
	ids := make([]string, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
