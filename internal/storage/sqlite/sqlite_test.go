package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "splitledger-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createGroup(t *testing.T, store *SQLiteStore, members ...string) *models.Group {
	t.Helper()
	group := &models.Group{Name: "Trip", CreatedBy: members[0], Members: members}
	if err := store.CreateGroup(context.Background(), group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return group
}

func TestSQLiteStore_Groups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("CreateGroup generates ID and stores members", func(t *testing.T) {
		group := createGroup(t, store, "alice", "bob")
		if group.ID == "" {
			t.Error("Expected group ID to be generated")
		}
		if group.CreatedAt == 0 {
			t.Error("Expected CreatedAt to be set")
		}

		got, err := store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if got.Name != "Trip" || got.CreatedBy != "alice" {
			t.Errorf("Unexpected group: %+v", got)
		}
		if len(got.Members) != 2 {
			t.Errorf("Expected 2 members, got %v", got.Members)
		}
	})

	t.Run("GetGroup returns ErrNotFound", func(t *testing.T) {
		_, err := store.GetGroup(ctx, "nonexistent-id")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("AddGroupMembers ignores existing members", func(t *testing.T) {
		group := createGroup(t, store, "alice", "bob")
		if err := store.AddGroupMembers(ctx, group.ID, []string{"bob", "carol"}); err != nil {
			t.Fatalf("AddGroupMembers failed: %v", err)
		}
		got, _ := store.GetGroup(ctx, group.ID)
		if len(got.Members) != 3 {
			t.Errorf("Expected 3 members, got %v", got.Members)
		}
		if !got.HasMember("carol") {
			t.Error("Expected carol to be a member")
		}
	})

	t.Run("AddGroupMembers on missing group", func(t *testing.T) {
		err := store.AddGroupMembers(ctx, "nonexistent-id", []string{"bob"})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("RemoveGroupMember", func(t *testing.T) {
		group := createGroup(t, store, "alice", "bob")
		if err := store.RemoveGroupMember(ctx, group.ID, "bob"); err != nil {
			t.Fatalf("RemoveGroupMember failed: %v", err)
		}
		got, _ := store.GetGroup(ctx, group.ID)
		if got.HasMember("bob") {
			t.Error("Expected bob to be removed")
		}
		err := store.RemoveGroupMember(ctx, group.ID, "bob")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound on second removal, got %v", err)
		}
	})

	t.Run("ListGroupsForUser", func(t *testing.T) {
		createGroup(t, store, "dave", "erin")
		createGroup(t, store, "erin", "frank")

		groups, err := store.ListGroupsForUser(ctx, "erin")
		if err != nil {
			t.Fatalf("ListGroupsForUser failed: %v", err)
		}
		if len(groups) != 2 {
			t.Fatalf("Expected 2 groups, got %d", len(groups))
		}
		for _, g := range groups {
			if !g.HasMember("erin") {
				t.Errorf("Group %s does not contain erin: %v", g.ID, g.Members)
			}
		}
	})

	t.Run("UpdateGroup and DeleteGroup cascade", func(t *testing.T) {
		group := createGroup(t, store, "alice", "bob")
		group.Name = "Renamed"
		if err := store.UpdateGroup(ctx, group); err != nil {
			t.Fatalf("UpdateGroup failed: %v", err)
		}
		got, _ := store.GetGroup(ctx, group.ID)
		if got.Name != "Renamed" {
			t.Errorf("Expected renamed group, got %q", got.Name)
		}

		expense := &models.Expense{
			GroupID: group.ID, Amount: 10, PaidBy: "alice", CreatedBy: "alice",
			Participants: []models.ParticipantShare{{UserID: "alice", AmountOwed: 5, AmountPaid: 5}, {UserID: "bob", AmountOwed: 5}},
		}
		if err := store.CreateExpense(ctx, expense); err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}

		if err := store.DeleteGroup(ctx, group.ID); err != nil {
			t.Fatalf("DeleteGroup failed: %v", err)
		}
		if _, err := store.GetExpense(ctx, expense.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected expense to be deleted with group, got %v", err)
		}
		if err := store.DeleteGroup(ctx, group.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestSQLiteStore_Expenses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	group := createGroup(t, store, "alice", "bob", "carol")

	t.Run("CreateExpense generates ID and description", func(t *testing.T) {
		expense := &models.Expense{
			GroupID: group.ID, Amount: 30, PaidBy: "alice", CreatedBy: "alice",
			Participants: []models.ParticipantShare{
				{UserID: "alice", AmountOwed: 10, AmountPaid: 10},
				{UserID: "bob", AmountOwed: 10},
				{UserID: "carol", AmountOwed: 10},
			},
		}
		if err := store.CreateExpense(ctx, expense); err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}
		if expense.ID == "" {
			t.Error("Expected expense ID to be generated")
		}
		if expense.Description != "Split with alice, bob, carol" {
			t.Errorf("Unexpected description: %q", expense.Description)
		}

		got, err := store.GetExpense(ctx, expense.ID)
		if err != nil {
			t.Fatalf("GetExpense failed: %v", err)
		}
		if got.Amount != 30 || got.PaidBy != "alice" {
			t.Errorf("Unexpected expense: %+v", got)
		}
		if len(got.Participants) != 3 {
			t.Fatalf("Expected 3 shares, got %d", len(got.Participants))
		}
		// Shares come back in insertion order.
		for i, want := range []string{"alice", "bob", "carol"} {
			if got.Participants[i].UserID != want {
				t.Errorf("Share %d: got %s, want %s", i, got.Participants[i].UserID, want)
			}
		}
		if got.Participants[0].AmountPaid != 10 {
			t.Errorf("Expected payer share to be paid, got %f", got.Participants[0].AmountPaid)
		}
	})

	t.Run("UpdateExpense replaces shares", func(t *testing.T) {
		expense := &models.Expense{
			GroupID: group.ID, Description: "Taxi", Amount: 20, PaidBy: "bob", CreatedBy: "bob",
			Participants: []models.ParticipantShare{
				{UserID: "bob", AmountOwed: 10, AmountPaid: 10},
				{UserID: "carol", AmountOwed: 10},
			},
		}
		if err := store.CreateExpense(ctx, expense); err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}

		expense.Amount = 9
		expense.Participants = []models.ParticipantShare{
			{UserID: "alice", AmountOwed: 3},
			{UserID: "bob", AmountOwed: 3, AmountPaid: 3},
			{UserID: "carol", AmountOwed: 3},
		}
		if err := store.UpdateExpense(ctx, expense); err != nil {
			t.Fatalf("UpdateExpense failed: %v", err)
		}

		got, _ := store.GetExpense(ctx, expense.ID)
		if got.Amount != 9 || len(got.Participants) != 3 {
			t.Errorf("Expense not updated: %+v", got)
		}
		if got.Description != "Taxi" {
			t.Errorf("Description changed unexpectedly: %q", got.Description)
		}
	})

	t.Run("UpdateExpense on missing expense", func(t *testing.T) {
		err := store.UpdateExpense(ctx, &models.Expense{ID: "nonexistent-id", Amount: 1})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListExpensesByGroup includes shares", func(t *testing.T) {
		expenses, err := store.ListExpensesByGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("ListExpensesByGroup failed: %v", err)
		}
		if len(expenses) != 2 {
			t.Fatalf("Expected 2 expenses, got %d", len(expenses))
		}
		for _, e := range expenses {
			if len(e.Participants) != 3 {
				t.Errorf("Expense %s has %d shares, want 3", e.ID, len(e.Participants))
			}
		}
	})

	t.Run("DeleteExpense", func(t *testing.T) {
		expenses, _ := store.ListExpensesByGroup(ctx, group.ID)
		if err := store.DeleteExpense(ctx, expenses[0].ID); err != nil {
			t.Fatalf("DeleteExpense failed: %v", err)
		}
		if err := store.DeleteExpense(ctx, expenses[0].ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestSQLiteStore_Settlements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	group := createGroup(t, store, "alice", "bob")

	first := &models.Settlement{GroupID: group.ID, FromUserID: "bob", ToUserID: "alice", Amount: 5, CreatedBy: "bob"}
	second := &models.Settlement{GroupID: group.ID, FromUserID: "alice", ToUserID: "bob", Amount: 2, Note: "refund", CreatedBy: "alice"}
	for _, s := range []*models.Settlement{first, second} {
		if err := store.CreateSettlement(ctx, s); err != nil {
			t.Fatalf("CreateSettlement failed: %v", err)
		}
	}

	t.Run("ListSettlementsByGroup keeps insertion order", func(t *testing.T) {
		settlements, err := store.ListSettlementsByGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("ListSettlementsByGroup failed: %v", err)
		}
		if len(settlements) != 2 {
			t.Fatalf("Expected 2 settlements, got %d", len(settlements))
		}
		if settlements[0].ID != first.ID || settlements[1].ID != second.ID {
			t.Errorf("Unexpected order: %s, %s", settlements[0].ID, settlements[1].ID)
		}
		if settlements[0].Note != "" || settlements[1].Note != "refund" {
			t.Errorf("Notes not round-tripped: %q, %q", settlements[0].Note, settlements[1].Note)
		}
	})

	t.Run("UpdateSettlement", func(t *testing.T) {
		first.Amount = 7
		first.Note = "cash"
		if err := store.UpdateSettlement(ctx, first); err != nil {
			t.Fatalf("UpdateSettlement failed: %v", err)
		}
		got, err := store.GetSettlement(ctx, first.ID)
		if err != nil {
			t.Fatalf("GetSettlement failed: %v", err)
		}
		if got.Amount != 7 || got.Note != "cash" {
			t.Errorf("Settlement not updated: %+v", got)
		}
	})

	t.Run("DeleteSettlement", func(t *testing.T) {
		if err := store.DeleteSettlement(ctx, second.ID); err != nil {
			t.Fatalf("DeleteSettlement failed: %v", err)
		}
		if _, err := store.GetSettlement(ctx, second.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("self settlement rejected by schema", func(t *testing.T) {
		err := store.CreateSettlement(ctx, &models.Settlement{
			GroupID: group.ID, FromUserID: "alice", ToUserID: "alice", Amount: 1, CreatedBy: "alice",
		})
		if err == nil {
			t.Error("Expected constraint error for self settlement")
		}
	})
}

func TestSQLiteStore_ComputeGroupBalances(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	group := createGroup(t, store, "alice", "bob", "carol", "dave")

	expenses := []*models.Expense{
		{
			GroupID: group.ID, Description: "Dinner", Amount: 90, PaidBy: "alice", CreatedBy: "alice",
			Participants: []models.ParticipantShare{
				{UserID: "alice", AmountOwed: 30, AmountPaid: 30},
				{UserID: "bob", AmountOwed: 30},
				{UserID: "carol", AmountOwed: 30, AmountPaid: 10},
			},
		},
		{
			GroupID: group.ID, Description: "Cab", Amount: 40, PaidBy: "bob", CreatedBy: "bob",
			Participants: []models.ParticipantShare{
				{UserID: "alice", AmountOwed: 20},
				{UserID: "bob", AmountOwed: 20, AmountPaid: 20},
			},
		},
		{
			GroupID: group.ID, Description: "Rounding", Amount: 1.01, PaidBy: "carol", CreatedBy: "carol",
			Participants: []models.ParticipantShare{
				{UserID: "carol", AmountOwed: 1, AmountPaid: 1},
				{UserID: "bob", AmountOwed: 0.005},
				{UserID: "alice", AmountOwed: 0.005},
			},
		},
	}
	for _, e := range expenses {
		if err := store.CreateExpense(ctx, e); err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}
	}
	settlements := []*models.Settlement{
		{GroupID: group.ID, FromUserID: "bob", ToUserID: "alice", Amount: 12, CreatedBy: "bob"},
		{GroupID: group.ID, FromUserID: "carol", ToUserID: "alice", Amount: 50, CreatedBy: "carol"},
	}
	for _, s := range settlements {
		if err := store.CreateSettlement(ctx, s); err != nil {
			t.Fatalf("CreateSettlement failed: %v", err)
		}
	}

	server, err := store.ComputeGroupBalances(ctx, group.ID)
	if err != nil {
		t.Fatalf("ComputeGroupBalances failed: %v", err)
	}

	storedExpenses, _ := store.ListExpensesByGroup(ctx, group.ID)
	storedSettlements, _ := store.ListSettlementsByGroup(ctx, group.ID)
	local := calculator.ComputeBalances(
		models.ExpensesForBalance(storedExpenses),
		group.Members,
		models.SettlementsForBalance(storedSettlements),
	)

	if diffs := calculator.Equivalent(server, local); len(diffs) > 0 {
		t.Errorf("server and local balances differ:\n%s", strings.Join(diffs, "\n"))
	}

	// dave has no activity but is still reported.
	if _, ok := server["dave"]; !ok {
		t.Error("Expected dave to be seeded")
	}

	// bob owed alice 30 and paid 12; alice owes bob 20 from the cab.
	bob := server["bob"]
	var bobOwesAlice float64
	for _, d := range bob.OwesTo {
		if d.UserID == "alice" {
			bobOwesAlice = d.Amount
		}
	}
	if bobOwesAlice < 17.99 || bobOwesAlice > 18.01 {
		t.Errorf("bob owes alice %.2f, want 18.00", bobOwesAlice)
	}

	// carol's 20 debt is cleared and the extra 30 absorbed.
	if len(server["carol"].OwesTo) != 0 {
		t.Errorf("Expected carol to owe nothing, got %v", server["carol"].OwesTo)
	}

	t.Run("missing group", func(t *testing.T) {
		_, err := store.ComputeGroupBalances(ctx, "nonexistent-id")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestSQLiteStore_ReadsDuringWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	group := createGroup(t, store, "alice", "bob")

	var wg sync.WaitGroup
	done := make(chan struct{})
	writeErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 100; i++ {
			expense := &models.Expense{
				GroupID: group.ID, Amount: 10, PaidBy: "alice", CreatedBy: "alice",
				Participants: []models.ParticipantShare{
					{UserID: "alice", AmountOwed: 5, AmountPaid: 10},
					{UserID: "bob", AmountOwed: 5},
				},
			}
			if err := store.CreateExpense(ctx, expense); err != nil {
				writeErr <- err
				return
			}
			if i%2 == 1 {
				if err := store.DeleteExpense(ctx, expense.ID); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	for reading := true; reading; {
		select {
		case <-done:
			reading = false
		default:
		}

		balances, err := store.ComputeGroupBalances(ctx, group.ID)
		if err != nil {
			t.Fatalf("ComputeGroupBalances failed: %v", err)
		}
		bob := balances["bob"]
		owed := 0.0
		for _, d := range bob.OwesTo {
			owed += d.Amount
		}
		// Totals and debts come from separate queries and must agree.
		if diff := bob.TotalOwed - bob.TotalPaid - owed; diff > calculator.Epsilon || diff < -calculator.Epsilon {
			t.Fatalf("bob totals %.2f/%.2f do not match debts %.2f", bob.TotalOwed, bob.TotalPaid, owed)
		}

		expenses, err := store.ListExpensesByGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("ListExpensesByGroup failed: %v", err)
		}
		for _, e := range expenses {
			if len(e.Participants) != 2 {
				t.Fatalf("expense %s listed with %d shares, want 2", e.ID, len(e.Participants))
			}
		}
	}

	wg.Wait()
	select {
	case err := <-writeErr:
		t.Fatalf("writer failed: %v", err)
	default:
	}
}
