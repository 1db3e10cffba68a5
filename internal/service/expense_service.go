package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/events"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/pkg/api"
	"github.com/mmynk/splitledger/pkg/api/apiconnect"
)

var _ apiconnect.ExpenseServiceHandler = (*ExpenseService)(nil)

// ExpenseService implements the Connect ExpenseService.
type ExpenseService struct {
	*ledger
}

// NewExpenseService creates a new ExpenseService with the given storage backend.
func NewExpenseService(store storage.Store, opts Options) *ExpenseService {
	return &ExpenseService{ledger: newLedger(store, opts)}
}

// expenseInput is the part of create and update requests that describes
// who paid and who shares.
type expenseInput struct {
	description  string
	amount       float64
	paidBy       string
	participants []api.Share
	splitAmong   []string
}

// build resolves shares and validates the expense against the group.
func (in expenseInput) build(group *models.Group) (*models.Expense, error) {
	shares, err := in.shares(group)
	if err != nil {
		return nil, err
	}

	expense := &models.Expense{
		GroupID:      group.ID,
		Description:  strings.TrimSpace(in.description),
		Amount:       in.amount,
		PaidBy:       in.paidBy,
		Participants: shares,
	}
	if err := expense.Validate(); err != nil {
		return nil, invalidArgument(err)
	}

	ids := make([]string, 0, len(shares)+1)
	ids = append(ids, expense.PaidBy)
	for _, p := range shares {
		ids = append(ids, p.UserID)
	}
	if err := requireGroupMembers(group, ids...); err != nil {
		return nil, err
	}
	return expense, nil
}

// shares returns explicit shares when given, otherwise an equal split among
// splitAmong or the whole group.
func (in expenseInput) shares(group *models.Group) ([]models.ParticipantShare, error) {
	if len(in.participants) > 0 {
		return fromAPIShares(in.participants), nil
	}

	among := uniqueIDs(in.splitAmong)
	if len(among) == 0 {
		among = group.Members
	}
	split, err := calculator.SplitEqually(in.amount, in.paidBy, among)
	if err != nil {
		return nil, invalidArgument(err)
	}
	return models.SharesFromBalance(split), nil
}

// CreateExpense records an expense in a group.
func (s *ExpenseService) CreateExpense(ctx context.Context, req *connect.Request[api.CreateExpenseRequest]) (*connect.Response[api.CreateExpenseResponse], error) {
	group, userID, err := s.requireMember(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateExpense request received",
		"group_id", group.ID,
		"amount", req.Msg.Amount,
		"participants_count", len(req.Msg.Participants),
	)

	paidBy := req.Msg.PaidBy
	if paidBy == "" {
		paidBy = userID
	}
	expense, err := expenseInput{
		description:  req.Msg.Description,
		amount:       req.Msg.Amount,
		paidBy:       paidBy,
		participants: req.Msg.Participants,
		splitAmong:   req.Msg.SplitAmong,
	}.build(group)
	if err != nil {
		slog.Warn("CreateExpense rejected", "group_id", group.ID, "error", err)
		return nil, err
	}
	expense.CreatedBy = userID

	if err := s.store.CreateExpense(ctx, expense); err != nil {
		return nil, storeError("CreateExpense", err, "group_id", group.ID)
	}

	slog.Info("Expense created", "expense_id", expense.ID, "group_id", group.ID)
	s.changed(ctx, group.ID, events.ExpenseCreated, expense.ID, userID)

	return connect.NewResponse(&api.CreateExpenseResponse{Expense: toAPIExpense(expense)}), nil
}

// GetExpense retrieves an expense from one of the caller's groups.
func (s *ExpenseService) GetExpense(ctx context.Context, req *connect.Request[api.GetExpenseRequest]) (*connect.Response[api.GetExpenseResponse], error) {
	expense, _, _, err := s.memberExpense(ctx, req.Msg.ExpenseID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.GetExpenseResponse{Expense: toAPIExpense(expense)}), nil
}

// UpdateExpense replaces an expense's amount, payer and shares. An empty
// description keeps the current one.
func (s *ExpenseService) UpdateExpense(ctx context.Context, req *connect.Request[api.UpdateExpenseRequest]) (*connect.Response[api.UpdateExpenseResponse], error) {
	existing, group, userID, err := s.memberExpense(ctx, req.Msg.ExpenseID)
	if err != nil {
		return nil, err
	}
	slog.Info("UpdateExpense request received", "expense_id", existing.ID, "group_id", group.ID)

	paidBy := req.Msg.PaidBy
	if paidBy == "" {
		paidBy = existing.PaidBy
	}
	expense, err := expenseInput{
		description:  req.Msg.Description,
		amount:       req.Msg.Amount,
		paidBy:       paidBy,
		participants: req.Msg.Participants,
		splitAmong:   req.Msg.SplitAmong,
	}.build(group)
	if err != nil {
		slog.Warn("UpdateExpense rejected", "expense_id", existing.ID, "error", err)
		return nil, err
	}
	expense.ID = existing.ID
	expense.CreatedBy = existing.CreatedBy
	expense.CreatedAt = existing.CreatedAt
	if expense.Description == "" {
		expense.Description = existing.Description
	}

	if err := s.store.UpdateExpense(ctx, expense); err != nil {
		return nil, storeError("UpdateExpense", err, "expense_id", expense.ID)
	}
	s.changed(ctx, group.ID, events.ExpenseUpdated, expense.ID, userID)

	return connect.NewResponse(&api.UpdateExpenseResponse{Expense: toAPIExpense(expense)}), nil
}

// DeleteExpense removes an expense and its shares.
func (s *ExpenseService) DeleteExpense(ctx context.Context, req *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error) {
	expense, group, userID, err := s.memberExpense(ctx, req.Msg.ExpenseID)
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteExpense(ctx, expense.ID); err != nil {
		return nil, storeError("DeleteExpense", err, "expense_id", expense.ID)
	}

	slog.Info("Expense deleted", "expense_id", expense.ID, "group_id", group.ID)
	s.changed(ctx, group.ID, events.ExpenseDeleted, expense.ID, userID)

	return connect.NewResponse(&api.DeleteExpenseResponse{}), nil
}

// ListExpenses returns a group's expenses, oldest first.
func (s *ExpenseService) ListExpenses(ctx context.Context, req *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error) {
	group, _, err := s.requireMember(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}

	expenses, err := s.store.ListExpensesByGroup(ctx, group.ID)
	if err != nil {
		return nil, storeError("ListExpenses", err, "group_id", group.ID)
	}

	out := make([]*api.Expense, len(expenses))
	for i, e := range expenses {
		out[i] = toAPIExpense(e)
	}
	return connect.NewResponse(&api.ListExpensesResponse{Expenses: out}), nil
}

// memberExpense loads an expense and checks the caller belongs to its group.
func (s *ExpenseService) memberExpense(ctx context.Context, expenseID string) (*models.Expense, *models.Group, string, error) {
	if _, err := caller(ctx); err != nil {
		return nil, nil, "", err
	}
	if expenseID == "" {
		return nil, nil, "", invalidArgument(errors.New("expense_id required"))
	}

	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, nil, "", storeError("GetExpense", err, "expense_id", expenseID)
	}
	group, userID, err := s.requireMember(ctx, expense.GroupID)
	if err != nil {
		return nil, nil, "", err
	}
	return expense, group, userID, nil
}
