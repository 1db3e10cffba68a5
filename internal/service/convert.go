package service

import (
	"sort"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/pkg/api"
)

func toAPIGroup(g *models.Group) *api.Group {
	members := g.Members
	if members == nil {
		members = []string{}
	}
	return &api.Group{
		ID:        g.ID,
		Name:      g.Name,
		Members:   members,
		CreatedBy: g.CreatedBy,
		CreatedAt: g.CreatedAt,
	}
}

func toAPIExpense(e *models.Expense) *api.Expense {
	shares := make([]api.Share, len(e.Participants))
	for i, p := range e.Participants {
		shares[i] = api.Share{UserID: p.UserID, AmountOwed: p.AmountOwed, AmountPaid: p.AmountPaid}
	}
	return &api.Expense{
		ID:           e.ID,
		GroupID:      e.GroupID,
		Description:  e.Description,
		Amount:       e.Amount,
		PaidBy:       e.PaidBy,
		Participants: shares,
		CreatedBy:    e.CreatedBy,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func toAPISettlement(s *models.Settlement) *api.Settlement {
	return &api.Settlement{
		ID:         s.ID,
		GroupID:    s.GroupID,
		FromUserID: s.FromUserID,
		ToUserID:   s.ToUserID,
		Amount:     s.Amount,
		Note:       s.Note,
		CreatedBy:  s.CreatedBy,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func toAPIDebts(debts []calculator.Debt) []api.Debt {
	out := make([]api.Debt, len(debts))
	for i, d := range debts {
		out[i] = api.Debt{UserID: d.UserID, Amount: d.Amount}
	}
	return out
}

func toAPIBalance(b calculator.MemberBalance) *api.MemberBalance {
	return &api.MemberBalance{
		UserID:     b.UserID,
		TotalOwed:  b.TotalOwed,
		TotalPaid:  b.TotalPaid,
		NetBalance: b.NetBalance,
		OwesTo:     toAPIDebts(b.OwesTo),
		OwedBy:     toAPIDebts(b.OwedBy),
	}
}

// toAPIBalances flattens the balance map ordered by user ID.
func toAPIBalances(balances map[string]calculator.MemberBalance) []*api.MemberBalance {
	out := make([]*api.MemberBalance, 0, len(balances))
	for _, b := range balances {
		out = append(out, toAPIBalance(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func fromAPIShares(shares []api.Share) []models.ParticipantShare {
	out := make([]models.ParticipantShare, len(shares))
	for i, s := range shares {
		out[i] = models.ParticipantShare{UserID: s.UserID, AmountOwed: s.AmountOwed, AmountPaid: s.AmountPaid}
	}
	return out
}
