// Package api defines the request and response messages of the splitledger
// RPC services. Messages travel as JSON over connect; field names follow the
// lowerCamelCase convention of protobuf JSON.
package api

// Balance sources reported in balance responses.
const (
	SourceCache  = "cache"
	SourceServer = "server"
	SourceLocal  = "local"
)

// Group is a set of members who share expenses.
type Group struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	CreatedBy string   `json:"createdBy"`
	CreatedAt int64    `json:"createdAt"`
}

// Share is one participant's part of an expense.
type Share struct {
	UserID     string  `json:"userId"`
	AmountOwed float64 `json:"amountOwed"`
	AmountPaid float64 `json:"amountPaid"`
}

// Expense is a single spend event within a group.
type Expense struct {
	ID           string  `json:"id"`
	GroupID      string  `json:"groupId"`
	Description  string  `json:"description"`
	Amount       float64 `json:"amount"`
	PaidBy       string  `json:"paidBy"`
	Participants []Share `json:"participants"`
	CreatedBy    string  `json:"createdBy"`
	CreatedAt    int64   `json:"createdAt"`
	UpdatedAt    int64   `json:"updatedAt"`
}

// Settlement is a direct payment between two members.
type Settlement struct {
	ID         string  `json:"id"`
	GroupID    string  `json:"groupId"`
	FromUserID string  `json:"fromUserId"`
	ToUserID   string  `json:"toUserId"`
	Amount     float64 `json:"amount"`
	Note       string  `json:"note,omitempty"`
	CreatedBy  string  `json:"createdBy"`
	CreatedAt  int64   `json:"createdAt"`
	UpdatedAt  int64   `json:"updatedAt"`
}

// Debt is an amount owed to or by a counterparty.
type Debt struct {
	UserID string  `json:"userId"`
	Amount float64 `json:"amount"`
}

// MemberBalance is one member's position in a group.
type MemberBalance struct {
	UserID     string  `json:"userId"`
	TotalOwed  float64 `json:"totalOwed"`
	TotalPaid  float64 `json:"totalPaid"`
	NetBalance float64 `json:"netBalance"`
	OwesTo     []Debt  `json:"owesTo"`
	OwedBy     []Debt  `json:"owedBy"`
}

// GroupService messages.

type CreateGroupRequest struct {
	Name string `json:"name"`
	// Members to add besides the caller, who is always added.
	Members []string `json:"members"`
}

type CreateGroupResponse struct {
	Group *Group `json:"group"`
}

type GetGroupRequest struct {
	GroupID string `json:"groupId"`
}

type GetGroupResponse struct {
	Group *Group `json:"group"`
}

type ListGroupsRequest struct{}

type ListGroupsResponse struct {
	Groups []*Group `json:"groups"`
}

type UpdateGroupRequest struct {
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
}

type UpdateGroupResponse struct {
	Group *Group `json:"group"`
}

type DeleteGroupRequest struct {
	GroupID string `json:"groupId"`
}

type DeleteGroupResponse struct{}

type AddMembersRequest struct {
	GroupID string   `json:"groupId"`
	UserIDs []string `json:"userIds"`
}

type AddMembersResponse struct {
	Group *Group `json:"group"`
}

type RemoveMemberRequest struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

type RemoveMemberResponse struct {
	Group *Group `json:"group"`
}

type GetGroupBalancesRequest struct {
	GroupID string `json:"groupId"`
}

type GetGroupBalancesResponse struct {
	// Balances are ordered by user ID.
	Balances []*MemberBalance `json:"balances"`
	Source   string           `json:"source"`
}

type GetMemberBalanceRequest struct {
	GroupID string `json:"groupId"`
	// UserID defaults to the caller.
	UserID string `json:"userId,omitempty"`
}

type GetMemberBalanceResponse struct {
	Balance *MemberBalance `json:"balance"`
	Source  string         `json:"source"`
}

// ExpenseService messages.

type CreateExpenseRequest struct {
	GroupID     string  `json:"groupId"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount"`
	// PaidBy defaults to the caller.
	PaidBy string `json:"paidBy,omitempty"`
	// Participants lists explicit shares. When empty the amount is split
	// equally among SplitAmong, or among all members if that is empty too.
	Participants []Share  `json:"participants,omitempty"`
	SplitAmong   []string `json:"splitAmong,omitempty"`
}

type CreateExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

type GetExpenseRequest struct {
	ExpenseID string `json:"expenseId"`
}

type GetExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

// UpdateExpenseRequest replaces an expense's fields and shares. Share
// resolution follows CreateExpenseRequest.
type UpdateExpenseRequest struct {
	ExpenseID    string   `json:"expenseId"`
	Description  string   `json:"description,omitempty"`
	Amount       float64  `json:"amount"`
	PaidBy       string   `json:"paidBy,omitempty"`
	Participants []Share  `json:"participants,omitempty"`
	SplitAmong   []string `json:"splitAmong,omitempty"`
}

type UpdateExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

type DeleteExpenseRequest struct {
	ExpenseID string `json:"expenseId"`
}

type DeleteExpenseResponse struct{}

type ListExpensesRequest struct {
	GroupID string `json:"groupId"`
}

type ListExpensesResponse struct {
	Expenses []*Expense `json:"expenses"`
}

// SettlementService messages.

type CreateSettlementRequest struct {
	GroupID string `json:"groupId"`
	// FromUserID defaults to the caller.
	FromUserID string  `json:"fromUserId,omitempty"`
	ToUserID   string  `json:"toUserId"`
	Amount     float64 `json:"amount"`
	Note       string  `json:"note,omitempty"`
}

type CreateSettlementResponse struct {
	Settlement *Settlement `json:"settlement"`
}

type UpdateSettlementRequest struct {
	SettlementID string  `json:"settlementId"`
	FromUserID   string  `json:"fromUserId"`
	ToUserID     string  `json:"toUserId"`
	Amount       float64 `json:"amount"`
	Note         string  `json:"note,omitempty"`
}

type UpdateSettlementResponse struct {
	Settlement *Settlement `json:"settlement"`
}

type DeleteSettlementRequest struct {
	SettlementID string `json:"settlementId"`
}

type DeleteSettlementResponse struct{}

type ListSettlementsRequest struct {
	GroupID string `json:"groupId"`
}

type ListSettlementsResponse struct {
	// Settlements are oldest first, the order they apply to balances.
	Settlements []*Settlement `json:"settlements"`
}
