package calculator

import (
	"fmt"
	"math"
	"sort"
)

// Epsilon is the tolerance used for every "effectively zero" and
// "amounts match" check. Amounts are two-decimal currency.
const Epsilon = 0.01

// ShareForBalance is one participant's portion of an expense.
type ShareForBalance struct {
	UserID     string
	AmountOwed float64 // What this participant is responsible for
	AmountPaid float64 // How much of that is already settled directly
}

// ExpenseForBalance represents an expense with the minimal information needed for balance calculations.
type ExpenseForBalance struct {
	ID           string
	PaidBy       string
	Amount       float64
	Participants []ShareForBalance
}

// SettlementForBalance represents a settlement with the minimal information needed for balance calculations.
type SettlementForBalance struct {
	FromUserID string  // Who paid (debtor settling up)
	ToUserID   string  // Who received (creditor being paid)
	Amount     float64
}

// Debt is one pairwise edge as seen from a member: the counterparty and the amount.
type Debt struct {
	UserID string  `json:"userId"`
	Amount float64 `json:"amount"`
}

// MemberBalance represents the balance information for one group member.
type MemberBalance struct {
	UserID     string  `json:"userId"`
	TotalOwed  float64 `json:"totalOwed"`  // Sum of this member's shares
	TotalPaid  float64 `json:"totalPaid"`  // Sum of amount_paid across shares
	NetBalance float64 `json:"netBalance"` // Positive = is owed, negative = owes
	OwesTo     []Debt  `json:"owesTo"`
	OwedBy     []Debt  `json:"owedBy"`
}

// edge identifies a directed debt: debtor owes creditor.
type edge struct {
	debtor   string
	creditor string
}

type totals struct {
	owed float64
	paid float64
}

// Ledger accumulates expenses and settlements for one group and produces
// frozen MemberBalance values. A Ledger is not safe for concurrent use; each
// computation should build its own.
//
// Debts are stored once per directed pair, so a member's OwesTo and the
// counterparty's OwedBy are always views of the same number.
type Ledger struct {
	members map[string]*totals
	order   []string
	debts   map[edge]float64
}

// NewLedger creates a ledger seeded with the given members. Seeded members
// always appear in Balances, even with no activity.
func NewLedger(members []string) *Ledger {
	l := &Ledger{
		members: make(map[string]*totals, len(members)),
		debts:   make(map[edge]float64),
	}
	for _, m := range members {
		l.seed(m)
	}
	return l
}

func (l *Ledger) seed(userID string) *totals {
	t, ok := l.members[userID]
	if !ok {
		t = &totals{}
		l.members[userID] = t
		l.order = append(l.order, userID)
	}
	return t
}

// AddExpense folds one expense into the ledger.
func (l *Ledger) AddExpense(e ExpenseForBalance) {
	for _, share := range e.Participants {
		l.AddTotals(share.UserID, share.AmountOwed, share.AmountPaid)

		remaining := share.AmountOwed - share.AmountPaid
		if remaining > Epsilon && share.UserID != e.PaidBy {
			l.AddDebt(share.UserID, e.PaidBy, remaining)
		}
	}
}

// AddTotals adds to a member's owed and paid totals, seeding the member if needed.
func (l *Ledger) AddTotals(userID string, owed, paid float64) {
	t := l.seed(userID)
	t.owed += owed
	t.paid += paid
}

// AddDebt records that debtor owes creditor amount more. Amounts accumulate
// on the existing edge.
func (l *Ledger) AddDebt(debtor, creditor string, amount float64) {
	l.seed(debtor)
	l.seed(creditor)
	l.debts[edge{debtor: debtor, creditor: creditor}] += amount
}

// ApplySettlement reduces the debt between the settlement's two parties.
// The payer's own debt to the receiver is reduced first; any leftover reduces
// the receiver's debt to the payer. Whatever still remains is absorbed.
func (l *Ledger) ApplySettlement(s SettlementForBalance) {
	remaining := l.reduce(edge{debtor: s.FromUserID, creditor: s.ToUserID}, s.Amount)
	if remaining > 0 {
		l.reduce(edge{debtor: s.ToUserID, creditor: s.FromUserID}, remaining)
	}
}

// reduce lowers the debt on e by up to amount and returns what is left of amount.
func (l *Ledger) reduce(e edge, amount float64) float64 {
	debt := l.debts[e]
	if debt <= 0 {
		return amount
	}
	r := math.Min(amount, debt)
	l.debts[e] = debt - r
	return amount - r
}

// Balances prunes near-zero debts and returns a fresh balance per member.
// Edge lists are sorted by counterparty ID.
func (l *Ledger) Balances() map[string]MemberBalance {
	owesTo := make(map[string][]Debt)
	owedBy := make(map[string][]Debt)
	for e, amount := range l.debts {
		if amount <= Epsilon {
			continue
		}
		owesTo[e.debtor] = append(owesTo[e.debtor], Debt{UserID: e.creditor, Amount: amount})
		owedBy[e.creditor] = append(owedBy[e.creditor], Debt{UserID: e.debtor, Amount: amount})
	}

	result := make(map[string]MemberBalance, len(l.members))
	for _, userID := range l.order {
		t := l.members[userID]
		bal := MemberBalance{
			UserID:    userID,
			TotalOwed: t.owed,
			TotalPaid: t.paid,
			OwesTo:    sortDebts(owesTo[userID]),
			OwedBy:    sortDebts(owedBy[userID]),
		}
		bal.NetBalance = sumDebts(bal.OwedBy) - sumDebts(bal.OwesTo)
		result[userID] = bal
	}
	return result
}

func sortDebts(debts []Debt) []Debt {
	if debts == nil {
		return []Debt{}
	}
	sort.Slice(debts, func(i, j int) bool { return debts[i].UserID < debts[j].UserID })
	return debts
}

func sumDebts(debts []Debt) float64 {
	var sum float64
	for _, d := range debts {
		sum += d.Amount
	}
	return sum
}

// ComputeBalances computes every member's ledger from a group's expenses and
// settlements. Settlements are applied in the order given; nil means none.
// The inputs are not modified.
//
// Algorithm:
//   - For each share: add owed/paid to totals; unpaid remainder above Epsilon
//     becomes a debt from participant to payer (merged per pair)
//   - For each settlement: reduce the payer's debt to the receiver, then the
//     reverse debt with whatever is left
//   - Prune debts <= Epsilon; net = sum(owed by others) - sum(owes to others)
func ComputeBalances(expenses []ExpenseForBalance, members []string, settlements []SettlementForBalance) map[string]MemberBalance {
	l := NewLedger(members)
	for _, e := range expenses {
		l.AddExpense(e)
	}
	for _, s := range settlements {
		l.ApplySettlement(s)
	}
	return l.Balances()
}

// GetMemberBalance computes balances and returns the one for memberID.
// The boolean is false when the member has no entry.
func GetMemberBalance(expenses []ExpenseForBalance, members []string, memberID string, settlements []SettlementForBalance) (MemberBalance, bool) {
	bal, ok := ComputeBalances(expenses, members, settlements)[memberID]
	return bal, ok
}

// Equivalent compares two balance maps within Epsilon and describes every
// difference. An empty result means the two agree.
func Equivalent(a, b map[string]MemberBalance) []string {
	var diffs []string
	for id, x := range a {
		y, ok := b[id]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("%s: missing from second result", id))
			continue
		}
		diffs = append(diffs, compareMember(id, x, y)...)
	}
	for id := range b {
		if _, ok := a[id]; !ok {
			diffs = append(diffs, fmt.Sprintf("%s: missing from first result", id))
		}
	}
	sort.Strings(diffs)
	return diffs
}

func compareMember(id string, x, y MemberBalance) []string {
	var diffs []string
	check := func(field string, p, q float64) {
		if math.Abs(p-q) > Epsilon {
			diffs = append(diffs, fmt.Sprintf("%s: %s %.2f != %.2f", id, field, p, q))
		}
	}
	check("totalOwed", x.TotalOwed, y.TotalOwed)
	check("totalPaid", x.TotalPaid, y.TotalPaid)
	check("netBalance", x.NetBalance, y.NetBalance)
	diffs = append(diffs, compareDebts(id, "owesTo", x.OwesTo, y.OwesTo)...)
	diffs = append(diffs, compareDebts(id, "owedBy", x.OwedBy, y.OwedBy)...)
	return diffs
}

func compareDebts(id, field string, xs, ys []Debt) []string {
	var diffs []string
	other := make(map[string]float64, len(ys))
	for _, d := range ys {
		other[d.UserID] = d.Amount
	}
	for _, d := range xs {
		amount, ok := other[d.UserID]
		if !ok || math.Abs(d.Amount-amount) > Epsilon {
			diffs = append(diffs, fmt.Sprintf("%s: %s[%s] %.2f != %.2f", id, field, d.UserID, d.Amount, amount))
		}
		delete(other, d.UserID)
	}
	for counterparty, amount := range other {
		diffs = append(diffs, fmt.Sprintf("%s: %s[%s] 0.00 != %.2f", id, field, counterparty, amount))
	}
	return diffs
}
