package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/events"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/pkg/api"
	"github.com/mmynk/splitledger/pkg/api/apiconnect"
)

var _ apiconnect.SettlementServiceHandler = (*SettlementService)(nil)

// SettlementService implements the Connect SettlementService.
type SettlementService struct {
	*ledger
}

// NewSettlementService creates a new SettlementService with the given storage backend.
func NewSettlementService(store storage.Store, opts Options) *SettlementService {
	return &SettlementService{ledger: newLedger(store, opts)}
}

// checkSettlement validates a settlement. Each party must be a current member
// or already appear in the group's ledger, so debts left by removed members
// can still be settled.
func (s *SettlementService) checkSettlement(ctx context.Context, group *models.Group, settlement *models.Settlement) error {
	if err := settlement.Validate(); err != nil {
		return invalidArgument(err)
	}

	var outside []string
	for _, id := range []string{settlement.FromUserID, settlement.ToUserID} {
		if !group.HasMember(id) {
			outside = append(outside, id)
		}
	}
	if len(outside) == 0 {
		return nil
	}

	parties, err := s.ledgerParties(ctx, group.ID)
	if err != nil {
		return err
	}
	for _, id := range outside {
		if !parties[id] {
			return invalidArgument(fmt.Errorf("%w: %s", errNotGroupMember, id))
		}
	}
	return nil
}

// ledgerParties returns every user named by the group's expenses or settlements.
func (s *SettlementService) ledgerParties(ctx context.Context, groupID string) (map[string]bool, error) {
	expenses, err := s.store.ListExpensesByGroup(ctx, groupID)
	if err != nil {
		return nil, storeError("ListExpenses", err, "group_id", groupID)
	}
	settlements, err := s.store.ListSettlementsByGroup(ctx, groupID)
	if err != nil {
		return nil, storeError("ListSettlements", err, "group_id", groupID)
	}

	parties := make(map[string]bool)
	for _, e := range expenses {
		parties[e.PaidBy] = true
		for _, p := range e.Participants {
			parties[p.UserID] = true
		}
	}
	for _, st := range settlements {
		parties[st.FromUserID] = true
		parties[st.ToUserID] = true
	}
	return parties, nil
}

// CreateSettlement records a payment between two parties of the group.
func (s *SettlementService) CreateSettlement(ctx context.Context, req *connect.Request[api.CreateSettlementRequest]) (*connect.Response[api.CreateSettlementResponse], error) {
	group, userID, err := s.requireMember(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateSettlement request received",
		"group_id", group.ID,
		"to", req.Msg.ToUserID,
		"amount", req.Msg.Amount,
	)

	from := req.Msg.FromUserID
	if from == "" {
		from = userID
	}
	settlement := &models.Settlement{
		GroupID:    group.ID,
		FromUserID: from,
		ToUserID:   req.Msg.ToUserID,
		Amount:     req.Msg.Amount,
		Note:       strings.TrimSpace(req.Msg.Note),
		CreatedBy:  userID,
	}
	if err := s.checkSettlement(ctx, group, settlement); err != nil {
		slog.Warn("CreateSettlement rejected", "group_id", group.ID, "error", err)
		return nil, err
	}

	if err := s.store.CreateSettlement(ctx, settlement); err != nil {
		return nil, storeError("CreateSettlement", err, "group_id", group.ID)
	}

	slog.Info("Settlement created", "settlement_id", settlement.ID, "group_id", group.ID)
	s.changed(ctx, group.ID, events.SettlementCreated, settlement.ID, userID)

	return connect.NewResponse(&api.CreateSettlementResponse{Settlement: toAPISettlement(settlement)}), nil
}

// UpdateSettlement replaces a settlement's parties, amount and note. Its
// position in the application order is kept.
func (s *SettlementService) UpdateSettlement(ctx context.Context, req *connect.Request[api.UpdateSettlementRequest]) (*connect.Response[api.UpdateSettlementResponse], error) {
	existing, group, userID, err := s.memberSettlement(ctx, req.Msg.SettlementID)
	if err != nil {
		return nil, err
	}

	settlement := *existing
	settlement.FromUserID = req.Msg.FromUserID
	settlement.ToUserID = req.Msg.ToUserID
	settlement.Amount = req.Msg.Amount
	settlement.Note = strings.TrimSpace(req.Msg.Note)
	if err := s.checkSettlement(ctx, group, &settlement); err != nil {
		slog.Warn("UpdateSettlement rejected", "settlement_id", existing.ID, "error", err)
		return nil, err
	}

	if err := s.store.UpdateSettlement(ctx, &settlement); err != nil {
		return nil, storeError("UpdateSettlement", err, "settlement_id", settlement.ID)
	}
	s.changed(ctx, group.ID, events.SettlementUpdated, settlement.ID, userID)

	return connect.NewResponse(&api.UpdateSettlementResponse{Settlement: toAPISettlement(&settlement)}), nil
}

// DeleteSettlement removes a settlement.
func (s *SettlementService) DeleteSettlement(ctx context.Context, req *connect.Request[api.DeleteSettlementRequest]) (*connect.Response[api.DeleteSettlementResponse], error) {
	settlement, group, userID, err := s.memberSettlement(ctx, req.Msg.SettlementID)
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteSettlement(ctx, settlement.ID); err != nil {
		return nil, storeError("DeleteSettlement", err, "settlement_id", settlement.ID)
	}

	slog.Info("Settlement deleted", "settlement_id", settlement.ID, "group_id", group.ID)
	s.changed(ctx, group.ID, events.SettlementDeleted, settlement.ID, userID)

	return connect.NewResponse(&api.DeleteSettlementResponse{}), nil
}

// ListSettlements returns a group's settlements in application order.
func (s *SettlementService) ListSettlements(ctx context.Context, req *connect.Request[api.ListSettlementsRequest]) (*connect.Response[api.ListSettlementsResponse], error) {
	group, _, err := s.requireMember(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}

	settlements, err := s.store.ListSettlementsByGroup(ctx, group.ID)
	if err != nil {
		return nil, storeError("ListSettlements", err, "group_id", group.ID)
	}

	out := make([]*api.Settlement, len(settlements))
	for i, st := range settlements {
		out[i] = toAPISettlement(st)
	}
	return connect.NewResponse(&api.ListSettlementsResponse{Settlements: out}), nil
}

// memberSettlement loads a settlement and checks the caller belongs to its group.
func (s *SettlementService) memberSettlement(ctx context.Context, settlementID string) (*models.Settlement, *models.Group, string, error) {
	if _, err := caller(ctx); err != nil {
		return nil, nil, "", err
	}
	if settlementID == "" {
		return nil, nil, "", invalidArgument(errors.New("settlement_id required"))
	}

	settlement, err := s.store.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, nil, "", storeError("GetSettlement", err, "settlement_id", settlementID)
	}
	group, userID, err := s.requireMember(ctx, settlement.GroupID)
	if err != nil {
		return nil, nil, "", err
	}
	return settlement, group, userID, nil
}
