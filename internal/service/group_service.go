package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/events"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/pkg/api"
	"github.com/mmynk/splitledger/pkg/api/apiconnect"
)

var _ apiconnect.GroupServiceHandler = (*GroupService)(nil)

// GroupService implements the Connect GroupService.
type GroupService struct {
	*ledger
}

// NewGroupService creates a new GroupService with the given storage backend.
func NewGroupService(store storage.Store, opts Options) *GroupService {
	return &GroupService{ledger: newLedger(store, opts)}
}

// CreateGroup creates a group. The caller is always a member.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateGroup request received",
		"name", req.Msg.Name,
		"members_count", len(req.Msg.Members),
	)

	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, invalidArgument(errors.New("name is required"))
	}

	group := &models.Group{
		Name:      name,
		Members:   uniqueIDs(append([]string{userID}, req.Msg.Members...)),
		CreatedBy: userID,
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, storeError("CreateGroup", err)
	}

	slog.Info("Group created", "group_id", group.ID)
	s.changed(ctx, group.ID, events.GroupCreated, group.ID, userID)

	return connect.NewResponse(&api.CreateGroupResponse{Group: toAPIGroup(group)}), nil
}

// GetGroup retrieves a group the caller belongs to.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	group, _, err := s.requireMember(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.GetGroupResponse{Group: toAPIGroup(group)}), nil
}

// ListGroups returns the caller's groups, newest first.
func (s *GroupService) ListGroups(ctx context.Context, req *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, storeError("ListGroups", err, "user_id", userID)
	}

	out := make([]*api.Group, len(groups))
	for i, g := range groups {
		out[i] = toAPIGroup(g)
	}
	slog.Debug("ListGroups successful", "user_id", userID, "count", len(out))

	return connect.NewResponse(&api.ListGroupsResponse{Groups: out}), nil
}

// UpdateGroup renames a group.
func (s *GroupService) UpdateGroup(ctx context.Context, req *connect.Request[api.UpdateGroupRequest]) (*connect.Response[api.UpdateGroupResponse], error) {
	group, userID, err := s.requireMember(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, invalidArgument(errors.New("name is required"))
	}
	group.Name = name

	if err := s.store.UpdateGroup(ctx, group); err != nil {
		return nil, storeError("UpdateGroup", err, "group_id", group.ID)
	}
	s.changed(ctx, group.ID, events.GroupUpdated, group.ID, userID)

	return connect.NewResponse(&api.UpdateGroupResponse{Group: toAPIGroup(group)}), nil
}

// DeleteGroup removes a group with its expenses and settlements. Only the
// creator may delete it.
func (s *GroupService) DeleteGroup(ctx context.Context, req *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.DeleteGroupResponse], error) {
	group, userID, err := s.requireMember(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}
	if group.CreatedBy != userID {
		return nil, connect.NewError(connect.CodePermissionDenied, errors.New("only the group creator can delete it"))
	}

	if err := s.store.DeleteGroup(ctx, group.ID); err != nil {
		return nil, storeError("DeleteGroup", err, "group_id", group.ID)
	}

	slog.Info("Group deleted", "group_id", group.ID)
	s.changed(ctx, group.ID, events.GroupDeleted, group.ID, userID)

	return connect.NewResponse(&api.DeleteGroupResponse{}), nil
}

// AddMembers adds users to a group. Existing members are ignored.
func (s *GroupService) AddMembers(ctx context.Context, req *connect.Request[api.AddMembersRequest]) (*connect.Response[api.AddMembersResponse], error) {
	group, userID, err := s.requireMember(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}

	userIDs := uniqueIDs(req.Msg.UserIDs)
	if len(userIDs) == 0 {
		return nil, invalidArgument(errors.New("user_ids required"))
	}

	if err := s.store.AddGroupMembers(ctx, group.ID, userIDs); err != nil {
		return nil, storeError("AddGroupMembers", err, "group_id", group.ID)
	}
	slog.Info("Members added", "group_id", group.ID, "members", userIDs)
	s.changed(ctx, group.ID, events.MembersAdded, group.ID, userID)

	updated, err := s.reloadGroup(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.AddMembersResponse{Group: updated}), nil
}

// RemoveMember removes a member. The creator can remove anyone; other
// members can only remove themselves.
func (s *GroupService) RemoveMember(ctx context.Context, req *connect.Request[api.RemoveMemberRequest]) (*connect.Response[api.RemoveMemberResponse], error) {
	group, userID, err := s.requireMember(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}

	target := req.Msg.UserID
	if target == "" {
		return nil, invalidArgument(errors.New("user_id required"))
	}
	if target != userID && group.CreatedBy != userID {
		return nil, connect.NewError(connect.CodePermissionDenied, errors.New("only the group creator can remove other members"))
	}
	if !group.HasMember(target) {
		return nil, connect.NewError(connect.CodeNotFound, storage.NotFound("member", target))
	}

	if err := s.store.RemoveGroupMember(ctx, group.ID, target); err != nil {
		return nil, storeError("RemoveGroupMember", err, "group_id", group.ID, "user_id", target)
	}
	slog.Info("Member removed", "group_id", group.ID, "user_id", target)
	s.changed(ctx, group.ID, events.MemberRemoved, target, userID)

	updated, err := s.reloadGroup(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.RemoveMemberResponse{Group: updated}), nil
}

// GetGroupBalances returns every member's balance, ordered by user ID.
func (s *GroupService) GetGroupBalances(ctx context.Context, req *connect.Request[api.GetGroupBalancesRequest]) (*connect.Response[api.GetGroupBalancesResponse], error) {
	group, _, err := s.requireMember(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}

	balances, source, err := s.groupBalances(ctx, group)
	if err != nil {
		return nil, storeError("GetGroupBalances", err, "group_id", group.ID)
	}
	slog.Debug("GetGroupBalances successful", "group_id", group.ID, "source", source, "members", len(balances))

	return connect.NewResponse(&api.GetGroupBalancesResponse{
		Balances: toAPIBalances(balances),
		Source:   source,
	}), nil
}

// GetMemberBalance returns one member's balance. Balance is nil when the
// user has never appeared in the group.
func (s *GroupService) GetMemberBalance(ctx context.Context, req *connect.Request[api.GetMemberBalanceRequest]) (*connect.Response[api.GetMemberBalanceResponse], error) {
	group, userID, err := s.requireMember(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}

	memberID := req.Msg.UserID
	if memberID == "" {
		memberID = userID
	}

	balances, source, err := s.groupBalances(ctx, group)
	if err != nil {
		return nil, storeError("GetMemberBalance", err, "group_id", group.ID)
	}

	resp := &api.GetMemberBalanceResponse{Source: source}
	if b, ok := balances[memberID]; ok {
		resp.Balance = toAPIBalance(b)
	}
	return connect.NewResponse(resp), nil
}

func (s *GroupService) reloadGroup(ctx context.Context, groupID string) (*api.Group, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, storeError("GetGroup", err, "group_id", groupID)
	}
	return toAPIGroup(group), nil
}

// uniqueIDs trims IDs and drops blanks and repeats, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
