// Package service implements the connect RPC handlers for groups, expenses
// and settlements.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmynk/splitledger/internal/cache"
	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/events"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

var (
	errNotMember      = errors.New("caller is not a member of this group")
	errNoCaller       = errors.New("no authenticated user")
	errNotGroupMember = errors.New("not a member of this group")
)

// Options holds the optional collaborators shared by all services. Zero
// values fall back to a no-op cache, a logging publisher and metrics on a
// private registry.
type Options struct {
	Cache     cache.BalanceCache
	Publisher events.Publisher
	Metrics   *metrics.Metrics

	// VerifyBalances recomputes server-side balances with the local engine
	// and reports disagreements.
	VerifyBalances bool
}

// ledger carries the store and collaborators every service needs.
type ledger struct {
	store     storage.Store
	cache     cache.BalanceCache
	publisher events.Publisher
	metrics   *metrics.Metrics
	verify    bool
}

func newLedger(store storage.Store, opts Options) *ledger {
	l := &ledger{
		store:     store,
		cache:     opts.Cache,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		verify:    opts.VerifyBalances,
	}
	if l.cache == nil {
		l.cache = cache.Nop{}
	}
	if l.publisher == nil {
		l.publisher = events.LogPublisher{}
	}
	if l.metrics == nil {
		l.metrics = metrics.New(prometheus.NewRegistry())
	}
	return l
}

// caller returns the authenticated user ID.
func caller(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errNoCaller)
	}
	return userID, nil
}

// requireMember loads the group and checks the caller currently belongs to it.
func (l *ledger) requireMember(ctx context.Context, groupID string) (*models.Group, string, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(groupID) == "" {
		return nil, "", connect.NewError(connect.CodeInvalidArgument, errors.New("group_id required"))
	}

	group, err := l.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, "", storeError("GetGroup", err, "group_id", groupID)
	}
	if !group.HasMember(userID) {
		slog.Warn("Access denied", "group_id", groupID, "user_id", userID)
		return nil, "", connect.NewError(connect.CodePermissionDenied, errNotMember)
	}
	return group, userID, nil
}

// storeError logs a storage failure and maps it to a connect error.
func storeError(op string, err error, attrs ...any) error {
	if errors.Is(err, storage.ErrNotFound) {
		slog.Warn(op+" failed", append(attrs, "error", err)...)
		return connect.NewError(connect.CodeNotFound, err)
	}
	slog.Error(op+" failed", append(attrs, "error", err)...)
	return connect.NewError(connect.CodeInternal, fmt.Errorf("%s failed", op))
}

func invalidArgument(err error) error {
	return connect.NewError(connect.CodeInvalidArgument, err)
}

// requireGroupMembers rejects user IDs that are not current group members.
func requireGroupMembers(group *models.Group, userIDs ...string) error {
	for _, id := range userIDs {
		if !group.HasMember(id) {
			return invalidArgument(fmt.Errorf("%w: %s", errNotGroupMember, id))
		}
	}
	return nil
}

// changed drops cached balances for the group and publishes an event. Both
// are best effort; the write has already committed.
func (l *ledger) changed(ctx context.Context, groupID, eventType, entityID, actorID string) {
	if err := l.cache.Invalidate(ctx, groupID); err != nil {
		slog.Warn("Failed to invalidate cached balances", "group_id", groupID, "error", err)
	}
	if err := l.publisher.Publish(ctx, events.New(eventType, groupID, entityID, actorID)); err != nil {
		l.metrics.EventPublishFail.WithLabelValues(eventType).Inc()
		slog.Warn("Failed to publish event", "type", eventType, "group_id", groupID, "error", err)
	}
}

// groupBalances resolves balances from the cache, then the server-side
// computation, then the local engine.
func (l *ledger) groupBalances(ctx context.Context, group *models.Group) (map[string]calculator.MemberBalance, string, error) {
	cached, ok, err := l.cache.Get(ctx, group.ID)
	if err != nil {
		slog.Warn("Balance cache read failed", "group_id", group.ID, "error", err)
	} else if ok {
		l.metrics.BalanceSource.WithLabelValues(metrics.SourceCache).Inc()
		return cached, metrics.SourceCache, nil
	}

	source := metrics.SourceServer
	balances, err := l.store.ComputeGroupBalances(ctx, group.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, "", err
	case err != nil:
		slog.Warn("Server-side balance computation failed, using local engine", "group_id", group.ID, "error", err)
		source = metrics.SourceLocal
		balances, err = l.localBalances(ctx, group)
		if err != nil {
			return nil, "", err
		}
	case l.verify:
		l.verifyBalances(ctx, group, balances)
	}

	if err := l.cache.Set(ctx, group.ID, balances); err != nil {
		slog.Warn("Balance cache write failed", "group_id", group.ID, "error", err)
	}
	l.metrics.BalanceSource.WithLabelValues(source).Inc()
	return balances, source, nil
}

// localBalances runs the balance engine over the group's stored records.
func (l *ledger) localBalances(ctx context.Context, group *models.Group) (map[string]calculator.MemberBalance, error) {
	expenses, err := l.store.ListExpensesByGroup(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	settlements, err := l.store.ListSettlementsByGroup(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	return calculator.ComputeBalances(
		models.ExpensesForBalance(expenses),
		group.Members,
		models.SettlementsForBalance(settlements),
	), nil
}

func (l *ledger) verifyBalances(ctx context.Context, group *models.Group, server map[string]calculator.MemberBalance) {
	local, err := l.localBalances(ctx, group)
	if err != nil {
		slog.Warn("Balance verification skipped", "group_id", group.ID, "error", err)
		return
	}
	if diffs := calculator.Equivalent(server, local); len(diffs) > 0 {
		l.metrics.BalanceMismatch.Inc()
		slog.Error("Server-side balances disagree with local engine",
			"group_id", group.ID,
			"differences", diffs,
		)
	}
}
