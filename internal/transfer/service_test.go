package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/approval"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

type memoryRepo struct {
	lots   map[int64]stock.StockLot
	ledger []stock.LedgerEntry
	levels map[string]stock.ProductStock
	audits []shared.AuditEvent

	transfers map[int64]*StockTransfer
	items     map[int64][]TransferItem
	chains    []int64
	failChain error
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		lots:      map[int64]stock.StockLot{},
		levels:    map[string]stock.ProductStock{},
		transfers: map[int64]*StockTransfer{},
		items:     map[int64][]TransferItem{},
	}
}

func levelMapKey(tenantID, branchID, productID int64) string {
	return fmt.Sprintf("%d:%d:%d", tenantID, branchID, productID)
}

func copyItems(src map[int64][]TransferItem) map[int64][]TransferItem {
	out := make(map[int64][]TransferItem, len(src))
	for k, items := range src {
		copied := make([]TransferItem, len(items))
		for i, item := range items {
			item.ShipmentBatches = append([]ShipmentBatch(nil), item.ShipmentBatches...)
			copied[i] = item
		}
		out[k] = copied
	}
	return out
}

// WithTx snapshots state and restores it when fn fails, mirroring rollback.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	lots := make(map[int64]stock.StockLot, len(m.lots))
	for k, v := range m.lots {
		lots[k] = v
	}
	levels := make(map[string]stock.ProductStock, len(m.levels))
	for k, v := range m.levels {
		levels[k] = v
	}
	transfers := make(map[int64]*StockTransfer, len(m.transfers))
	for k, v := range m.transfers {
		c := *v
		transfers[k] = &c
	}
	items := copyItems(m.items)
	ledgerLen := len(m.ledger)
	auditLen := len(m.audits)
	chainLen := len(m.chains)
	nextID := m.nextID

	if err := fn(ctx, m); err != nil {
		m.lots = lots
		m.levels = levels
		m.transfers = transfers
		m.items = items
		m.ledger = m.ledger[:ledgerLen]
		m.audits = m.audits[:auditLen]
		m.chains = m.chains[:chainLen]
		m.nextID = nextID
		return err
	}
	return nil
}

func (m *memoryRepo) InsertLot(ctx context.Context, lot stock.StockLot) (int64, error) {
	m.nextID++
	lot.ID = m.nextID
	m.lots[lot.ID] = lot
	return lot.ID, nil
}

func (m *memoryRepo) sortedLots(tenantID, branchID, productID int64, openOnly bool) []stock.StockLot {
	lots := []stock.StockLot{}
	for _, lot := range m.lots {
		if lot.TenantID != tenantID || lot.BranchID != branchID || lot.ProductID != productID {
			continue
		}
		if openOnly && lot.QtyRemaining <= 0 {
			continue
		}
		lots = append(lots, lot)
	}
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].ReceivedAt.Equal(lots[j].ReceivedAt) {
			return lots[i].ReceivedAt.Before(lots[j].ReceivedAt)
		}
		return lots[i].ID < lots[j].ID
	})
	return lots
}

func (m *memoryRepo) ListOpenLotsForUpdate(ctx context.Context, tenantID, branchID, productID int64) ([]stock.StockLot, error) {
	return m.sortedLots(tenantID, branchID, productID, true), nil
}

func (m *memoryRepo) GetLotsForUpdate(ctx context.Context, tenantID, branchID int64, lotIDs []int64) ([]stock.StockLot, error) {
	lots := []stock.StockLot{}
	for _, id := range lotIDs {
		lot, ok := m.lots[id]
		if !ok || lot.TenantID != tenantID || lot.BranchID != branchID {
			continue
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

func (m *memoryRepo) SetLotQty(ctx context.Context, lotID, qtyRemaining int64) error {
	lot, ok := m.lots[lotID]
	if !ok {
		return fmt.Errorf("%w: lot %d", shared.ErrNotFound, lotID)
	}
	lot.QtyRemaining = qtyRemaining
	m.lots[lotID] = lot
	return nil
}

func (m *memoryRepo) InsertLedgerEntry(ctx context.Context, entry stock.LedgerEntry) (int64, error) {
	m.nextID++
	entry.ID = m.nextID
	m.ledger = append(m.ledger, entry)
	return entry.ID, nil
}

func (m *memoryRepo) AddProductStock(ctx context.Context, tenantID, branchID, productID, qtyDelta int64) error {
	key := levelMapKey(tenantID, branchID, productID)
	level := m.levels[key]
	level.TenantID = tenantID
	level.BranchID = branchID
	level.ProductID = productID
	level.QtyOnHand += qtyDelta
	m.levels[key] = level
	return nil
}

func (m *memoryRepo) WriteAuditEvent(ctx context.Context, ev shared.AuditEvent) error {
	m.audits = append(m.audits, ev)
	return nil
}

func (m *memoryRepo) InsertTransfer(ctx context.Context, t *StockTransfer) error {
	m.nextID++
	t.ID = m.nextID
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	c := *t
	m.transfers[t.ID] = &c
	return nil
}

func (m *memoryRepo) InsertItem(ctx context.Context, item *TransferItem) error {
	m.nextID++
	item.ID = m.nextID
	m.items[item.TransferID] = append(m.items[item.TransferID], *item)
	return nil
}

func (m *memoryRepo) InsertApprovalChain(ctx context.Context, tenantID, transferID int64, rule *approval.Rule) error {
	if m.failChain != nil {
		return m.failChain
	}
	m.chains = append(m.chains, transferID)
	return nil
}

func (m *memoryRepo) GetTransferForUpdate(ctx context.Context, tenantID, transferID int64) (*StockTransfer, []TransferItem, error) {
	return m.GetTransfer(ctx, tenantID, transferID)
}

func (m *memoryRepo) GetTransfer(ctx context.Context, tenantID, transferID int64) (*StockTransfer, []TransferItem, error) {
	t, ok := m.transfers[transferID]
	if !ok || t.TenantID != tenantID {
		return nil, nil, fmt.Errorf("%w: transfer %d", shared.ErrNotFound, transferID)
	}
	c := *t
	items := make([]TransferItem, len(m.items[transferID]))
	for i, item := range m.items[transferID] {
		item.ShipmentBatches = append([]ShipmentBatch(nil), item.ShipmentBatches...)
		items[i] = item
	}
	return &c, items, nil
}

func (m *memoryRepo) UpdateTransferStatus(ctx context.Context, transferID int64, status Status) error {
	t, ok := m.transfers[transferID]
	if !ok {
		return fmt.Errorf("%w: transfer %d", shared.ErrNotFound, transferID)
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryRepo) UpdateItemProgress(ctx context.Context, item TransferItem) error {
	items := m.items[item.TransferID]
	for i := range items {
		if items[i].ID == item.ID {
			item.ShipmentBatches = append([]ShipmentBatch(nil), item.ShipmentBatches...)
			items[i] = item
			return nil
		}
	}
	return fmt.Errorf("%w: transfer item %d", shared.ErrNotFound, item.ID)
}

func (m *memoryRepo) FindReversalOf(ctx context.Context, tenantID, transferID int64) (*StockTransfer, error) {
	for _, t := range m.transfers {
		if t.TenantID == tenantID && t.ReversalOfID != nil && *t.ReversalOfID == transferID {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memoryRepo) ListTransfers(ctx context.Context, filter ListFilter) ([]StockTransfer, error) {
	var out []StockTransfer
	for _, t := range m.transfers {
		if t.TenantID != filter.TenantID {
			continue
		}
		if filter.BranchID != 0 && t.SourceBranchID != filter.BranchID && t.DestinationBranchID != filter.BranchID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type stubApprovals struct {
	rule      *approval.Rule
	submitted []approval.SubmitInput
	state     approval.ChainState
}

func (s *stubApprovals) EvaluateForTransfer(ctx context.Context, tenantID int64, facts approval.TransferFacts) (*approval.Rule, error) {
	return s.rule, nil
}

func (s *stubApprovals) SubmitLevel(ctx context.Context, in approval.SubmitInput) (approval.ChainState, error) {
	s.submitted = append(s.submitted, in)
	return s.state, nil
}

type stubCatalog struct {
	prices map[int64]int64
}

func (s stubCatalog) UnitPricePence(ctx context.Context, tenantID, productID int64) (int64, error) {
	return s.prices[productID], nil
}

type stubMembers struct {
	// membership keyed by "branch:user"; nil allows everyone everywhere
	allowed map[string]bool
}

func (s stubMembers) IsMember(ctx context.Context, tenantID, branchID, userID int64) (bool, error) {
	if s.allowed == nil {
		return true, nil
	}
	return s.allowed[fmt.Sprintf("%d:%d", branchID, userID)], nil
}

type fixture struct {
	repo      *memoryRepo
	approvals *stubApprovals
	svc       *Service
}

func newFixture(t *testing.T, approvals *stubApprovals, members MembershipPort) *fixture {
	t.Helper()
	if approvals == nil {
		approvals = &stubApprovals{}
	}
	if members == nil {
		members = stubMembers{}
	}
	repo := newMemoryRepo()
	catalog := stubCatalog{prices: map[int64]int64{501: 250, 502: 1000}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		repo:      repo,
		approvals: approvals,
		svc:       NewService(repo, approvals, catalog, members, nil, logger),
	}
}

// seedLot books stock straight into the fake through the movement engine so
// lots, ledger and aggregate stay consistent.
func (f *fixture) seedLot(t *testing.T, branchID, productID, qty, unitCostPence int64, receivedAt time.Time) int64 {
	t.Helper()
	lot, err := stock.Engine{}.Receive(context.Background(), f.repo, stock.ReceiveInput{
		TenantID:      1,
		BranchID:      branchID,
		ProductID:     productID,
		Qty:           qty,
		UnitCostPence: unitCostPence,
		OccurredAt:    receivedAt,
		Reason:        "seed",
	})
	require.NoError(t, err)
	return lot.ID
}

func (f *fixture) level(branchID, productID int64) int64 {
	return f.repo.levels[levelMapKey(1, branchID, productID)].QtyOnHand
}

func createInput(items ...ItemInput) CreateInput {
	return CreateInput{
		TenantID:            1,
		InitiationType:      InitiationPush,
		SourceBranchID:      10,
		DestinationBranchID: 20,
		Items:               items,
		ActorUserID:         7,
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"same branch", func(in *CreateInput) { in.DestinationBranchID = in.SourceBranchID }},
		{"no items", func(in *CreateInput) { in.Items = nil }},
		{"zero quantity", func(in *CreateInput) { in.Items[0].QtyRequested = 0 }},
		{"duplicate product", func(in *CreateInput) {
			in.Items = append(in.Items, ItemInput{ProductID: 501, QtyRequested: 1})
		}},
		{"bad initiation type", func(in *CreateInput) { in.InitiationType = "SIDEWAYS" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := createInput(ItemInput{ProductID: 501, QtyRequested: 5})
			tc.mutate(&in)
			_, _, err := f.svc.Create(ctx, in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestCreateRequiresInitiatingBranchMembership(t *testing.T) {
	// User 7 belongs to the destination only, so a PUSH from the source is
	// forbidden while a PULL into the destination is fine.
	members := stubMembers{allowed: map[string]bool{"20:7": true}}
	f := newFixture(t, nil, members)
	ctx := context.Background()

	in := createInput(ItemInput{ProductID: 501, QtyRequested: 5})
	_, _, err := f.svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrForbidden)

	in.InitiationType = InitiationPull
	transfer, items, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	require.Equal(t, StatusRequested, transfer.Status)
	require.Len(t, items, 1)
	require.Equal(t, int64(20), transfer.InitiatingBranchID())
	require.Equal(t, int64(10), transfer.ReviewingBranchID())
}

func TestCreateMatchingRuleStartsChain(t *testing.T) {
	ruleID := int64(33)
	approvals := &stubApprovals{rule: &approval.Rule{ID: ruleID, IsActive: true}}
	f := newFixture(t, approvals, nil)

	transfer, _, err := f.svc.Create(context.Background(), createInput(ItemInput{ProductID: 502, QtyRequested: 100}))
	require.NoError(t, err)
	require.True(t, transfer.RequiresChain)
	require.Equal(t, ruleID, *transfer.MatchedRuleID)
	require.Equal(t, []int64{transfer.ID}, f.repo.chains)

	// Simple review is closed once a chain exists.
	_, err = f.svc.Review(context.Background(), ReviewInput{
		TransferID: transfer.ID, TenantID: 1, Action: ReviewApprove, ActorUserID: 7,
	})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateChainFailureRollsBackTransfer(t *testing.T) {
	approvals := &stubApprovals{rule: &approval.Rule{ID: 33, IsActive: true}}
	f := newFixture(t, approvals, nil)
	f.repo.failChain = errors.New("chain table unavailable")

	_, _, err := f.svc.Create(context.Background(), createInput(ItemInput{ProductID: 502, QtyRequested: 100}))
	require.Error(t, err)

	// No transfer may survive with its review path closed and no chain rows.
	require.Empty(t, f.repo.transfers)
	require.Empty(t, f.repo.chains)
	require.Empty(t, f.repo.audits)
}

func TestReviewApproveDefaultsAndOverrides(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	transfer, items, err := f.svc.Create(ctx, createInput(
		ItemInput{ProductID: 501, QtyRequested: 10},
		ItemInput{ProductID: 502, QtyRequested: 4},
	))
	require.NoError(t, err)

	reviewed, err := f.svc.Review(ctx, ReviewInput{
		TransferID:  transfer.ID,
		TenantID:    1,
		Action:      ReviewApprove,
		QtyApproved: map[int64]int64{items[0].ID: 6},
		ActorUserID: 8,
	})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, reviewed.Status)

	_, got, err := f.svc.Get(ctx, 1, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, int64(6), got[0].QtyApproved)
	require.Equal(t, int64(4), got[1].QtyApproved, "absent items default to requested")

	// Re-approving is a no-op, flipping to reject conflicts.
	_, err = f.svc.Review(ctx, ReviewInput{TransferID: transfer.ID, TenantID: 1, Action: ReviewApprove, ActorUserID: 8})
	require.NoError(t, err)
	_, err = f.svc.Review(ctx, ReviewInput{TransferID: transfer.ID, TenantID: 1, Action: ReviewReject, ActorUserID: 8})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestReviewApprovedQtyBounds(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	transfer, items, err := f.svc.Create(ctx, createInput(ItemInput{ProductID: 501, QtyRequested: 10}))
	require.NoError(t, err)

	_, err = f.svc.Review(ctx, ReviewInput{
		TransferID: transfer.ID, TenantID: 1, Action: ReviewApprove,
		QtyApproved: map[int64]int64{items[0].ID: 11}, ActorUserID: 8,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestChainCompletionApprovesTransfer(t *testing.T) {
	approvals := &stubApprovals{rule: &approval.Rule{ID: 5, IsActive: true}}
	f := newFixture(t, approvals, nil)
	ctx := context.Background()

	transfer, _, err := f.svc.Create(ctx, createInput(ItemInput{ProductID: 501, QtyRequested: 10}))
	require.NoError(t, err)

	// Chain still open: status unchanged.
	approvals.state = approval.ChainState{}
	got, err := f.svc.SubmitApproval(ctx, SubmitApprovalInput{TransferID: transfer.ID, TenantID: 1, Level: 1, Approve: true, ActorUserID: 7})
	require.NoError(t, err)
	require.Equal(t, StatusRequested, got.Status)

	// Final level approves: transfer approved at full quantities.
	approvals.state = approval.ChainState{Complete: true}
	got, err = f.svc.SubmitApproval(ctx, SubmitApprovalInput{TransferID: transfer.ID, TenantID: 1, Level: 2, Approve: true, ActorUserID: 9})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)

	_, items, err := f.svc.Get(ctx, 1, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, items[0].QtyRequested, items[0].QtyApproved)
}

func TestChainRejectionRejectsTransfer(t *testing.T) {
	approvals := &stubApprovals{rule: &approval.Rule{ID: 5, IsActive: true}}
	f := newFixture(t, approvals, nil)
	ctx := context.Background()

	transfer, _, err := f.svc.Create(ctx, createInput(ItemInput{ProductID: 501, QtyRequested: 10}))
	require.NoError(t, err)

	approvals.state = approval.ChainState{Rejected: true}
	got, err := f.svc.SubmitApproval(ctx, SubmitApprovalInput{TransferID: transfer.ID, TenantID: 1, Level: 1, Approve: false, ActorUserID: 7})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, got.Status)
}

func approvedTransfer(t *testing.T, f *fixture, items ...ItemInput) (*StockTransfer, []TransferItem) {
	t.Helper()
	ctx := context.Background()
	transfer, _, err := f.svc.Create(ctx, createInput(items...))
	require.NoError(t, err)
	_, err = f.svc.Review(ctx, ReviewInput{TransferID: transfer.ID, TenantID: 1, Action: ReviewApprove, ActorUserID: 8})
	require.NoError(t, err)
	got, gotItems, err := f.svc.Get(ctx, 1, transfer.ID)
	require.NoError(t, err)
	return got, gotItems
}

func TestShipPartialThenComplete(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.seedLot(t, 10, 501, 100, 250, time.Now().Add(-time.Hour))

	transfer, items := approvedTransfer(t, f, ItemInput{ProductID: 501, QtyRequested: 30})

	got, gotItems, err := f.svc.Ship(ctx, ShipInput{
		TransferID: transfer.ID, TenantID: 1,
		Items:       []ShipItemInput{{ItemID: items[0].ID, QtyToShip: 10}},
		ActorUserID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status, "partially shipped transfer stays approved")
	require.Equal(t, int64(10), gotItems[0].QtyShipped)
	require.Len(t, gotItems[0].ShipmentBatches, 1)
	require.Equal(t, int64(90), f.level(10, 501))

	// Empty item list ships the outstanding remainder.
	got, gotItems, err = f.svc.Ship(ctx, ShipInput{TransferID: transfer.ID, TenantID: 1, ActorUserID: 7})
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, got.Status)
	require.Equal(t, int64(30), gotItems[0].QtyShipped)
	require.Len(t, gotItems[0].ShipmentBatches, 2)
	require.Equal(t, 2, gotItems[0].ShipmentBatches[1].BatchNumber)
	require.Equal(t, int64(70), f.level(10, 501))
}

func TestShipCapsAtOutstandingApproved(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.seedLot(t, 10, 501, 100, 250, time.Now().Add(-time.Hour))

	transfer, items := approvedTransfer(t, f, ItemInput{ProductID: 501, QtyRequested: 30})

	_, gotItems, err := f.svc.Ship(ctx, ShipInput{
		TransferID: transfer.ID, TenantID: 1,
		Items:       []ShipItemInput{{ItemID: items[0].ID, QtyToShip: 500}},
		ActorUserID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, int64(30), gotItems[0].QtyShipped)
	require.Equal(t, int64(70), f.level(10, 501))
}

func TestShipInsufficientStockLeavesTransferUntouched(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.seedLot(t, 10, 501, 5, 250, time.Now().Add(-time.Hour))

	transfer, _ := approvedTransfer(t, f, ItemInput{ProductID: 501, QtyRequested: 30})

	_, _, err := f.svc.Ship(ctx, ShipInput{TransferID: transfer.ID, TenantID: 1, ActorUserID: 7})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	got, gotItems, err := f.svc.Get(ctx, 1, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.Zero(t, gotItems[0].QtyShipped)
	require.Empty(t, gotItems[0].ShipmentBatches)
	require.Equal(t, int64(5), f.level(10, 501))
}

func TestReceiveWeightedAverageCost(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	// Two source lots at different costs; a 150-unit shipment draws 100 at
	// 300p and 50 at 390p, averaging to 330p.
	f.seedLot(t, 10, 501, 100, 300, time.Now().Add(-2*time.Hour))
	f.seedLot(t, 10, 501, 100, 390, time.Now().Add(-time.Hour))

	transfer, _ := approvedTransfer(t, f, ItemInput{ProductID: 501, QtyRequested: 150})

	_, _, err := f.svc.Ship(ctx, ShipInput{TransferID: transfer.ID, TenantID: 1, ActorUserID: 7})
	require.NoError(t, err)

	got, gotItems, err := f.svc.Receive(ctx, ReceiveInput{TransferID: transfer.ID, TenantID: 1, ActorUserID: 7})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, int64(150), gotItems[0].QtyReceived)
	require.Equal(t, int64(150), f.level(20, 501))

	destLots := f.repo.sortedLots(1, 20, 501, true)
	require.Len(t, destLots, 1)
	require.Equal(t, int64(330), destLots[0].UnitCostPence)
}

func TestReceivePartialKeepsInTransit(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.seedLot(t, 10, 501, 100, 250, time.Now().Add(-time.Hour))

	transfer, items := approvedTransfer(t, f, ItemInput{ProductID: 501, QtyRequested: 40})
	_, _, err := f.svc.Ship(ctx, ShipInput{TransferID: transfer.ID, TenantID: 1, ActorUserID: 7})
	require.NoError(t, err)

	got, gotItems, err := f.svc.Receive(ctx, ReceiveInput{
		TransferID: transfer.ID, TenantID: 1,
		Items:       []ReceiveItemInput{{ItemID: items[0].ID, QtyReceived: 15}},
		ActorUserID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, got.Status)
	require.Equal(t, int64(15), gotItems[0].QtyReceived)

	got, _, err = f.svc.Receive(ctx, ReceiveInput{TransferID: transfer.ID, TenantID: 1, ActorUserID: 7})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, int64(40), f.level(20, 501))
}

func TestReceiveRequiresInTransit(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	transfer, _ := approvedTransfer(t, f, ItemInput{ProductID: 501, QtyRequested: 10})

	_, _, err := f.svc.Receive(ctx, ReceiveInput{TransferID: transfer.ID, TenantID: 1, ActorUserID: 7})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.seedLot(t, 10, 501, 100, 250, time.Now().Add(-time.Hour))

	// REQUESTED cancels.
	requested, _, err := f.svc.Create(ctx, createInput(ItemInput{ProductID: 501, QtyRequested: 10}))
	require.NoError(t, err)
	got, err := f.svc.Cancel(ctx, CancelInput{TransferID: requested.ID, TenantID: 1, Reason: "duplicate", ActorUserID: 7})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)

	// APPROVED with nothing shipped cancels.
	approved, _ := approvedTransfer(t, f, ItemInput{ProductID: 501, QtyRequested: 10})
	got, err = f.svc.Cancel(ctx, CancelInput{TransferID: approved.ID, TenantID: 1, ActorUserID: 7})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)

	// APPROVED with shipped stock does not.
	shipped, _ := approvedTransfer(t, f, ItemInput{ProductID: 501, QtyRequested: 10})
	_, _, err = f.svc.Ship(ctx, ShipInput{TransferID: shipped.ID, TenantID: 1, ActorUserID: 7})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, CancelInput{TransferID: shipped.ID, TenantID: 1, ActorUserID: 7})
	require.ErrorIs(t, err, shared.ErrConflict)
}
