package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

func completedTransfer(t *testing.T, f *fixture, items ...ItemInput) *StockTransfer {
	t.Helper()
	ctx := context.Background()
	transfer, _ := approvedTransfer(t, f, items...)
	_, _, err := f.svc.Ship(ctx, ShipInput{TransferID: transfer.ID, TenantID: 1, ActorUserID: 7})
	require.NoError(t, err)
	got, _, err := f.svc.Receive(ctx, ReceiveInput{TransferID: transfer.ID, TenantID: 1, ActorUserID: 7})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	return got
}

func TestReverseRestoresExactSourceLots(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	lotA := f.seedLot(t, 10, 501, 100, 300, time.Now().Add(-2*time.Hour))
	lotB := f.seedLot(t, 10, 501, 100, 390, time.Now().Add(-time.Hour))

	transfer := completedTransfer(t, f, ItemInput{ProductID: 501, QtyRequested: 150})
	require.Equal(t, int64(50), f.level(10, 501))
	require.Equal(t, int64(150), f.level(20, 501))

	rev, err := f.svc.Reverse(ctx, ReverseInput{TransferID: transfer.ID, TenantID: 1, ActorUserID: 7})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, rev.Status)
	require.Equal(t, transfer.ID, *rev.ReversalOfID)
	require.Equal(t, transfer.DestinationBranchID, rev.SourceBranchID)
	require.Equal(t, transfer.SourceBranchID, rev.DestinationBranchID)

	// The original lots carry their original quantities again; no new lot
	// appeared at the source.
	require.Equal(t, int64(200), f.level(10, 501))
	require.Zero(t, f.level(20, 501))
	require.Equal(t, int64(100), f.repo.lots[lotA].QtyRemaining)
	require.Equal(t, int64(100), f.repo.lots[lotB].QtyRemaining)
	require.Equal(t, int64(300), f.repo.lots[lotA].UnitCostPence)
	require.Equal(t, int64(390), f.repo.lots[lotB].UnitCostPence)
	sourceLots := f.repo.sortedLots(1, 10, 501, true)
	require.Len(t, sourceLots, 2)
}

func TestReverseOnlyOnce(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.seedLot(t, 10, 501, 100, 250, time.Now().Add(-time.Hour))

	transfer := completedTransfer(t, f, ItemInput{ProductID: 501, QtyRequested: 40})

	rev, err := f.svc.Reverse(ctx, ReverseInput{TransferID: transfer.ID, TenantID: 1, ActorUserID: 7})
	require.NoError(t, err)

	_, err = f.svc.Reverse(ctx, ReverseInput{TransferID: transfer.ID, TenantID: 1, ActorUserID: 7})
	require.ErrorIs(t, err, shared.ErrConflict)

	// The reversal itself cannot be reversed either.
	_, err = f.svc.Reverse(ctx, ReverseInput{TransferID: rev.ID, TenantID: 1, ActorUserID: 7})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestReverseRequiresCompleted(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.seedLot(t, 10, 501, 100, 250, time.Now().Add(-time.Hour))

	transfer, _ := approvedTransfer(t, f, ItemInput{ProductID: 501, QtyRequested: 10})
	_, err := f.svc.Reverse(ctx, ReverseInput{TransferID: transfer.ID, TenantID: 1, ActorUserID: 7})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestReverseAbortsWhenDestinationStockGone(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	lotA := f.seedLot(t, 10, 501, 100, 250, time.Now().Add(-time.Hour))
	transfer := completedTransfer(t, f, ItemInput{ProductID: 501, QtyRequested: 60})

	// The destination consumed most of what arrived; the reversal cannot
	// pull 60 back and must leave both branches untouched.
	_, err := stock.Engine{}.Consume(ctx, f.repo, stock.ConsumeInput{
		TenantID: 1, BranchID: 20, ProductID: 501, Qty: 50, Reason: "sold on",
	})
	require.NoError(t, err)

	_, err = f.svc.Reverse(ctx, ReverseInput{TransferID: transfer.ID, TenantID: 1, ActorUserID: 7})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	require.Equal(t, int64(40), f.level(10, 501))
	require.Equal(t, int64(10), f.level(20, 501))
	require.Equal(t, int64(40), f.repo.lots[lotA].QtyRemaining)

	got, _, err := f.svc.Get(ctx, 1, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
}

func TestAggregateLotRestores(t *testing.T) {
	items := []TransferItem{
		{ShipmentBatches: []ShipmentBatch{
			{BatchNumber: 1, Qty: 30, LotsConsumed: []stock.LotPortion{{LotID: 1, Qty: 30, UnitCostPence: 100}}},
			{BatchNumber: 2, Qty: 20, LotsConsumed: []stock.LotPortion{
				{LotID: 1, Qty: 5, UnitCostPence: 100},
				{LotID: 2, Qty: 15, UnitCostPence: 120},
			}},
		}},
		{ShipmentBatches: []ShipmentBatch{
			{BatchNumber: 1, Qty: 10, LotsConsumed: []stock.LotPortion{{LotID: 9, Qty: 10, UnitCostPence: 80}}},
		}},
	}

	restores, err := aggregateLotRestores(items)
	require.NoError(t, err)
	require.Equal(t, []stock.LotRestore{
		{LotID: 1, Qty: 35},
		{LotID: 2, Qty: 15},
		{LotID: 9, Qty: 10},
	}, restores)
}

func TestAggregateLotRestoresWithoutLotData(t *testing.T) {
	// Legacy rows without lot tracking cannot be reversed exactly.
	items := []TransferItem{{ShipmentBatches: []ShipmentBatch{{BatchNumber: 1, Qty: 10}}}}
	_, err := aggregateLotRestores(items)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = aggregateLotRestores([]TransferItem{{}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAggregateLotRestoresRejectsMalformedBatches(t *testing.T) {
	items := []TransferItem{{ShipmentBatches: []ShipmentBatch{
		{BatchNumber: 1, Qty: 10, LotsConsumed: []stock.LotPortion{{LotID: 1, Qty: 7, UnitCostPence: 100}}},
	}}}
	_, err := aggregateLotRestores(items)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestWeightedUnitCostRoundsHalfUp(t *testing.T) {
	item := TransferItem{ShipmentBatches: []ShipmentBatch{
		{BatchNumber: 1, Qty: 3, LotsConsumed: []stock.LotPortion{
			{LotID: 1, Qty: 1, UnitCostPence: 100},
			{LotID: 2, Qty: 2, UnitCostPence: 101},
		}},
	}}
	// (100 + 202) / 3 = 100.67 rounds to 101.
	require.Equal(t, int64(101), weightedUnitCostPence(item))

	require.Zero(t, weightedUnitCostPence(TransferItem{}))
}
