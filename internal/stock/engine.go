package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// StoreTx exposes the transactional lot, ledger and aggregate operations the
// movement engine mutates. Implementations must keep all three inside the
// same transaction.
type StoreTx interface {
	InsertLot(ctx context.Context, lot StockLot) (int64, error)
	ListOpenLotsForUpdate(ctx context.Context, tenantID, branchID, productID int64) ([]StockLot, error)
	GetLotsForUpdate(ctx context.Context, tenantID, branchID int64, lotIDs []int64) ([]StockLot, error)
	SetLotQty(ctx context.Context, lotID, qtyRemaining int64) error
	InsertLedgerEntry(ctx context.Context, entry LedgerEntry) (int64, error)
	AddProductStock(ctx context.Context, tenantID, branchID, productID, qtyDelta int64) error
	WriteAuditEvent(ctx context.Context, ev shared.AuditEvent) error
}

// Engine implements the movement semantics over a StoreTx. It carries no
// state of its own, so callers such as the transfer service can run several
// movements inside one enclosing transaction.
type Engine struct{}

// Receive creates a new lot, appends a RECEIPT ledger row and increments the
// aggregate.
func (Engine) Receive(ctx context.Context, tx StoreTx, in ReceiveInput) (StockLot, error) {
	return receiveIntoNewLot(ctx, tx, in, LedgerKindReceipt)
}

// Consume walks open lots oldest-first, decrementing each until the requested
// quantity is satisfied. One CONSUMPTION ledger row is written per lot
// touched. If total availability falls short nothing is mutated and
// ErrInsufficientStock is returned.
func (Engine) Consume(ctx context.Context, tx StoreTx, in ConsumeInput) ([]LotPortion, error) {
	return consumeFIFO(ctx, tx, in, LedgerKindConsumption)
}

// Adjust applies a signed delta: positive behaves like a receipt into a new
// lot, negative like a FIFO consumption. Either way the ledger kind is
// ADJUSTMENT.
func (Engine) Adjust(ctx context.Context, tx StoreTx, in AdjustInput) ([]LotPortion, error) {
	switch {
	case in.QtyDelta > 0:
		lot, err := receiveIntoNewLot(ctx, tx, ReceiveInput{
			TenantID:      in.TenantID,
			BranchID:      in.BranchID,
			ProductID:     in.ProductID,
			Qty:           in.QtyDelta,
			UnitCostPence: in.UnitCostPence,
			Reason:        in.Reason,
			ActorUserID:   in.ActorUserID,
			CorrelationID: in.CorrelationID,
		}, LedgerKindAdjustment)
		if err != nil {
			return nil, err
		}
		return []LotPortion{{LotID: lot.ID, Qty: in.QtyDelta, UnitCostPence: lot.UnitCostPence}}, nil
	case in.QtyDelta < 0:
		return consumeFIFO(ctx, tx, ConsumeInput{
			TenantID:      in.TenantID,
			BranchID:      in.BranchID,
			ProductID:     in.ProductID,
			Qty:           -in.QtyDelta,
			Reason:        in.Reason,
			ActorUserID:   in.ActorUserID,
			CorrelationID: in.CorrelationID,
		}, LedgerKindAdjustment)
	default:
		return nil, fmt.Errorf("%w: adjustment delta must be non-zero", shared.ErrValidation)
	}
}

// Restore returns previously consumed quantity to the named lots. It never
// creates a lot: restoring to the original identities preserves FIFO age and
// cost basis. Every lot must belong to the given tenant and branch.
func (Engine) Restore(ctx context.Context, tx StoreTx, in RestoreInput) error {
	if len(in.Lots) == 0 {
		return fmt.Errorf("%w: at least one lot required", shared.ErrValidation)
	}
	ids := make([]int64, 0, len(in.Lots))
	for _, r := range in.Lots {
		if r.Qty <= 0 {
			return fmt.Errorf("%w: restore quantity must be positive for lot %d", shared.ErrValidation, r.LotID)
		}
		ids = append(ids, r.LotID)
	}

	lots, err := tx.GetLotsForUpdate(ctx, in.TenantID, in.BranchID, ids)
	if err != nil {
		return err
	}
	byID := make(map[int64]StockLot, len(lots))
	for _, lot := range lots {
		byID[lot.ID] = lot
	}

	now := time.Now().UTC()
	perProduct := make(map[int64]int64)
	for _, r := range in.Lots {
		lot, ok := byID[r.LotID]
		if !ok {
			return fmt.Errorf("%w: lot %d does not exist at branch %d", shared.ErrNotFound, r.LotID, in.BranchID)
		}
		// Track the running quantity so repeated portions of the same lot
		// accumulate instead of rewriting the original snapshot.
		lot.QtyRemaining += r.Qty
		byID[r.LotID] = lot
		if err := tx.SetLotQty(ctx, lot.ID, lot.QtyRemaining); err != nil {
			return err
		}
		if _, err := tx.InsertLedgerEntry(ctx, LedgerEntry{
			TenantID:   in.TenantID,
			BranchID:   in.BranchID,
			ProductID:  lot.ProductID,
			LotID:      lot.ID,
			Kind:       LedgerKindReversal,
			QtyDelta:   r.Qty,
			Reason:     in.Reason,
			OccurredAt: now,
		}); err != nil {
			return err
		}
		perProduct[lot.ProductID] += r.Qty
	}
	for productID, qty := range perProduct {
		if err := tx.AddProductStock(ctx, in.TenantID, in.BranchID, productID, qty); err != nil {
			return err
		}
	}
	return tx.WriteAuditEvent(ctx, shared.AuditEvent{
		TenantID:      in.TenantID,
		ActorUserID:   in.ActorUserID,
		EntityType:    "stock_lot",
		EntityID:      fmt.Sprintf("branch:%d", in.BranchID),
		Action:        "STOCK_RESTORE",
		After:         in.Lots,
		CorrelationID: in.CorrelationID,
	})
}

func receiveIntoNewLot(ctx context.Context, tx StoreTx, in ReceiveInput, kind LedgerKind) (StockLot, error) {
	if in.Qty <= 0 {
		return StockLot{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if in.UnitCostPence < 0 {
		return StockLot{}, fmt.Errorf("%w: unit cost must not be negative", shared.ErrValidation)
	}
	if in.BranchID == 0 || in.ProductID == 0 {
		return StockLot{}, fmt.Errorf("%w: branch and product required", shared.ErrValidation)
	}
	now := time.Now().UTC()
	receivedAt := in.OccurredAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	lot := StockLot{
		TenantID:      in.TenantID,
		BranchID:      in.BranchID,
		ProductID:     in.ProductID,
		ReceivedAt:    receivedAt,
		QtyRemaining:  in.Qty,
		UnitCostPence: in.UnitCostPence,
		CreatedAt:     now,
	}
	id, err := tx.InsertLot(ctx, lot)
	if err != nil {
		return StockLot{}, err
	}
	lot.ID = id
	if _, err := tx.InsertLedgerEntry(ctx, LedgerEntry{
		TenantID:   in.TenantID,
		BranchID:   in.BranchID,
		ProductID:  in.ProductID,
		LotID:      id,
		Kind:       kind,
		QtyDelta:   in.Qty,
		Reason:     in.Reason,
		OccurredAt: receivedAt,
	}); err != nil {
		return StockLot{}, err
	}
	if err := tx.AddProductStock(ctx, in.TenantID, in.BranchID, in.ProductID, in.Qty); err != nil {
		return StockLot{}, err
	}
	if err := tx.WriteAuditEvent(ctx, shared.AuditEvent{
		TenantID:      in.TenantID,
		ActorUserID:   in.ActorUserID,
		EntityType:    "stock_lot",
		EntityID:      fmt.Sprintf("%d", id),
		Action:        "STOCK_" + string(kind),
		After:         lot,
		CorrelationID: in.CorrelationID,
	}); err != nil {
		return StockLot{}, err
	}
	return lot, nil
}

func consumeFIFO(ctx context.Context, tx StoreTx, in ConsumeInput, kind LedgerKind) ([]LotPortion, error) {
	if in.Qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if in.BranchID == 0 || in.ProductID == 0 {
		return nil, fmt.Errorf("%w: branch and product required", shared.ErrValidation)
	}
	lots, err := tx.ListOpenLotsForUpdate(ctx, in.TenantID, in.BranchID, in.ProductID)
	if err != nil {
		return nil, err
	}

	var available int64
	for _, lot := range lots {
		available += lot.QtyRemaining
	}
	if available < in.Qty {
		return nil, fmt.Errorf("%w: requested %d, available %d", shared.ErrInsufficientStock, in.Qty, available)
	}

	now := time.Now().UTC()
	needed := in.Qty
	affected := make([]LotPortion, 0, 2)
	for _, lot := range lots {
		if needed == 0 {
			break
		}
		take := lot.QtyRemaining
		if take > needed {
			take = needed
		}
		if err := tx.SetLotQty(ctx, lot.ID, lot.QtyRemaining-take); err != nil {
			return nil, err
		}
		if _, err := tx.InsertLedgerEntry(ctx, LedgerEntry{
			TenantID:   in.TenantID,
			BranchID:   in.BranchID,
			ProductID:  in.ProductID,
			LotID:      lot.ID,
			Kind:       kind,
			QtyDelta:   -take,
			Reason:     in.Reason,
			OccurredAt: now,
		}); err != nil {
			return nil, err
		}
		affected = append(affected, LotPortion{LotID: lot.ID, Qty: take, UnitCostPence: lot.UnitCostPence})
		needed -= take
	}
	if err := tx.AddProductStock(ctx, in.TenantID, in.BranchID, in.ProductID, -in.Qty); err != nil {
		return nil, err
	}
	if err := tx.WriteAuditEvent(ctx, shared.AuditEvent{
		TenantID:      in.TenantID,
		ActorUserID:   in.ActorUserID,
		EntityType:    "product_stock",
		EntityID:      fmt.Sprintf("%d:%d", in.BranchID, in.ProductID),
		Action:        "STOCK_" + string(kind),
		After:         affected,
		CorrelationID: in.CorrelationID,
	}); err != nil {
		return nil, err
	}
	return affected, nil
}
