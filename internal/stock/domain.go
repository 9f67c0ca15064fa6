package stock

import "time"

// LedgerKind enumerates quantity-changing event kinds.
type LedgerKind string

const (
	// LedgerKindReceipt represents stock entering a branch; qtyDelta positive.
	LedgerKindReceipt LedgerKind = "RECEIPT"
	// LedgerKindConsumption represents stock leaving a branch; qtyDelta negative.
	LedgerKindConsumption LedgerKind = "CONSUMPTION"
	// LedgerKindAdjustment represents manual corrections; qtyDelta either sign.
	LedgerKindAdjustment LedgerKind = "ADJUSTMENT"
	// LedgerKindReversal represents consumed stock returning to its lot; qtyDelta positive.
	LedgerKindReversal LedgerKind = "REVERSAL"
)

// StockLot is one FIFO batch of a product at a branch. Created by a receipt,
// mutated only by consumption or restoration, never deleted while referenced
// by ledger history.
type StockLot struct {
	ID            int64
	TenantID      int64
	BranchID      int64
	ProductID     int64
	ReceivedAt    time.Time
	QtyRemaining  int64
	UnitCostPence int64
	CreatedAt     time.Time
}

// LedgerEntry is an immutable append-only movement event. The ledger is the
// source of truth the cached aggregate must always reconcile against.
type LedgerEntry struct {
	ID         int64
	TenantID   int64
	BranchID   int64
	ProductID  int64
	LotID      int64
	Kind       LedgerKind
	QtyDelta   int64
	Reason     string
	OccurredAt time.Time
}

// ProductStock is the cached aggregate per (tenant, branch, product).
// Invariant: QtyOnHand == sum of lot.QtyRemaining == sum of ledger.QtyDelta.
type ProductStock struct {
	TenantID     int64
	BranchID     int64
	ProductID    int64
	QtyOnHand    int64
	QtyAllocated int64
	UpdatedAt    time.Time
}

// LotPortion records a quantity taken from (or returned to) a single lot.
type LotPortion struct {
	LotID         int64 `json:"lotId"`
	Qty           int64 `json:"qty"`
	UnitCostPence int64 `json:"unitCostPence"`
}

// LotRestore names a lot and the quantity to return to it.
type LotRestore struct {
	LotID int64
	Qty   int64
}

// ReceiveInput describes a stock receipt.
type ReceiveInput struct {
	TenantID       int64
	BranchID       int64
	ProductID      int64
	Qty            int64
	UnitCostPence  int64
	OccurredAt     time.Time
	Reason         string
	ActorUserID    int64
	CorrelationID  string
	IdempotencyKey string
}

// ConsumeInput describes a FIFO consumption.
type ConsumeInput struct {
	TenantID       int64
	BranchID       int64
	ProductID      int64
	Qty            int64
	Reason         string
	ActorUserID    int64
	CorrelationID  string
	IdempotencyKey string
}

// AdjustInput describes a signed manual adjustment.
type AdjustInput struct {
	TenantID       int64
	BranchID       int64
	ProductID      int64
	QtyDelta       int64
	UnitCostPence  int64
	Reason         string
	ActorUserID    int64
	CorrelationID  string
	IdempotencyKey string
}

// RestoreInput names existing lots to return quantity to.
type RestoreInput struct {
	TenantID      int64
	BranchID      int64
	Lots          []LotRestore
	Reason        string
	ActorUserID   int64
	CorrelationID string
}

// LotFilter selects lots for listing.
type LotFilter struct {
	TenantID  int64
	BranchID  int64
	ProductID int64
	OpenOnly  bool
	Limit     int
}

// LedgerFilter selects ledger entries for listing.
type LedgerFilter struct {
	TenantID  int64
	BranchID  int64
	ProductID int64
	Kind      LedgerKind
	From      time.Time
	To        time.Time
	Limit     int
}
