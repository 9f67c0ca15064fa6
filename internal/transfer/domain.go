package transfer

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// InitiationType records which side of the transfer opened it.
type InitiationType string

const (
	// InitiationPush means the source branch pushes stock out; the
	// destination branch reviews.
	InitiationPush InitiationType = "PUSH"
	// InitiationPull means the destination branch pulls stock in; the
	// source branch reviews.
	InitiationPull InitiationType = "PULL"
)

// Status enumerates transfer lifecycle states.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusInTransit Status = "IN_TRANSIT"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// StockTransfer is a movement request between two branches. Transfers follow
// a soft lifecycle and are never deleted.
type StockTransfer struct {
	ID                  int64
	TenantID            int64
	Number              string
	SourceBranchID      int64
	DestinationBranchID int64
	InitiationType      InitiationType
	Status              Status
	ReversalOfID        *int64
	RequiresChain       bool
	MatchedRuleID       *int64
	Note                string
	CreatedBy           int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// InitiatingBranchID returns the branch whose member may create the transfer.
func (t StockTransfer) InitiatingBranchID() int64 {
	if t.InitiationType == InitiationPull {
		return t.DestinationBranchID
	}
	return t.SourceBranchID
}

// ReviewingBranchID returns the branch whose member must review the transfer.
func (t StockTransfer) ReviewingBranchID() int64 {
	if t.InitiationType == InitiationPull {
		return t.SourceBranchID
	}
	return t.DestinationBranchID
}

// ShipmentBatch records one ship call for an item, including the exact FIFO
// lots the shipment consumed at the source branch. Reversal relies on these
// entries to restore the same lot identities.
type ShipmentBatch struct {
	BatchNumber  int                `json:"batchNumber"`
	Qty          int64              `json:"qty"`
	LotsConsumed []stock.LotPortion `json:"lotsConsumed"`
}

// TransferItem is a per-product line of a transfer.
// Invariant: QtyShipped <= QtyApproved <= QtyRequested and QtyReceived <= QtyShipped.
type TransferItem struct {
	ID              int64
	TransferID      int64
	ProductID       int64
	QtyRequested    int64
	QtyApproved     int64
	QtyShipped      int64
	QtyReceived     int64
	ShipmentBatches []ShipmentBatch
}

// ValidateShipmentBatches checks batches read from storage. Nil batch lists
// and nil lotsConsumed are legal (legacy rows and synthetic items carry no
// lot tracking); entries that are present must be well formed so the reversal
// engine can rely on them.
func ValidateShipmentBatches(batches []ShipmentBatch) error {
	for i, batch := range batches {
		if batch.Qty <= 0 {
			return fmt.Errorf("%w: shipment batch %d has non-positive quantity", shared.ErrValidation, i)
		}
		var lotSum int64
		for _, portion := range batch.LotsConsumed {
			if portion.LotID <= 0 || portion.Qty <= 0 {
				return fmt.Errorf("%w: shipment batch %d has malformed lot entry", shared.ErrValidation, i)
			}
			lotSum += portion.Qty
		}
		if len(batch.LotsConsumed) > 0 && lotSum != batch.Qty {
			return fmt.Errorf("%w: shipment batch %d lots sum to %d, batch quantity is %d", shared.ErrValidation, i, lotSum, batch.Qty)
		}
	}
	return nil
}

// ItemInput is a requested line at creation time.
type ItemInput struct {
	ProductID    int64
	QtyRequested int64
}

// CreateInput describes a transfer request.
type CreateInput struct {
	TenantID            int64
	InitiationType      InitiationType
	SourceBranchID      int64
	DestinationBranchID int64
	Items               []ItemInput
	Note                string
	HighPriority        bool
	ActorUserID         int64
	CorrelationID       string
}

// ReviewAction enumerates simple review outcomes.
type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
)

// ReviewInput describes a single-step branch review.
type ReviewInput struct {
	TransferID  int64
	TenantID    int64
	Action      ReviewAction
	// QtyApproved overrides per item id; items absent from the map default
	// to their requested quantity.
	QtyApproved map[int64]int64
	ActorUserID int64
}

// ShipItemInput targets one item in a ship call.
type ShipItemInput struct {
	ItemID    int64
	QtyToShip int64
}

// ShipInput describes a (possibly partial) shipment. An empty item list ships
// the outstanding approved quantity of every item.
type ShipInput struct {
	TransferID  int64
	TenantID    int64
	Items       []ShipItemInput
	ActorUserID int64
}

// ReceiveItemInput records arrival of one item line.
type ReceiveItemInput struct {
	ItemID      int64
	QtyReceived int64
}

// ReceiveInput describes a (possibly partial) receipt at the destination.
type ReceiveInput struct {
	TransferID  int64
	TenantID    int64
	Items       []ReceiveItemInput
	ActorUserID int64
}

// CancelInput describes a cancellation.
type CancelInput struct {
	TransferID  int64
	TenantID    int64
	Reason      string
	ActorUserID int64
}

// ReverseInput describes an exact reversal of a completed transfer.
type ReverseInput struct {
	TransferID  int64
	TenantID    int64
	Reason      string
	ActorUserID int64
}

// SubmitApprovalInput carries a multi-level approval decision.
type SubmitApprovalInput struct {
	TransferID  int64
	TenantID    int64
	Level       int
	Approve     bool
	Note        string
	ActorUserID int64
}

// ListFilter selects transfers for listing.
type ListFilter struct {
	TenantID int64
	BranchID int64
	Status   Status
	Limit    int
}
