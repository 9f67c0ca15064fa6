package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/approval"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// TxRepository is the transactional surface of one transfer mutation. It
// embeds the stock movement store so lot consumption at the source, receipt
// at the destination and the transfer row itself commit or roll back as one.
type TxRepository interface {
	stock.StoreTx
	InsertTransfer(ctx context.Context, t *StockTransfer) error
	InsertItem(ctx context.Context, item *TransferItem) error
	InsertApprovalChain(ctx context.Context, tenantID, transferID int64, rule *approval.Rule) error
	GetTransferForUpdate(ctx context.Context, tenantID, transferID int64) (*StockTransfer, []TransferItem, error)
	UpdateTransferStatus(ctx context.Context, transferID int64, status Status) error
	UpdateItemProgress(ctx context.Context, item TransferItem) error
	FindReversalOf(ctx context.Context, tenantID, transferID int64) (*StockTransfer, error)
}

// RepositoryPort is the persistence surface of the transfer service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetTransfer(ctx context.Context, tenantID, transferID int64) (*StockTransfer, []TransferItem, error)
	ListTransfers(ctx context.Context, filter ListFilter) ([]StockTransfer, error)
}

// ApprovalPort is the slice of the approval service transfers need.
type ApprovalPort interface {
	EvaluateForTransfer(ctx context.Context, tenantID int64, facts approval.TransferFacts) (*approval.Rule, error)
	SubmitLevel(ctx context.Context, in approval.SubmitInput) (approval.ChainState, error)
}

// CatalogPort resolves product prices for value-based approval conditions.
type CatalogPort interface {
	UnitPricePence(ctx context.Context, tenantID, productID int64) (int64, error)
}

// MembershipPort answers branch membership questions.
type MembershipPort interface {
	IsMember(ctx context.Context, tenantID, branchID, userID int64) (bool, error)
}

// Service drives the transfer lifecycle.
type Service struct {
	repo      RepositoryPort
	engine    stock.Engine
	approvals ApprovalPort
	catalog   CatalogPort
	members   MembershipPort
	cache     *stock.LevelCache
	logger    *slog.Logger
}

func NewService(repo RepositoryPort, approvals ApprovalPort, catalog CatalogPort, members MembershipPort, cache *stock.LevelCache, logger *slog.Logger) *Service {
	return &Service{repo: repo, approvals: approvals, catalog: catalog, members: members, cache: cache, logger: logger}
}

// Create opens a transfer request. PUSH transfers are created by a source
// branch member, PULL transfers by a destination branch member; the other
// branch reviews. When an approval rule matches, a multi-level chain is
// started and the simple review path is closed.
func (s *Service) Create(ctx context.Context, in CreateInput) (*StockTransfer, []TransferItem, error) {
	if err := s.validateCreate(in); err != nil {
		return nil, nil, err
	}

	t := &StockTransfer{
		TenantID:            in.TenantID,
		Number:              fmt.Sprintf("TRF-%d", time.Now().UnixNano()),
		SourceBranchID:      in.SourceBranchID,
		DestinationBranchID: in.DestinationBranchID,
		InitiationType:      in.InitiationType,
		Status:              StatusRequested,
		Note:                in.Note,
		CreatedBy:           in.ActorUserID,
	}

	if err := s.requireMember(ctx, in.TenantID, t.InitiatingBranchID(), in.ActorUserID); err != nil {
		return nil, nil, err
	}

	facts, err := s.buildFacts(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	rule, err := s.approvals.EvaluateForTransfer(ctx, in.TenantID, facts)
	if err != nil {
		return nil, nil, fmt.Errorf("evaluate approval rules: %w", err)
	}
	if rule != nil {
		t.RequiresChain = true
		t.MatchedRuleID = &rule.ID
	}

	var items []TransferItem
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertTransfer(ctx, t); err != nil {
			return err
		}
		for _, line := range in.Items {
			item := TransferItem{
				TransferID:   t.ID,
				ProductID:    line.ProductID,
				QtyRequested: line.QtyRequested,
			}
			if err := tx.InsertItem(ctx, &item); err != nil {
				return err
			}
			items = append(items, item)
		}
		// The chain is created in the same transaction, so a transfer can
		// never persist as REQUESTED with its review path closed but no
		// chain rows to decide on.
		if rule != nil {
			if err := tx.InsertApprovalChain(ctx, in.TenantID, t.ID, rule); err != nil {
				return fmt.Errorf("begin approval chain: %w", err)
			}
		}
		return tx.WriteAuditEvent(ctx, s.auditEvent(in.TenantID, in.ActorUserID, t.ID, "TRANSFER_REQUEST", nil, t, in.CorrelationID))
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "transfer requested",
		"number", t.Number, "tenantID", in.TenantID,
		"source", in.SourceBranchID, "destination", in.DestinationBranchID,
		"requiresChain", t.RequiresChain)
	return t, items, nil
}

func (s *Service) validateCreate(in CreateInput) error {
	if in.InitiationType != InitiationPush && in.InitiationType != InitiationPull {
		return fmt.Errorf("%w: initiation type must be PUSH or PULL", shared.ErrValidation)
	}
	if in.SourceBranchID == 0 || in.DestinationBranchID == 0 {
		return fmt.Errorf("%w: source and destination branches required", shared.ErrValidation)
	}
	if in.SourceBranchID == in.DestinationBranchID {
		return fmt.Errorf("%w: source and destination branches must differ", shared.ErrValidation)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	seen := make(map[int64]bool, len(in.Items))
	for _, item := range in.Items {
		if item.ProductID == 0 {
			return fmt.Errorf("%w: item product required", shared.ErrValidation)
		}
		if item.QtyRequested <= 0 {
			return fmt.Errorf("%w: requested quantity must be positive for product %d", shared.ErrValidation, item.ProductID)
		}
		if seen[item.ProductID] {
			return fmt.Errorf("%w: product %d listed twice", shared.ErrValidation, item.ProductID)
		}
		seen[item.ProductID] = true
	}
	return nil
}

func (s *Service) buildFacts(ctx context.Context, in CreateInput) (approval.TransferFacts, error) {
	facts := approval.TransferFacts{
		SourceBranchID:      in.SourceBranchID,
		DestinationBranchID: in.DestinationBranchID,
		HighPriority:        in.HighPriority,
	}
	for _, item := range in.Items {
		facts.TotalQty += item.QtyRequested
		price, err := s.catalog.UnitPricePence(ctx, in.TenantID, item.ProductID)
		if err != nil {
			return approval.TransferFacts{}, fmt.Errorf("price product %d: %w", item.ProductID, err)
		}
		facts.TotalValuePence += item.QtyRequested * price
	}
	return facts, nil
}

// Review applies the single-step review by a member of the reviewing branch.
// Transfers that matched an approval rule must go through the chain instead.
// Repeating a decision already applied is a no-op.
func (s *Service) Review(ctx context.Context, in ReviewInput) (*StockTransfer, error) {
	if in.Action != ReviewApprove && in.Action != ReviewReject {
		return nil, fmt.Errorf("%w: review action must be approve or reject", shared.ErrValidation)
	}
	var result *StockTransfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, items, err := tx.GetTransferForUpdate(ctx, in.TenantID, in.TransferID)
		if err != nil {
			return err
		}
		if t.RequiresChain {
			return fmt.Errorf("%w: transfer %s requires its approval chain", shared.ErrConflict, t.Number)
		}
		if (t.Status == StatusApproved && in.Action == ReviewApprove) ||
			(t.Status == StatusRejected && in.Action == ReviewReject) {
			result = t
			return nil
		}
		if t.Status != StatusRequested {
			return fmt.Errorf("%w: transfer %s is %s, not %s", shared.ErrConflict, t.Number, t.Status, StatusRequested)
		}
		if err := s.requireMember(ctx, in.TenantID, t.ReviewingBranchID(), in.ActorUserID); err != nil {
			return err
		}

		before := *t
		if in.Action == ReviewReject {
			t.Status = StatusRejected
		} else {
			for i := range items {
				approved, ok := in.QtyApproved[items[i].ID]
				if !ok {
					approved = items[i].QtyRequested
				}
				if approved <= 0 || approved > items[i].QtyRequested {
					return fmt.Errorf("%w: approved quantity for item %d must be within 1..%d",
						shared.ErrValidation, items[i].ID, items[i].QtyRequested)
				}
				items[i].QtyApproved = approved
				if err := tx.UpdateItemProgress(ctx, items[i]); err != nil {
					return err
				}
			}
			t.Status = StatusApproved
		}
		if err := tx.UpdateTransferStatus(ctx, t.ID, t.Status); err != nil {
			return err
		}
		result = t
		return tx.WriteAuditEvent(ctx, s.auditEvent(in.TenantID, in.ActorUserID, t.ID, "TRANSFER_REVIEW_"+string(t.Status), before, t, ""))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SubmitApproval records one chain level decision and, when the chain
// resolves, moves the transfer to APPROVED or REJECTED.
func (s *Service) SubmitApproval(ctx context.Context, in SubmitApprovalInput) (*StockTransfer, error) {
	t, _, err := s.repo.GetTransfer(ctx, in.TenantID, in.TransferID)
	if err != nil {
		return nil, err
	}
	if !t.RequiresChain {
		return nil, fmt.Errorf("%w: transfer %s has no approval chain, use review", shared.ErrConflict, t.Number)
	}
	if t.Status != StatusRequested {
		return nil, fmt.Errorf("%w: transfer %s is %s, not %s", shared.ErrConflict, t.Number, t.Status, StatusRequested)
	}

	state, err := s.approvals.SubmitLevel(ctx, approval.SubmitInput{
		TenantID:    in.TenantID,
		TransferID:  in.TransferID,
		Level:       in.Level,
		Approve:     in.Approve,
		Note:        in.Note,
		ActorUserID: in.ActorUserID,
	})
	if err != nil {
		return nil, err
	}
	if !state.Complete && !state.Rejected {
		return t, nil
	}

	var result *StockTransfer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, items, err := tx.GetTransferForUpdate(ctx, in.TenantID, in.TransferID)
		if err != nil {
			return err
		}
		if t.Status != StatusRequested {
			result = t
			return nil
		}
		before := *t
		if state.Rejected {
			t.Status = StatusRejected
		} else {
			for i := range items {
				items[i].QtyApproved = items[i].QtyRequested
				if err := tx.UpdateItemProgress(ctx, items[i]); err != nil {
					return err
				}
			}
			t.Status = StatusApproved
		}
		if err := tx.UpdateTransferStatus(ctx, t.ID, t.Status); err != nil {
			return err
		}
		result = t
		return tx.WriteAuditEvent(ctx, s.auditEvent(in.TenantID, in.ActorUserID, t.ID, "TRANSFER_CHAIN_"+string(t.Status), before, t, ""))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Ship consumes stock at the source branch for an approved transfer. Partial
// shipments are allowed; the request is capped at each item's outstanding
// approved quantity. The exact lots consumed are recorded on the item so the
// transfer can later be reversed lot for lot. When every item is fully
// shipped the transfer moves to IN_TRANSIT.
func (s *Service) Ship(ctx context.Context, in ShipInput) (*StockTransfer, []TransferItem, error) {
	var (
		result      *StockTransfer
		resultItems []TransferItem
		touched     []int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, items, err := tx.GetTransferForUpdate(ctx, in.TenantID, in.TransferID)
		if err != nil {
			return err
		}
		if t.Status != StatusApproved {
			return fmt.Errorf("%w: transfer %s is %s, not %s", shared.ErrConflict, t.Number, t.Status, StatusApproved)
		}
		if err := s.requireMember(ctx, in.TenantID, t.SourceBranchID, in.ActorUserID); err != nil {
			return err
		}

		targets, err := shipTargets(items, in.Items)
		if err != nil {
			return err
		}

		var shippedAny bool
		for i := range items {
			qty := targets[items[i].ID]
			if qty == 0 {
				continue
			}
			portions, err := s.engine.Consume(ctx, tx, stock.ConsumeInput{
				TenantID:    in.TenantID,
				BranchID:    t.SourceBranchID,
				ProductID:   items[i].ProductID,
				Qty:         qty,
				Reason:      "transfer " + t.Number,
				ActorUserID: in.ActorUserID,
			})
			if err != nil {
				return err
			}
			items[i].ShipmentBatches = append(items[i].ShipmentBatches, ShipmentBatch{
				BatchNumber:  len(items[i].ShipmentBatches) + 1,
				Qty:          qty,
				LotsConsumed: portions,
			})
			items[i].QtyShipped += qty
			if err := tx.UpdateItemProgress(ctx, items[i]); err != nil {
				return err
			}
			touched = append(touched, items[i].ProductID)
			shippedAny = true
		}
		if !shippedAny {
			return fmt.Errorf("%w: nothing left to ship", shared.ErrValidation)
		}

		if allShipped(items) {
			t.Status = StatusInTransit
			if err := tx.UpdateTransferStatus(ctx, t.ID, t.Status); err != nil {
				return err
			}
		}
		result, resultItems = t, items
		return tx.WriteAuditEvent(ctx, s.auditEvent(in.TenantID, in.ActorUserID, t.ID, "TRANSFER_SHIP", nil, targets, ""))
	})
	if err != nil {
		return nil, nil, err
	}
	s.invalidateLevels(ctx, in.TenantID, result.SourceBranchID, touched)
	return result, resultItems, nil
}

// shipTargets resolves how much to ship per item. An empty request ships the
// outstanding approved quantity of everything; explicit requests are capped
// at the outstanding quantity.
func shipTargets(items []TransferItem, req []ShipItemInput) (map[int64]int64, error) {
	byID := make(map[int64]*TransferItem, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}
	targets := make(map[int64]int64, len(items))
	if len(req) == 0 {
		for _, item := range items {
			targets[item.ID] = item.QtyApproved - item.QtyShipped
		}
		return targets, nil
	}
	for _, r := range req {
		item, ok := byID[r.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: item %d is not part of this transfer", shared.ErrNotFound, r.ItemID)
		}
		if r.QtyToShip <= 0 {
			return nil, fmt.Errorf("%w: ship quantity must be positive for item %d", shared.ErrValidation, r.ItemID)
		}
		outstanding := item.QtyApproved - item.QtyShipped
		if r.QtyToShip > outstanding {
			r.QtyToShip = outstanding
		}
		targets[r.ItemID] = r.QtyToShip
	}
	return targets, nil
}

func allShipped(items []TransferItem) bool {
	for _, item := range items {
		if item.QtyShipped < item.QtyApproved {
			return false
		}
	}
	return true
}

// Receive books arrived quantity into new lots at the destination branch.
// Each item's unit cost is the weighted average of the lot costs it shipped
// at, so value carries across branches. When everything shipped has arrived
// the transfer completes.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (*StockTransfer, []TransferItem, error) {
	var (
		result      *StockTransfer
		resultItems []TransferItem
		touched     []int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, items, err := tx.GetTransferForUpdate(ctx, in.TenantID, in.TransferID)
		if err != nil {
			return err
		}
		if t.Status != StatusInTransit {
			return fmt.Errorf("%w: transfer %s is %s, not %s", shared.ErrConflict, t.Number, t.Status, StatusInTransit)
		}
		if err := s.requireMember(ctx, in.TenantID, t.DestinationBranchID, in.ActorUserID); err != nil {
			return err
		}

		targets, err := receiveTargets(items, in.Items)
		if err != nil {
			return err
		}

		var receivedAny bool
		for i := range items {
			qty := targets[items[i].ID]
			if qty == 0 {
				continue
			}
			_, err := s.engine.Receive(ctx, tx, stock.ReceiveInput{
				TenantID:      in.TenantID,
				BranchID:      t.DestinationBranchID,
				ProductID:     items[i].ProductID,
				Qty:           qty,
				UnitCostPence: weightedUnitCostPence(items[i]),
				Reason:        "transfer " + t.Number,
				ActorUserID:   in.ActorUserID,
			})
			if err != nil {
				return err
			}
			items[i].QtyReceived += qty
			if err := tx.UpdateItemProgress(ctx, items[i]); err != nil {
				return err
			}
			touched = append(touched, items[i].ProductID)
			receivedAny = true
		}
		if !receivedAny {
			return fmt.Errorf("%w: nothing left to receive", shared.ErrValidation)
		}

		if allReceived(items) {
			t.Status = StatusCompleted
			if err := tx.UpdateTransferStatus(ctx, t.ID, t.Status); err != nil {
				return err
			}
		}
		result, resultItems = t, items
		return tx.WriteAuditEvent(ctx, s.auditEvent(in.TenantID, in.ActorUserID, t.ID, "TRANSFER_RECEIVE", nil, targets, ""))
	})
	if err != nil {
		return nil, nil, err
	}
	s.invalidateLevels(ctx, in.TenantID, result.DestinationBranchID, touched)
	return result, resultItems, nil
}

func receiveTargets(items []TransferItem, req []ReceiveItemInput) (map[int64]int64, error) {
	byID := make(map[int64]*TransferItem, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}
	targets := make(map[int64]int64, len(items))
	if len(req) == 0 {
		for _, item := range items {
			targets[item.ID] = item.QtyShipped - item.QtyReceived
		}
		return targets, nil
	}
	for _, r := range req {
		item, ok := byID[r.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: item %d is not part of this transfer", shared.ErrNotFound, r.ItemID)
		}
		if r.QtyReceived <= 0 {
			return nil, fmt.Errorf("%w: receive quantity must be positive for item %d", shared.ErrValidation, r.ItemID)
		}
		outstanding := item.QtyShipped - item.QtyReceived
		if r.QtyReceived > outstanding {
			r.QtyReceived = outstanding
		}
		targets[r.ItemID] = r.QtyReceived
	}
	return targets, nil
}

func allReceived(items []TransferItem) bool {
	for _, item := range items {
		if item.QtyReceived < item.QtyShipped {
			return false
		}
	}
	return true
}

// Cancel closes a transfer before stock has moved: REQUESTED always,
// APPROVED only while nothing is shipped.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (*StockTransfer, error) {
	var result *StockTransfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, items, err := tx.GetTransferForUpdate(ctx, in.TenantID, in.TransferID)
		if err != nil {
			return err
		}
		switch t.Status {
		case StatusRequested:
		case StatusApproved:
			for _, item := range items {
				if item.QtyShipped > 0 {
					return fmt.Errorf("%w: transfer %s has shipped stock and cannot be cancelled", shared.ErrConflict, t.Number)
				}
			}
		default:
			return fmt.Errorf("%w: transfer %s is %s and cannot be cancelled", shared.ErrConflict, t.Number, t.Status)
		}
		if err := s.requireMemberOfEither(ctx, in.TenantID, t, in.ActorUserID); err != nil {
			return err
		}
		before := *t
		t.Status = StatusCancelled
		if err := tx.UpdateTransferStatus(ctx, t.ID, t.Status); err != nil {
			return err
		}
		result = t
		return tx.WriteAuditEvent(ctx, s.auditEvent(in.TenantID, in.ActorUserID, t.ID, "TRANSFER_CANCEL", before, map[string]any{"reason": in.Reason}, ""))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reverse undoes a completed transfer in one transaction: the received
// quantity is consumed back out of the destination and the exact source lots
// the shipments drew from are restored, preserving their identity, FIFO age
// and cost basis. A linked, already-completed transfer records the reversal.
// Each transfer reverses at most once, and reversals cannot be reversed.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (*StockTransfer, error) {
	var (
		result  *StockTransfer
		srcID   int64
		dstID   int64
		touched []int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, items, err := tx.GetTransferForUpdate(ctx, in.TenantID, in.TransferID)
		if err != nil {
			return err
		}
		if t.Status != StatusCompleted {
			return fmt.Errorf("%w: transfer %s is %s, only completed transfers reverse", shared.ErrConflict, t.Number, t.Status)
		}
		if t.ReversalOfID != nil {
			return fmt.Errorf("%w: transfer %s is itself a reversal", shared.ErrConflict, t.Number)
		}
		if existing, err := tx.FindReversalOf(ctx, in.TenantID, t.ID); err != nil {
			return err
		} else if existing != nil {
			return fmt.Errorf("%w: transfer %s was already reversed by %s", shared.ErrConflict, t.Number, existing.Number)
		}
		if err := s.requireMember(ctx, in.TenantID, t.DestinationBranchID, in.ActorUserID); err != nil {
			return err
		}

		restores, err := aggregateLotRestores(items)
		if err != nil {
			return err
		}

		reason := in.Reason
		if reason == "" {
			reason = "reversal of " + t.Number
		}

		// Pull the received quantity back out of the destination first; an
		// insufficient balance there aborts the whole reversal.
		for _, item := range items {
			if item.QtyReceived == 0 {
				continue
			}
			if _, err := s.engine.Consume(ctx, tx, stock.ConsumeInput{
				TenantID:    in.TenantID,
				BranchID:    t.DestinationBranchID,
				ProductID:   item.ProductID,
				Qty:         item.QtyReceived,
				Reason:      reason,
				ActorUserID: in.ActorUserID,
			}); err != nil {
				return err
			}
			touched = append(touched, item.ProductID)
		}

		if err := s.engine.Restore(ctx, tx, stock.RestoreInput{
			TenantID:    in.TenantID,
			BranchID:    t.SourceBranchID,
			Lots:        restores,
			Reason:      reason,
			ActorUserID: in.ActorUserID,
		}); err != nil {
			return err
		}

		rev := &StockTransfer{
			TenantID:            in.TenantID,
			Number:              fmt.Sprintf("TRF-%d", time.Now().UnixNano()),
			SourceBranchID:      t.DestinationBranchID,
			DestinationBranchID: t.SourceBranchID,
			InitiationType:      InitiationPush,
			Status:              StatusCompleted,
			ReversalOfID:        &t.ID,
			Note:                reason,
			CreatedBy:           in.ActorUserID,
		}
		if err := tx.InsertTransfer(ctx, rev); err != nil {
			return err
		}
		for _, item := range items {
			revItem := TransferItem{
				TransferID:   rev.ID,
				ProductID:    item.ProductID,
				QtyRequested: item.QtyReceived,
				QtyApproved:  item.QtyReceived,
				QtyShipped:   item.QtyReceived,
				QtyReceived:  item.QtyReceived,
			}
			if err := tx.InsertItem(ctx, &revItem); err != nil {
				return err
			}
		}
		result, srcID, dstID = rev, t.SourceBranchID, t.DestinationBranchID
		return tx.WriteAuditEvent(ctx, s.auditEvent(in.TenantID, in.ActorUserID, t.ID, "TRANSFER_REVERSE", t, rev, ""))
	})
	if err != nil {
		return nil, err
	}
	s.invalidateLevels(ctx, in.TenantID, srcID, touched)
	s.invalidateLevels(ctx, in.TenantID, dstID, touched)
	return result, nil
}

// Get returns one transfer with its items.
func (s *Service) Get(ctx context.Context, tenantID, transferID int64) (*StockTransfer, []TransferItem, error) {
	return s.repo.GetTransfer(ctx, tenantID, transferID)
}

// List returns transfers matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]StockTransfer, error) {
	return s.repo.ListTransfers(ctx, filter)
}

func (s *Service) requireMember(ctx context.Context, tenantID, branchID, userID int64) error {
	ok, err := s.members.IsMember(ctx, tenantID, branchID, userID)
	if err != nil {
		return fmt.Errorf("check branch membership: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: user %d is not a member of branch %d", shared.ErrForbidden, userID, branchID)
	}
	return nil
}

func (s *Service) requireMemberOfEither(ctx context.Context, tenantID int64, t *StockTransfer, userID int64) error {
	if err := s.requireMember(ctx, tenantID, t.SourceBranchID, userID); err == nil {
		return nil
	}
	return s.requireMember(ctx, tenantID, t.DestinationBranchID, userID)
}

func (s *Service) invalidateLevels(ctx context.Context, tenantID, branchID int64, productIDs []int64) {
	if s.cache == nil {
		return
	}
	for _, productID := range productIDs {
		if err := s.cache.Invalidate(ctx, tenantID, branchID, productID); err != nil && s.logger != nil {
			s.logger.Warn("invalidate stock level cache", slog.Any("error", err))
		}
	}
}

func (s *Service) auditEvent(tenantID, actorUserID, transferID int64, action string, before, after any, correlationID string) shared.AuditEvent {
	return shared.AuditEvent{
		TenantID:      tenantID,
		ActorUserID:   actorUserID,
		EntityType:    "stock_transfer",
		EntityID:      fmt.Sprintf("%d", transferID),
		Action:        action,
		Before:        before,
		After:         after,
		CorrelationID: correlationID,
	}
}
