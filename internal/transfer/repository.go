package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/approval"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// Repository persists transfers in PostgreSQL. Shipment batches are stored
// as a jsonb column on the item row and validated on every read.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

type txRepo struct {
	stock.StoreTx
	tx pgx.Tx
}

// WithTx executes the callback inside one serializable transaction shared
// with the stock movement store.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("transfer repository not initialised")
	}
	return db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{StoreTx: stock.NewTxStore(tx), tx: tx})
	})
}

const transferColumns = `id, tenant_id, number, source_branch_id, destination_branch_id,
	initiation_type, status, reversal_of_id, requires_chain, matched_rule_id, note,
	created_by, created_at, updated_at`

func scanTransfer(row pgx.Row) (*StockTransfer, error) {
	var t StockTransfer
	err := row.Scan(&t.ID, &t.TenantID, &t.Number, &t.SourceBranchID, &t.DestinationBranchID,
		&t.InitiationType, &t.Status, &t.ReversalOfID, &t.RequiresChain, &t.MatchedRuleID,
		&t.Note, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *txRepo) InsertTransfer(ctx context.Context, t *StockTransfer) error {
	err := s.tx.QueryRow(ctx, `
		INSERT INTO stock_transfers (tenant_id, number, source_branch_id, destination_branch_id,
			initiation_type, status, reversal_of_id, requires_chain, matched_rule_id, note,
			created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		t.TenantID, t.Number, t.SourceBranchID, t.DestinationBranchID,
		t.InitiationType, t.Status, t.ReversalOfID, t.RequiresChain, t.MatchedRuleID, t.Note,
		t.CreatedBy,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (s *txRepo) InsertItem(ctx context.Context, item *TransferItem) error {
	batches, err := json.Marshal(item.ShipmentBatches)
	if err != nil {
		return fmt.Errorf("encode shipment batches: %w", err)
	}
	err = s.tx.QueryRow(ctx, `
		INSERT INTO stock_transfer_items (transfer_id, product_id, qty_requested, qty_approved,
			qty_shipped, qty_received, shipment_batches)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		item.TransferID, item.ProductID, item.QtyRequested, item.QtyApproved,
		item.QtyShipped, item.QtyReceived, batches,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("insert transfer item: %w", err)
	}
	return nil
}

func (s *txRepo) InsertApprovalChain(ctx context.Context, tenantID, transferID int64, rule *approval.Rule) error {
	return approval.InsertChainTx(ctx, s.tx, tenantID, transferID, rule.ID, rule.Levels)
}

func (s *txRepo) GetTransferForUpdate(ctx context.Context, tenantID, transferID int64) (*StockTransfer, []TransferItem, error) {
	t, err := scanTransfer(s.tx.QueryRow(ctx, `
		SELECT `+transferColumns+`
		FROM stock_transfers
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE`,
		tenantID, transferID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: transfer %d", shared.ErrNotFound, transferID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get transfer: %w", err)
	}
	items, err := loadItems(ctx, s.tx, t.ID, true)
	if err != nil {
		return nil, nil, err
	}
	return t, items, nil
}

func (s *txRepo) UpdateTransferStatus(ctx context.Context, transferID int64, status Status) error {
	ct, err := s.tx.Exec(ctx, `
		UPDATE stock_transfers SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, transferID)
	if err != nil {
		return fmt.Errorf("update transfer status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: transfer %d", shared.ErrNotFound, transferID)
	}
	return nil
}

func (s *txRepo) UpdateItemProgress(ctx context.Context, item TransferItem) error {
	batches, err := json.Marshal(item.ShipmentBatches)
	if err != nil {
		return fmt.Errorf("encode shipment batches: %w", err)
	}
	ct, err := s.tx.Exec(ctx, `
		UPDATE stock_transfer_items
		SET qty_approved = $1, qty_shipped = $2, qty_received = $3, shipment_batches = $4
		WHERE id = $5`,
		item.QtyApproved, item.QtyShipped, item.QtyReceived, batches, item.ID)
	if err != nil {
		return fmt.Errorf("update transfer item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: transfer item %d", shared.ErrNotFound, item.ID)
	}
	return nil
}

func (s *txRepo) FindReversalOf(ctx context.Context, tenantID, transferID int64) (*StockTransfer, error) {
	t, err := scanTransfer(s.tx.QueryRow(ctx, `
		SELECT `+transferColumns+`
		FROM stock_transfers
		WHERE tenant_id = $1 AND reversal_of_id = $2`,
		tenantID, transferID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find reversal: %w", err)
	}
	return t, nil
}

type rowQueryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q rowQueryer, transferID int64, forUpdate bool) ([]TransferItem, error) {
	query := `
		SELECT id, transfer_id, product_id, qty_requested, qty_approved, qty_shipped, qty_received, shipment_batches
		FROM stock_transfer_items
		WHERE transfer_id = $1
		ORDER BY id ASC`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, transferID)
	if err != nil {
		return nil, fmt.Errorf("list transfer items: %w", err)
	}
	defer rows.Close()

	var items []TransferItem
	for rows.Next() {
		var (
			item    TransferItem
			batches []byte
		)
		if err := rows.Scan(&item.ID, &item.TransferID, &item.ProductID, &item.QtyRequested,
			&item.QtyApproved, &item.QtyShipped, &item.QtyReceived, &batches); err != nil {
			return nil, fmt.Errorf("scan transfer item: %w", err)
		}
		if len(batches) > 0 {
			if err := json.Unmarshal(batches, &item.ShipmentBatches); err != nil {
				return nil, fmt.Errorf("decode shipment batches for item %d: %w", item.ID, err)
			}
		}
		if err := ValidateShipmentBatches(item.ShipmentBatches); err != nil {
			return nil, fmt.Errorf("item %d: %w", item.ID, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetTransfer returns one transfer with items, outside any transaction.
func (r *Repository) GetTransfer(ctx context.Context, tenantID, transferID int64) (*StockTransfer, []TransferItem, error) {
	t, err := scanTransfer(r.pool.QueryRow(ctx, `
		SELECT `+transferColumns+`
		FROM stock_transfers
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, transferID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: transfer %d", shared.ErrNotFound, transferID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get transfer: %w", err)
	}
	items, err := loadItems(ctx, r.pool, t.ID, false)
	if err != nil {
		return nil, nil, err
	}
	return t, items, nil
}

// ListTransfers returns transfers newest first. BranchID matches either side.
func (r *Repository) ListTransfers(ctx context.Context, filter ListFilter) ([]StockTransfer, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+transferColumns+`
		FROM stock_transfers
		WHERE tenant_id = $1
		  AND ($2 = 0 OR source_branch_id = $2 OR destination_branch_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY id DESC
		LIMIT $4`,
		filter.TenantID, filter.BranchID, string(filter.Status), limit)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var out []StockTransfer
	for rows.Next() {
		var t StockTransfer
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Number, &t.SourceBranchID, &t.DestinationBranchID,
			&t.InitiationType, &t.Status, &t.ReversalOfID, &t.RequiresChain, &t.MatchedRuleID,
			&t.Note, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
