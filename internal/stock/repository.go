package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txStore struct {
	tx pgx.Tx
}

// NewTxStore exposes the lot, ledger and aggregate operations over an
// existing transaction so other modules can move stock atomically with their
// own writes.
func NewTxStore(tx pgx.Tx) StoreTx {
	return &txStore{tx: tx}
}

// WithTx executes the callback inside a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, StoreTx) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

// ListLots returns lots ordered by the FIFO key.
func (r *Repository) ListLots(ctx context.Context, filter LotFilter) ([]StockLot, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	minQty := int64(-1)
	if filter.OpenOnly {
		minQty = 0
	}
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, branch_id, product_id, received_at, qty_remaining, unit_cost_pence, created_at
FROM stock_lots
WHERE tenant_id=$1 AND branch_id=$2 AND product_id=$3 AND qty_remaining > $4
ORDER BY received_at ASC, created_at ASC, id ASC
LIMIT $5`, filter.TenantID, filter.BranchID, filter.ProductID, minQty, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lots := []StockLot{}
	for rows.Next() {
		var lot StockLot
		if err := rows.Scan(&lot.ID, &lot.TenantID, &lot.BranchID, &lot.ProductID, &lot.ReceivedAt, &lot.QtyRemaining, &lot.UnitCostPence, &lot.CreatedAt); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// ListLedger returns movement events, oldest first.
func (r *Repository) ListLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, branch_id, product_id, lot_id, kind, qty_delta, reason, occurred_at
FROM stock_ledger
WHERE tenant_id=$1 AND branch_id=$2 AND product_id=$3
  AND ($4 = '' OR kind = $4)
  AND occurred_at BETWEEN COALESCE(NULLIF($5, '0001-01-01 00:00:00+00'::timestamptz), '-infinity') AND COALESCE(NULLIF($6, '0001-01-01 00:00:00+00'::timestamptz), 'infinity')
ORDER BY occurred_at ASC, id ASC
LIMIT $7`, filter.TenantID, filter.BranchID, filter.ProductID, string(filter.Kind), filter.From, filter.To, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []LedgerEntry{}
	for rows.Next() {
		var e LedgerEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.BranchID, &e.ProductID, &e.LotID, &kind, &e.QtyDelta, &e.Reason, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Kind = LedgerKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetProductStock loads the cached aggregate row.
func (r *Repository) GetProductStock(ctx context.Context, tenantID, branchID, productID int64) (ProductStock, error) {
	var ps ProductStock
	err := r.pool.QueryRow(ctx, `SELECT tenant_id, branch_id, product_id, qty_on_hand, qty_allocated, updated_at
FROM product_stock WHERE tenant_id=$1 AND branch_id=$2 AND product_id=$3`, tenantID, branchID, productID).
		Scan(&ps.TenantID, &ps.BranchID, &ps.ProductID, &ps.QtyOnHand, &ps.QtyAllocated, &ps.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductStock{TenantID: tenantID, BranchID: branchID, ProductID: productID}, nil
		}
		return ProductStock{}, err
	}
	return ps, nil
}

// ListProductStock lists aggregates for a branch.
func (r *Repository) ListProductStock(ctx context.Context, tenantID, branchID int64) ([]ProductStock, error) {
	rows, err := r.pool.Query(ctx, `SELECT tenant_id, branch_id, product_id, qty_on_hand, qty_allocated, updated_at
FROM product_stock WHERE tenant_id=$1 AND branch_id=$2 ORDER BY product_id ASC`, tenantID, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []ProductStock{}
	for rows.Next() {
		var ps ProductStock
		if err := rows.Scan(&ps.TenantID, &ps.BranchID, &ps.ProductID, &ps.QtyOnHand, &ps.QtyAllocated, &ps.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, ps)
	}
	return result, rows.Err()
}

func (s *txStore) InsertLot(ctx context.Context, lot StockLot) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_lots (tenant_id, branch_id, product_id, received_at, qty_remaining, unit_cost_pence, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		lot.TenantID, lot.BranchID, lot.ProductID, lot.ReceivedAt, lot.QtyRemaining, lot.UnitCostPence, lot.CreatedAt).Scan(&id)
	return id, err
}

func (s *txStore) ListOpenLotsForUpdate(ctx context.Context, tenantID, branchID, productID int64) ([]StockLot, error) {
	rows, err := s.tx.Query(ctx, `SELECT id, tenant_id, branch_id, product_id, received_at, qty_remaining, unit_cost_pence, created_at
FROM stock_lots
WHERE tenant_id=$1 AND branch_id=$2 AND product_id=$3 AND qty_remaining > 0
ORDER BY received_at ASC, created_at ASC, id ASC
FOR UPDATE`, tenantID, branchID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lots := []StockLot{}
	for rows.Next() {
		var lot StockLot
		if err := rows.Scan(&lot.ID, &lot.TenantID, &lot.BranchID, &lot.ProductID, &lot.ReceivedAt, &lot.QtyRemaining, &lot.UnitCostPence, &lot.CreatedAt); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (s *txStore) GetLotsForUpdate(ctx context.Context, tenantID, branchID int64, lotIDs []int64) ([]StockLot, error) {
	rows, err := s.tx.Query(ctx, `SELECT id, tenant_id, branch_id, product_id, received_at, qty_remaining, unit_cost_pence, created_at
FROM stock_lots
WHERE tenant_id=$1 AND branch_id=$2 AND id = ANY($3)
ORDER BY id ASC
FOR UPDATE`, tenantID, branchID, lotIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lots := []StockLot{}
	for rows.Next() {
		var lot StockLot
		if err := rows.Scan(&lot.ID, &lot.TenantID, &lot.BranchID, &lot.ProductID, &lot.ReceivedAt, &lot.QtyRemaining, &lot.UnitCostPence, &lot.CreatedAt); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (s *txStore) SetLotQty(ctx context.Context, lotID, qtyRemaining int64) error {
	if qtyRemaining < 0 {
		return fmt.Errorf("%w: lot quantity may not go negative", shared.ErrValidation)
	}
	tag, err := s.tx.Exec(ctx, `UPDATE stock_lots SET qty_remaining=$2 WHERE id=$1`, lotID, qtyRemaining)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: lot %d", shared.ErrNotFound, lotID)
	}
	return nil
}

func (s *txStore) InsertLedgerEntry(ctx context.Context, entry LedgerEntry) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_ledger (tenant_id, branch_id, product_id, lot_id, kind, qty_delta, reason, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		entry.TenantID, entry.BranchID, entry.ProductID, entry.LotID, string(entry.Kind), entry.QtyDelta, entry.Reason, entry.OccurredAt).Scan(&id)
	return id, err
}

func (s *txStore) AddProductStock(ctx context.Context, tenantID, branchID, productID, qtyDelta int64) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO product_stock (tenant_id, branch_id, product_id, qty_on_hand, qty_allocated, updated_at)
VALUES ($1,$2,$3,$4,0,NOW())
ON CONFLICT (tenant_id, branch_id, product_id) DO UPDATE SET qty_on_hand=product_stock.qty_on_hand+EXCLUDED.qty_on_hand, updated_at=NOW()`,
		tenantID, branchID, productID, qtyDelta)
	return err
}

func (s *txStore) WriteAuditEvent(ctx context.Context, ev shared.AuditEvent) error {
	return shared.WriteAuditEvent(ctx, s.tx, ev)
}
