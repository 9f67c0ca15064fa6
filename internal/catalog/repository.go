package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists products, branches and memberships in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// uniqueViolation translates duplicate SKU or barcode inserts into a
// conflict the handler maps to 409.
func uniqueViolation(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s already in use", shared.ErrConflict, what)
	}
	return err
}

const productColumns = `id, tenant_id, sku, barcode, name, unit_price_pence, is_active, entity_version, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.SKU, &p.Barcode, &p.Name,
		&p.UnitPricePence, &p.IsActive, &p.EntityVersion, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `
		INSERT INTO products (tenant_id, sku, barcode, name, unit_price_pence, is_active, entity_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, NOW(), NOW())
		RETURNING `+productColumns,
		in.TenantID, in.SKU, in.Barcode, in.Name, in.UnitPricePence, in.IsActive))
	if err != nil {
		return Product{}, fmt.Errorf("insert product: %w", uniqueViolation(err, "sku or barcode"))
	}
	return p, nil
}

func (r *Repository) UpdateProduct(ctx context.Context, productID, entityVersion int64, in ProductInput) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `
		UPDATE products
		SET sku = $1, barcode = $2, name = $3, unit_price_pence = $4, is_active = $5,
		    entity_version = entity_version + 1, updated_at = NOW()
		WHERE tenant_id = $6 AND id = $7 AND entity_version = $8
		RETURNING `+productColumns,
		in.SKU, in.Barcode, in.Name, in.UnitPricePence, in.IsActive,
		in.TenantID, productID, entityVersion))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetProduct(ctx, in.TenantID, productID); getErr != nil {
			return Product{}, getErr
		}
		return Product{}, fmt.Errorf("%w: product %d was modified concurrently", shared.ErrConflict, productID)
	}
	if err != nil {
		return Product{}, fmt.Errorf("update product: %w", uniqueViolation(err, "sku or barcode"))
	}
	return p, nil
}

func (r *Repository) GetProduct(ctx context.Context, tenantID, productID int64) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `
		SELECT `+productColumns+` FROM products WHERE tenant_id = $1 AND id = $2`,
		tenantID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id = $1
		  AND ($2 = '' OR sku ILIKE '%' || $2 || '%' OR name ILIKE '%' || $2 || '%' OR barcode = $2)
		  AND (NOT $3 OR is_active)
		ORDER BY sku ASC
		LIMIT $4`,
		filter.TenantID, filter.Search, filter.ActiveOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const branchColumns = `id, tenant_id, code, name, address, is_active, created_at, updated_at`

func scanBranch(row pgx.Row) (Branch, error) {
	var b Branch
	err := row.Scan(&b.ID, &b.TenantID, &b.Code, &b.Name, &b.Address, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (r *Repository) CreateBranch(ctx context.Context, in BranchInput) (Branch, error) {
	b, err := scanBranch(r.pool.QueryRow(ctx, `
		INSERT INTO branches (tenant_id, code, name, address, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING `+branchColumns,
		in.TenantID, in.Code, in.Name, in.Address, in.IsActive))
	if err != nil {
		return Branch{}, fmt.Errorf("insert branch: %w", uniqueViolation(err, "branch code"))
	}
	return b, nil
}

func (r *Repository) GetBranch(ctx context.Context, tenantID, branchID int64) (Branch, error) {
	b, err := scanBranch(r.pool.QueryRow(ctx, `
		SELECT `+branchColumns+` FROM branches WHERE tenant_id = $1 AND id = $2`,
		tenantID, branchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Branch{}, fmt.Errorf("%w: branch %d", shared.ErrNotFound, branchID)
	}
	if err != nil {
		return Branch{}, fmt.Errorf("get branch: %w", err)
	}
	return b, nil
}

func (r *Repository) ListBranches(ctx context.Context, tenantID int64) ([]Branch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+branchColumns+` FROM branches WHERE tenant_id = $1 ORDER BY code ASC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	var out []Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// AddMember enrols a user into a branch, reviving a soft-removed row.
func (r *Repository) AddMember(ctx context.Context, tenantID, branchID, userID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO branch_members (tenant_id, branch_id, user_id, added_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (branch_id, user_id) DO UPDATE SET removed_at = NULL, added_at = NOW()`,
		tenantID, branchID, userID)
	if err != nil {
		return fmt.Errorf("add branch member: %w", err)
	}
	return nil
}

// RemoveMember soft-removes a membership.
func (r *Repository) RemoveMember(ctx context.Context, tenantID, branchID, userID int64) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE branch_members SET removed_at = NOW()
		WHERE tenant_id = $1 AND branch_id = $2 AND user_id = $3 AND removed_at IS NULL`,
		tenantID, branchID, userID)
	if err != nil {
		return fmt.Errorf("remove branch member: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %d is not a member of branch %d", shared.ErrNotFound, userID, branchID)
	}
	return nil
}

// ListMembers returns current members of a branch.
func (r *Repository) ListMembers(ctx context.Context, tenantID, branchID int64) ([]BranchMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, branch_id, user_id, added_at, removed_at
		FROM branch_members
		WHERE tenant_id = $1 AND branch_id = $2 AND removed_at IS NULL
		ORDER BY user_id ASC`,
		tenantID, branchID)
	if err != nil {
		return nil, fmt.Errorf("list branch members: %w", err)
	}
	defer rows.Close()

	var out []BranchMember
	for rows.Next() {
		var m BranchMember
		if err := rows.Scan(&m.ID, &m.BranchID, &m.UserID, &m.AddedAt, &m.RemovedAt); err != nil {
			return nil, fmt.Errorf("scan branch member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
