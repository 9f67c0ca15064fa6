package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	nextID   int64
	products map[int64]Product
	branches map[int64]Branch
	members  map[string]BranchMember
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products: map[int64]Product{},
		branches: map[int64]Branch{},
		members:  map[string]BranchMember{},
	}
}

func (m *memoryRepo) skuTaken(tenantID int64, sku, barcode string, exceptID int64) error {
	for _, p := range m.products {
		if p.TenantID != tenantID || p.ID == exceptID {
			continue
		}
		if strings.EqualFold(p.SKU, sku) {
			return fmt.Errorf("%w: sku or barcode already in use", shared.ErrConflict)
		}
		if barcode != "" && p.Barcode == barcode {
			return fmt.Errorf("%w: sku or barcode already in use", shared.ErrConflict)
		}
	}
	return nil
}

func (m *memoryRepo) CreateProduct(_ context.Context, in ProductInput) (Product, error) {
	if err := m.skuTaken(in.TenantID, in.SKU, in.Barcode, 0); err != nil {
		return Product{}, err
	}
	m.nextID++
	now := time.Now().UTC()
	p := Product{
		ID: m.nextID, TenantID: in.TenantID, SKU: in.SKU, Barcode: in.Barcode,
		Name: in.Name, UnitPricePence: in.UnitPricePence, IsActive: in.IsActive,
		EntityVersion: 1, CreatedAt: now, UpdatedAt: now,
	}
	m.products[p.ID] = p
	return p, nil
}

func (m *memoryRepo) UpdateProduct(_ context.Context, productID, entityVersion int64, in ProductInput) (Product, error) {
	p, ok := m.products[productID]
	if !ok || p.TenantID != in.TenantID {
		return Product{}, fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
	}
	if p.EntityVersion != entityVersion {
		return Product{}, fmt.Errorf("%w: product %d was modified concurrently", shared.ErrConflict, productID)
	}
	if err := m.skuTaken(in.TenantID, in.SKU, in.Barcode, productID); err != nil {
		return Product{}, err
	}
	p.SKU, p.Barcode, p.Name = in.SKU, in.Barcode, in.Name
	p.UnitPricePence, p.IsActive = in.UnitPricePence, in.IsActive
	p.EntityVersion++
	p.UpdatedAt = time.Now().UTC()
	m.products[productID] = p
	return p, nil
}

func (m *memoryRepo) GetProduct(_ context.Context, tenantID, productID int64) (Product, error) {
	p, ok := m.products[productID]
	if !ok || p.TenantID != tenantID {
		return Product{}, fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
	}
	return p, nil
}

func (m *memoryRepo) ListProducts(_ context.Context, filter ProductFilter) ([]Product, error) {
	var out []Product
	for _, p := range m.products {
		if p.TenantID != filter.TenantID || (filter.ActiveOnly && !p.IsActive) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryRepo) CreateBranch(_ context.Context, in BranchInput) (Branch, error) {
	for _, b := range m.branches {
		if b.TenantID == in.TenantID && b.Code == in.Code {
			return Branch{}, fmt.Errorf("%w: branch code already in use", shared.ErrConflict)
		}
	}
	m.nextID++
	now := time.Now().UTC()
	b := Branch{ID: m.nextID, TenantID: in.TenantID, Code: in.Code, Name: in.Name,
		Address: in.Address, IsActive: in.IsActive, CreatedAt: now, UpdatedAt: now}
	m.branches[b.ID] = b
	return b, nil
}

func (m *memoryRepo) GetBranch(_ context.Context, tenantID, branchID int64) (Branch, error) {
	b, ok := m.branches[branchID]
	if !ok || b.TenantID != tenantID {
		return Branch{}, fmt.Errorf("%w: branch %d", shared.ErrNotFound, branchID)
	}
	return b, nil
}

func (m *memoryRepo) ListBranches(_ context.Context, tenantID int64) ([]Branch, error) {
	var out []Branch
	for _, b := range m.branches {
		if b.TenantID == tenantID {
			out = append(out, b)
		}
	}
	return out, nil
}

func memberKey(branchID, userID int64) string { return fmt.Sprintf("%d:%d", branchID, userID) }

func (m *memoryRepo) AddMember(_ context.Context, tenantID, branchID, userID int64) error {
	m.nextID++
	m.members[memberKey(branchID, userID)] = BranchMember{
		ID: m.nextID, BranchID: branchID, UserID: userID, AddedAt: time.Now().UTC(),
	}
	return nil
}

func (m *memoryRepo) RemoveMember(_ context.Context, tenantID, branchID, userID int64) error {
	key := memberKey(branchID, userID)
	member, ok := m.members[key]
	if !ok || member.RemovedAt != nil {
		return fmt.Errorf("%w: user %d is not a member of branch %d", shared.ErrNotFound, userID, branchID)
	}
	now := time.Now().UTC()
	member.RemovedAt = &now
	m.members[key] = member
	return nil
}

func (m *memoryRepo) ListMembers(_ context.Context, tenantID, branchID int64) ([]BranchMember, error) {
	var out []BranchMember
	for _, member := range m.members {
		if member.BranchID == branchID && member.RemovedAt == nil {
			out = append(out, member)
		}
	}
	return out, nil
}

type noopAudit struct{}

func (noopAudit) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	return NewService(repo, noopAudit{}, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

func TestProductSKUAndBarcodeUnique(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, ProductInput{TenantID: 1, SKU: "WID-1", Barcode: "5012345678900", Name: "Widget", UnitPricePence: 250, IsActive: true})
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, ProductInput{TenantID: 1, SKU: "WID-1", Name: "Other widget"})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.CreateProduct(ctx, ProductInput{TenantID: 1, SKU: "WID-2", Barcode: "5012345678900", Name: "Clone"})
	require.ErrorIs(t, err, shared.ErrConflict)

	// Another tenant may reuse both.
	_, err = svc.CreateProduct(ctx, ProductInput{TenantID: 2, SKU: "WID-1", Barcode: "5012345678900", Name: "Widget"})
	require.NoError(t, err)
}

func TestProductUpdateVersionGuard(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, ProductInput{TenantID: 1, SKU: "WID-1", Name: "Widget", UnitPricePence: 250, IsActive: true})
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, p.ID, p.EntityVersion, ProductInput{
		TenantID: 1, SKU: "WID-1", Name: "Widget mk2", UnitPricePence: 300, IsActive: true,
	})
	require.NoError(t, err)
	require.Equal(t, p.EntityVersion+1, updated.EntityVersion)

	_, err = svc.UpdateProduct(ctx, p.ID, p.EntityVersion, ProductInput{
		TenantID: 1, SKU: "WID-1", Name: "stale write", IsActive: true,
	})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestProductValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, ProductInput{TenantID: 1, Name: "no sku"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateProduct(ctx, ProductInput{TenantID: 1, SKU: "X", Name: "neg", UnitPricePence: -1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUnitPricePenceIgnoresActiveFlag(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, ProductInput{TenantID: 1, SKU: "OLD-1", Name: "Delisted", UnitPricePence: 875, IsActive: false})
	require.NoError(t, err)

	price, err := svc.UnitPricePence(ctx, 1, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(875), price)
}

func TestBranchMembershipLifecycle(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	b, err := svc.CreateBranch(ctx, BranchInput{TenantID: 1, Code: "LDN", Name: "London", IsActive: true})
	require.NoError(t, err)

	require.NoError(t, svc.AddMember(ctx, 1, b.ID, 42))
	members, err := svc.ListMembers(ctx, 1, b.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	require.NoError(t, svc.RemoveMember(ctx, 1, b.ID, 42))
	members, err = svc.ListMembers(ctx, 1, b.ID)
	require.NoError(t, err)
	require.Empty(t, members)

	err = svc.RemoveMember(ctx, 1, b.ID, 42)
	require.ErrorIs(t, err, shared.ErrNotFound)

	// Re-adding revives the membership.
	require.NoError(t, svc.AddMember(ctx, 1, b.ID, 42))
	members, err = svc.ListMembers(ctx, 1, b.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	// Membership of an unknown branch fails up front.
	err = svc.AddMember(ctx, 1, 999, 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
