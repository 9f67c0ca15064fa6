package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort is the persistence surface the catalog service needs.
type RepositoryPort interface {
	CreateProduct(ctx context.Context, in ProductInput) (Product, error)
	UpdateProduct(ctx context.Context, productID, entityVersion int64, in ProductInput) (Product, error)
	GetProduct(ctx context.Context, tenantID, productID int64) (Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)

	CreateBranch(ctx context.Context, in BranchInput) (Branch, error)
	GetBranch(ctx context.Context, tenantID, branchID int64) (Branch, error)
	ListBranches(ctx context.Context, tenantID int64) ([]Branch, error)

	AddMember(ctx context.Context, tenantID, branchID, userID int64) error
	RemoveMember(ctx context.Context, tenantID, branchID, userID int64) error
	ListMembers(ctx context.Context, tenantID, branchID int64) ([]BranchMember, error)
}

// Service owns products, branches and branch memberships.
type Service struct {
	repo   RepositoryPort
	audit  shared.DBTX
	logger *slog.Logger
}

func NewService(repo RepositoryPort, audit shared.DBTX, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

func validateProduct(in ProductInput) error {
	if in.SKU == "" {
		return fmt.Errorf("%w: sku is required", shared.ErrValidation)
	}
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if in.UnitPricePence < 0 {
		return fmt.Errorf("%w: unit price must not be negative", shared.ErrValidation)
	}
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	if err := validateProduct(in); err != nil {
		return Product{}, err
	}
	p, err := s.repo.CreateProduct(ctx, in)
	if err != nil {
		return Product{}, err
	}
	s.writeAudit(ctx, in.TenantID, "product", p.ID, "PRODUCT_CREATE", nil, p)
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID, entityVersion int64, in ProductInput) (Product, error) {
	if err := validateProduct(in); err != nil {
		return Product{}, err
	}
	before, err := s.repo.GetProduct(ctx, in.TenantID, productID)
	if err != nil {
		return Product{}, err
	}
	p, err := s.repo.UpdateProduct(ctx, productID, entityVersion, in)
	if err != nil {
		return Product{}, err
	}
	s.writeAudit(ctx, in.TenantID, "product", p.ID, "PRODUCT_UPDATE", before, p)
	return p, nil
}

func (s *Service) GetProduct(ctx context.Context, tenantID, productID int64) (Product, error) {
	return s.repo.GetProduct(ctx, tenantID, productID)
}

func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

// UnitPricePence resolves one product's price. Inactive products still
// price: stock of a delisted item keeps its value.
func (s *Service) UnitPricePence(ctx context.Context, tenantID, productID int64) (int64, error) {
	p, err := s.repo.GetProduct(ctx, tenantID, productID)
	if err != nil {
		return 0, err
	}
	return p.UnitPricePence, nil
}

func (s *Service) CreateBranch(ctx context.Context, in BranchInput) (Branch, error) {
	if in.Code == "" || in.Name == "" {
		return Branch{}, fmt.Errorf("%w: branch code and name are required", shared.ErrValidation)
	}
	b, err := s.repo.CreateBranch(ctx, in)
	if err != nil {
		return Branch{}, err
	}
	s.writeAudit(ctx, in.TenantID, "branch", b.ID, "BRANCH_CREATE", nil, b)
	return b, nil
}

func (s *Service) GetBranch(ctx context.Context, tenantID, branchID int64) (Branch, error) {
	return s.repo.GetBranch(ctx, tenantID, branchID)
}

func (s *Service) ListBranches(ctx context.Context, tenantID int64) ([]Branch, error) {
	return s.repo.ListBranches(ctx, tenantID)
}

func (s *Service) AddMember(ctx context.Context, tenantID, branchID, userID int64) error {
	if _, err := s.repo.GetBranch(ctx, tenantID, branchID); err != nil {
		return err
	}
	if err := s.repo.AddMember(ctx, tenantID, branchID, userID); err != nil {
		return err
	}
	s.writeAudit(ctx, tenantID, "branch", branchID, "MEMBER_ADD", nil, map[string]int64{"userId": userID})
	return nil
}

func (s *Service) RemoveMember(ctx context.Context, tenantID, branchID, userID int64) error {
	if err := s.repo.RemoveMember(ctx, tenantID, branchID, userID); err != nil {
		return err
	}
	s.writeAudit(ctx, tenantID, "branch", branchID, "MEMBER_REMOVE", nil, map[string]int64{"userId": userID})
	return nil
}

func (s *Service) ListMembers(ctx context.Context, tenantID, branchID int64) ([]BranchMember, error) {
	return s.repo.ListMembers(ctx, tenantID, branchID)
}

func (s *Service) writeAudit(ctx context.Context, tenantID int64, entityType string, entityID int64, action string, before, after any) {
	ev := shared.AuditEvent{
		TenantID:   tenantID,
		EntityType: entityType,
		EntityID:   fmt.Sprintf("%d", entityID),
		Action:     action,
		Before:     before,
		After:      after,
		At:         time.Now().UTC(),
	}
	if actor, ok := shared.ActorFromContext(ctx); ok {
		ev.ActorUserID = actor.UserID
	}
	if err := shared.WriteAuditEvent(ctx, s.audit, ev); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit write failed", "action", action, "error", err)
	}
}
