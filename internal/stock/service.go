package stock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, StoreTx) error) error
	ListLots(ctx context.Context, filter LotFilter) ([]StockLot, error)
	ListLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
	GetProductStock(ctx context.Context, tenantID, branchID, productID int64) (ProductStock, error)
	ListProductStock(ctx context.Context, tenantID, branchID int64) ([]ProductStock, error)
}

// Service coordinates stock movements. Each mutating operation runs inside
// one serializable transaction spanning lot mutation, ledger append and
// aggregate update.
type Service struct {
	repo        RepositoryPort
	engine      Engine
	idempotency *shared.IdempotencyStore
	cache       *LevelCache
	logger      *slog.Logger
}

// NewService builds Service. Idempotency store and cache are optional.
func NewService(repo RepositoryPort, idem *shared.IdempotencyStore, cache *LevelCache, logger *slog.Logger) *Service {
	return &Service{repo: repo, idempotency: idem, cache: cache, logger: logger}
}

// Engine returns the movement engine for callers that manage their own
// transaction, such as the transfer service.
func (s *Service) Engine() Engine {
	return s.engine
}

// ReceiveStock creates a new lot for the received quantity.
func (s *Service) ReceiveStock(ctx context.Context, in ReceiveInput) (StockLot, error) {
	release, err := s.claimKey(ctx, in.TenantID, in.IdempotencyKey)
	if err != nil {
		return StockLot{}, err
	}
	var lot StockLot
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx StoreTx) error {
		var err error
		lot, err = s.engine.Receive(ctx, tx, in)
		return err
	})
	if err != nil {
		release()
		return StockLot{}, err
	}
	s.invalidateLevel(ctx, in.TenantID, in.BranchID, in.ProductID)
	return lot, nil
}

// ConsumeStock takes the requested quantity from open lots oldest-first.
func (s *Service) ConsumeStock(ctx context.Context, in ConsumeInput) ([]LotPortion, error) {
	release, err := s.claimKey(ctx, in.TenantID, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	var affected []LotPortion
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx StoreTx) error {
		var err error
		affected, err = s.engine.Consume(ctx, tx, in)
		return err
	})
	if err != nil {
		release()
		return nil, err
	}
	s.invalidateLevel(ctx, in.TenantID, in.BranchID, in.ProductID)
	return affected, nil
}

// AdjustStock applies a signed correction.
func (s *Service) AdjustStock(ctx context.Context, in AdjustInput) ([]LotPortion, error) {
	release, err := s.claimKey(ctx, in.TenantID, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	var affected []LotPortion
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx StoreTx) error {
		var err error
		affected, err = s.engine.Adjust(ctx, tx, in)
		return err
	})
	if err != nil {
		release()
		return nil, err
	}
	s.invalidateLevel(ctx, in.TenantID, in.BranchID, in.ProductID)
	return affected, nil
}

// RestoreLotQuantities returns previously consumed stock to the exact lots it
// came from. This is the only path by which consumed quantity becomes
// available again.
func (s *Service) RestoreLotQuantities(ctx context.Context, in RestoreInput) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx StoreTx) error {
		return s.engine.Restore(ctx, tx, in)
	})
	if err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.InvalidateBranch(ctx, in.TenantID, in.BranchID); err != nil && s.logger != nil {
			s.logger.Warn("invalidate stock level cache", slog.Any("error", err))
		}
	}
	return nil
}

// ListLots returns lots ordered by the FIFO key.
func (s *Service) ListLots(ctx context.Context, filter LotFilter) ([]StockLot, error) {
	if filter.BranchID == 0 || filter.ProductID == 0 {
		return nil, fmt.Errorf("%w: branch and product required", shared.ErrValidation)
	}
	return s.repo.ListLots(ctx, filter)
}

// ListLedger returns movement events for the key.
func (s *Service) ListLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	if filter.BranchID == 0 || filter.ProductID == 0 {
		return nil, fmt.Errorf("%w: branch and product required", shared.ErrValidation)
	}
	return s.repo.ListLedger(ctx, filter)
}

// GetProductStock returns the cached aggregate, reading through the redis
// level cache when configured. Reads may lag in-flight writes slightly but
// never observe torn rows.
func (s *Service) GetProductStock(ctx context.Context, tenantID, branchID, productID int64) (ProductStock, error) {
	if branchID == 0 || productID == 0 {
		return ProductStock{}, fmt.Errorf("%w: branch and product required", shared.ErrValidation)
	}
	if s.cache != nil {
		if ps, ok, err := s.cache.Get(ctx, tenantID, branchID, productID); err == nil && ok {
			return ps, nil
		} else if err != nil && s.logger != nil {
			s.logger.Warn("read stock level cache", slog.Any("error", err))
		}
	}
	ps, err := s.repo.GetProductStock(ctx, tenantID, branchID, productID)
	if err != nil {
		return ProductStock{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, ps); err != nil && s.logger != nil {
			s.logger.Warn("write stock level cache", slog.Any("error", err))
		}
	}
	return ps, nil
}

func (s *Service) claimKey(ctx context.Context, tenantID int64, key string) (func(), error) {
	if s.idempotency == nil || key == "" {
		return func() {}, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, tenantID, key, "stock"); err != nil {
		return nil, err
	}
	return func() {
		_ = s.idempotency.Delete(ctx, tenantID, key)
	}, nil
}

func (s *Service) invalidateLevel(ctx context.Context, tenantID, branchID, productID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tenantID, branchID, productID); err != nil && s.logger != nil {
		s.logger.Warn("invalidate stock level cache", slog.Any("error", err))
	}
}
