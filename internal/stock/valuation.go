package stock

import (
	"context"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ValuationRow summarises on-hand value of one product at a branch.
type ValuationRow struct {
	ProductID      int64  `json:"productId"`
	QtyOnHand      int64  `json:"qtyOnHand"`
	TotalCostPence int64  `json:"totalCostPence"`
	TotalCost      string `json:"totalCost"`
}

var moneyPrinter = message.NewPrinter(language.BritishEnglish)

// FormatPence renders integer pence as a grouped pound amount, e.g. 123456789
// becomes £1,234,567.89.
func FormatPence(pence int64) string {
	sign := ""
	if pence < 0 {
		sign = "-"
		pence = -pence
	}
	return moneyPrinter.Sprintf("%s£%d.%02d", sign, pence/100, pence%100)
}

// Valuation sums qty_remaining x unit_cost_pence over open lots per product.
// Valuing from lots rather than the aggregate keeps the report exact under
// mixed-cost FIFO pools.
func (s *Service) Valuation(ctx context.Context, tenantID, branchID int64) ([]ValuationRow, error) {
	if branchID == 0 {
		return nil, fmt.Errorf("%w: branch required", shared.ErrValidation)
	}
	levels, err := s.repo.ListProductStock(ctx, tenantID, branchID)
	if err != nil {
		return nil, err
	}
	rows := make([]ValuationRow, 0, len(levels))
	for _, level := range levels {
		lots, err := s.repo.ListLots(ctx, LotFilter{TenantID: tenantID, BranchID: branchID, ProductID: level.ProductID, OpenOnly: true, Limit: 1000})
		if err != nil {
			return nil, err
		}
		var total int64
		for _, lot := range lots {
			total += lot.QtyRemaining * lot.UnitCostPence
		}
		rows = append(rows, ValuationRow{
			ProductID:      level.ProductID,
			QtyOnHand:      level.QtyOnHand,
			TotalCostPence: total,
			TotalCost:      FormatPence(total),
		})
	}
	return rows, nil
}
