package transfer

import (
	"fmt"
	"sort"

	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// aggregateLotRestores collapses every shipment batch of every item into
// per-lot restore totals for the source branch. Items or batches without lot
// tracking contribute nothing; a completed transfer shipped entirely without
// lot data cannot be reversed exactly and is rejected.
func aggregateLotRestores(items []TransferItem) ([]stock.LotRestore, error) {
	perLot := make(map[int64]int64)
	for _, item := range items {
		if err := ValidateShipmentBatches(item.ShipmentBatches); err != nil {
			return nil, err
		}
		for _, batch := range item.ShipmentBatches {
			for _, portion := range batch.LotsConsumed {
				perLot[portion.LotID] += portion.Qty
			}
		}
	}
	if len(perLot) == 0 {
		return nil, fmt.Errorf("%w: transfer carries no lot consumption records to restore", shared.ErrValidation)
	}
	ids := make([]int64, 0, len(perLot))
	for id := range perLot {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	restores := make([]stock.LotRestore, 0, len(ids))
	for _, id := range ids {
		restores = append(restores, stock.LotRestore{LotID: id, Qty: perLot[id]})
	}
	return restores, nil
}

// weightedUnitCostPence averages the lot costs of every shipment batch of an
// item, rounding half up. Items shipped without lot data value at zero.
func weightedUnitCostPence(item TransferItem) int64 {
	var totalQty, totalCost int64
	for _, batch := range item.ShipmentBatches {
		for _, portion := range batch.LotsConsumed {
			totalQty += portion.Qty
			totalCost += portion.Qty * portion.UnitCostPence
		}
	}
	if totalQty == 0 {
		return 0
	}
	return (totalCost + totalQty/2) / totalQty
}
