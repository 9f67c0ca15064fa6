package catalog

import "time"

// Product is a sellable or stockable item. SKU and barcode are unique per
// tenant; EntityVersion guards concurrent edits.
type Product struct {
	ID             int64     `json:"id"`
	TenantID       int64     `json:"tenantId"`
	SKU            string    `json:"sku"`
	Barcode        string    `json:"barcode,omitempty"`
	Name           string    `json:"name"`
	UnitPricePence int64     `json:"unitPricePence"`
	IsActive       bool      `json:"isActive"`
	EntityVersion  int64     `json:"entityVersion"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Branch is a physical location holding stock.
type Branch struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenantId"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BranchMember links a user to a branch. Removal is soft so past transfers
// keep their actor context.
type BranchMember struct {
	ID        int64      `json:"id"`
	BranchID  int64      `json:"branchId"`
	UserID    int64      `json:"userId"`
	AddedAt   time.Time  `json:"addedAt"`
	RemovedAt *time.Time `json:"removedAt,omitempty"`
}

// ProductInput describes product creation or update.
type ProductInput struct {
	TenantID       int64
	SKU            string
	Barcode        string
	Name           string
	UnitPricePence int64
	IsActive       bool
}

// BranchInput describes branch creation or update.
type BranchInput struct {
	TenantID int64
	Code     string
	Name     string
	Address  string
	IsActive bool
}

// ProductFilter selects products for listing.
type ProductFilter struct {
	TenantID   int64
	Search     string
	ActiveOnly bool
	Limit      int
}
