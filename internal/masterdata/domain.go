package masterdata

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an entity does not exist in the tenant.
	ErrNotFound = errors.New("masterdata: not found")
	// ErrDuplicateSKU is returned when a product SKU already exists in the tenant.
	ErrDuplicateSKU = errors.New("masterdata: duplicate sku")
	// ErrDuplicateCode is returned when a warehouse code already exists in the tenant.
	ErrDuplicateCode = errors.New("masterdata: duplicate code")
	// ErrValidation is returned for invalid input.
	ErrValidation = errors.New("masterdata: validation failed")
)

// Product is a sellable or stockable item owned by one organization.
type Product struct {
	ID                int64           `json:"id"`
	OrganizationID    int64           `json:"organization_id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	LowStockThreshold int64           `json:"low_stock_threshold"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         *time.Time      `json:"deleted_at,omitempty"`
}

// Warehouse is a physical or logical stock location owned by one organization.
type Warehouse struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Address        string    `json:"address,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListFilters narrows product listings.
type ListFilters struct {
	Search   string
	IsActive *bool
	Page     int
	Limit    int
}
