package masterdata

import (
	"context"
	"fmt"
	"strings"
)

// Service applies tenant scoping and input rules over the repository.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListProducts(ctx context.Context, orgID int64, filters ListFilters) ([]Product, int, error) {
	if orgID <= 0 {
		return nil, 0, fmt.Errorf("%w: organization required", ErrValidation)
	}
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	return s.repo.ListProducts(ctx, orgID, filters)
}

func (s *Service) GetProduct(ctx context.Context, orgID, id int64) (Product, error) {
	if orgID <= 0 || id <= 0 {
		return Product{}, fmt.Errorf("%w: organization and product id required", ErrValidation)
	}
	return s.repo.GetProduct(ctx, orgID, id)
}

func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	p.SKU = strings.ToUpper(strings.TrimSpace(p.SKU))
	return s.repo.CreateProduct(ctx, p)
}

func (s *Service) UpdateProduct(ctx context.Context, orgID, id int64, p Product) error {
	if id <= 0 {
		return fmt.Errorf("%w: product id required", ErrValidation)
	}
	p.OrganizationID = orgID
	if err := validateProduct(p); err != nil {
		return err
	}
	p.SKU = strings.ToUpper(strings.TrimSpace(p.SKU))
	return s.repo.UpdateProduct(ctx, orgID, id, p)
}

func (s *Service) DeleteProduct(ctx context.Context, orgID, id int64) error {
	if orgID <= 0 || id <= 0 {
		return fmt.Errorf("%w: organization and product id required", ErrValidation)
	}
	return s.repo.DeleteProduct(ctx, orgID, id)
}

func (s *Service) ListWarehouses(ctx context.Context, orgID int64) ([]Warehouse, error) {
	if orgID <= 0 {
		return nil, fmt.Errorf("%w: organization required", ErrValidation)
	}
	return s.repo.ListWarehouses(ctx, orgID)
}

func (s *Service) GetWarehouse(ctx context.Context, orgID, id int64) (Warehouse, error) {
	if orgID <= 0 || id <= 0 {
		return Warehouse{}, fmt.Errorf("%w: organization and warehouse id required", ErrValidation)
	}
	return s.repo.GetWarehouse(ctx, orgID, id)
}

func (s *Service) CreateWarehouse(ctx context.Context, wh Warehouse) (Warehouse, error) {
	if err := validateWarehouse(wh); err != nil {
		return Warehouse{}, err
	}
	wh.Code = strings.ToUpper(strings.TrimSpace(wh.Code))
	return s.repo.CreateWarehouse(ctx, wh)
}

func (s *Service) UpdateWarehouse(ctx context.Context, orgID, id int64, wh Warehouse) error {
	if id <= 0 {
		return fmt.Errorf("%w: warehouse id required", ErrValidation)
	}
	wh.OrganizationID = orgID
	if err := validateWarehouse(wh); err != nil {
		return err
	}
	wh.Code = strings.ToUpper(strings.TrimSpace(wh.Code))
	return s.repo.UpdateWarehouse(ctx, orgID, id, wh)
}

func validateProduct(p Product) error {
	if p.OrganizationID <= 0 {
		return fmt.Errorf("%w: organization required", ErrValidation)
	}
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("%w: sku required", ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name required", ErrValidation)
	}
	if p.UnitCost.IsNegative() || p.SellingPrice.IsNegative() {
		return fmt.Errorf("%w: cost and price must not be negative", ErrValidation)
	}
	if p.LowStockThreshold < 0 {
		return fmt.Errorf("%w: low stock threshold must not be negative", ErrValidation)
	}
	return nil
}

func validateWarehouse(wh Warehouse) error {
	if wh.OrganizationID <= 0 {
		return fmt.Errorf("%w: organization required", ErrValidation)
	}
	if strings.TrimSpace(wh.Code) == "" {
		return fmt.Errorf("%w: code required", ErrValidation)
	}
	if strings.TrimSpace(wh.Name) == "" {
		return fmt.Errorf("%w: name required", ErrValidation)
	}
	return nil
}
