package masterdata

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository persists products and warehouses. Every query is scoped to an
// organization; soft-deleted products never surface.
type Repository interface {
	ListProducts(ctx context.Context, orgID int64, filters ListFilters) ([]Product, int, error)
	GetProduct(ctx context.Context, orgID, id int64) (Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, orgID, id int64, p Product) error
	DeleteProduct(ctx context.Context, orgID, id int64) error

	ListWarehouses(ctx context.Context, orgID int64) ([]Warehouse, error)
	GetWarehouse(ctx context.Context, orgID, id int64) (Warehouse, error)
	CreateWarehouse(ctx context.Context, wh Warehouse) (Warehouse, error)
	UpdateWarehouse(ctx context.Context, orgID, id int64, wh Warehouse) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, organization_id, sku, name, description, unit_cost, selling_price, low_stock_threshold, is_active, created_at, updated_at`

func (r *repository) ListProducts(ctx context.Context, orgID int64, filters ListFilters) ([]Product, int, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE organization_id = $1 AND deleted_at IS NULL`
	countQuery := `SELECT COUNT(*) FROM products WHERE organization_id = $1 AND deleted_at IS NULL`
	args := []any{orgID}
	countArgs := []any{orgID}
	argCount := 1

	if filters.Search != "" {
		argCount++
		clause := ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR sku ILIKE $` + strconv.Itoa(argCount) + `)`
		query += clause
		countQuery += clause
		args = append(args, "%"+filters.Search+"%")
		countArgs = append(countArgs, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		clause := ` AND is_active = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, *filters.IsActive)
		countArgs = append(countArgs, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name ASC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) GetProduct(ctx context.Context, orgID, id int64) (Product, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL`,
		orgID, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx,
		`INSERT INTO products (organization_id, sku, name, description, unit_cost, selling_price, low_stock_threshold, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 RETURNING id`,
		p.OrganizationID, p.SKU, p.Name, p.Description, p.UnitCost, p.SellingPrice, p.LowStockThreshold, p.IsActive, now,
	).Scan(&p.ID)
	if isUniqueViolation(err) {
		return Product{}, ErrDuplicateSKU
	}
	if err != nil {
		return Product{}, err
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return p, nil
}

func (r *repository) UpdateProduct(ctx context.Context, orgID, id int64, p Product) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE products
		 SET sku = $1, name = $2, description = $3, unit_cost = $4, selling_price = $5, low_stock_threshold = $6, is_active = $7, updated_at = $8
		 WHERE organization_id = $9 AND id = $10 AND deleted_at IS NULL`,
		p.SKU, p.Name, p.Description, p.UnitCost, p.SellingPrice, p.LowStockThreshold, p.IsActive, time.Now().UTC(), orgID, id)
	if isUniqueViolation(err) {
		return ErrDuplicateSKU
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProduct soft-deletes so historical movements keep a valid reference.
func (r *repository) DeleteProduct(ctx context.Context, orgID, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE products SET deleted_at = $1, is_active = FALSE
		 WHERE organization_id = $2 AND id = $3 AND deleted_at IS NULL`,
		time.Now().UTC(), orgID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const warehouseColumns = `id, organization_id, code, name, address, is_active, created_at, updated_at`

func (r *repository) ListWarehouses(ctx context.Context, orgID int64) ([]Warehouse, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+warehouseColumns+` FROM warehouses WHERE organization_id = $1 ORDER BY code ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		var wh Warehouse
		if err := rows.Scan(&wh.ID, &wh.OrganizationID, &wh.Code, &wh.Name, &wh.Address, &wh.IsActive, &wh.CreatedAt, &wh.UpdatedAt); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, wh)
	}
	return warehouses, rows.Err()
}

func (r *repository) GetWarehouse(ctx context.Context, orgID, id int64) (Warehouse, error) {
	var wh Warehouse
	err := r.db.QueryRow(ctx,
		`SELECT `+warehouseColumns+` FROM warehouses WHERE organization_id = $1 AND id = $2`, orgID, id,
	).Scan(&wh.ID, &wh.OrganizationID, &wh.Code, &wh.Name, &wh.Address, &wh.IsActive, &wh.CreatedAt, &wh.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, ErrNotFound
	}
	return wh, err
}

func (r *repository) CreateWarehouse(ctx context.Context, wh Warehouse) (Warehouse, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx,
		`INSERT INTO warehouses (organization_id, code, name, address, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 RETURNING id`,
		wh.OrganizationID, wh.Code, wh.Name, wh.Address, wh.IsActive, now,
	).Scan(&wh.ID)
	if isUniqueViolation(err) {
		return Warehouse{}, ErrDuplicateCode
	}
	if err != nil {
		return Warehouse{}, err
	}
	wh.CreatedAt = now
	wh.UpdatedAt = now
	return wh, nil
}

func (r *repository) UpdateWarehouse(ctx context.Context, orgID, id int64, wh Warehouse) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE warehouses SET code = $1, name = $2, address = $3, is_active = $4, updated_at = $5
		 WHERE organization_id = $6 AND id = $7`,
		wh.Code, wh.Name, wh.Address, wh.IsActive, time.Now().UTC(), orgID, id)
	if isUniqueViolation(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.OrganizationID, &p.SKU, &p.Name, &p.Description, &p.UnitCost, &p.SellingPrice, &p.LowStockThreshold, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
