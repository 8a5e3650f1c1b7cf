package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("variant not found")
)

// CatalogRepo is the read-only view the validator uses. Catalog writes
// belong to the seller-facing service; checkout only ever reads prices
// and quantities here.
type CatalogRepo struct{ DB *pgxpool.Pool }

func (r *CatalogRepo) Product(ctx context.Context, id string) (Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, seller_id, name, price, created_at, updated_at
		FROM products WHERE id=$1`, id,
	).Scan(&p.ID, &p.SellerID, &p.Name, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (r *CatalogRepo) Stock(ctx context.Context, productID, color string) (int, error) {
	var qty int
	err := r.DB.QueryRow(ctx, `
		SELECT quantity FROM product_stock WHERE product_id=$1 AND color=$2`,
		productID, color,
	).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrVariantNotFound
	}
	return qty, err
}
