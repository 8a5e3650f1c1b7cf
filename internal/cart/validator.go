package cart

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/CodeLordGh/kash-catalogue-checkout/internal/orders"
)

// priceTolerance is the absolute slack allowed between the client-declared
// total and the total recomputed from catalog prices.
const priceTolerance = 0.01

type Line struct {
	ProductID string `json:"product_id"`
	Color     string `json:"color"`
	Qty       int    `json:"qty"`
}

// Catalog is the read-only product view validation runs against.
type Catalog interface {
	Product(ctx context.Context, id string) (orders.Product, error)
	Stock(ctx context.Context, productID, color string) (int, error)
}

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrPriceMismatch   = errors.New("total price mismatch")
	ErrMultiSellerCart = errors.New("cart spans multiple sellers")
)

// StockError reports one line that cannot be satisfied.
type StockError struct {
	ProductID string
	Color     string
	Required  int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s, color %s: need %d, have %d",
		e.ProductID, e.Color, e.Required, e.Available)
}

type Result struct {
	SellerID string
	Items    []orders.LineItem
	Total    float64
}

type Validator struct{ Catalog Catalog }

// Validate prices and stock-checks the submitted lines without touching
// inventory. Prices are snapshotted from the catalog here and never
// recomputed later; the declared total must match within priceTolerance.
func (v *Validator) Validate(ctx context.Context, lines []Line, declaredTotal float64) (*Result, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	res := &Result{Items: make([]orders.LineItem, 0, len(lines))}
	for _, l := range lines {
		if l.Qty <= 0 {
			return nil, fmt.Errorf("product %s: %w", l.ProductID, ErrInvalidQuantity)
		}

		p, err := v.Catalog.Product(ctx, l.ProductID)
		if errors.Is(err, orders.ErrProductNotFound) {
			return nil, fmt.Errorf("product %s: %w", l.ProductID, orders.ErrProductNotFound)
		}
		if err != nil {
			return nil, err
		}

		if res.SellerID == "" {
			res.SellerID = p.SellerID
		} else if res.SellerID != p.SellerID {
			return nil, ErrMultiSellerCart
		}

		avail, err := v.Catalog.Stock(ctx, l.ProductID, l.Color)
		if errors.Is(err, orders.ErrVariantNotFound) {
			return nil, &StockError{ProductID: l.ProductID, Color: l.Color, Required: l.Qty}
		}
		if err != nil {
			return nil, err
		}
		if avail < l.Qty {
			return nil, &StockError{ProductID: l.ProductID, Color: l.Color, Required: l.Qty, Available: avail}
		}

		res.Items = append(res.Items, orders.LineItem{
			ProductID: l.ProductID,
			Color:     l.Color,
			Qty:       l.Qty,
			UnitPrice: p.Price,
		})
		res.Total += p.Price * float64(l.Qty)
	}

	if math.Abs(res.Total-declaredTotal) > priceTolerance {
		return nil, fmt.Errorf("%w: declared %.2f, calculated %.2f",
			ErrPriceMismatch, declaredTotal, res.Total)
	}
	return res, nil
}
