package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepo owns the product_stock counters and the reservation rows
// that make a checkout's decrement reversible.
type LedgerRepo struct{ DB *pgxpool.Pool }

// Reserve locks each (product, color) row, decrements stock, and records
// reservation rows under a fresh token. All-or-nothing: any shortage rolls
// the whole transaction back and returns the offending lines.
func (r *LedgerRepo) Reserve(ctx context.Context, orderID string, items []LineItem) (token string, ok bool, shortages []Shortage, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", false, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	token = uuid.NewString()

	for _, it := range items {
		var qty int
		err := tx.QueryRow(ctx, `
			SELECT quantity FROM product_stock
			WHERE product_id=$1 AND color=$2 FOR UPDATE`,
			it.ProductID, it.Color).Scan(&qty)
		if errors.Is(err, pgx.ErrNoRows) {
			shortages = append(shortages, Shortage{
				ProductID: it.ProductID, Color: it.Color, Required: it.Qty, Available: 0,
			})
			continue
		}
		if err != nil {
			return "", false, nil, err
		}
		if qty < it.Qty {
			shortages = append(shortages, Shortage{
				ProductID: it.ProductID, Color: it.Color, Required: it.Qty, Available: qty,
			})
			continue
		}

		if _, err := tx.Exec(ctx, `
			UPDATE product_stock SET quantity = quantity - $3
			WHERE product_id=$1 AND color=$2`,
			it.ProductID, it.Color, it.Qty); err != nil {
			return "", false, nil, err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations(token, order_id, product_id, color, qty, status)
			VALUES ($1,$2,$3,$4,$5,'RESERVED')`,
			token, orderID, it.ProductID, it.Color, it.Qty); err != nil {
			return "", false, nil, err
		}
	}

	if len(shortages) > 0 {
		return "", false, shortages, nil // rollback via defer
	}
	if err := tx.Commit(ctx); err != nil {
		return "", false, nil, err
	}
	return token, true, nil, nil
}

// Release restores the quantities a token still holds and marks its rows
// RELEASED. Unknown or already-released tokens are a no-op, so rollback
// paths may retry freely.
func (r *LedgerRepo) Release(ctx context.Context, token string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT product_id, color, qty FROM reservations
		WHERE token=$1 AND status='RESERVED'`, token)
	if err != nil {
		return err
	}
	type rec struct {
		pid, color string
		qty        int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.pid, &x.color, &x.qty); err != nil {
			rows.Close()
			return err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, x := range recs {
		if _, err := tx.Exec(ctx, `
			UPDATE product_stock SET quantity = quantity + $3
			WHERE product_id=$1 AND color=$2`,
			x.pid, x.color, x.qty); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE reservations SET status='RELEASED'
		WHERE token=$1 AND status='RESERVED'`, token); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Commit marks a reservation as settled, leaving the decrement in place.
// Idempotent for the same reason Release is.
func (r *LedgerRepo) Commit(ctx context.Context, token string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE reservations SET status='COMMITTED'
		WHERE token=$1 AND status='RESERVED'`, token)
	return err
}
