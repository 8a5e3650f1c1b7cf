package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("order not found")

type Repo struct{ DB *pgxpool.Pool }

// Create persists the order and its line items in one transaction.
// The order enters PENDING; items carry prices snapshotted by the validator.
func (r *Repo) Create(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, external_id, buyer_id, seller_id, status, total_price,
		                   delivery_address, phone_number, reservation_token)
		VALUES ($1,NULLIF($2,''),$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.ExternalID, o.BuyerID, o.SellerID, string(o.Status), o.TotalPrice,
		o.DeliveryAddress, o.PhoneNumber, o.ReservationToken,
	)
	if err != nil {
		return err
	}
	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, color, qty, unit_price)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, it.ProductID, it.Color, it.Qty, it.UnitPrice,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// AttachPaymentRef records the gateway correlation id and moves the order
// into AWAITING_PAYMENT. The predicate makes the write first-wins: once a
// ref exists the order can never be re-pointed at a new payment attempt.
func (r *Repo) AttachPaymentRef(ctx context.Context, orderID, ref string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_ref=$2, status=$3, updated_at=now()
		WHERE id=$1 AND payment_ref IS NULL AND status=$4`,
		orderID, ref, string(StatusAwaitingPayment), string(StatusPending),
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// DeletePending removes an order that never reached payment initiation.
// Orders with a correlation id attached are never deleted.
func (r *Repo) DeletePending(ctx context.Context, orderID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `DELETE FROM orders WHERE id=$1 AND status=$2`,
		orderID, string(StatusPending))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, orderID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) FindByID(ctx context.Context, orderID string) (*Order, error) {
	return r.findOne(ctx, `WHERE id=$1`, orderID)
}

func (r *Repo) FindByExternalID(ctx context.Context, externalID string) (*Order, error) {
	return r.findOne(ctx, `WHERE external_id=$1`, externalID)
}

func (r *Repo) FindByPaymentRef(ctx context.Context, ref string) (*Order, error) {
	return r.findOne(ctx, `WHERE payment_ref=$1`, ref)
}

func (r *Repo) findOne(ctx context.Context, where string, arg any) (*Order, error) {
	var (
		o      Order
		status string
		ref    *string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, COALESCE(external_id,''), buyer_id, seller_id, status, total_price,
		       delivery_address, phone_number, reservation_token, payment_ref,
		       COALESCE(failure_reason,''), created_at, updated_at
		FROM orders `+where, arg,
	).Scan(&o.ID, &o.ExternalID, &o.BuyerID, &o.SellerID, &status, &o.TotalPrice,
		&o.DeliveryAddress, &o.PhoneNumber, &o.ReservationToken, &ref,
		&o.FailureReason, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	if ref != nil {
		o.PaymentRef = *ref
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, color, qty, unit_price FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ProductID, &it.Color, &it.Qty, &it.UnitPrice); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

// MarkCompleted is the success half of reconciliation. The CAS on
// AWAITING_PAYMENT means a replayed callback, or a poll racing a callback,
// applies at most once.
func (r *Repo) MarkCompleted(ctx context.Context, orderID, txnID string) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status=$2, updated_at=now()
		WHERE id=$1 AND status=$3`,
		orderID, string(StatusCompleted), string(StatusAwaitingPayment),
	)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() != 1 {
		return false, tx.Commit(ctx)
	}
	_, err = tx.Exec(ctx, `
		UPDATE payment_attempts SET status='SETTLED', transaction_id=$2
		WHERE order_id=$1`, orderID, txnID)
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (r *Repo) MarkFailed(ctx context.Context, orderID, reason string) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status=$2, failure_reason=$3, updated_at=now()
		WHERE id=$1 AND status=$4`,
		orderID, string(StatusFailed), reason, string(StatusAwaitingPayment),
	)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() != 1 {
		return false, tx.Commit(ctx)
	}
	_, err = tx.Exec(ctx, `
		UPDATE payment_attempts SET status='FAILED' WHERE order_id=$1`, orderID)
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (r *Repo) CreatePaymentAttempt(ctx context.Context, a PaymentAttempt) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payment_attempts(order_id, correlation_id, amount, provider, status)
		VALUES ($1,$2,$3,$4,$5)`,
		a.OrderID, a.CorrelationID, a.Amount, a.Provider, a.Status,
	)
	return err
}
