package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/inventory"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/store"
)

var _ store.Store = (*Store)(nil)

const maxTxAttempts = 3

type Store struct {
	DB     *pgxpool.Pool
	Logger *zap.Logger
}

func NewStore(db *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{DB: db, Logger: logger}
}

// InTx runs fn in a read-committed transaction. Serialization failures and
// deadlocks are retried; fn must therefore be safe to run more than once.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		if err = s.runTx(ctx, fn); err == nil || !retryable(err) {
			return err
		}
		s.Logger.Warn("transaction conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*50) * time.Millisecond):
		}
	}
	return errors.Wrapf(err, "transaction failed after %d attempts", maxTxAttempts)
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func (s *Store) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, orders.ErrOrderNotFound
	}
	return scanOrder(s.DB.QueryRow(ctx, selectOrder+` WHERE id=$1`, id))
}

func (s *Store) History(ctx context.Context, orderID string) ([]orders.AuditEntry, error) {
	if err := s.mustExist(ctx, orderID); err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, from_status, to_status, note, actor_id, actor_name, at
		FROM order_audit WHERE order_id=$1 ORDER BY seq`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.AuditEntry
	for rows.Next() {
		var (
			e    orders.AuditEntry
			from *string
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &from, &e.To, &e.Note, &e.ActorID, &e.ActorName, &e.At); err != nil {
			return nil, err
		}
		if from != nil {
			st := orders.Status(*from)
			e.From = &st
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Payments(ctx context.Context, orderID string) ([]orders.PaymentEntry, error) {
	if err := s.mustExist(ctx, orderID); err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, kind, from_status, to_status, amount, amount_paid, amount_refunded, note, actor_id, actor_name, at
		FROM order_payments WHERE order_id=$1 ORDER BY seq`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.PaymentEntry
	for rows.Next() {
		var e orders.PaymentEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Kind, &e.From, &e.To, &e.Amount, &e.AmountPaid, &e.AmountRefunded,
			&e.Note, &e.ActorID, &e.ActorName, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Refunds(ctx context.Context, orderID string) ([]orders.RefundRecord, error) {
	if err := s.mustExist(ctx, orderID); err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, amount, reason, restocked, actor_id, actor_name, at
		FROM order_refunds WHERE order_id=$1 ORDER BY at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.RefundRecord
	for rows.Next() {
		var r orders.RefundRecord
		if err := rows.Scan(&r.ID, &r.OrderID, &r.Amount, &r.Reason, &r.Restocked, &r.ActorID, &r.ActorName, &r.At); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Variants(ctx context.Context, refs []string) (map[string]orders.Variant, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT ref, product_id, name, price, stock, low_stock_threshold, pre_order
		FROM variants WHERE ref = ANY($1)`, refs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]orders.Variant, len(refs))
	for rows.Next() {
		var v orders.Variant
		if err := rows.Scan(&v.Ref, &v.ProductID, &v.Name, &v.Price, &v.Stock, &v.LowStockThreshold, &v.PreOrder); err != nil {
			return nil, err
		}
		out[v.Ref] = v
	}
	return out, rows.Err()
}

// UpsertVariants seeds catalog rows. Existing stock is overwritten.
func (s *Store) UpsertVariants(ctx context.Context, vs []orders.Variant) error {
	b := &pgx.Batch{}
	for _, v := range vs {
		b.Queue(`
			INSERT INTO variants (ref, product_id, name, price, stock, low_stock_threshold, pre_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (ref) DO UPDATE SET
				product_id = EXCLUDED.product_id,
				name = EXCLUDED.name,
				price = EXCLUDED.price,
				stock = EXCLUDED.stock,
				low_stock_threshold = EXCLUDED.low_stock_threshold,
				pre_order = EXCLUDED.pre_order,
				updated_at = now()`,
			v.Ref, v.ProductID, v.Name, v.Price, v.Stock, v.LowStockThreshold, v.PreOrder)
	}
	br := s.DB.SendBatch(ctx, b)
	defer br.Close()
	for _, v := range vs {
		if _, err := br.Exec(); err != nil {
			return errors.Wrapf(err, "upsert variant %s", v.Ref)
		}
	}
	return nil
}

func (s *Store) mustExist(ctx context.Context, orderID string) error {
	if _, err := uuid.Parse(orderID); err != nil {
		return orders.ErrOrderNotFound
	}
	var ok bool
	if err := s.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, orderID).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return orders.ErrOrderNotFound
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

// DecrementStock never reads then writes: the WHERE clause is the stock check,
// so two concurrent checkouts cannot both pass it on the same units.
func (t *pgTx) DecrementStock(ctx context.Context, lines []orders.StockLine) ([]inventory.Level, error) {
	levels := make([]inventory.Level, 0, len(lines))
	for _, ln := range lines {
		lv := inventory.Level{VariantRef: ln.VariantRef}
		err := t.tx.QueryRow(ctx, `
			UPDATE variants SET stock = stock - $2, updated_at = now()
			WHERE ref = $1 AND stock >= $2
			RETURNING stock, low_stock_threshold`, ln.VariantRef, ln.Qty).Scan(&lv.Stock, &lv.LowStockThreshold)
		if errors.Is(err, pgx.ErrNoRows) {
			var available int
			err = t.tx.QueryRow(ctx, `SELECT stock FROM variants WHERE ref=$1`, ln.VariantRef).Scan(&available)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, orders.Invalid("variant_ref", "unknown variant %s", ln.VariantRef)
			}
			if err != nil {
				return nil, err
			}
			return nil, &orders.InsufficientStockError{VariantRef: ln.VariantRef, Requested: ln.Qty, Available: available}
		}
		if err != nil {
			return nil, err
		}
		levels = append(levels, lv)
	}
	return levels, nil
}

func (t *pgTx) IncrementStock(ctx context.Context, lines []orders.StockLine) ([]inventory.Level, error) {
	levels := make([]inventory.Level, 0, len(lines))
	for _, ln := range lines {
		lv := inventory.Level{VariantRef: ln.VariantRef}
		err := t.tx.QueryRow(ctx, `
			UPDATE variants SET stock = stock + $2, updated_at = now()
			WHERE ref = $1
			RETURNING stock, low_stock_threshold`, ln.VariantRef, ln.Qty).Scan(&lv.Stock, &lv.LowStockThreshold)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, orders.Invalid("variant_ref", "unknown variant %s", ln.VariantRef)
		}
		if err != nil {
			return nil, err
		}
		levels = append(levels, lv)
	}
	return levels, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	items, addr, proof, err := encodeOrderJSON(o)
	if err != nil {
		return err
	}
	o.Version = 1
	_, err = t.tx.Exec(ctx, `
		INSERT INTO orders(id, customer_id, items, subtotal, shipping_fee, discount, total, status, payment_status,
			amount_paid, amount_refunded, deposit_required, payment_proof, payment_verified_at, address, delivery_zone,
			pre_order, restocked, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		o.ID, o.CustomerID, items, o.Subtotal, o.ShippingFee, o.Discount, o.Total, string(o.Status), string(o.PaymentStatus),
		o.AmountPaid, o.AmountRefunded, o.DepositRequired, proof, o.PaymentVerified, addr, o.DeliveryZone,
		o.PreOrder, o.Restocked, o.Version, o.CreatedAt, o.UpdatedAt)
	return errors.Wrap(err, "insert order")
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (*orders.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, orders.ErrOrderNotFound
	}
	return scanOrder(t.tx.QueryRow(ctx, selectOrder+` WHERE id=$1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *orders.Order) error {
	_, _, proof, err := encodeOrderJSON(o)
	if err != nil {
		return err
	}
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET status=$3, payment_status=$4, amount_paid=$5, amount_refunded=$6, payment_proof=$7,
			payment_verified_at=$8, restocked=$9, updated_at=$10, version = version + 1
		WHERE id=$1 AND version=$2`,
		o.ID, o.Version, string(o.Status), string(o.PaymentStatus), o.AmountPaid, o.AmountRefunded, proof,
		o.PaymentVerified, o.Restocked, o.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "update order")
	}
	if ct.RowsAffected() != 1 {
		return errors.Errorf("order %s version conflict at %d", o.ID, o.Version)
	}
	o.Version++
	return nil
}

func (t *pgTx) AppendAudit(ctx context.Context, e orders.AuditEntry) error {
	var from *string
	if e.From != nil {
		s := string(*e.From)
		from = &s
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_audit(id, order_id, from_status, to_status, note, actor_id, actor_name, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.OrderID, from, string(e.To), e.Note, e.ActorID, e.ActorName, e.At)
	return errors.Wrap(err, "append audit")
}

func (t *pgTx) AppendPayment(ctx context.Context, e orders.PaymentEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_payments(id, order_id, kind, from_status, to_status, amount, amount_paid, amount_refunded,
			note, actor_id, actor_name, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.ID, e.OrderID, string(e.Kind), string(e.From), string(e.To), e.Amount, e.AmountPaid, e.AmountRefunded,
		e.Note, e.ActorID, e.ActorName, e.At)
	return errors.Wrap(err, "append payment entry")
}

func (t *pgTx) InsertRefund(ctx context.Context, r orders.RefundRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_refunds(id, order_id, amount, reason, restocked, actor_id, actor_name, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.OrderID, r.Amount, r.Reason, r.Restocked, r.ActorID, r.ActorName, r.At)
	return errors.Wrap(err, "insert refund")
}

const selectOrder = `
	SELECT id, customer_id, items, subtotal, shipping_fee, discount, total, status, payment_status,
		amount_paid, amount_refunded, deposit_required, payment_proof, payment_verified_at, address, delivery_zone,
		pre_order, restocked, version, created_at, updated_at
	FROM orders`

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var (
		o                   orders.Order
		items, addr, proof  []byte
		status, paymentStat string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &items, &o.Subtotal, &o.ShippingFee, &o.Discount, &o.Total, &status, &paymentStat,
		&o.AmountPaid, &o.AmountRefunded, &o.DepositRequired, &proof, &o.PaymentVerified, &addr, &o.DeliveryZone,
		&o.PreOrder, &o.Restocked, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = orders.Status(status)
	o.PaymentStatus = orders.PaymentStatus(paymentStat)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, errors.Wrap(err, "decode items")
	}
	if err := json.Unmarshal(addr, &o.Address); err != nil {
		return nil, errors.Wrap(err, "decode address")
	}
	if len(proof) > 0 && string(proof) != "null" {
		o.PaymentProof = new(orders.PaymentProof)
		if err := json.Unmarshal(proof, o.PaymentProof); err != nil {
			return nil, errors.Wrap(err, "decode payment proof")
		}
	}
	return &o, nil
}

func encodeOrderJSON(o *orders.Order) (items, addr, proof []byte, err error) {
	if items, err = json.Marshal(o.Items); err != nil {
		return nil, nil, nil, err
	}
	if addr, err = json.Marshal(o.Address); err != nil {
		return nil, nil, nil, err
	}
	if o.PaymentProof != nil {
		if proof, err = json.Marshal(o.PaymentProof); err != nil {
			return nil, nil, nil, err
		}
	}
	return items, addr, proof, nil
}
