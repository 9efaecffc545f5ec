package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextNumber(ctx context.Context, kind string) (string, error)
	CreateRequest(ctx context.Context, pr PurchaseRequest) (int64, error)
	InsertRequestLine(ctx context.Context, line RequestLine) (int64, error)
	UpdateRequestStatus(ctx context.Context, id int64, status RequestStatus) error
	CreateQuote(ctx context.Context, quote VendorQuote) (int64, error)
	InsertQuoteLine(ctx context.Context, line QuoteLine) error
	OrderIDForRequest(ctx context.Context, requestID int64) (int64, error)
	CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertOrderLine(ctx context.Context, line OrderLine) (int64, error)
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error
	GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error)
	CreateReceipt(ctx context.Context, grn GoodsReceipt) (int64, error)
	InsertReceiptLine(ctx context.Context, line ReceiptLine) error
	UpdateOrderLineReceipt(ctx context.Context, lineID int64, received, accepted, rejected float64) error
	UpdateOrderReceipt(ctx context.Context, orderID int64, receivedAmount float64, status OrderStatus) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Fetch helpers

// GetRequest returns a purchase request and its lines.
func (r *Repository) GetRequest(ctx context.Context, id int64) (PurchaseRequest, []RequestLine, error) {
	var pr PurchaseRequest
	err := r.pool.QueryRow(ctx, `SELECT id, number, title, priority, required_by, COALESCE(project_ref,''), COALESCE(sales_order_id,0), note, status, total_estimated, created_at
FROM purchase_requests WHERE id=$1`, id).
		Scan(&pr.ID, &pr.Number, &pr.Title, &pr.Priority, &pr.RequiredBy, &pr.ProjectRef, &pr.SalesOrderID, &pr.Notes, &pr.Status, &pr.TotalEstimated, &pr.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRequest{}, nil, fmt.Errorf("%w: request %d", ErrNotFound, id)
		}
		return PurchaseRequest{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, request_id, description, qty, unit, est_unit_price FROM purchase_request_lines WHERE request_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseRequest{}, nil, err
	}
	defer rows.Close()
	var lines []RequestLine
	for rows.Next() {
		var line RequestLine
		if err := rows.Scan(&line.ID, &line.RequestID, &line.Description, &line.Qty, &line.Unit, &line.EstUnitPrice); err != nil {
			return PurchaseRequest{}, nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return PurchaseRequest{}, nil, err
	}
	return pr, lines, nil
}

// ListRequests returns a page of requests, optionally filtered by status.
func (r *Repository) ListRequests(ctx context.Context, limit, offset int, status string) ([]PurchaseRequest, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_requests WHERE ($1 = '' OR status = $1)`, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, number, title, priority, required_by, COALESCE(project_ref,''), COALESCE(sales_order_id,0), note, status, total_estimated, created_at
FROM purchase_requests WHERE ($1 = '' OR status = $1) ORDER BY id DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []PurchaseRequest
	for rows.Next() {
		var pr PurchaseRequest
		if err := rows.Scan(&pr.ID, &pr.Number, &pr.Title, &pr.Priority, &pr.RequiredBy, &pr.ProjectRef, &pr.SalesOrderID, &pr.Notes, &pr.Status, &pr.TotalEstimated, &pr.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetQuote returns a quote and its lines.
func (r *Repository) GetQuote(ctx context.Context, id int64) (VendorQuote, []QuoteLine, error) {
	var q VendorQuote
	err := r.pool.QueryRow(ctx, `SELECT id, request_id, number, vendor_name, vendor_contact, quote_date, delivery_days, validity_days, payment_terms, note, total_amount, created_at
FROM vendor_quotes WHERE id=$1`, id).
		Scan(&q.ID, &q.RequestID, &q.Number, &q.VendorName, &q.VendorContact, &q.QuoteDate, &q.DeliveryDays, &q.ValidityDays, &q.PaymentTerms, &q.Notes, &q.TotalAmount, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VendorQuote{}, nil, fmt.Errorf("%w: quote %d", ErrNotFound, id)
		}
		return VendorQuote{}, nil, err
	}
	lines, err := r.QuoteLines(ctx, id)
	if err != nil {
		return VendorQuote{}, nil, err
	}
	return q, lines, nil
}

// ListQuotes returns all quotes for a request in insertion order.
func (r *Repository) ListQuotes(ctx context.Context, requestID int64) ([]VendorQuote, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, request_id, number, vendor_name, vendor_contact, quote_date, delivery_days, validity_days, payment_terms, note, total_amount, created_at
FROM vendor_quotes WHERE request_id=$1 ORDER BY id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var quotes []VendorQuote
	for rows.Next() {
		var q VendorQuote
		if err := rows.Scan(&q.ID, &q.RequestID, &q.Number, &q.VendorName, &q.VendorContact, &q.QuoteDate, &q.DeliveryDays, &q.ValidityDays, &q.PaymentTerms, &q.Notes, &q.TotalAmount, &q.CreatedAt); err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// QuoteLines returns the priced lines of a quote.
func (r *Repository) QuoteLines(ctx context.Context, quoteID int64) ([]QuoteLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, quote_id, request_line_id, unit_price, delivery_days FROM vendor_quote_lines WHERE quote_id=$1 ORDER BY id`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []QuoteLine
	for rows.Next() {
		var line QuoteLine
		if err := rows.Scan(&line.ID, &line.QuoteID, &line.RequestLineID, &line.UnitPrice, &line.DeliveryDays); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

const orderColumns = `id, request_id, quote_id, number, vendor_name, vendor_contact, payment_terms, delivery_terms, order_date, gst_percent, status, subtotal, gst_amount, total_amount, received_amount, COALESCE(project_ref,''), created_at`

// GetOrder returns an order and its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error) {
	po, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
		}
		return PurchaseOrder{}, nil, err
	}
	lines, err := orderLines(ctx, r.pool, id, false)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, lines, nil
}

// OrderIDForRequest returns the id of the order created for a request, or
// zero when none exists.
func (r *Repository) OrderIDForRequest(ctx context.Context, requestID int64) (int64, error) {
	return orderIDForRequest(ctx, r.pool, requestID)
}

// ListReceipts returns the receipts recorded against an order.
func (r *Repository) ListReceipts(ctx context.Context, orderID int64) ([]GoodsReceipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, number, received_at, received_by, challan_no, vehicle_no, note, total_value, created_at
FROM goods_receipts WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var receipts []GoodsReceipt
	for rows.Next() {
		var grn GoodsReceipt
		if err := rows.Scan(&grn.ID, &grn.OrderID, &grn.Number, &grn.ReceivedAt, &grn.ReceivedBy, &grn.ChallanNo, &grn.VehicleNo, &grn.Notes, &grn.TotalValue, &grn.CreatedAt); err != nil {
			return nil, err
		}
		receipts = append(receipts, grn)
	}
	return receipts, rows.Err()
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func orderIDForRequest(ctx context.Context, q queryer, requestID int64) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `SELECT id FROM purchase_orders WHERE request_id=$1 LIMIT 1`, requestID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.RequestID, &po.QuoteID, &po.Number, &po.VendorName, &po.VendorContact, &po.PaymentTerms, &po.DeliveryTerms, &po.OrderDate, &po.GSTPercent, &po.Status, &po.Subtotal, &po.GSTAmount, &po.TotalAmount, &po.ReceivedAmount, &po.ProjectRef, &po.CreatedAt)
	return po, err
}

func orderLines(ctx context.Context, q queryer, orderID int64, forUpdate bool) ([]OrderLine, error) {
	query := `SELECT id, order_id, request_line_id, description, qty, unit, unit_price, line_total, received_qty, accepted_qty, rejected_qty
FROM purchase_order_lines WHERE order_id=$1 ORDER BY id`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []OrderLine
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.RequestLineID, &line.Description, &line.Qty, &line.Unit, &line.UnitPrice, &line.LineTotal, &line.ReceivedQty, &line.AcceptedQty, &line.RejectedQty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// Transactional operations

// NextNumber allocates the next document number for a kind, e.g. PR-2026-00042.
func (t *txRepo) NextNumber(ctx context.Context, kind string) (string, error) {
	period := time.Now().Format("2006")
	var counter int64
	err := t.tx.QueryRow(ctx, `INSERT INTO doc_sequences (kind, period, counter) VALUES ($1, $2, 1)
ON CONFLICT (kind, period) DO UPDATE SET counter = doc_sequences.counter + 1
RETURNING counter`, kind, period).Scan(&counter)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%05d", kind, period, counter), nil
}

func (t *txRepo) CreateRequest(ctx context.Context, pr PurchaseRequest) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_requests (number, title, priority, required_by, project_ref, sales_order_id, note, status, total_estimated, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,0), $7, $8, $9, $10) RETURNING id`,
		pr.Number, pr.Title, pr.Priority, pr.RequiredBy, pr.ProjectRef, pr.SalesOrderID, pr.Notes, pr.Status, pr.TotalEstimated, pr.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) InsertRequestLine(ctx context.Context, line RequestLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_request_lines (request_id, description, qty, unit, est_unit_price)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		line.RequestID, line.Description, line.Qty, line.Unit, line.EstUnitPrice).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateRequestStatus(ctx context.Context, id int64, status RequestStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_requests SET status=$2 WHERE id=$1`, id, status)
	return err
}

func (t *txRepo) CreateQuote(ctx context.Context, quote VendorQuote) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO vendor_quotes (request_id, number, vendor_name, vendor_contact, quote_date, delivery_days, validity_days, payment_terms, note, total_amount, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		quote.RequestID, quote.Number, quote.VendorName, quote.VendorContact, quote.QuoteDate, quote.DeliveryDays, quote.ValidityDays, quote.PaymentTerms, quote.Notes, quote.TotalAmount, quote.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) InsertQuoteLine(ctx context.Context, line QuoteLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO vendor_quote_lines (quote_id, request_line_id, unit_price, delivery_days)
VALUES ($1, $2, $3, $4)`, line.QuoteID, line.RequestLineID, line.UnitPrice, line.DeliveryDays)
	return err
}

func (t *txRepo) OrderIDForRequest(ctx context.Context, requestID int64) (int64, error) {
	return orderIDForRequest(ctx, t.tx, requestID)
}

func (t *txRepo) CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (request_id, quote_id, number, vendor_name, vendor_contact, payment_terms, delivery_terms, order_date, gst_percent, status, subtotal, gst_amount, total_amount, received_amount, project_ref, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULLIF($15,''), $16) RETURNING id`,
		po.RequestID, po.QuoteID, po.Number, po.VendorName, po.VendorContact, po.PaymentTerms, po.DeliveryTerms, po.OrderDate, po.GSTPercent, po.Status, po.Subtotal, po.GSTAmount, po.TotalAmount, po.ReceivedAmount, po.ProjectRef, po.CreatedAt).Scan(&id)
	if err != nil {
		// purchase_orders.request_id carries a unique index; a duplicate
		// promotion loses the race and surfaces as a conflict.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: request %d already has an order", ErrConflict, po.RequestID)
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) InsertOrderLine(ctx context.Context, line OrderLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_order_lines (order_id, request_line_id, description, qty, unit, unit_price, line_total, received_qty, accepted_qty, rejected_qty)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, 0) RETURNING id`,
		line.OrderID, line.RequestLineID, line.Description, line.Qty, line.Unit, line.UnitPrice, line.LineTotal).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2 WHERE id=$1`, id, status)
	return err
}

// GetOrderForUpdate locks the order header and lines for the receipt
// read-modify-write cycle.
func (t *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error) {
	po, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
		}
		return PurchaseOrder{}, nil, err
	}
	lines, err := orderLines(ctx, t.tx, id, true)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, lines, nil
}

func (t *txRepo) CreateReceipt(ctx context.Context, grn GoodsReceipt) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_receipts (order_id, number, received_at, received_by, challan_no, vehicle_no, note, total_value, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		grn.OrderID, grn.Number, grn.ReceivedAt, grn.ReceivedBy, grn.ChallanNo, grn.VehicleNo, grn.Notes, grn.TotalValue, grn.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) InsertReceiptLine(ctx context.Context, line ReceiptLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO goods_receipt_lines (grn_id, order_line_id, received_qty, accepted_qty, rejected_qty)
VALUES ($1, $2, $3, $4, $5)`, line.GRNID, line.OrderLineID, line.ReceivedQty, line.AcceptedQty, line.RejectedQty)
	return err
}

func (t *txRepo) UpdateOrderLineReceipt(ctx context.Context, lineID int64, received, accepted, rejected float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_order_lines SET received_qty=$2, accepted_qty=$3, rejected_qty=$4 WHERE id=$1`, lineID, received, accepted, rejected)
	return err
}

func (t *txRepo) UpdateOrderReceipt(ctx context.Context, orderID int64, receivedAmount float64, status OrderStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET received_amount=$2, status=$3 WHERE id=$1`, orderID, receivedAmount, status)
	return err
}
