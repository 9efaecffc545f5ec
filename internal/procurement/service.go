package procurement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/money"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRequest(ctx context.Context, id int64) (PurchaseRequest, []RequestLine, error)
	ListRequests(ctx context.Context, limit, offset int, status string) ([]PurchaseRequest, int, error)
	GetQuote(ctx context.Context, id int64) (VendorQuote, []QuoteLine, error)
	ListQuotes(ctx context.Context, requestID int64) ([]VendorQuote, error)
	QuoteLines(ctx context.Context, quoteID int64) ([]QuoteLine, error)
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error)
	OrderIDForRequest(ctx context.Context, requestID int64) (int64, error)
	ListReceipts(ctx context.Context, orderID int64) ([]GoodsReceipt, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the procurement workflow: purchase requests, vendor
// quotes, quote comparison, purchase orders and goods receipts.
type Service struct {
	repo        RepositoryPort
	approvals   *shared.ApprovalRecorder
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	events      IntegrationHandler
	now         func() time.Time
}

// NewService constructs the procurement service.
func NewService(repo RepositoryPort, approvals *shared.ApprovalRecorder, audit AuditPort, idem *shared.IdempotencyStore, events IntegrationHandler) *Service {
	return &Service{repo: repo, approvals: approvals, audit: audit, idempotency: idem, events: events, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// CreateRequestInput describes a new purchase request.
type CreateRequestInput struct {
	Title        string             `json:"title" validate:"required,max=200"`
	Priority     Priority           `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
	RequiredBy   time.Time          `json:"required_by"`
	ProjectRef   string             `json:"project_ref" validate:"omitempty,max=100"`
	SalesOrderID int64              `json:"sales_order_id" validate:"omitempty,gt=0"`
	Notes        string             `json:"notes"`
	Lines        []RequestLineInput `json:"items" validate:"required,min=1,dive"`
}

// RequestLineInput describes one requested item.
type RequestLineInput struct {
	Description  string  `json:"description" validate:"required,max=500"`
	Qty          float64 `json:"quantity" validate:"required,gt=0"`
	Unit         string  `json:"unit" validate:"omitempty,max=20"`
	EstUnitPrice float64 `json:"estimated_unit_price" validate:"gte=0"`
}

// AddQuoteInput describes a vendor quote against a request. Line entries are
// matched to request lines by item id when given, otherwise by position.
type AddQuoteInput struct {
	RequestID     int64            `json:"request_id" validate:"required,gt=0"`
	VendorName    string           `json:"vendor_name" validate:"required,max=200"`
	VendorContact string           `json:"vendor_contact" validate:"omitempty,max=200"`
	QuoteDate     time.Time        `json:"quote_date"`
	DeliveryDays  int              `json:"delivery_days" validate:"gte=0"`
	ValidityDays  int              `json:"validity_days" validate:"gte=0"`
	PaymentTerms  string           `json:"payment_terms" validate:"omitempty,max=200"`
	Notes         string           `json:"notes"`
	Lines         []QuoteLineInput `json:"items" validate:"required,min=1,dive"`
}

// QuoteLineInput prices one request line.
type QuoteLineInput struct {
	RequestLineID int64   `json:"item_id" validate:"omitempty,gt=0"`
	UnitPrice     float64 `json:"quoted_price" validate:"gte=0"`
	DeliveryDays  int     `json:"delivery_days" validate:"gte=0"`
}

// CreateOrderInput carries the commercial terms applied when promoting a
// quote into a purchase order.
type CreateOrderInput struct {
	QuoteID       int64   `json:"quote_id" validate:"required,gt=0"`
	GSTPercent    float64 `json:"gst_percent" validate:"gte=0,lte=100"`
	DeliveryTerms string  `json:"delivery_terms" validate:"omitempty,max=200"`
	ActorID       int64   `json:"-"`
}

// ReceiptLineInput reports quantities for one order line.
type ReceiptLineInput struct {
	OrderLineID int64   `json:"order_line_id" validate:"required,gt=0"`
	ReceivedQty float64 `json:"received_qty" validate:"required,gt=0"`
	AcceptedQty float64 `json:"accepted_qty" validate:"gte=0"`
	RejectedQty float64 `json:"rejected_qty" validate:"gte=0"`
}

// RecordReceiptInput describes a goods receipt note.
type RecordReceiptInput struct {
	OrderID    int64              `json:"purchase_order_id" validate:"required,gt=0"`
	ReceivedAt time.Time          `json:"received_date"`
	ReceivedBy string             `json:"received_by" validate:"omitempty,max=200"`
	ChallanNo  string             `json:"challan_no" validate:"omitempty,max=100"`
	VehicleNo  string             `json:"vehicle_no" validate:"omitempty,max=50"`
	Notes      string             `json:"notes"`
	Lines      []ReceiptLineInput `json:"items" validate:"required,min=1,dive"`
}

// CreatePurchaseRequest persists the request header and lines with the total
// recomputed from the lines.
func (s *Service) CreatePurchaseRequest(ctx context.Context, input CreateRequestInput) (PurchaseRequest, []RequestLine, error) {
	if len(input.Lines) == 0 {
		return PurchaseRequest{}, nil, fmt.Errorf("%w: at least one line item required", ErrValidation)
	}
	var total float64
	for i, line := range input.Lines {
		if line.Qty <= 0 {
			return PurchaseRequest{}, nil, fmt.Errorf("%w: line %d quantity must be positive", ErrValidation, i+1)
		}
		if line.EstUnitPrice < 0 {
			return PurchaseRequest{}, nil, fmt.Errorf("%w: line %d estimated price must not be negative", ErrValidation, i+1)
		}
		total += money.LineTotal(line.Qty, line.EstUnitPrice)
	}
	pr := PurchaseRequest{
		Title:          input.Title,
		Priority:       defaultPriority(input.Priority),
		RequiredBy:     input.RequiredBy,
		ProjectRef:     input.ProjectRef,
		SalesOrderID:   input.SalesOrderID,
		Notes:          input.Notes,
		Status:         RequestStatusPending,
		TotalEstimated: money.Round2(total),
		CreatedAt:      s.now(),
	}
	var lines []RequestLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, "PR")
		if err != nil {
			return err
		}
		pr.Number = number
		id, err := tx.CreateRequest(ctx, pr)
		if err != nil {
			return err
		}
		pr.ID = id
		for _, in := range input.Lines {
			line := RequestLine{RequestID: id, Description: in.Description, Qty: in.Qty, Unit: in.Unit, EstUnitPrice: in.EstUnitPrice}
			lineID, err := tx.InsertRequestLine(ctx, line)
			if err != nil {
				return err
			}
			line.ID = lineID
			lines = append(lines, line)
		}
		return nil
	})
	if err != nil {
		return PurchaseRequest{}, nil, err
	}
	s.recordAudit(ctx, "PR_CREATE", pr.ID, map[string]any{"number": pr.Number, "total_estimated": pr.TotalEstimated})
	s.notifyRequest(ctx, pr)
	return pr, lines, nil
}

// GetRequest returns the request, its lines and its quotes.
func (s *Service) GetRequest(ctx context.Context, id int64) (PurchaseRequest, []RequestLine, []VendorQuote, error) {
	pr, lines, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return PurchaseRequest{}, nil, nil, err
	}
	quotes, err := s.repo.ListQuotes(ctx, id)
	if err != nil {
		return PurchaseRequest{}, nil, nil, err
	}
	return pr, lines, quotes, nil
}

// ListRequests returns a page of requests filtered by status.
func (s *Service) ListRequests(ctx context.Context, limit, offset int, status string) ([]PurchaseRequest, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListRequests(ctx, limit, offset, status)
}

// ApproveRequest moves a quoted request to APPROVED and records the approval.
func (s *Service) ApproveRequest(ctx context.Context, requestID, actorID int64) error {
	pr, _, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if pr.Status != RequestStatusQuoted {
		return fmt.Errorf("%w: request %s cannot be approved from %s", ErrInvalidTransition, pr.Number, pr.Status)
	}
	refID := shared.ApprovalRef("PR", requestID)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateRequestStatus(ctx, requestID, RequestStatusApproved); err != nil {
			return err
		}
		if s.approvals != nil {
			_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: "PR", RefID: refID, ActorID: actorID, Action: shared.ApprovalApprove, Note: fmt.Sprintf("PR %s approved", pr.Number)})
		}
		return nil
	})
	if err != nil {
		return err
	}
	pr.Status = RequestStatusApproved
	s.recordAudit(ctx, "PR_APPROVE", requestID, map[string]any{"number": pr.Number})
	s.notifyRequest(ctx, pr)
	return nil
}

// ApprovalHistory returns the approval trail recorded for a request.
func (s *Service) ApprovalHistory(ctx context.Context, requestID int64) ([]shared.ApprovalLog, error) {
	if _, _, err := s.repo.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return []shared.ApprovalLog{}, nil
	}
	return s.approvals.History(ctx, "PR", shared.ApprovalRef("PR", requestID))
}

// CloseRequest marks the request CLOSED. Closing an already closed request is
// a no-op.
func (s *Service) CloseRequest(ctx context.Context, requestID int64) error {
	pr, _, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if pr.Status == RequestStatusClosed {
		return nil
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateRequestStatus(ctx, requestID, RequestStatusClosed)
	})
	if err != nil {
		return err
	}
	pr.Status = RequestStatusClosed
	s.recordAudit(ctx, "PR_CLOSE", requestID, map[string]any{"number": pr.Number})
	s.notifyRequest(ctx, pr)
	return nil
}

// AddQuote records a vendor quote. The total is recomputed from the request
// quantities; request lines the vendor left unpriced are treated as zero and
// reported back as warnings rather than silently accepted.
func (s *Service) AddQuote(ctx context.Context, input AddQuoteInput) (VendorQuote, []string, error) {
	pr, reqLines, err := s.repo.GetRequest(ctx, input.RequestID)
	if err != nil {
		return VendorQuote{}, nil, err
	}
	if pr.Status == RequestStatusOrdered || pr.Status == RequestStatusClosed {
		return VendorQuote{}, nil, fmt.Errorf("%w: request %s no longer accepts quotes", ErrConflict, pr.Number)
	}
	if input.VendorName == "" {
		return VendorQuote{}, nil, fmt.Errorf("%w: vendor name required", ErrValidation)
	}
	if len(input.Lines) == 0 {
		return VendorQuote{}, nil, fmt.Errorf("%w: at least one priced line required", ErrValidation)
	}

	priced, err := matchQuoteLines(reqLines, input.Lines)
	if err != nil {
		return VendorQuote{}, nil, err
	}

	var total float64
	var warnings []string
	var lines []QuoteLine
	for _, reqLine := range reqLines {
		in, ok := priced[reqLine.ID]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("line %q not priced by vendor; treated as zero", reqLine.Description))
			lines = append(lines, QuoteLine{RequestLineID: reqLine.ID, UnitPrice: 0})
			continue
		}
		if in.UnitPrice < 0 {
			return VendorQuote{}, nil, fmt.Errorf("%w: quoted price must not be negative", ErrValidation)
		}
		total += money.LineTotal(reqLine.Qty, in.UnitPrice)
		lines = append(lines, QuoteLine{RequestLineID: reqLine.ID, UnitPrice: in.UnitPrice, DeliveryDays: in.DeliveryDays})
	}

	quote := VendorQuote{
		RequestID:     input.RequestID,
		VendorName:    input.VendorName,
		VendorContact: input.VendorContact,
		QuoteDate:     defaultTime(input.QuoteDate, s.now()),
		DeliveryDays:  input.DeliveryDays,
		ValidityDays:  input.ValidityDays,
		PaymentTerms:  input.PaymentTerms,
		Notes:         input.Notes,
		TotalAmount:   money.Round2(total),
		CreatedAt:     s.now(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, "QT")
		if err != nil {
			return err
		}
		quote.Number = number
		id, err := tx.CreateQuote(ctx, quote)
		if err != nil {
			return err
		}
		quote.ID = id
		for i := range lines {
			lines[i].QuoteID = id
			if err := tx.InsertQuoteLine(ctx, lines[i]); err != nil {
				return err
			}
		}
		if pr.Status == RequestStatusPending {
			if err := tx.UpdateRequestStatus(ctx, pr.ID, RequestStatusQuoted); err != nil {
				return err
			}
			pr.Status = RequestStatusQuoted
		}
		return nil
	})
	if err != nil {
		return VendorQuote{}, nil, err
	}
	s.recordAudit(ctx, "QUOTE_ADD", quote.ID, map[string]any{"number": quote.Number, "vendor": quote.VendorName, "total": quote.TotalAmount, "warnings": len(warnings)})
	s.notifyRequest(ctx, pr)
	return quote, warnings, nil
}

// matchQuoteLines resolves quote entries to request lines, by item id when
// given, else by position.
func matchQuoteLines(reqLines []RequestLine, inputs []QuoteLineInput) (map[int64]QuoteLineInput, error) {
	byID := make(map[int64]RequestLine, len(reqLines))
	for _, l := range reqLines {
		byID[l.ID] = l
	}
	priced := make(map[int64]QuoteLineInput, len(inputs))
	for i, in := range inputs {
		lineID := in.RequestLineID
		if lineID == 0 {
			if i >= len(reqLines) {
				return nil, fmt.Errorf("%w: quote line %d has no matching request line", ErrValidation, i+1)
			}
			lineID = reqLines[i].ID
		} else if _, ok := byID[lineID]; !ok {
			return nil, fmt.Errorf("%w: item %d is not part of the request", ErrValidation, lineID)
		}
		if _, dup := priced[lineID]; dup {
			return nil, fmt.Errorf("%w: item %d priced more than once", ErrValidation, lineID)
		}
		priced[lineID] = in
	}
	return priced, nil
}

// QuoteTotal summarises a quote for comparison.
type QuoteTotal struct {
	QuoteID      int64     `json:"quote_id"`
	VendorName   string    `json:"vendor_name"`
	QuoteDate    time.Time `json:"quote_date"`
	TotalAmount  float64   `json:"total_amount"`
	DeliveryDays int       `json:"delivery_days"`
}

// Comparison ranks the quotes of one request.
type Comparison struct {
	RequestID        int64        `json:"request_id"`
	Totals           []QuoteTotal `json:"totals"`
	Lowest           *QuoteTotal  `json:"lowest_total,omitempty"`
	SavingsPotential float64      `json:"savings_potential"`
}

// Compare recomputes every vendor total from persisted lines and identifies
// the lowest bidder. It is a pure read; calling it twice with no intervening
// writes yields identical results.
func (s *Service) Compare(ctx context.Context, requestID int64) (Comparison, error) {
	_, reqLines, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return Comparison{}, err
	}
	quotes, err := s.repo.ListQuotes(ctx, requestID)
	if err != nil {
		return Comparison{}, err
	}
	quoteLines := make(map[int64][]QuoteLine, len(quotes))
	for _, q := range quotes {
		lines, err := s.repo.QuoteLines(ctx, q.ID)
		if err != nil {
			return Comparison{}, err
		}
		quoteLines[q.ID] = lines
	}
	return compareQuotes(requestID, reqLines, quotes, quoteLines), nil
}

// compareQuotes ranks quotes on totals recomputed from canonical line data.
// Ties break on earliest quote date, then on insertion order (lowest id), so
// exactly one lowest quote is reported deterministically.
func compareQuotes(requestID int64, reqLines []RequestLine, quotes []VendorQuote, quoteLines map[int64][]QuoteLine) Comparison {
	qtyByLine := make(map[int64]float64, len(reqLines))
	for _, l := range reqLines {
		qtyByLine[l.ID] = l.Qty
	}

	totals := make([]QuoteTotal, 0, len(quotes))
	for _, q := range quotes {
		var total float64
		for _, line := range quoteLines[q.ID] {
			total += money.LineTotal(qtyByLine[line.RequestLineID], line.UnitPrice)
		}
		totals = append(totals, QuoteTotal{
			QuoteID:      q.ID,
			VendorName:   q.VendorName,
			QuoteDate:    q.QuoteDate,
			TotalAmount:  money.Round2(total),
			DeliveryDays: q.DeliveryDays,
		})
	}

	cmp := Comparison{RequestID: requestID, Totals: totals}
	if len(totals) == 0 {
		return cmp
	}

	ranked := append([]QuoteTotal(nil), totals...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalAmount != ranked[j].TotalAmount {
			return ranked[i].TotalAmount < ranked[j].TotalAmount
		}
		if !ranked[i].QuoteDate.Equal(ranked[j].QuoteDate) {
			return ranked[i].QuoteDate.Before(ranked[j].QuoteDate)
		}
		return ranked[i].QuoteID < ranked[j].QuoteID
	})

	lowest := ranked[0]
	cmp.Lowest = &lowest
	if len(ranked) > 1 {
		if diff := money.Round2(ranked[1].TotalAmount - ranked[0].TotalAmount); diff > 0 {
			cmp.SavingsPotential = diff
		}
	}
	return cmp
}

// CreateOrderFromQuote promotes a quote into a purchase order. Vendor identity
// and line items are snapshotted from the quote; the parent request moves to
// ORDERED. A request can have at most one order.
func (s *Service) CreateOrderFromQuote(ctx context.Context, input CreateOrderInput) (PurchaseOrder, []OrderLine, error) {
	quote, quoteLines, err := s.repo.GetQuote(ctx, input.QuoteID)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	pr, reqLines, err := s.repo.GetRequest(ctx, quote.RequestID)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	if existing, err := s.repo.OrderIDForRequest(ctx, pr.ID); err != nil {
		return PurchaseOrder{}, nil, err
	} else if existing != 0 {
		return PurchaseOrder{}, nil, fmt.Errorf("%w: request %s already has an order", ErrConflict, pr.Number)
	}
	if err := TransitionRequest(pr.Status, RequestStatusOrdered); err != nil {
		return PurchaseOrder{}, nil, err
	}

	reqByID := make(map[int64]RequestLine, len(reqLines))
	for _, l := range reqLines {
		reqByID[l.ID] = l
	}

	var subtotal float64
	lines := make([]OrderLine, 0, len(quoteLines))
	for _, ql := range quoteLines {
		reqLine, ok := reqByID[ql.RequestLineID]
		if !ok {
			return PurchaseOrder{}, nil, fmt.Errorf("%w: quote line %d references unknown request line", ErrValidation, ql.ID)
		}
		lineTotal := money.LineTotal(reqLine.Qty, ql.UnitPrice)
		subtotal += lineTotal
		lines = append(lines, OrderLine{
			RequestLineID: reqLine.ID,
			Description:   reqLine.Description,
			Qty:           reqLine.Qty,
			Unit:          reqLine.Unit,
			UnitPrice:     ql.UnitPrice,
			LineTotal:     lineTotal,
		})
	}
	subtotal = money.Round2(subtotal)
	gstAmount := money.Percent(subtotal, input.GSTPercent)

	po := PurchaseOrder{
		RequestID:     pr.ID,
		QuoteID:       quote.ID,
		VendorName:    quote.VendorName,
		VendorContact: quote.VendorContact,
		PaymentTerms:  quote.PaymentTerms,
		DeliveryTerms: input.DeliveryTerms,
		OrderDate:     s.now(),
		GSTPercent:    input.GSTPercent,
		Status:        OrderStatusSent,
		Subtotal:      subtotal,
		GSTAmount:     gstAmount,
		TotalAmount:   money.Sum(subtotal, gstAmount),
		ProjectRef:    pr.ProjectRef,
		CreatedAt:     s.now(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if existing, err := tx.OrderIDForRequest(ctx, pr.ID); err != nil {
			return err
		} else if existing != 0 {
			return fmt.Errorf("%w: request %s already has an order", ErrConflict, pr.Number)
		}
		number, err := tx.NextNumber(ctx, "PO")
		if err != nil {
			return err
		}
		po.Number = number
		id, err := tx.CreateOrder(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		for i := range lines {
			lines[i].OrderID = id
			lineID, err := tx.InsertOrderLine(ctx, lines[i])
			if err != nil {
				return err
			}
			lines[i].ID = lineID
		}
		return tx.UpdateRequestStatus(ctx, pr.ID, RequestStatusOrdered)
	})
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	if s.approvals != nil {
		refID := shared.ApprovalRef("PO", po.ID)
		_ = s.approvals.EnsureSubmit(ctx, "PO", refID, input.ActorID, fmt.Sprintf("PO %s issued from quote %s", po.Number, quote.Number))
	}
	s.recordAudit(ctx, "PO_CREATE", po.ID, map[string]any{"number": po.Number, "from_quote": quote.ID, "total": po.TotalAmount})
	if s.events != nil {
		_ = s.events.HandleOrderIssued(ctx, OrderIssuedEvent{OrderID: po.ID, RequestID: pr.ID, QuoteID: quote.ID, Number: po.Number, Total: po.TotalAmount, ProjectRef: po.ProjectRef, At: s.now()})
	}
	return po, lines, nil
}

// GetOrder returns the order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error) {
	return s.repo.GetOrder(ctx, id)
}

// UpdateOrderStatus applies a manual transition. Only SENT->CONFIRMED and
// cancellation of a non-terminal order are permitted here; PARTIAL and
// RECEIVED are derived exclusively from goods receipts.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, next OrderStatus, actorID int64) error {
	po, _, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if po.Status == next {
		return nil
	}
	if !manualOrderTransitionAllowed(po.Status, next) {
		return fmt.Errorf("%w: order %s -> %s", ErrInvalidTransition, po.Status, next)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateOrderStatus(ctx, orderID, next)
	})
	if err != nil {
		return err
	}
	if next == OrderStatusConfirmed && s.approvals != nil {
		refID := shared.ApprovalRef("PO", orderID)
		_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: "PO", RefID: refID, ActorID: actorID, Action: shared.ApprovalApprove, Note: fmt.Sprintf("PO %s confirmed by vendor", po.Number)})
	}
	s.recordAudit(ctx, "PO_STATUS", orderID, map[string]any{"number": po.Number, "from": po.Status, "to": next})
	if s.events != nil {
		_ = s.events.HandleOrderStatusChanged(ctx, OrderStatusEvent{OrderID: po.ID, Number: po.Number, From: po.Status, To: next, At: s.now()})
	}
	return nil
}

// RecordGoodsReceipt posts a GRN against an order. The check and the write
// happen inside one transaction with the order rows locked, so concurrent
// receipts cannot over-deliver a line. A violation rejects the whole GRN.
func (s *Service) RecordGoodsReceipt(ctx context.Context, input RecordReceiptInput) (GoodsReceipt, PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return GoodsReceipt{}, PurchaseOrder{}, fmt.Errorf("%w: at least one receipt line required", ErrValidation)
	}
	for i, line := range input.Lines {
		if line.ReceivedQty <= 0 {
			return GoodsReceipt{}, PurchaseOrder{}, fmt.Errorf("%w: line %d received quantity must be positive", ErrValidation, i+1)
		}
		if line.AcceptedQty < 0 || line.RejectedQty < 0 {
			return GoodsReceipt{}, PurchaseOrder{}, fmt.Errorf("%w: line %d quantities must not be negative", ErrValidation, i+1)
		}
		if line.AcceptedQty+line.RejectedQty > line.ReceivedQty {
			return GoodsReceipt{}, PurchaseOrder{}, fmt.Errorf("%w: line %d accepted+rejected exceeds received", ErrQuantityExceeded, i+1)
		}
	}

	grn := GoodsReceipt{
		OrderID:    input.OrderID,
		ReceivedAt: defaultTime(input.ReceivedAt, s.now()),
		ReceivedBy: input.ReceivedBy,
		ChallanNo:  input.ChallanNo,
		VehicleNo:  input.VehicleNo,
		Notes:      input.Notes,
		CreatedAt:  s.now(),
	}
	var updated PurchaseOrder

	var idemKey string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, poLines, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if !CanReceive(po.Status) {
			return fmt.Errorf("%w: order %s does not accept receipts in %s", ErrInvalidTransition, po.Number, po.Status)
		}

		lineByID := make(map[int64]*OrderLine, len(poLines))
		for i := range poLines {
			lineByID[poLines[i].ID] = &poLines[i]
		}

		var value float64
		for _, in := range input.Lines {
			poLine, ok := lineByID[in.OrderLineID]
			if !ok {
				return fmt.Errorf("%w: order line %d not found", ErrNotFound, in.OrderLineID)
			}
			if in.ReceivedQty > poLine.Outstanding() {
				return fmt.Errorf("%w: line %q has %.2f outstanding, got %.2f", ErrQuantityExceeded, poLine.Description, poLine.Outstanding(), in.ReceivedQty)
			}
			value += money.LineTotal(in.AcceptedQty, poLine.UnitPrice)
			poLine.ReceivedQty += in.ReceivedQty
			poLine.AcceptedQty += in.AcceptedQty
			poLine.RejectedQty += in.RejectedQty
		}
		value = money.Round2(value)
		if money.Round2(po.ReceivedAmount+value) > po.TotalAmount {
			return fmt.Errorf("%w: receipt value %.2f exceeds order total", ErrQuantityExceeded, po.ReceivedAmount+value)
		}

		number, err := tx.NextNumber(ctx, "GRN")
		if err != nil {
			return err
		}
		grn.Number = number
		grn.TotalValue = value

		if s.idempotency != nil {
			idemKey = fmt.Sprintf("GRN:%s", grn.Number)
			if err := s.idempotency.CheckAndInsert(ctx, idemKey, "procurement.grn"); err != nil {
				idemKey = ""
				return err
			}
		}

		grnID, err := tx.CreateReceipt(ctx, grn)
		if err != nil {
			return err
		}
		grn.ID = grnID
		for _, in := range input.Lines {
			if err := tx.InsertReceiptLine(ctx, ReceiptLine{GRNID: grnID, OrderLineID: in.OrderLineID, ReceivedQty: in.ReceivedQty, AcceptedQty: in.AcceptedQty, RejectedQty: in.RejectedQty}); err != nil {
				return err
			}
		}
		for _, poLine := range poLines {
			if err := tx.UpdateOrderLineReceipt(ctx, poLine.ID, poLine.ReceivedQty, poLine.AcceptedQty, poLine.RejectedQty); err != nil {
				return err
			}
		}

		next := OrderStatusPartial
		if fullyAccepted(poLines) {
			next = OrderStatusReceived
		}
		if err := TransitionOrder(po.Status, next); err != nil {
			return err
		}
		po.ReceivedAmount = money.Round2(po.ReceivedAmount + value)
		po.Status = next
		if err := tx.UpdateOrderReceipt(ctx, po.ID, po.ReceivedAmount, next); err != nil {
			return err
		}
		updated = po
		return nil
	})
	if err != nil {
		if idemKey != "" {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return GoodsReceipt{}, PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "GRN_POST", grn.ID, map[string]any{"number": grn.Number, "order": updated.Number, "value": grn.TotalValue, "order_status": updated.Status})
	if s.events != nil {
		_ = s.events.HandleReceiptPosted(ctx, ReceiptPostedEvent{GRNID: grn.ID, OrderID: updated.ID, Number: grn.Number, Value: grn.TotalValue, OrderStatus: updated.Status, At: s.now()})
	}
	return grn, updated, nil
}

// ListReceipts returns the receipts booked against an order.
func (s *Service) ListReceipts(ctx context.Context, orderID int64) ([]GoodsReceipt, error) {
	return s.repo.ListReceipts(ctx, orderID)
}

func fullyAccepted(lines []OrderLine) bool {
	for _, l := range lines {
		if l.AcceptedQty < l.Qty {
			return false
		}
	}
	return true
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "procurement", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func (s *Service) notifyRequest(ctx context.Context, pr PurchaseRequest) {
	if s.events == nil {
		return
	}
	_ = s.events.HandleRequestChanged(ctx, RequestChangedEvent{RequestID: pr.ID, Number: pr.Number, Status: pr.Status, ProjectRef: pr.ProjectRef, At: s.now()})
}

func defaultPriority(p Priority) Priority {
	if p == "" {
		return PriorityNormal
	}
	return p
}

func defaultTime(value, fallback time.Time) time.Time {
	if value.IsZero() {
		return fallback
	}
	return value
}
