package procurement

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Request priorities.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Purchase request lifecycle statuses.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusQuoted   RequestStatus = "QUOTED"
	RequestStatusApproved RequestStatus = "APPROVED"
	RequestStatusOrdered  RequestStatus = "ORDERED"
	RequestStatusClosed   RequestStatus = "CLOSED"
)

// Purchase order lifecycle statuses.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusSent      OrderStatus = "SENT"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusReceived  OrderStatus = "RECEIVED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// PurchaseRequest is an internal request to acquire materials or services.
// TotalEstimated is always recomputed from lines, never taken from callers.
type PurchaseRequest struct {
	ID             int64         `json:"id"`
	Number         string        `json:"pr_no"`
	Title          string        `json:"title"`
	Priority       Priority      `json:"priority"`
	RequiredBy     time.Time     `json:"required_by"`
	ProjectRef     string        `json:"project_ref,omitempty"`
	SalesOrderID   int64         `json:"sales_order_id,omitempty"`
	Notes          string        `json:"notes,omitempty"`
	Status         RequestStatus `json:"status"`
	TotalEstimated float64       `json:"total_estimated"`
	CreatedAt      time.Time     `json:"created_at"`
}

// RequestLine is a single requested item.
type RequestLine struct {
	ID           int64   `json:"id"`
	RequestID    int64   `json:"request_id"`
	Description  string  `json:"description"`
	Qty          float64 `json:"quantity"`
	Unit         string  `json:"unit"`
	EstUnitPrice float64 `json:"estimated_unit_price"`
}

// VendorQuote is a vendor's priced response to a purchase request.
// TotalAmount is recomputed from lines against the request quantities.
type VendorQuote struct {
	ID            int64     `json:"id"`
	RequestID     int64     `json:"request_id"`
	Number        string    `json:"quote_no"`
	VendorName    string    `json:"vendor_name"`
	VendorContact string    `json:"vendor_contact,omitempty"`
	QuoteDate     time.Time `json:"quote_date"`
	DeliveryDays  int       `json:"delivery_days"`
	ValidityDays  int       `json:"validity_days"`
	PaymentTerms  string    `json:"payment_terms,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	TotalAmount   float64   `json:"total_amount"`
	CreatedAt     time.Time `json:"created_at"`
}

// QuoteLine prices one request line.
type QuoteLine struct {
	ID            int64   `json:"id"`
	QuoteID       int64   `json:"quote_id"`
	RequestLineID int64   `json:"item_id"`
	UnitPrice     float64 `json:"quoted_price"`
	DeliveryDays  int     `json:"delivery_days,omitempty"`
}

// PurchaseOrder is a binding order issued to a vendor, created from exactly
// one accepted quote. Vendor fields are a snapshot taken at creation time.
type PurchaseOrder struct {
	ID             int64       `json:"id"`
	RequestID      int64       `json:"request_id"`
	QuoteID        int64       `json:"quote_id"`
	Number         string      `json:"po_no"`
	VendorName     string      `json:"vendor_name"`
	VendorContact  string      `json:"vendor_contact,omitempty"`
	PaymentTerms   string      `json:"payment_terms,omitempty"`
	DeliveryTerms  string      `json:"delivery_terms,omitempty"`
	OrderDate      time.Time   `json:"order_date"`
	GSTPercent     float64     `json:"gst_percent"`
	Status         OrderStatus `json:"status"`
	Subtotal       float64     `json:"subtotal"`
	GSTAmount      float64     `json:"gst_amount"`
	TotalAmount    float64     `json:"total_amount"`
	ReceivedAmount float64     `json:"received_amount"`
	ProjectRef     string      `json:"project_ref,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// OrderLine carries the quantities ordered and the cumulative receipt state.
type OrderLine struct {
	ID            int64   `json:"id"`
	OrderID       int64   `json:"order_id"`
	RequestLineID int64   `json:"request_line_id"`
	Description   string  `json:"description"`
	Qty           float64 `json:"quantity"`
	Unit          string  `json:"unit"`
	UnitPrice     float64 `json:"unit_price"`
	LineTotal     float64 `json:"line_total"`
	ReceivedQty   float64 `json:"received_qty"`
	AcceptedQty   float64 `json:"accepted_qty"`
	RejectedQty   float64 `json:"rejected_qty"`
}

// Outstanding returns the quantity still open for receipt on this line.
func (l OrderLine) Outstanding() float64 {
	return l.Qty - l.AcceptedQty
}

// GoodsReceipt records a partial or full delivery against an order.
// TotalValue is the accepted value of this receipt, computed server side.
type GoodsReceipt struct {
	ID         int64     `json:"id"`
	OrderID    int64     `json:"purchase_order_id"`
	Number     string    `json:"grn_no"`
	ReceivedAt time.Time `json:"received_date"`
	ReceivedBy string    `json:"received_by,omitempty"`
	ChallanNo  string    `json:"challan_no,omitempty"`
	VehicleNo  string    `json:"vehicle_no,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	TotalValue float64   `json:"total_received_value"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReceiptLine records received/accepted/rejected quantities per order line.
type ReceiptLine struct {
	ID          int64   `json:"id"`
	GRNID       int64   `json:"grn_id"`
	OrderLineID int64   `json:"order_line_id"`
	ReceivedQty float64 `json:"received_qty"`
	AcceptedQty float64 `json:"accepted_qty"`
	RejectedQty float64 `json:"rejected_qty"`
}

// Sentinel errors, wrapping the platform taxonomy so handlers can map them
// to problem responses with errors.Is.
var (
	ErrValidation        = fmt.Errorf("procurement: %w", httpx.ErrValidation)
	ErrNotFound          = fmt.Errorf("procurement: %w", httpx.ErrNotFound)
	ErrConflict          = fmt.Errorf("procurement: %w", httpx.ErrConflict)
	ErrInvalidTransition = fmt.Errorf("procurement: %w", httpx.ErrInvalidTransition)
	ErrQuantityExceeded  = fmt.Errorf("procurement: %w", httpx.ErrQuantityExceeded)
)
