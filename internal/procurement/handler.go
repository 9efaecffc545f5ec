package procurement

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes the procurement workflow as a JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-requests", func(r chi.Router) {
		r.Post("/", h.createRequest)
		r.Get("/", h.listRequests)
		r.Get("/{id}", h.getRequest)
		r.Post("/{id}/approve", h.approveRequest)
		r.Get("/{id}/approvals", h.approvalHistory)
		r.Post("/{id}/close", h.closeRequest)
	})
	r.Post("/quotes", h.addQuote)
	r.Get("/quotes/compare/{requestID}", h.compareQuotes)
	r.Route("/orders", func(r chi.Router) {
		r.Post("/from-quote/{quoteID}", h.createOrder)
		r.Get("/{id}", h.getOrder)
		r.Post("/{id}/status", h.updateOrderStatus)
		r.Get("/{id}/receipts", h.listReceipts)
	})
	r.Post("/grn", h.recordReceipt)
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var input CreateRequestInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return
	}
	if !h.validate(w, input) {
		return
	}
	pr, lines, err := h.service.CreatePurchaseRequest(r.Context(), input)
	if err != nil {
		h.respondError(w, "create purchase request", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"request": pr, "items": lines})
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	status := r.URL.Query().Get("status")
	pag := shared.NewPagination(page, perPage, 0)
	items, total, err := h.service.ListRequests(r.Context(), pag.PerPage, pag.Offset(), status)
	if err != nil {
		h.respondError(w, "list purchase requests", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"requests":   items,
		"pagination": shared.NewPagination(pag.Page, pag.PerPage, total),
	})
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	pr, lines, quotes, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		h.respondError(w, "get purchase request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"request": pr, "items": lines, "quotes": quotes})
}

func (h *Handler) approveRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.ApproveRequest(r.Context(), id, actorID(r)); err != nil {
		h.respondError(w, "approve purchase request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "status": RequestStatusApproved})
}

func (h *Handler) approvalHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	history, err := h.service.ApprovalHistory(r.Context(), id)
	if err != nil {
		h.respondError(w, "load approval history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"approvals": history})
}

func (h *Handler) closeRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.CloseRequest(r.Context(), id); err != nil {
		h.respondError(w, "close purchase request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "status": RequestStatusClosed})
}

func (h *Handler) addQuote(w http.ResponseWriter, r *http.Request) {
	var input AddQuoteInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return
	}
	if input.RequestID == 0 {
		if id, err := strconv.ParseInt(r.URL.Query().Get("request_id"), 10, 64); err == nil {
			input.RequestID = id
		}
	}
	if !h.validate(w, input) {
		return
	}
	quote, warnings, err := h.service.AddQuote(r.Context(), input)
	if err != nil {
		h.respondError(w, "add vendor quote", err)
		return
	}
	if warnings == nil {
		warnings = []string{}
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"quote": quote, "warnings": warnings})
}

func (h *Handler) compareQuotes(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "requestID")
	if !ok {
		return
	}
	pr, _, quotes, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		h.respondError(w, "get purchase request", err)
		return
	}
	cmp, err := h.service.Compare(r.Context(), id)
	if err != nil {
		h.respondError(w, "compare quotes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"request": pr, "quotes": quotes, "comparison": cmp})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	quoteID, ok := h.pathID(w, r, "quoteID")
	if !ok {
		return
	}
	input := CreateOrderInput{QuoteID: quoteID, ActorID: actorID(r)}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &input); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
			return
		}
		input.QuoteID = quoteID
		input.ActorID = actorID(r)
	}
	if !h.validate(w, input) {
		return
	}
	po, lines, err := h.service.CreateOrderFromQuote(r.Context(), input)
	if err != nil {
		h.respondError(w, "create purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"order": po, "items": lines})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	po, lines, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": po, "items": lines})
}

type updateStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required,oneof=DRAFT SENT CONFIRMED PARTIAL RECEIVED CANCELLED"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var input updateStatusRequest
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return
	}
	if !h.validate(w, input) {
		return
	}
	if err := h.service.UpdateOrderStatus(r.Context(), id, input.Status, actorID(r)); err != nil {
		h.respondError(w, "update order status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "status": input.Status})
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	receipts, err := h.service.ListReceipts(r.Context(), id)
	if err != nil {
		h.respondError(w, "list receipts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

func (h *Handler) recordReceipt(w http.ResponseWriter, r *http.Request) {
	var input RecordReceiptInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return
	}
	if !h.validate(w, input) {
		return
	}
	grn, order, err := h.service.RecordGoodsReceipt(r.Context(), input)
	if err != nil {
		h.respondError(w, "record goods receipt", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"grn": grn, "order": order})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id in path")
		return 0, false
	}
	return id, true
}

func (h *Handler) validate(w http.ResponseWriter, input any) bool {
	if err := h.validator.Struct(input); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" "+fe.Tag())
			}
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(fields, "; "))
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

// actorID reads the acting user from the X-Actor-ID header; identity is
// resolved upstream by the gateway.
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}

