package procurement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (chi.Router, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)
	h := NewHandler(slog.Default(), svc)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r, repo
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Actor-ID", "7")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestHandlerCreateRequest(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/purchase-requests", map[string]any{
		"title": "Site electricals",
		"items": []map[string]any{
			{"description": "Copper cable 2.5mm", "quantity": 10, "estimated_unit_price": 100},
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	body := decodeBody(t, rr)
	request := body["request"].(map[string]any)
	require.Equal(t, "PR-2026-00001", request["pr_no"])
	require.Equal(t, "PENDING", request["status"])
	require.InDelta(t, 1000.0, request["total_estimated"].(float64), 0.001)
}

func TestHandlerCreateRequestRejectsBadPayload(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/purchase-requests", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	// Valid JSON failing validation: no items.
	rr = doJSON(t, r, http.MethodPost, "/purchase-requests", map[string]any{"title": "empty"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestHandlerGetRequestNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodGet, "/purchase-requests/99", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, r, http.MethodGet, "/purchase-requests/abc", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerQuoteToReceiptFlow(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/purchase-requests", map[string]any{
		"title": "Site electricals",
		"items": []map[string]any{
			{"description": "Copper cable 2.5mm", "quantity": 10, "estimated_unit_price": 100},
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	requestID := int64(decodeBody(t, rr)["request"].(map[string]any)["id"].(float64))

	for i, vendor := range []struct {
		name  string
		price float64
	}{{"Apex Electricals", 95}, {"Borealis Supply Co", 90}} {
		rr = doJSON(t, r, http.MethodPost, fmt.Sprintf("/quotes?request_id=%d", requestID), map[string]any{
			"vendor_name": vendor.name,
			"items":       []map[string]any{{"quoted_price": vendor.price}},
		})
		require.Equal(t, http.StatusCreated, rr.Code, "quote %d", i)
	}

	rr = doJSON(t, r, http.MethodGet, fmt.Sprintf("/quotes/compare/%d", requestID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	comparison := body["comparison"].(map[string]any)
	lowest := comparison["lowest_total"].(map[string]any)
	require.Equal(t, "Borealis Supply Co", lowest["vendor_name"])
	require.InDelta(t, 50.0, comparison["savings_potential"].(float64), 0.001)
	quoteID := int64(lowest["quote_id"].(float64))

	rr = doJSON(t, r, http.MethodPost, fmt.Sprintf("/orders/from-quote/%d", quoteID), map[string]any{"gst_percent": 18})
	require.Equal(t, http.StatusCreated, rr.Code)
	body = decodeBody(t, rr)
	order := body["order"].(map[string]any)
	require.Equal(t, "SENT", order["status"])
	require.InDelta(t, 1062.0, order["total_amount"].(float64), 0.001)
	orderID := int64(order["id"].(float64))
	lineID := int64(body["items"].([]any)[0].(map[string]any)["id"].(float64))

	// Second order for the same request conflicts.
	rr = doJSON(t, r, http.MethodPost, fmt.Sprintf("/orders/from-quote/%d", quoteID), nil)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, r, http.MethodPost, "/grn", map[string]any{
		"purchase_order_id": orderID,
		"items": []map[string]any{
			{"order_line_id": lineID, "received_qty": 6, "accepted_qty": 6},
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	body = decodeBody(t, rr)
	require.Equal(t, "PARTIAL", body["order"].(map[string]any)["status"])
	require.InDelta(t, 540.0, body["grn"].(map[string]any)["total_received_value"].(float64), 0.001)

	// Over-delivery on the remaining quantity maps to 422.
	rr = doJSON(t, r, http.MethodPost, "/grn", map[string]any{
		"purchase_order_id": orderID,
		"items": []map[string]any{
			{"order_line_id": lineID, "received_qty": 5, "accepted_qty": 5},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = doJSON(t, r, http.MethodPost, "/grn", map[string]any{
		"purchase_order_id": orderID,
		"items": []map[string]any{
			{"order_line_id": lineID, "received_qty": 4, "accepted_qty": 4},
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "RECEIVED", decodeBody(t, rr)["order"].(map[string]any)["status"])
}

func TestHandlerUpdateOrderStatus(t *testing.T) {
	r, repo := newTestRouter(t)
	svc := NewService(repo, nil, nil, nil, nil)
	po, _ := issueOrder(t, svc)

	rr := doJSON(t, r, http.MethodPost, fmt.Sprintf("/orders/%d/status", po.ID), map[string]any{"status": "CONFIRMED"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, r, http.MethodPost, fmt.Sprintf("/orders/%d/status", po.ID), map[string]any{"status": "RECEIVED"})
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, r, http.MethodPost, fmt.Sprintf("/orders/%d/status", po.ID), map[string]any{"status": "BOGUS"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerApprovalHistory(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/purchase-requests", map[string]any{
		"title": "Site electricals",
		"items": []map[string]any{
			{"description": "Copper cable 2.5mm", "quantity": 10, "estimated_unit_price": 100},
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	requestID := int64(decodeBody(t, rr)["request"].(map[string]any)["id"].(float64))

	rr = doJSON(t, r, http.MethodGet, fmt.Sprintf("/purchase-requests/%d/approvals", requestID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, decodeBody(t, rr), "approvals")

	rr = doJSON(t, r, http.MethodGet, "/purchase-requests/99/approvals", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
