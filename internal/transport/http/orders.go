package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/ordersvc/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/orders"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, badRequest("failed to read request body"))
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if key == "" || h.guard == nil {
		status, payload := h.createOrderResponse(r, body)
		writeBody(w, status, payload)
		return
	}

	req := idempotency.Request{Key: key, Method: r.Method, Path: r.URL.Path, Body: body}
	resp, err := h.guard.Execute(r.Context(), req, func(context.Context) idempotency.Response {
		status, payload := h.createOrderResponse(r, body)
		return idempotency.Response{Status: status, Body: payload}
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeBody(w, resp.Status, resp.Body)
}

func (h *Handler) createOrderResponse(r *http.Request, body []byte) (int, []byte) {
	var req orderRequest
	if err := decodeBody(body, &req); err != nil {
		return encodeError(h.logger, r, err)
	}

	view, err := h.orders.CreateOrder(r.Context(), req.toDomain())
	if err != nil {
		return encodeError(h.logger, r, err)
	}
	return encodeJSON(h.logger, http.StatusCreated, newOrderResponse(view))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.orders.GetOrderByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newOrderResponse(view))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	start, err := queryTime(r, "startDate")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	end, err := queryTime(r, "endDate")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.orders.GetOrdersWithFilter(r.Context(), orders.OrderQuery{
		StartDate: start,
		EndDate:   end,
		Statuses:  queryStatuses(r),
		Page:      page,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newPageResponse(result, newOrderResponse))
}

func (h *Handler) ordersByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views, err := h.orders.GetOrdersByUserID(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newOrderResponses(views))
}

func (h *Handler) ordersByEmail(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		h.writeError(w, r, badRequest("invalid email"))
		return
	}

	views, err := h.orders.GetOrdersByUserEmail(r.Context(), email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newOrderResponses(views))
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req orderRequest
	if err := decodeReader(r.Body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.orders.UpdateOrder(r.Context(), id, req.toDomain())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newOrderResponse(view))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.orders.DeleteOrder(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeReader(r io.Reader, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return badRequest("failed to read request body")
	}
	return decodeBody(body, dst)
}

func decodeBody(body []byte, dst any) error {
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is required")
		}
		return badRequest("malformed JSON request: " + err.Error())
	}
	return nil
}
