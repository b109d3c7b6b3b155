package httptransport

import (
	"net/http"

	"github.com/vladislavdragonenkov/ordersvc/internal/service/catalog"
)

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.catalog.GetItem(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newItemResponse(item))
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.catalog.ListItems(r.Context(), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newPageResponse(result, newItemResponse))
}

func (h *Handler) searchItems(w http.ResponseWriter, r *http.Request) {
	minPrice, err := queryDecimal(r, "minPrice")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	maxPrice, err := queryDecimal(r, "maxPrice")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items, err := h.catalog.SearchItems(r.Context(), r.URL.Query().Get("name"), minPrice, maxPrice)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, newItemResponse(it))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) itemExists(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	exists, err := h.catalog.ItemExists(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, exists)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeReader(r.Body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.catalog.CreateItem(r.Context(), catalog.ItemInput{Name: req.Name, Price: req.Price})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, newItemResponse(item))
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req itemRequest
	if err := decodeReader(r.Body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.catalog.UpdateItem(r.Context(), id, catalog.ItemInput{Name: req.Name, Price: req.Price})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newItemResponse(item))
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.catalog.DeleteItem(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
