package httptransport

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// Форматы дат в параметрах: RFC 3339 и локальное время без зоны (трактуется как UTC).
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(fmt.Sprintf("invalid %s: %q", name, raw))
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(fmt.Sprintf("invalid %s: %q", name, raw))
	}
	return v, nil
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, badRequest(fmt.Sprintf("invalid %s: %q", name, raw))
}

func queryDecimal(r *http.Request, name string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, badRequest(fmt.Sprintf("invalid %s: %q", name, raw))
	}
	return &d, nil
}

// queryStatuses принимает как statuses=A,B, так и повторяющийся параметр.
func queryStatuses(r *http.Request) []domain.OrderStatus {
	var statuses []domain.OrderStatus
	for _, raw := range r.URL.Query()["statuses"] {
		for _, part := range strings.Split(raw, ",") {
			if status := domain.NormalizeOrderStatus(part); status != "" {
				statuses = append(statuses, status)
			}
		}
	}
	return statuses
}

// pageRequest читает page, size, sortBy и sortDirection.
func pageRequest(r *http.Request) (domain.PageRequest, error) {
	page, err := queryInt(r, "page", 0)
	if err != nil {
		return domain.PageRequest{}, err
	}
	size, err := queryInt(r, "size", domain.DefaultPageSize)
	if err != nil {
		return domain.PageRequest{}, err
	}
	direction, err := domain.ParseSortDirection(r.URL.Query().Get("sortDirection"))
	if err != nil {
		return domain.PageRequest{}, err
	}

	sortBy := strings.TrimSpace(r.URL.Query().Get("sortBy"))
	if sortBy == "" {
		sortBy = "id"
	}

	return domain.PageRequest{
		Page: page,
		Size: size,
		Sort: domain.Sort{Field: sortBy, Direction: direction},
	}, nil
}
