package httptransport

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/orders"
)

type orderLineRequest struct {
	ItemID   int64 `json:"itemId"`
	Quantity int32 `json:"quantity"`
}

type orderRequest struct {
	UserID int64              `json:"userId"`
	Status string             `json:"status,omitempty"`
	Items  []orderLineRequest `json:"items"`
}

func (r orderRequest) toDomain() orders.OrderRequest {
	lines := make([]orders.LineRequest, 0, len(r.Items))
	for _, it := range r.Items {
		lines = append(lines, orders.LineRequest{ItemID: it.ItemID, Quantity: it.Quantity})
	}
	return orders.OrderRequest{
		UserID: r.UserID,
		Status: domain.NormalizeOrderStatus(r.Status),
		Items:  lines,
	}
}

type userInfoResponse struct {
	ID     int64  `json:"id,omitempty"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type orderItemResponse struct {
	ID        int64       `json:"id"`
	ItemID    int64       `json:"itemId"`
	ItemName  string      `json:"itemName"`
	ItemPrice json.Number `json:"itemPrice"`
	Quantity  int32       `json:"quantity"`
}

type orderResponse struct {
	ID         int64               `json:"id"`
	UserID     int64               `json:"userId"`
	Status     string              `json:"status"`
	TotalPrice json.Number         `json:"totalPrice"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
	UserInfo   userInfoResponse    `json:"userInfo"`
	Items      []orderItemResponse `json:"items"`
}

func newOrderResponse(v orders.OrderView) orderResponse {
	items := make([]orderItemResponse, 0, len(v.Items))
	for _, it := range v.Items {
		items = append(items, orderItemResponse{
			ID:        it.ID,
			ItemID:    it.ItemID,
			ItemName:  it.ItemName,
			ItemPrice: money(it.ItemPrice),
			Quantity:  it.Quantity,
		})
	}
	return orderResponse{
		ID:         v.ID,
		UserID:     v.UserID,
		Status:     string(v.Status),
		TotalPrice: money(v.TotalPrice),
		CreatedAt:  v.CreatedAt,
		UpdatedAt:  v.UpdatedAt,
		UserInfo: userInfoResponse{
			ID:     v.UserInfo.ID,
			Name:   v.UserInfo.Name,
			Active: v.UserInfo.Active,
		},
		Items: items,
	}
}

func newOrderResponses(views []orders.OrderView) []orderResponse {
	out := make([]orderResponse, 0, len(views))
	for _, v := range views {
		out = append(out, newOrderResponse(v))
	}
	return out
}

type itemRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type itemResponse struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func newItemResponse(i domain.Item) itemResponse {
	return itemResponse{
		ID:        i.ID,
		Name:      i.Name,
		Price:     money(i.Price),
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

type pageResponse[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

func newPageResponse[T, R any](p domain.Page[T], fn func(T) R) pageResponse[R] {
	mapped := domain.MapPage(p, fn)
	return pageResponse[R]{
		Content:       mapped.Content,
		Page:          mapped.Page,
		Size:          mapped.Size,
		TotalElements: mapped.TotalElements,
		TotalPages:    mapped.TotalPages(),
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// money отдаёт сумму числом с двумя знаками после запятой.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
