package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// helper для создания базового заказа с двумя позициями.
func makeOrder() (domain.Order, map[int64]decimal.Decimal) {
	now := time.Now().UTC()
	prices := map[int64]decimal.Decimal{
		10: decimal.RequireFromString("2.50"),
		20: decimal.RequireFromString("1.00"),
	}
	return domain.Order{
		ID:         1,
		UserID:     7,
		Status:     domain.OrderStatusCreated,
		TotalPrice: decimal.RequireFromString("6.00"),
		Items: []domain.OrderItem{
			{ID: 100, OrderID: 1, ItemID: 10, Quantity: 2, CreatedAt: now},
			{ID: 101, OrderID: 1, ItemID: 20, Quantity: 1, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, prices
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order, prices := makeOrder()
	if errs := order.ValidateInvariants(prices); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no user",
			mut:  func(o *domain.Order) { o.UserID = 0 },
			want: domain.ErrUserIDRequired,
		},
		{
			name: "unknown status",
			mut:  func(o *domain.Order) { o.Status = "LOST" },
			want: domain.ErrOrderStatusInvalid,
		},
		{
			name: "no items",
			mut: func(o *domain.Order) {
				o.Items = nil
				o.TotalPrice = decimal.Zero
			},
			want: domain.ErrItemsRequired,
		},
		{
			name: "qty invalid",
			mut:  func(o *domain.Order) { o.Items[0].Quantity = 0 },
			want: domain.ErrItemQtyInvalid,
		},
		{
			name: "unknown item",
			mut:  func(o *domain.Order) { o.Items[1].ItemID = 99 },
			want: domain.ErrItemNotFound,
		},
		{
			name: "total mismatch",
			mut:  func(o *domain.Order) { o.TotalPrice = decimal.RequireFromString("6.01") },
			want: domain.ErrTotalMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order, prices := makeOrder()
			tc.mut(&order)

			errs := order.ValidateInvariants(prices)
			if len(errs) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
			if !errors.Is(errors.Join(errs...), tc.want) {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestOrderReplaceItems(t *testing.T) {
	order, _ := makeOrder()
	old := order.Items

	order.ReplaceItems([]domain.OrderItem{{ID: 555, ItemID: 30, Quantity: 4}})

	if len(order.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(order.Items))
	}
	got := order.Items[0]
	if got.ID != 0 || got.OrderID != order.ID || got.ItemID != 30 || got.Quantity != 4 {
		t.Fatalf("unexpected replaced item: %+v", got)
	}
	for _, item := range old {
		if item.OrderID != 0 {
			t.Fatalf("old item %d still references order %d", item.ID, item.OrderID)
		}
	}
}

func TestOrderClone(t *testing.T) {
	order, _ := makeOrder()
	clone := order.Clone()
	clone.Items[0].Quantity = 42

	if order.Items[0].Quantity == 42 {
		t.Fatal("clone shares items slice with original")
	}
}

func TestParseOrderStatus(t *testing.T) {
	status, err := domain.ParseOrderStatus("SHIPPED")
	if err != nil || status != domain.OrderStatusShipped {
		t.Fatalf("unexpected parse result: %q, %v", status, err)
	}
	status, err = domain.ParseOrderStatus(" delivered ")
	if err != nil || status != domain.OrderStatusDelivered {
		t.Fatalf("expected case-insensitive parse, got %q, %v", status, err)
	}
	if _, err := domain.ParseOrderStatus("lost"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for unknown status, got %v", err)
	}
}

func TestNormalizeOrderStatus(t *testing.T) {
	if got := domain.NormalizeOrderStatus(""); got != "" {
		t.Fatalf("empty status must stay empty, got %q", got)
	}
	if got := domain.NormalizeOrderStatus(" processing"); got != domain.OrderStatusProcessing {
		t.Fatalf("unexpected normalized status %q", got)
	}
}

func TestLineTotal(t *testing.T) {
	got := domain.LineTotal(decimal.RequireFromString("0.10"), 3)
	if !got.Equal(decimal.RequireFromString("0.30")) {
		t.Fatalf("unexpected line total %s", got)
	}
}

func TestItemValidate(t *testing.T) {
	valid := domain.Item{Name: "Pen", Price: decimal.RequireFromString("1.20")}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blank := domain.Item{Name: "  ", Price: decimal.NewFromInt(1)}
	if err := blank.Validate(); !errors.Is(err, domain.ErrItemNameRequired) {
		t.Fatalf("expected name error, got %v", err)
	}

	free := domain.Item{Name: "Pen", Price: decimal.Zero}
	if err := free.Validate(); !errors.Is(err, domain.ErrItemPriceInvalid) {
		t.Fatalf("expected price error, got %v", err)
	}
}
