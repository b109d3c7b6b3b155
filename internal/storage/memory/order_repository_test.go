package memory_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	"github.com/vladislavdragonenkov/ordersvc/internal/specification"
	"github.com/vladislavdragonenkov/ordersvc/internal/storage/memory"
)

func newOrder(userID int64, createdAt time.Time) domain.Order {
	return domain.Order{
		UserID:     userID,
		Status:     domain.OrderStatusCreated,
		TotalPrice: decimal.RequireFromString("5.00"),
		Items: []domain.OrderItem{
			{ItemID: 1, Quantity: 5},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestOrderRepository_CreateAssignsIDs(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()

	first, err := repo.Create(ctx, newOrder(1, time.Now().UTC()))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	second, err := repo.Create(ctx, newOrder(1, time.Now().UTC()))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if first.ID == 0 || second.ID <= first.ID {
		t.Fatalf("unexpected ids: %d, %d", first.ID, second.ID)
	}
	if first.Items[0].ID == 0 || first.Items[0].OrderID != first.ID {
		t.Fatalf("item not linked to order: %+v", first.Items[0])
	}

	stored, err := repo.FindByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if stored.ID != first.ID || len(stored.Items) != 1 {
		t.Fatalf("unexpected stored order: %+v", stored)
	}
}

func TestOrderRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()

	created, err := repo.Create(ctx, newOrder(1, time.Now().UTC()))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	created.Items[0].Quantity = 99

	stored, err := repo.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if stored.Items[0].Quantity != 5 {
		t.Fatalf("repository state mutated through returned value: %d", stored.Items[0].Quantity)
	}
}

func TestOrderRepository_SaveVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()

	created, err := repo.Create(ctx, newOrder(1, time.Now().UTC()))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	created.ReplaceItems([]domain.OrderItem{{ItemID: 2, Quantity: 1}})
	saved, err := repo.Save(ctx, created)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.Version != created.Version+1 {
		t.Fatalf("expected version %d, got %d", created.Version+1, saved.Version)
	}
	if saved.Items[0].ID == 0 || saved.Items[0].ItemID != 2 {
		t.Fatalf("items not replaced: %+v", saved.Items)
	}

	// Повторное сохранение со старой версией должно упасть.
	if _, err := repo.Save(ctx, created); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestOrderRepository_SoftDelete(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()

	created, err := repo.Create(ctx, newOrder(1, time.Now().UTC()))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := repo.SoftDelete(ctx, created.ID); err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}
	if err := repo.SoftDelete(ctx, created.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := repo.FindByID(ctx, created.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected deleted order to be hidden, got %v", err)
	}

	all, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("find all failed: %v", err)
	}
	if len(all) != 1 || !all[0].Deleted || len(all[0].Items) != 1 {
		t.Fatalf("expected soft deleted record with items, got %+v", all)
	}

	referenced, err := repo.IsItemReferenced(ctx, 1)
	if err != nil || !referenced {
		t.Fatalf("expected item 1 to stay referenced, got %v, %v", referenced, err)
	}
}

func TestOrderRepository_FindByUserID(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	now := time.Now().UTC()

	a, _ := repo.Create(ctx, newOrder(7, now))
	_, _ = repo.Create(ctx, newOrder(8, now))
	c, _ := repo.Create(ctx, newOrder(7, now.Add(-time.Hour)))
	d, _ := repo.Create(ctx, newOrder(7, now))
	if err := repo.SoftDelete(ctx, d.ID); err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}

	orders, err := repo.FindByUserID(ctx, 7)
	if err != nil {
		t.Fatalf("find by user failed: %v", err)
	}
	if len(orders) != 2 || orders[0].ID != a.ID || orders[1].ID != c.ID {
		t.Fatalf("unexpected orders for user: %+v", orders)
	}
}

func TestOrderRepository_FindPage(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var ids []int64
	for i := 0; i < 5; i++ {
		created, err := repo.Create(ctx, newOrder(1, base.Add(time.Duration(i)*time.Hour)))
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		ids = append(ids, created.ID)
	}
	if err := repo.SoftDelete(ctx, ids[4]); err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}

	filter := specification.BuildOrderSpecification(nil, nil, nil)
	req := domain.PageRequest{
		Page: 1,
		Size: 3,
		Sort: domain.Sort{Field: domain.OrderSortCreatedAt, Direction: domain.SortDesc},
	}

	page, err := repo.FindPage(ctx, filter, req)
	if err != nil {
		t.Fatalf("find page failed: %v", err)
	}
	if page.TotalElements != 4 || page.TotalPages() != 2 {
		t.Fatalf("unexpected totals: %d elements, %d pages", page.TotalElements, page.TotalPages())
	}
	if len(page.Content) != 1 || page.Content[0].ID != ids[0] {
		t.Fatalf("unexpected page content: %+v", page.Content)
	}

	beyond, err := repo.FindPage(ctx, filter, domain.PageRequest{Page: 5, Size: 3, Sort: req.Sort})
	if err != nil {
		t.Fatalf("find page failed: %v", err)
	}
	if len(beyond.Content) != 0 || beyond.TotalElements != 4 {
		t.Fatalf("expected empty page past the end, got %+v", beyond)
	}

	huge, err := repo.FindPage(ctx, filter, domain.PageRequest{Page: math.MaxInt/3 + 1, Size: 3, Sort: req.Sort})
	if err != nil {
		t.Fatalf("find page failed: %v", err)
	}
	if len(huge.Content) != 0 || huge.TotalElements != 4 {
		t.Fatalf("expected empty page for overflowing offset, got %+v", huge)
	}
}
