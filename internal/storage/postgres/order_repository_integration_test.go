package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	"github.com/vladislavdragonenkov/ordersvc/internal/specification"
)

func seedItem(t *testing.T, repo domain.ItemRepository, name, price string) domain.Item {
	t.Helper()

	now := time.Now().UTC().Round(time.Microsecond)
	item, err := repo.Create(context.Background(), domain.Item{
		Name:      name,
		Price:     decimal.RequireFromString(price),
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return item
}

func sampleOrder(userID, itemID int64, qty int32, total string, createdAt time.Time) domain.Order {
	return domain.Order{
		UserID:     userID,
		Status:     domain.OrderStatusCreated,
		TotalPrice: decimal.RequireFromString(total),
		Items:      []domain.OrderItem{{ItemID: itemID, Quantity: qty}},
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func TestOrderRepository_PostgresCreateFindAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	items := NewItemRepository(store)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	pen := seedItem(t, items, "Pen", "1.25")
	book := seedItem(t, items, "Book", "10.00")

	now := time.Now().UTC().Round(time.Microsecond)
	created, err := repo.Create(ctx, sampleOrder(7, pen.ID, 4, "5.00", now))
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Len(t, created.Items, 1)
	require.NotZero(t, created.Items[0].ID)

	got, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(7), got.UserID)
	require.True(t, got.TotalPrice.Equal(decimal.RequireFromString("5")), "total %s", got.TotalPrice)
	require.Equal(t, pen.ID, got.Items[0].ItemID)

	got.ReplaceItems([]domain.OrderItem{{ItemID: book.ID, Quantity: 1}, {ItemID: pen.ID, Quantity: 2}})
	got.TotalPrice = decimal.RequireFromString("12.50")
	got.Status = domain.OrderStatusProcessing
	got.UpdatedAt = now.Add(time.Minute)

	saved, err := repo.Save(ctx, got)
	require.NoError(t, err)
	require.Equal(t, got.Version+1, saved.Version)

	reloaded, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusProcessing, reloaded.Status)
	require.Len(t, reloaded.Items, 2)
	require.True(t, reloaded.CreatedAt.Equal(now))

	// Сохранение с устаревшей версией.
	_, err = repo.Save(ctx, got)
	require.True(t, errors.Is(err, domain.ErrOrderVersionConflict), "got %v", err)
}

func TestOrderRepository_PostgresSoftDeleteAndReferences(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	items := NewItemRepository(store)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	pen := seedItem(t, items, "Pen", "1.00")
	unused := seedItem(t, items, "Eraser", "0.50")

	created, err := repo.Create(ctx, sampleOrder(1, pen.ID, 1, "1.00", time.Now().UTC()))
	require.NoError(t, err)

	require.NoError(t, repo.SoftDelete(ctx, created.ID))
	require.ErrorIs(t, repo.SoftDelete(ctx, created.ID), domain.ErrOrderNotFound)

	_, err = repo.FindByID(ctx, created.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.True(t, all[0].Deleted)
	require.Len(t, all[0].Items, 1)

	referenced, err := repo.IsItemReferenced(ctx, pen.ID)
	require.NoError(t, err)
	require.True(t, referenced)

	referenced, err = repo.IsItemReferenced(ctx, unused.ID)
	require.NoError(t, err)
	require.False(t, referenced)

	require.ErrorIs(t, items.Delete(ctx, pen.ID), domain.ErrItemInUse)
}

func TestOrderRepository_PostgresFindPageWithSpecification(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	items := NewItemRepository(store)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	pen := seedItem(t, items, "Pen", "1.00")
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	var ids []int64
	for i, status := range []domain.OrderStatus{
		domain.OrderStatusCreated,
		domain.OrderStatusShipped,
		domain.OrderStatusShipped,
		domain.OrderStatusCancelled,
	} {
		order := sampleOrder(int64(i+1), pen.ID, 1, "1.00", base.Add(time.Duration(i)*24*time.Hour))
		order.Status = status
		created, err := repo.Create(ctx, order)
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	start := base
	end := base.Add(2 * 24 * time.Hour)
	filter := specification.BuildOrderSpecification(&start, &end, []domain.OrderStatus{domain.OrderStatusShipped})

	page, err := repo.FindPage(ctx, filter, domain.PageRequest{
		Page: 0,
		Size: 10,
		Sort: domain.Sort{Field: domain.OrderSortCreatedAt, Direction: domain.SortDesc},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), page.TotalElements)
	require.Len(t, page.Content, 2)
	require.Equal(t, ids[2], page.Content[0].ID)
	require.Equal(t, ids[1], page.Content[1].ID)
	require.Len(t, page.Content[0].Items, 1)

	byUser, err := repo.FindByUserID(ctx, 2)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	require.Equal(t, ids[1], byUser[0].ID)
}

func TestItemRepository_PostgresSearch(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewItemRepository(store)
	ctx := context.Background()

	seedItem(t, repo, "Red Pen", "1.50")
	seedItem(t, repo, "Blue pen", "3.00")
	seedItem(t, repo, "100% Paper", "7.25")

	lo := decimal.RequireFromString("2")
	found, err := repo.FindAll(ctx, specification.BuildItemSpecification("PEN", &lo, nil))
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "Blue pen", found[0].Name)

	found, err = repo.FindAll(ctx, specification.NameContains("0%"))
	require.NoError(t, err)
	require.Len(t, found, 1)

	page, err := repo.FindPage(ctx, nil, domain.PageRequest{
		Page: 0,
		Size: 2,
		Sort: domain.Sort{Field: domain.ItemSortPrice, Direction: domain.SortAsc},
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), page.TotalElements)
	require.Equal(t, "Red Pen", page.Content[0].Name)

	exists, err := repo.Exists(ctx, page.Content[0].ID)
	require.NoError(t, err)
	require.True(t, exists)
}
