package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

const (
	ordersTable     = "orders"
	orderItemsTable = "order_items"
)

var (
	orderColumns = []string{
		"id", "user_id", "status", "total_price", "deleted", "version", "created_at", "updated_at",
	}
	orderItemColumns = []string{
		"id", "order_id", "item_id", "quantity", "created_at", "updated_at",
	}
	orderSortColumns = map[string]string{
		domain.OrderSortID:         "id",
		domain.OrderSortUserID:     "user_id",
		domain.OrderSortStatus:     "status",
		domain.OrderSortTotalPrice: "total_price",
		domain.OrderSortCreatedAt:  "created_at",
		domain.OrderSortUpdatedAt:  "updated_at",
	}
)

type orderRepository struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB(), psql: store.psql}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order = order.Clone()
	query, args, err := r.psql.
		Insert(ordersTable).
		Columns("user_id", "status", "total_price", "deleted", "version", "created_at", "updated_at").
		Values(order.UserID, string(order.Status), order.TotalPrice, order.Deleted, order.Version, order.CreatedAt, order.UpdatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Order{}, fmt.Errorf("build insert order: %w", err)
	}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&order.ID); err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	if err := r.insertItems(ctx, tx, &order); err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit create order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order = order.Clone()
	query, args, err := r.psql.
		Update(ordersTable).
		Set("user_id", order.UserID).
		Set("status", string(order.Status)).
		Set("total_price", order.TotalPrice).
		Set("updated_at", order.UpdatedAt).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": order.ID, "version": order.Version, "deleted": false}).
		ToSql()
	if err != nil {
		return domain.Order{}, fmt.Errorf("build update order: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.liveOrderExistsTx(ctx, tx, order.ID)
		if err != nil {
			return domain.Order{}, err
		}
		if !exists {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, domain.ErrOrderVersionConflict
	}
	order.Version++

	// Позиции заменяются целиком: старые строки удаляются, новые вставляются.
	query, args, err = r.psql.Delete(orderItemsTable).Where(sq.Eq{"order_id": order.ID}).ToSql()
	if err != nil {
		return domain.Order{}, fmt.Errorf("build delete order items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return domain.Order{}, fmt.Errorf("delete order items: %w", err)
	}
	for i := range order.Items {
		order.Items[i].ID = 0
	}
	if err := r.insertItems(ctx, tx, &order); err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit save order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) FindByID(ctx context.Context, id int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := r.psql.
		Select(orderColumns...).
		From(ordersTable).
		Where(sq.Eq{"id": id, "deleted": false}).
		ToSql()
	if err != nil {
		return domain.Order{}, fmt.Errorf("build select order: %w", err)
	}

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	orders := []domain.Order{order}
	if err := r.attachItems(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (r *orderRepository) FindByUserID(ctx context.Context, userID int64) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.selectOrders(ctx, r.psql.
		Select(orderColumns...).
		From(ordersTable).
		Where(sq.Eq{"user_id": userID, "deleted": false}).
		OrderBy("id ASC"))
}

func (r *orderRepository) FindPage(ctx context.Context, filter domain.Filter[domain.Order], page domain.PageRequest) (domain.Page[domain.Order], error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	countQ := r.psql.Select("COUNT(*)").From(ordersTable)
	if filter != nil {
		countQ = countQ.Where(filter)
	}
	query, args, err := countQ.ToSql()
	if err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("build count orders: %w", err)
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("count orders: %w", err)
	}
	if total == 0 {
		return domain.NewPage[domain.Order](nil, page, 0), nil
	}

	column, ok := orderSortColumns[page.Sort.Field]
	if !ok {
		return domain.Page[domain.Order]{}, domain.ErrSortInvalid
	}
	dir := sortDirection(page.Sort.Direction)

	selectQ := r.psql.
		Select(orderColumns...).
		From(ordersTable).
		OrderBy(column+" "+dir, "id "+dir).
		Limit(uint64(page.Size)).
		Offset(uint64(page.Offset()))
	if filter != nil {
		selectQ = selectQ.Where(filter)
	}

	orders, err := r.selectOrders(ctx, selectQ)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return domain.NewPage(orders, page, total), nil
}

func (r *orderRepository) SoftDelete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := r.psql.
		Update(ordersTable).
		Set("deleted", true).
		Set("updated_at", time.Now().UTC()).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": id, "deleted": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build soft delete order: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("soft delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) FindAll(ctx context.Context) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.selectOrders(ctx, r.psql.Select(orderColumns...).From(ordersTable).OrderBy("id ASC"))
}

func (r *orderRepository) IsItemReferenced(ctx context.Context, itemID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sub := r.psql.Select("1").From(orderItemsTable).Where(sq.Eq{"item_id": itemID})
	query, args, err := r.psql.Select().Column(sq.Expr("EXISTS(?)", sub)).ToSql()
	if err != nil {
		return false, fmt.Errorf("build item reference check: %w", err)
	}

	var referenced bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&referenced); err != nil {
		return false, fmt.Errorf("check item reference: %w", err)
	}
	return referenced, nil
}

func (r *orderRepository) selectOrders(ctx context.Context, b sq.SelectBuilder) ([]domain.Order, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems одним запросом подгружает позиции для всех переданных заказов.
func (r *orderRepository) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids = append(ids, o.ID)
		index[o.ID] = i
		orders[i].Items = make([]domain.OrderItem, 0)
	}

	query, args, err := r.psql.
		Select(orderItemColumns...).
		From(orderItemsTable).
		Where(sq.Eq{"order_id": ids}).
		OrderBy("order_id ASC", "id ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("build load order items: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ItemID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order items: %w", err)
	}
	return nil
}

func (r *orderRepository) insertItems(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if item.CreatedAt.IsZero() {
			item.CreatedAt = order.UpdatedAt
		}
		if item.UpdatedAt.IsZero() {
			item.UpdatedAt = order.UpdatedAt
		}

		query, args, err := r.psql.
			Insert(orderItemsTable).
			Columns("order_id", "item_id", "quantity", "created_at", "updated_at").
			Values(item.OrderID, item.ItemID, item.Quantity, item.CreatedAt, item.UpdatedAt).
			Suffix("RETURNING id").
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert order item: %w", err)
		}
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&item.ID); err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrItemNotFound
			}
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *orderRepository) liveOrderExistsTx(ctx context.Context, tx *sql.Tx, orderID int64) (bool, error) {
	query, args, err := r.psql.Select("id").From(ordersTable).Where(sq.Eq{"id": orderID, "deleted": false}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build order exists: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(
		&order.ID, &order.UserID, &status, &order.TotalPrice,
		&order.Deleted, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
