package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

const itemsTable = "items"

var (
	itemColumns     = []string{"id", "name", "price", "created_at", "updated_at"}
	itemSortColumns = map[string]string{
		domain.ItemSortID:        "id",
		domain.ItemSortName:      "name",
		domain.ItemSortPrice:     "price",
		domain.ItemSortCreatedAt: "created_at",
		domain.ItemSortUpdatedAt: "updated_at",
	}
)

type itemRepository struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

// NewItemRepository создаёт PostgreSQL-реализацию каталога товаров.
func NewItemRepository(store *Store) domain.ItemRepository {
	return &itemRepository{db: store.DB(), psql: store.psql}
}

func (r *itemRepository) Create(ctx context.Context, item domain.Item) (domain.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := r.psql.
		Insert(itemsTable).
		Columns("name", "price", "created_at", "updated_at").
		Values(item.Name, item.Price, item.CreatedAt, item.UpdatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Item{}, fmt.Errorf("build insert item: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&item.ID); err != nil {
		return domain.Item{}, fmt.Errorf("insert item: %w", err)
	}
	return item, nil
}

func (r *itemRepository) Save(ctx context.Context, item domain.Item) (domain.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := r.psql.
		Update(itemsTable).
		Set("name", item.Name).
		Set("price", item.Price).
		Set("updated_at", item.UpdatedAt).
		Where(sq.Eq{"id": item.ID}).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return domain.Item{}, fmt.Errorf("build update item: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Item{}, domain.ErrItemNotFound
		}
		return domain.Item{}, fmt.Errorf("update item: %w", err)
	}
	return item, nil
}

func (r *itemRepository) FindByID(ctx context.Context, id int64) (domain.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := r.psql.Select(itemColumns...).From(itemsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Item{}, fmt.Errorf("build select item: %w", err)
	}

	item, err := scanItem(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Item{}, domain.ErrItemNotFound
		}
		return domain.Item{}, fmt.Errorf("select item: %w", err)
	}
	return item, nil
}

func (r *itemRepository) FindPage(ctx context.Context, filter domain.Filter[domain.Item], page domain.PageRequest) (domain.Page[domain.Item], error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	countQ := r.psql.Select("COUNT(*)").From(itemsTable)
	if filter != nil {
		countQ = countQ.Where(filter)
	}
	query, args, err := countQ.ToSql()
	if err != nil {
		return domain.Page[domain.Item]{}, fmt.Errorf("build count items: %w", err)
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return domain.Page[domain.Item]{}, fmt.Errorf("count items: %w", err)
	}
	if total == 0 {
		return domain.NewPage[domain.Item](nil, page, 0), nil
	}

	column, ok := itemSortColumns[page.Sort.Field]
	if !ok {
		return domain.Page[domain.Item]{}, domain.ErrSortInvalid
	}
	dir := sortDirection(page.Sort.Direction)

	selectQ := r.psql.
		Select(itemColumns...).
		From(itemsTable).
		OrderBy(column+" "+dir, "id "+dir).
		Limit(uint64(page.Size)).
		Offset(uint64(page.Offset()))
	if filter != nil {
		selectQ = selectQ.Where(filter)
	}

	items, err := r.selectItems(ctx, selectQ)
	if err != nil {
		return domain.Page[domain.Item]{}, err
	}
	return domain.NewPage(items, page, total), nil
}

func (r *itemRepository) FindAll(ctx context.Context, filter domain.Filter[domain.Item]) ([]domain.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	b := r.psql.Select(itemColumns...).From(itemsTable).OrderBy("id ASC")
	if filter != nil {
		b = b.Where(filter)
	}
	return r.selectItems(ctx, b)
}

func (r *itemRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := r.psql.Delete(itemsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete item: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrItemInUse
		}
		return fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

func (r *itemRepository) Exists(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sub := r.psql.Select("1").From(itemsTable).Where(sq.Eq{"id": id})
	query, args, err := r.psql.Select().Column(sq.Expr("EXISTS(?)", sub)).ToSql()
	if err != nil {
		return false, fmt.Errorf("build item exists: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check item exists: %w", err)
	}
	return exists, nil
}

func (r *itemRepository) selectItems(ctx context.Context, b sq.SelectBuilder) ([]domain.Item, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select items: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item rows: %w", err)
	}
	return items, nil
}

func scanItem(row rowScanner) (domain.Item, error) {
	var item domain.Item
	if err := row.Scan(&item.ID, &item.Name, &item.Price, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return domain.Item{}, err
	}
	return item, nil
}

var _ domain.ItemRepository = (*itemRepository)(nil)
