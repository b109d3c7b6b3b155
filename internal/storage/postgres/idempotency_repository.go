package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

const idempotencyTable = "idempotency_keys"

var idempotencyColumns = []string{
	"key", "method", "path", "request_hash", "status", "http_status", "response_body",
	"expires_at", "created_at", "updated_at",
}

type idempotencyRepository struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB(), psql: store.psql}
}

// CreateProcessing вставляет ключ; при нарушении уникальности читает
// существующую запись и сравнивает отпечатки.
func (r *idempotencyRepository) CreateProcessing(ctx context.Context, req domain.IdempotentRequest) (domain.IdempotencyRecord, error) {
	req, err := req.Normalize()
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	record := domain.NewIdempotencyRecord(req, time.Now().UTC())

	query, args, err := r.psql.
		Insert(idempotencyTable).
		Columns("key", "method", "path", "request_hash", "status", "expires_at", "created_at", "updated_at").
		Values(record.Key, record.Method, record.Path, record.RequestHash, string(record.Status),
			record.ExpiresAt, record.CreatedAt, record.UpdatedAt).
		ToSql()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("build insert idempotency record: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	_, err = r.db.ExecContext(opCtx, query, args...)
	cancel()
	if err == nil {
		return record, nil
	}
	if !isUniqueViolation(err) {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}

	existing, getErr := r.Get(ctx, req.Key)
	if getErr != nil {
		// Ключ успели удалить между INSERT и SELECT: для клиента это всё равно повтор.
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	return existing, existing.Conflict(req.Hash)
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := r.psql.Select(idempotencyColumns...).From(idempotencyTable).Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("build select idempotency record: %w", err)
	}

	var (
		record     domain.IdempotencyRecord
		status     string
		httpStatus sql.NullInt64
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&record.Key,
		&record.Method,
		&record.Path,
		&record.RequestHash,
		&status,
		&httpStatus,
		&record.ResponseBody,
		&record.ExpiresAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}

	record.Status = domain.IdempotencyStatus(status)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", status, key)
	}
	record.HTTPStatus = int(httpStatus.Int64)
	return record, nil
}

func (r *idempotencyRepository) Complete(ctx context.Context, key string, httpStatus int, responseBody []byte) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := r.psql.
		Update(idempotencyTable).
		SetMap(map[string]any{
			"status":        string(domain.IdempotencyStatusFor(httpStatus)),
			"http_status":   httpStatus,
			"response_body": responseBody,
			"updated_at":    time.Now().UTC(),
		}).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build complete idempotency record: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("complete idempotency record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

// DeleteExpired удаляет истёкшие ключи, начиная с самых старых; limit<=0 — без ограничения.
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	expired := sq.LtOrEq{"expires_at": before}
	del := r.psql.Delete(idempotencyTable)
	if limit > 0 {
		oldest := r.psql.
			Select("key").
			From(idempotencyTable).
			Where(expired).
			OrderBy("expires_at ASC").
			Limit(uint64(limit))
		del = del.Where(sq.Expr("key IN (?)", oldest))
	} else {
		del = del.Where(expired)
	}

	query, args, err := del.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired idempotency records: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
