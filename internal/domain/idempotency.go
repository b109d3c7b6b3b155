package domain

import (
	"net/http"
	"strings"
	"time"
)

const (
	// MaxIdempotencyKeyLength ограничивает длину заголовка Idempotency-Key.
	MaxIdempotencyKeyLength = 255
	// DefaultIdempotencyTTL — время жизни ключа.
	DefaultIdempotencyTTL = 24 * time.Hour
)

// IdempotencyStatus — стадия обработки запроса на создание заказа под ключом.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — заказ ещё создаётся, ответа нет.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — заказ создан, сохранён ответ 2xx.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — создание отклонено, сохранён ответ с ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IdempotencyStatusFor выбирает итоговый статус по коду ответа:
// 4xx и 5xx сохраняются как failed и повторяются так же, как успешные.
func IdempotencyStatusFor(httpStatus int) IdempotencyStatus {
	if httpStatus >= http.StatusBadRequest {
		return IdempotencyStatusFailed
	}
	return IdempotencyStatusDone
}

// IdempotentRequest — запрос, который регистрируется под ключом.
// Method и Path хранятся для диагностики повторов, Hash — отпечаток метода, пути и тела.
type IdempotentRequest struct {
	Key       string
	Method    string
	Path      string
	Hash      string
	ExpiresAt time.Time
}

// Normalize убирает пробелы и проверяет обязательные поля.
func (r IdempotentRequest) Normalize() (IdempotentRequest, error) {
	r.Key = strings.TrimSpace(r.Key)
	r.Hash = strings.TrimSpace(r.Hash)
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	r.Path = strings.TrimSpace(r.Path)

	switch {
	case r.Key == "":
		return IdempotentRequest{}, ErrIdempotencyKeyRequired
	case len(r.Key) > MaxIdempotencyKeyLength:
		return IdempotentRequest{}, ErrIdempotencyKeyTooLong
	case r.Hash == "":
		return IdempotentRequest{}, ErrIdempotencyRequestHashRequired
	}
	return r, nil
}

// IdempotencyRecord — сохранённое состояние запроса с Idempotency-Key.
type IdempotencyRecord struct {
	Key          string
	Method       string
	Path         string
	RequestHash  string
	Status       IdempotencyStatus
	HTTPStatus   int
	ResponseBody []byte
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewIdempotencyRecord создаёт запись в статусе processing.
// Нулевой ExpiresAt заменяется на now + DefaultIdempotencyTTL.
func NewIdempotencyRecord(req IdempotentRequest, now time.Time) IdempotencyRecord {
	expiresAt := req.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(DefaultIdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         req.Key,
		Method:      req.Method,
		Path:        req.Path,
		RequestHash: req.Hash,
		Status:      IdempotencyStatusProcessing,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Completed сообщает, что ответ уже сохранён и его можно повторить.
func (r IdempotencyRecord) Completed() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// Expired сообщает, что ключ подлежит удалению к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Conflict проверяет повтор ключа: ErrIdempotencyHashMismatch при другом
// отпечатке, иначе ErrIdempotencyKeyAlreadyExists.
func (r IdempotencyRecord) Conflict(hash string) error {
	if r.RequestHash != hash {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}

// Complete фиксирует ответ и выставляет итоговый статус по коду ответа.
func (r *IdempotencyRecord) Complete(httpStatus int, body []byte, now time.Time) {
	r.Status = IdempotencyStatusFor(httpStatus)
	r.HTTPStatus = httpStatus
	r.ResponseBody = append([]byte(nil), body...)
	r.UpdatedAt = now
}

// Clone возвращает копию записи с собственным телом ответа.
func (r IdempotencyRecord) Clone() IdempotencyRecord {
	r.ResponseBody = append([]byte(nil), r.ResponseBody...)
	return r
}
