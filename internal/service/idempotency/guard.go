// Package idempotency обеспечивает однократное создание заказа по заголовку
// Idempotency-Key и фоновую очистку истёкших ключей.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// Исходы обработки запроса с ключом, метка outcome в метриках.
const (
	OutcomeExecuted = "executed"
	OutcomeReplayed = "replayed"
	OutcomeConflict = "conflict"
	OutcomeMismatch = "hash_mismatch"
	OutcomeError    = "error"
)

// Request — запрос с заголовком Idempotency-Key.
type Request struct {
	Key    string
	Method string
	Path   string
	Body   []byte
}

// Response — ответ, который сохраняется под ключом и отдаётся при повторе.
type Response struct {
	Status int
	Body   []byte
}

// Recorder учитывает исходы; реализуется metrics.OrderMetrics.
type Recorder interface {
	RecordIdempotency(outcome string)
}

// Guard выполняет запрос не более одного раза на ключ: первый запрос
// регистрирует ключ в статусе processing, повтор с тем же телом получает
// сохранённый ответ, с другим телом или во время обработки — конфликт.
type Guard struct {
	repo     domain.IdempotencyRepository
	ttl      time.Duration
	recorder Recorder
	logger   *log.Entry
	now      func() time.Time
}

// NewGuard создаёт Guard. ttl <= 0 означает domain.DefaultIdempotencyTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, recorder Recorder, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = domain.DefaultIdempotencyTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{
		repo:     repo,
		ttl:      ttl,
		recorder: recorder,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RequestHash считает отпечаток запроса: метод, путь и тело.
func RequestHash(method, path string, body []byte) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s %s\n", method, path)
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Execute выполняет handler под ключом req.Key и возвращает его ответ
// или ранее сохранённый ответ. Ошибки конфликта относятся к domain.ErrConflict.
func (g *Guard) Execute(ctx context.Context, req Request, handler func(context.Context) Response) (Response, error) {
	logger := g.logger.WithFields(log.Fields{
		"idempotency_key": req.Key,
		"method":          req.Method,
		"path":            req.Path,
	})

	record, err := g.repo.CreateProcessing(ctx, domain.IdempotentRequest{
		Key:       req.Key,
		Method:    req.Method,
		Path:      req.Path,
		Hash:      RequestHash(req.Method, req.Path, req.Body),
		ExpiresAt: g.now().Add(g.ttl),
	})
	if err != nil {
		return g.replay(logger, err, record)
	}

	resp := handler(ctx)
	g.record(OutcomeExecuted)

	// Ответ сохраняется и после отмены ctx клиентом.
	if err := g.repo.Complete(context.WithoutCancel(ctx), record.Key, resp.Status, resp.Body); err != nil {
		logger.WithError(err).Warn("failed to store idempotent response")
	}
	return resp, nil
}

func (g *Guard) replay(logger *log.Entry, createErr error, record domain.IdempotencyRecord) (Response, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		g.record(OutcomeMismatch)
		logger.WithFields(log.Fields{
			"stored_method": record.Method,
			"stored_path":   record.Path,
		}).Warn("Idempotency-Key reused for a different request")
		return Response{}, createErr
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch {
		case record.Completed():
			g.record(OutcomeReplayed)
			logger.WithField("status", record.HTTPStatus).Debug("Replaying stored response")
			return Response{Status: record.HTTPStatus, Body: record.ResponseBody}, nil
		case record.Status == domain.IdempotencyStatusProcessing:
			g.record(OutcomeConflict)
			return Response{}, fmt.Errorf("%w: request is still processing", domain.ErrIdempotencyKeyAlreadyExists)
		default:
			g.record(OutcomeError)
			return Response{}, fmt.Errorf("unknown idempotency record status %q", record.Status)
		}
	case errors.Is(createErr, domain.ErrInvalidArgument):
		return Response{}, createErr
	default:
		g.record(OutcomeError)
		logger.WithError(createErr).Warn("failed to create idempotency record")
		return Response{}, fmt.Errorf("create idempotency record: %w", createErr)
	}
}

func (g *Guard) record(outcome string) {
	if g.recorder != nil {
		g.recorder.RecordIdempotency(outcome)
	}
}
