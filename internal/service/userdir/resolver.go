// Package userdir содержит клиентов справочника пользователей и политику
// деградации вокруг них: вызовы идут через общий circuit breaker и ограничены
// таймаутом, а любой сбой превращается в деградированную запись пользователя.
package userdir

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/eapache/go-resiliency/breaker"
	"github.com/eapache/go-resiliency/deadline"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// CallSite — место вызова справочника; определяет метку деградированной записи.
type CallSite string

const (
	// SiteEnrichment — обогащение ответа данными пользователя.
	SiteEnrichment CallSite = "enrichment"
	// SiteValidation — проверка пользователя при создании и обновлении заказа.
	SiteValidation CallSite = "validation"
	// SiteEmailLookup — поиск пользователя по email.
	SiteEmailLookup CallSite = "email_lookup"
)

const (
	// LabelUnavailable — имя деградированной записи при обогащении ответа.
	LabelUnavailable = "User information unavailable"
	// LabelFallback — имя деградированной записи при проверке пользователя и поиске по email.
	LabelFallback = "Fallback User"
)

// Причины деградации в логах и метриках.
const (
	ReasonNotFound    = "not_found"
	ReasonNoID        = "no_id"
	ReasonTimeout     = "timeout"
	ReasonCircuitOpen = "circuit_open"
	ReasonError       = "error"
)

// Label возвращает имя деградированной записи для места вызова.
func (s CallSite) Label() string {
	if s == SiteEnrichment {
		return LabelUnavailable
	}
	return LabelFallback
}

// Config задаёт таймаут вызова и пороги circuit breaker.
type Config struct {
	// Timeout ограничивает один вызов справочника.
	Timeout time.Duration
	// ErrorThreshold — число ошибок подряд, после которого цепь размыкается.
	ErrorThreshold int
	// SuccessThreshold — число успехов в half-open, после которого цепь замыкается.
	SuccessThreshold int
	// OpenTimeout — время, которое цепь остаётся разомкнутой.
	OpenTimeout time.Duration
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		Timeout:          2 * time.Second,
		ErrorThreshold:   5,
		SuccessThreshold: 2,
		OpenTimeout:      10 * time.Second,
	}
}

// FallbackRecorder принимает события деградации; реализуется metrics.OrderMetrics.
type FallbackRecorder interface {
	RecordFallback(site, reason string)
	SetCircuitOpen(open bool)
}

type noopRecorder struct{}

func (noopRecorder) RecordFallback(string, string) {}
func (noopRecorder) SetCircuitOpen(bool)           {}

// Resolver — политика деградации вокруг справочника пользователей.
// Один экземпляр (и один breaker) разделяется всеми вызовами процесса.
type Resolver struct {
	directory domain.UserDirectory
	breaker   *breaker.Breaker
	deadline  *deadline.Deadline
	timeout   time.Duration
	open      atomic.Bool
	recorder  FallbackRecorder
	logger    *log.Entry
}

// Option настраивает Resolver.
type Option func(*Resolver)

// WithRecorder подключает учёт деградаций.
func WithRecorder(recorder FallbackRecorder) Option {
	return func(r *Resolver) {
		if recorder != nil {
			r.recorder = recorder
		}
	}
}

// NewResolver оборачивает справочник политикой деградации.
func NewResolver(directory domain.UserDirectory, cfg Config, logger *log.Entry, opts ...Option) *Resolver {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = def.ErrorThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if logger == nil {
		logger = log.New().WithField("component", "user-resolver")
	}

	r := &Resolver{
		directory: directory,
		breaker:   breaker.New(cfg.ErrorThreshold, cfg.SuccessThreshold, cfg.OpenTimeout),
		deadline:  deadline.New(cfg.Timeout),
		timeout:   cfg.Timeout,
		recorder:  noopRecorder{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveUserByID никогда не возвращает ошибку: при любом сбое справочника
// возвращается {ID: id, Name: site.Label(), Active: true}.
func (r *Resolver) ResolveUserByID(ctx context.Context, id int64, site CallSite) domain.Identity {
	degraded := domain.Identity{ID: id, Name: site.Label(), Active: true}
	return resolveWithFallback(ctx, r, site, func(ctx context.Context) (domain.Identity, error) {
		return r.directory.GetUserByID(ctx, id)
	}, domain.Identity.HasID, degraded)
}

// ResolveUserByEmail действует так же, но деградированная запись не содержит id.
func (r *Resolver) ResolveUserByEmail(ctx context.Context, email string) domain.Identity {
	degraded := domain.Identity{Name: SiteEmailLookup.Label(), Active: true}
	return resolveWithFallback(ctx, r, SiteEmailLookup, func(ctx context.Context) (domain.Identity, error) {
		return r.directory.GetUserByEmail(ctx, email)
	}, domain.Identity.HasID, degraded)
}

// CircuitOpen сообщает, отклонял ли breaker последний вызов.
func (r *Resolver) CircuitOpen() bool {
	return r.open.Load()
}

type callResult[T any] struct {
	value T
	err   error
}

// resolveWithFallback выполняет call под breaker и deadline и возвращает degraded,
// если вызов не удался или ответ непригоден (usable == false). Ответ "не найден"
// не считается отказом зависимости и не размыкает цепь.
func resolveWithFallback[T any](
	ctx context.Context,
	r *Resolver,
	site CallSite,
	call func(context.Context) (T, error),
	usable func(T) bool,
	degraded T,
) T {
	results := make(chan callResult[T], 1)

	err := r.breaker.Run(func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		return r.deadline.Run(func(_ <-chan struct{}) error {
			value, err := call(callCtx)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			results <- callResult[T]{value: value, err: err}
			return nil
		})
	})

	var reason string
	switch {
	case err == nil:
		r.setOpen(false)
		res := <-results
		switch {
		case res.err != nil:
			reason = ReasonNotFound
		case !usable(res.value):
			reason = ReasonNoID
		default:
			return res.value
		}
	case errors.Is(err, breaker.ErrBreakerOpen):
		r.setOpen(true)
		reason = ReasonCircuitOpen
	case errors.Is(err, deadline.ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		reason = ReasonTimeout
	default:
		reason = ReasonError
	}

	r.recorder.RecordFallback(string(site), reason)
	entry := r.logger.WithFields(log.Fields{
		"site":   site,
		"reason": reason,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("User directory call degraded, using fallback identity")

	return degraded
}

func (r *Resolver) setOpen(open bool) {
	if r.open.Swap(open) != open {
		r.recorder.SetCircuitOpen(open)
		if open {
			r.logger.Warn("User directory circuit is open")
		} else {
			r.logger.Info("User directory circuit closed")
		}
	}
}
