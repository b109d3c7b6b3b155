package idempotency

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	"github.com/vladislavdragonenkov/ordersvc/internal/storage/memory"
)

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) RecordIdempotency(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func createOrder(key, body string) Request {
	return Request{Key: key, Method: http.MethodPost, Path: "/api/orders", Body: []byte(body)}
}

func TestRequestHash(t *testing.T) {
	a := RequestHash(http.MethodPost, "/api/orders", []byte(`{"userId":1}`))
	b := RequestHash(http.MethodPost, "/api/orders", []byte(`{"userId":1}`))
	c := RequestHash(http.MethodPost, "/api/orders", []byte(`{"userId":2}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestGuard_ExecutesOnceAndReplays(t *testing.T) {
	ctx := context.Background()
	rec := &outcomeRecorder{}
	guard := NewGuard(memory.NewIdempotencyRepository(), 0, rec, nil)

	var calls atomic.Int32
	handler := func(context.Context) Response {
		calls.Add(1)
		return Response{Status: http.StatusCreated, Body: []byte(`{"id":1}`)}
	}

	first, err := guard.Execute(ctx, createOrder("key-1", `{"userId":1}`), handler)
	require.NoError(t, err)
	second, err := guard.Execute(ctx, createOrder("key-1", `{"userId":1}`), handler)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, []string{OutcomeExecuted, OutcomeReplayed}, rec.outcomes)
}

func TestGuard_HashMismatch(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository(), 0, nil, nil)
	ok := func(context.Context) Response { return Response{Status: http.StatusCreated} }

	_, err := guard.Execute(ctx, createOrder("key-1", `{"userId":1}`), ok)
	require.NoError(t, err)

	_, err = guard.Execute(ctx, createOrder("key-1", `{"userId":2}`), ok)
	assert.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestGuard_ConcurrentDuplicateConflicts(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository(), 0, nil, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan Response, 1)
	go func() {
		resp, _ := guard.Execute(ctx, createOrder("key-1", `{"userId":1}`), func(context.Context) Response {
			close(started)
			<-release
			return Response{Status: http.StatusCreated}
		})
		done <- resp
	}()

	<-started
	_, err := guard.Execute(ctx, createOrder("key-1", `{"userId":1}`), func(context.Context) Response {
		t.Error("duplicate must not run")
		return Response{}
	})
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	assert.True(t, domain.IsIdempotencyConflict(err))

	close(release)
	assert.Equal(t, http.StatusCreated, (<-done).Status)
}

func TestGuard_StoresFailures(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	guard := NewGuard(repo, 0, nil, nil)

	resp, err := guard.Execute(ctx, createOrder("key-1", `{"userId":1}`), func(context.Context) Response {
		return Response{Status: http.StatusBadRequest, Body: []byte(`{"error":"Bad Request"}`)}
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	record, err := repo.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusFailed, record.Status)
	assert.Equal(t, http.StatusBadRequest, record.HTTPStatus)

	replayed, err := guard.Execute(ctx, createOrder("key-1", `{"userId":1}`), func(context.Context) Response {
		t.Error("stored failure must be replayed")
		return Response{}
	})
	require.NoError(t, err)
	assert.Equal(t, resp, replayed)
}

func TestGuard_BlankKey(t *testing.T) {
	guard := NewGuard(memory.NewIdempotencyRepository(), 0, nil, nil)

	_, err := guard.Execute(context.Background(), createOrder(" ", `{}`), func(context.Context) Response { return Response{} })
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestGuard_StoresRequestIdentity(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	guard := NewGuard(repo, time.Hour, nil, nil)
	guard.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	_, err := guard.Execute(ctx, createOrder("key-1", `{"userId":1}`), func(context.Context) Response {
		return Response{Status: http.StatusCreated, Body: []byte(`{"id":1}`)}
	})
	require.NoError(t, err)

	record, err := repo.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, record.Method)
	assert.Equal(t, "/api/orders", record.Path)
	assert.Equal(t, RequestHash(http.MethodPost, "/api/orders", []byte(`{"userId":1}`)), record.RequestHash)
	assert.Equal(t, domain.IdempotencyStatusDone, record.Status)
	assert.True(t, record.ExpiresAt.Equal(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)))
}

func TestGuard_SamePayloadOnAnotherPathConflicts(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository(), 0, nil, nil)
	ok := func(context.Context) Response { return Response{Status: http.StatusCreated} }

	_, err := guard.Execute(ctx, createOrder("key-1", `{"userId":1}`), ok)
	require.NoError(t, err)

	other := createOrder("key-1", `{"userId":1}`)
	other.Path = "/api/items"
	_, err = guard.Execute(ctx, other, ok)
	assert.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

// ctxAwareRepo отказывает в Complete при отменённом контексте, как это делает postgres.
type ctxAwareRepo struct {
	domain.IdempotencyRepository
}

func (r ctxAwareRepo) Complete(ctx context.Context, key string, httpStatus int, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.IdempotencyRepository.Complete(ctx, key, httpStatus, body)
}

func TestGuard_StoresResponseAfterClientCancel(t *testing.T) {
	repo := ctxAwareRepo{memory.NewIdempotencyRepository()}
	guard := NewGuard(repo, 0, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := guard.Execute(ctx, createOrder("key-1", `{}`), func(context.Context) Response {
		cancel()
		return Response{Status: http.StatusCreated, Body: []byte(`{"id":9}`)}
	})
	require.NoError(t, err)

	record, err := repo.Get(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, record.Status)
}
