package userdir

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	"github.com/vladislavdragonenkov/ordersvc/internal/health"
)

type fallbackEvent struct {
	site   string
	reason string
}

type recorderStub struct {
	mu      sync.Mutex
	events  []fallbackEvent
	circuit []bool
}

func (r *recorderStub) RecordFallback(site, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fallbackEvent{site: site, reason: reason})
}

func (r *recorderStub) SetCircuitOpen(open bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.circuit = append(r.circuit, open)
}

func (r *recorderStub) reasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.reason)
	}
	return out
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "user-resolver-test")
}

func newTestResolver(dir domain.UserDirectory, cfg Config) (*Resolver, *recorderStub) {
	rec := &recorderStub{}
	return NewResolver(dir, cfg, quietLogger(), WithRecorder(rec)), rec
}

func TestCallSiteLabel(t *testing.T) {
	assert.Equal(t, "User information unavailable", SiteEnrichment.Label())
	assert.Equal(t, "Fallback User", SiteValidation.Label())
	assert.Equal(t, "Fallback User", SiteEmailLookup.Label())
}

func TestResolveUserByID_Success(t *testing.T) {
	dir := NewMockDirectory()
	dir.AddUser(domain.Identity{ID: 7, Name: "Alice", Active: false}, "alice@example.com")

	r, rec := newTestResolver(dir, DefaultConfig())

	got := r.ResolveUserByID(context.Background(), 7, SiteValidation)

	assert.Equal(t, domain.Identity{ID: 7, Name: "Alice", Active: false}, got)
	assert.Empty(t, rec.reasons())
	assert.False(t, r.CircuitOpen())
}

func TestResolveUserByID_ErrorDegrades(t *testing.T) {
	dir := NewMockDirectory()
	dir.ByIDErr = errors.New("connection refused")

	r, rec := newTestResolver(dir, DefaultConfig())

	got := r.ResolveUserByID(context.Background(), 9, SiteEnrichment)
	assert.Equal(t, domain.Identity{ID: 9, Name: LabelUnavailable, Active: true}, got)

	got = r.ResolveUserByID(context.Background(), 9, SiteValidation)
	assert.Equal(t, domain.Identity{ID: 9, Name: LabelFallback, Active: true}, got)

	assert.Equal(t, []string{ReasonError, ReasonError}, rec.reasons())
}

func TestResolveUserByID_NotFoundDoesNotOpenCircuit(t *testing.T) {
	dir := NewMockDirectory()
	r, rec := newTestResolver(dir, Config{ErrorThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Minute})

	for i := 0; i < 5; i++ {
		got := r.ResolveUserByID(context.Background(), 404, SiteEnrichment)
		assert.Equal(t, LabelUnavailable, got.Name)
		assert.True(t, got.Active)
	}

	assert.False(t, r.CircuitOpen())
	assert.EqualValues(t, 5, dir.ByIDCalls.Load())
	for _, reason := range rec.reasons() {
		assert.Equal(t, ReasonNotFound, reason)
	}
}

func TestResolveUserByID_RecordWithoutID(t *testing.T) {
	dir := NewMockDirectory()
	dir.AddUser(domain.Identity{ID: 0, Name: "ghost", Active: true}, "")
	r, rec := newTestResolver(dir, DefaultConfig())

	got := r.ResolveUserByID(context.Background(), 0, SiteValidation)

	assert.Equal(t, domain.Identity{ID: 0, Name: LabelFallback, Active: true}, got)
	assert.Equal(t, []string{ReasonNoID}, rec.reasons())
}

func TestResolveUserByID_Timeout(t *testing.T) {
	dir := NewMockDirectory()
	dir.AddUser(domain.Identity{ID: 3, Name: "Slow", Active: true}, "")
	dir.Delay = 500 * time.Millisecond

	r, rec := newTestResolver(dir, Config{Timeout: 20 * time.Millisecond})

	started := time.Now()
	got := r.ResolveUserByID(context.Background(), 3, SiteEnrichment)

	assert.Less(t, time.Since(started), 400*time.Millisecond)
	assert.Equal(t, domain.Identity{ID: 3, Name: LabelUnavailable, Active: true}, got)
	assert.Equal(t, []string{ReasonTimeout}, rec.reasons())
}

func TestResolveUserByID_CircuitOpensAndRecovers(t *testing.T) {
	dir := NewMockDirectory()
	dir.AddUser(domain.Identity{ID: 5, Name: "Bob", Active: true}, "")
	dir.ByIDErr = domain.ErrUserDirectoryUnavailable

	r, rec := newTestResolver(dir, Config{
		Timeout:          time.Second,
		ErrorThreshold:   2,
		SuccessThreshold: 1,
		OpenTimeout:      50 * time.Millisecond,
	})
	ctx := context.Background()

	r.ResolveUserByID(ctx, 5, SiteEnrichment)
	r.ResolveUserByID(ctx, 5, SiteEnrichment)
	got := r.ResolveUserByID(ctx, 5, SiteEnrichment)

	assert.Equal(t, LabelUnavailable, got.Name)
	assert.True(t, r.CircuitOpen())
	assert.EqualValues(t, 2, dir.ByIDCalls.Load(), "open circuit must short-circuit the call")
	assert.Equal(t, []string{ReasonError, ReasonError, ReasonCircuitOpen}, rec.reasons())

	dir.ByIDErr = nil
	require.Eventually(t, func() bool {
		return r.ResolveUserByID(ctx, 5, SiteEnrichment).Name == "Bob"
	}, time.Second, 20*time.Millisecond)
	assert.False(t, r.CircuitOpen())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []bool{true, false}, rec.circuit)
}

func TestResolveUserByEmail(t *testing.T) {
	dir := NewMockDirectory()
	dir.AddUser(domain.Identity{ID: 11, Name: "Carol", Active: true}, "Carol@Example.com")
	r, rec := newTestResolver(dir, DefaultConfig())
	ctx := context.Background()

	got := r.ResolveUserByEmail(ctx, "carol@example.com")
	assert.Equal(t, domain.Identity{ID: 11, Name: "Carol", Active: true}, got)

	missing := r.ResolveUserByEmail(ctx, "nobody@example.com")
	assert.False(t, missing.HasID())
	assert.Equal(t, LabelFallback, missing.Name)

	dir.ByEmailErr = errors.New("503")
	failed := r.ResolveUserByEmail(ctx, "carol@example.com")
	assert.False(t, failed.HasID())

	assert.Equal(t, []string{ReasonNoID, ReasonError}, rec.reasons())
}

func TestResolver_ConcurrentCallsShareBreaker(t *testing.T) {
	dir := NewMockDirectory()
	for id := int64(1); id <= 20; id++ {
		dir.AddUser(domain.Identity{ID: id, Name: "user", Active: true}, "")
	}
	r, _ := newTestResolver(dir, DefaultConfig())

	var wg sync.WaitGroup
	for id := int64(1); id <= 20; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			got := r.ResolveUserByID(context.Background(), id, SiteEnrichment)
			assert.Equal(t, id, got.ID)
			assert.Equal(t, "user", got.Name)
		}(id)
	}
	wg.Wait()

	assert.EqualValues(t, 20, dir.ByIDCalls.Load())
	assert.False(t, r.CircuitOpen())
}

func TestHealthChecker(t *testing.T) {
	dir := NewMockDirectory()
	dir.ByIDErr = errors.New("down")
	r, _ := newTestResolver(dir, Config{ErrorThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Minute})
	checker := HealthChecker(r)

	assert.Equal(t, health.StatusHealthy, checker.Check().Status)

	r.ResolveUserByID(context.Background(), 1, SiteEnrichment)
	r.ResolveUserByID(context.Background(), 1, SiteEnrichment)

	check := checker.Check()
	assert.Equal(t, health.StatusDegraded, check.Status)
	assert.NotEmpty(t, check.Message)
}
