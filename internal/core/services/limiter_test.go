package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JeanGrijp/identity-gate/internal/core/domain"
)

func TestTokenBucket_AllowsUpToCapacity(t *testing.T) {
	storage := newMockStorage()
	limiter := newTestTokenBucket(t, storage, domain.TokenBucketRule{KeyPrefix: "middleware", Capacity: 3, Duration: time.Second})

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision := limiter.Check(ctx, "192.168.1.1")
		if decision.Outcome != domain.Admit {
			t.Fatalf("expected request %d to be admitted, got %v", i+1, decision.Outcome)
		}
		if decision.Remaining() != int64(3-i-1) {
			t.Fatalf("expected remaining %d, got %d", 3-i-1, decision.Remaining())
		}
	}

	decision := limiter.Check(ctx, "192.168.1.1")
	if decision.Outcome != domain.Reject {
		t.Fatalf("expected request 4 to be rejected, got %v", decision.Outcome)
	}
	if decision.Remaining() != 0 {
		t.Fatalf("expected no quota left, got %d", decision.Remaining())
	}
}

func TestTokenBucket_UsesPrefixedKey(t *testing.T) {
	storage := newMockStorage()
	limiter := newTestTokenBucket(t, storage, domain.TokenBucketRule{KeyPrefix: "middleware", Capacity: 3, Duration: time.Second})

	limiter.Check(context.Background(), "10.0.0.1")

	if got := storage.count("middleware:10.0.0.1"); got != 1 {
		t.Fatalf("expected counter under middleware:10.0.0.1 to be 1, got %d", got)
	}
}

func TestTokenBucket_ResetsAfterWindow(t *testing.T) {
	storage := newMockStorage()
	limiter := newTestTokenBucket(t, storage,
		domain.TokenBucketRule{KeyPrefix: "middleware", Capacity: 2, Duration: time.Second},
		WithClock(storage.now))

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		limiter.Check(ctx, "10.0.0.1")
	}
	if decision := limiter.Check(ctx, "10.0.0.1"); decision.Outcome != domain.Reject {
		t.Fatalf("expected rejection inside window, got %v", decision.Outcome)
	}

	storage.advance(time.Second)

	for i := 0; i < 2; i++ {
		if decision := limiter.Check(ctx, "10.0.0.1"); decision.Outcome != domain.Admit {
			t.Fatalf("expected request %d of the new window to be admitted, got %v", i+1, decision.Outcome)
		}
	}
}

func TestTokenBucket_IdentitiesAreIndependent(t *testing.T) {
	storage := newMockStorage()
	limiter := newTestTokenBucket(t, storage, domain.TokenBucketRule{KeyPrefix: "middleware", Capacity: 5, Duration: time.Second})

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		limiter.Check(ctx, "203.0.113.1")
	}

	decision := limiter.Check(ctx, "203.0.113.2")
	if decision.Outcome != domain.Admit {
		t.Fatalf("expected other identity to be admitted, got %v", decision.Outcome)
	}
	if decision.Remaining() != 4 {
		t.Fatalf("expected full quota minus one for other identity, got %d", decision.Remaining())
	}
}

func TestTokenBucket_ConcurrentRequestsCountExactly(t *testing.T) {
	storage := newMockStorage()
	limiter := newTestTokenBucket(t, storage, domain.TokenBucketRule{KeyPrefix: "middleware", Capacity: 10, Duration: time.Second})

	run := func(n int) int64 {
		var admitted atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if limiter.Check(context.Background(), "198.51.100.7").Outcome == domain.Admit {
					admitted.Add(1)
				}
			}()
		}
		wg.Wait()
		return admitted.Load()
	}

	if got := run(8); got != 8 {
		t.Fatalf("expected all 8 concurrent requests admitted, got %d", got)
	}
	if got := run(8); got != 2 {
		t.Fatalf("expected only 2 of the next 8 admitted, got %d", got)
	}
}

func TestTokenBucket_FailOpenLogsOncePerFailure(t *testing.T) {
	storage := newMockStorage()
	storage.fail = fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)

	var logs bytes.Buffer
	limiter := newTestTokenBucket(t, storage,
		domain.TokenBucketRule{KeyPrefix: "middleware", Capacity: 1, Duration: time.Second},
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	for i := 0; i < 3; i++ {
		decision := limiter.Check(context.Background(), "10.1.1.1")
		if decision.Outcome != domain.Admit || !decision.Degraded {
			t.Fatalf("expected degraded admit on call %d, got %+v", i+1, decision)
		}
	}

	if got := strings.Count(logs.String(), "store unavailable"); got != 3 {
		t.Fatalf("expected one alarm per failing call (3), got %d\n%s", got, logs.String())
	}
}

func TestTokenBucket_FailClosedReturnsFault(t *testing.T) {
	storage := newMockStorage()
	storage.fail = fmt.Errorf("%w: i/o timeout", domain.ErrStoreUnavailable)

	var logs bytes.Buffer
	limiter := newTestTokenBucket(t, storage,
		domain.TokenBucketRule{KeyPrefix: "middleware", Capacity: 1, Duration: time.Second},
		WithFailurePolicy(FailClosed),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	decision := limiter.Check(context.Background(), "10.1.1.1")
	if decision.Outcome != domain.Fault {
		t.Fatalf("expected fault, got %v", decision.Outcome)
	}
	if !errors.Is(decision.Err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable error, got %v", decision.Err)
	}
	// O log de falhas fica com o error handler.
	if logs.Len() != 0 {
		t.Fatalf("expected limiter not to log faults under fail-closed, got %q", logs.String())
	}
}

func TestTokenBucket_RejectionIsLoggedWithIdentity(t *testing.T) {
	storage := newMockStorage()
	var logs bytes.Buffer
	limiter := newTestTokenBucket(t, storage,
		domain.TokenBucketRule{KeyPrefix: "middleware", Capacity: 1, Duration: time.Second},
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	limiter.Check(context.Background(), "172.16.0.9")
	limiter.Check(context.Background(), "172.16.0.9")

	out := logs.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "identity=172.16.0.9") {
		t.Fatalf("expected warning with identity, got %q", out)
	}
}

func TestNewTokenBucketLimiter_InvalidRule(t *testing.T) {
	storage := newMockStorage()
	cases := []domain.TokenBucketRule{
		{KeyPrefix: "", Capacity: 1, Duration: time.Second},
		{KeyPrefix: "m", Capacity: 0, Duration: time.Second},
		{KeyPrefix: "m", Capacity: 1, Duration: 0},
		{KeyPrefix: "m", Capacity: 1, Duration: 500 * time.Microsecond},
	}
	for _, rule := range cases {
		if _, err := NewTokenBucketLimiter(storage, rule); !errors.Is(err, domain.ErrInvalidRule) {
			t.Fatalf("expected invalid rule error for %+v, got %v", rule, err)
		}
	}
	if _, err := NewTokenBucketLimiter(nil, domain.TokenBucketRule{KeyPrefix: "m", Capacity: 1, Duration: time.Second}); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestFixedWindow_RejectsAboveMaxRequests(t *testing.T) {
	storage := newMockStorage()
	limiter := newTestFixedWindow(t, storage, domain.FixedWindowRule{KeyPrefix: "rl", Window: 15 * time.Minute, MaxRequests: 100}, WithClock(storage.now))

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if decision := limiter.Check(ctx, "10.0.0.2"); decision.Outcome != domain.Admit {
			t.Fatalf("expected request %d to be admitted, got %v", i+1, decision.Outcome)
		}
	}

	decision := limiter.Check(ctx, "10.0.0.2")
	if decision.Outcome != domain.Reject {
		t.Fatalf("expected request 101 to be rejected, got %v", decision.Outcome)
	}
	if want := storage.now().Add(15 * time.Minute); !decision.ResetAt.Equal(want) {
		t.Fatalf("expected reset at %v, got %v", want, decision.ResetAt)
	}

	storage.advance(15 * time.Minute)
	if decision := limiter.Check(ctx, "10.0.0.2"); decision.Outcome != domain.Admit {
		t.Fatalf("expected admission after window elapsed, got %v", decision.Outcome)
	}
}

func TestFixedWindow_ResetAtFollowsStoreTTL(t *testing.T) {
	storage := newMockStorage()
	limiter := newTestFixedWindow(t, storage, domain.FixedWindowRule{KeyPrefix: "rl", Window: time.Minute, MaxRequests: 5}, WithClock(storage.now))

	ctx := context.Background()
	limiter.Check(ctx, "10.0.0.3")
	storage.advance(20 * time.Second)

	decision := limiter.Check(ctx, "10.0.0.3")
	if want := storage.now().Add(40 * time.Second); !decision.ResetAt.Equal(want) {
		t.Fatalf("expected reset at %v, got %v", want, decision.ResetAt)
	}
}

func TestParseFailurePolicy(t *testing.T) {
	cases := map[string]FailurePolicy{"": FailOpen, "fail-open": FailOpen, "FAIL-CLOSED": FailClosed}
	for raw, want := range cases {
		got, err := ParseFailurePolicy(raw)
		if err != nil || got != want {
			t.Fatalf("ParseFailurePolicy(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseFailurePolicy("maybe"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func newTestTokenBucket(t *testing.T, storage *mockStorage, rule domain.TokenBucketRule, opts ...Option) *TokenBucketLimiter {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	limiter, err := NewTokenBucketLimiter(storage, rule, opts...)
	if err != nil {
		t.Fatalf("failed to create token bucket limiter: %v", err)
	}
	return limiter
}

func newTestFixedWindow(t *testing.T, storage *mockStorage, rule domain.FixedWindowRule, opts ...Option) *FixedWindowLimiter {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	limiter, err := NewFixedWindowLimiter(storage, rule, opts...)
	if err != nil {
		t.Fatalf("failed to create fixed window limiter: %v", err)
	}
	return limiter
}

type entry struct {
	count     int64
	expiresAt time.Time
}

// mockStorage emula o INCR atômico do store (expiração só na criação) sobre um relógio falso.
type mockStorage struct {
	mu      sync.Mutex
	clock   time.Time
	entries map[string]*entry
	fail    error
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		clock:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		entries: make(map[string]*entry),
	}
}

func (m *mockStorage) now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock
}

func (m *mockStorage) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(d)
}

func (m *mockStorage) count(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return e.count
	}
	return 0
}

func (m *mockStorage) IncrementWithExpiry(_ context.Context, key string, ttl time.Duration) (domain.Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return domain.Counter{}, m.fail
	}

	e, ok := m.entries[key]
	if !ok || !m.clock.Before(e.expiresAt) {
		e = &entry{expiresAt: m.clock.Add(ttl)}
		m.entries[key] = e
	}
	e.count++
	return domain.Counter{Count: e.count, TTL: e.expiresAt.Sub(m.clock)}, nil
}

func (m *mockStorage) Read(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return 0, false, m.fail
	}
	e, ok := m.entries[key]
	if !ok || !m.clock.Before(e.expiresAt) {
		return 0, false, nil
	}
	return e.count, true, nil
}
