package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore applies transactions to a single in-memory record and can be
// told to fail the first N attempts.
type fakeStore struct {
	mu       sync.Mutex
	rec      Record
	now      time.Time
	calls    int
	failWith error
	failures int // -1 fails forever
}

func (s *fakeStore) RunTransaction(ctx context.Context, _ Key, fn TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures != 0 {
		if s.failures > 0 {
			s.failures--
		}
		return s.failWith
	}
	tx := &fakeTx{rec: s.rec, now: s.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if tx.pending != nil {
		s.rec = *tx.pending
	}
	return nil
}

type fakeTx struct {
	rec     Record
	now     time.Time
	pending *Record
}

func (t *fakeTx) Get(context.Context) (Record, error)    { return t.rec, nil }
func (t *fakeTx) Set(rec Record)                         { t.pending = &rec }
func (t *fakeTx) Now(context.Context) (time.Time, error) { return t.now, nil }

func newFakeGate(t *testing.T, store *fakeStore, attempts int) *Gate {
	t.Helper()
	if store.now.IsZero() {
		store.now = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	}
	g, err := NewGate(store, GateConfig{MaxAttempts: attempts, BaseBackoff: time.Millisecond})
	require.NoError(t, err)
	return g
}

func TestGate_ConflictExhaustionFailsClosed(t *testing.T) {
	store := &fakeStore{failWith: ErrConflict, failures: -1}
	g := newFakeGate(t, store, 3)

	dec, err := g.CheckAndConsume(context.Background(), "user-1", KindChat, nil)
	require.Error(t, err)
	assert.False(t, dec.Allowed)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.True(t, errors.Is(err, ErrConflict))

	var te *TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, 3, store.calls)
}

func TestGate_ConflictThenSuccess(t *testing.T) {
	store := &fakeStore{failWith: ErrConflict, failures: 2}
	g := newFakeGate(t, store, 5)

	dec, err := g.CheckAndConsume(context.Background(), "user-1", KindChat, nil)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 1, store.rec.MinuteCount)
	assert.Equal(t, 1, store.rec.DayCount)
}

func TestGate_StoreFailureIsNotRetried(t *testing.T) {
	store := &fakeStore{failWith: errors.New("connection refused"), failures: -1}
	g := newFakeGate(t, store, 5)

	_, err := g.CheckAndConsume(context.Background(), "user-1", KindChat, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, 1, store.calls)
}

func TestGate_CancelledContext(t *testing.T) {
	store := &fakeStore{failWith: ErrConflict, failures: -1}
	g := newFakeGate(t, store, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.CheckAndConsume(ctx, "user-1", KindChat, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Equal(t, Record{}, store.rec)
}

func TestGate_InvalidInputTouchesNothing(t *testing.T) {
	store := &fakeStore{}
	g := newFakeGate(t, store, 5)
	ctx := context.Background()

	tests := []struct {
		name   string
		userID string
		kind   Kind
		limits *Limits
		want   error
	}{
		{"empty user", "", KindChat, nil, ErrEmptyUserID},
		{"blank user", "   ", KindChat, nil, ErrEmptyUserID},
		{"unknown kind", "user-1", Kind("dilemma"), nil, ErrUnknownKind},
		{"negative minute limit", "user-1", KindChat, &Limits{PerMinute: -1, PerDay: 5}, ErrInvalidLimits},
		{"negative day limit", "user-1", KindChat, &Limits{PerMinute: 1, PerDay: -5}, ErrInvalidLimits},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.CheckAndConsume(ctx, tt.userID, tt.kind, tt.limits)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.False(t, errors.Is(err, ErrTransient))

			_, err = g.Peek(ctx, tt.userID, tt.kind, tt.limits)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, store.calls)
}

func TestNewGate_RejectsBadConfig(t *testing.T) {
	_, err := NewGate(nil, GateConfig{})
	assert.Error(t, err)

	_, err = NewGate(&fakeStore{}, GateConfig{Limits: map[Kind]Limits{"poetry": {PerMinute: 1, PerDay: 1}}})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = NewGate(&fakeStore{}, GateConfig{Limits: map[Kind]Limits{KindChat: {PerMinute: -1, PerDay: 1}}})
	assert.ErrorIs(t, err, ErrInvalidLimits)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Roleplay ")
	require.NoError(t, err)
	assert.Equal(t, KindRoleplay, k)

	_, err = ParseKind("dilemma")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestParseRecord(t *testing.T) {
	rec, err := parseRecord(map[string]string{
		fieldMinuteWindowStart: "1700000000000",
		fieldMinuteCount:       "3",
		fieldDayWindowStart:    "1699990000000",
		fieldDayCount:          "42",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), rec.MinuteWindowStart)
	assert.Equal(t, 3, rec.MinuteCount)
	assert.Equal(t, int64(1699990000000), rec.DayWindowStart)
	assert.Equal(t, 42, rec.DayCount)
	assert.True(t, rec.UpdatedAt.IsZero())

	rec, err = parseRecord(map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, Record{}, rec)

	_, err = parseRecord(map[string]string{fieldDayCount: "many"})
	assert.Error(t, err)
}
