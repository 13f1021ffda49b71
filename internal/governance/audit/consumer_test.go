package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/benestar-app/benestar/internal/nats"
)

type fakeMsg struct {
	data   []byte
	acked  bool
	nacked bool
}

func (m *fakeMsg) Data() []byte { return m.data }
func (m *fakeMsg) Ack() error   { m.acked = true; return nil }
func (m *fakeMsg) Nak() error   { m.nacked = true; return nil }

type fakeInserter struct {
	logs []*QuotaEventLog
	err  error
}

func (f *fakeInserter) Insert(_ context.Context, log *QuotaEventLog) error {
	if f.err != nil {
		return f.err
	}
	f.logs = append(f.logs, log)
	return nil
}

func TestHandleEvent_Persists(t *testing.T) {
	id := uuid.New()
	ts := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	data, err := json.Marshal(inats.QuotaEvent{
		ID:              id,
		UserID:          "user-1",
		Kind:            "roleplay",
		Reason:          "per-minute limit exceeded",
		RemainingMinute: 0,
		RemainingDay:    150,
		Timestamp:       ts,
	})
	require.NoError(t, err)

	repo := &fakeInserter{}
	c := NewConsumer(repo, nil)
	msg := &fakeMsg{data: data}
	c.handleEvent(context.Background(), msg)

	assert.True(t, msg.acked)
	assert.False(t, msg.nacked)
	require.Len(t, repo.logs, 1)
	got := repo.logs[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "roleplay", got.Kind)
	assert.Equal(t, "per-minute limit exceeded", got.Reason)
	assert.Equal(t, 150, got.RemainingDay)
	assert.True(t, ts.Equal(got.CreatedAt))
}

func TestHandleEvent_MalformedPayloadIsDropped(t *testing.T) {
	repo := &fakeInserter{}
	c := NewConsumer(repo, nil)
	msg := &fakeMsg{data: []byte("{not json")}
	c.handleEvent(context.Background(), msg)

	assert.True(t, msg.acked)
	assert.Empty(t, repo.logs)
}

func TestHandleEvent_InsertFailureNaks(t *testing.T) {
	repo := &fakeInserter{err: errors.New("db down")}
	c := NewConsumer(repo, nil)
	msg := &fakeMsg{data: []byte(`{"user_id":"user-1","kind":"chat"}`)}
	c.handleEvent(context.Background(), msg)

	assert.True(t, msg.nacked)
	assert.False(t, msg.acked)
}

func TestEventToLog_ZeroTimestamp(t *testing.T) {
	log := eventToLog(inats.QuotaEvent{UserID: "user-1"})
	assert.False(t, log.CreatedAt.IsZero())
}

func TestBuildFilter(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	where, args := buildFilter("user-1", ListParams{Kind: "chat", From: &from})
	assert.Equal(t, "user_id = $1 AND kind = $2 AND created_at >= $3", where)
	assert.Equal(t, []any{"user-1", "chat", from}, args)

	where, args = buildFilter("user-1", ListParams{})
	assert.Equal(t, "user_id = $1", where)
	assert.Len(t, args, 1)
}

func TestNormalizeParams(t *testing.T) {
	p := normalizeParams(ListParams{Page: 0, PageSize: 1000})
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PageSize)
}
