package durable

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	SessionID string `json:"sessionId"`
	Channel   string `json:"channel"`
	EndedAt   string `json:"endedAt"`
	Count     int    `json:"count"`
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord{SessionID: "s1", Channel: "voice", EndedAt: "2026-08-26T10:00:00Z", Count: 3}
	require.NoError(t, s.Create(ctx, TypeConversation, "s1", rec))

	data, ok, err := s.Get(ctx, TypeConversation, "s1")
	require.NoError(t, err)
	require.True(t, ok)

	var got testRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, rec, got)
}

func TestCreateDuplicateKeyRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord{SessionID: "s1", Channel: "voice"}
	require.NoError(t, s.Create(ctx, TypeConversation, "s1", rec))

	err := s.Create(ctx, TypeConversation, "s1", rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	// Same key under a different record type is a distinct record.
	require.NoError(t, s.Create(ctx, TypeTask, "s1", rec))
}

func TestUpsertReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, TypePreference, "u1:vol", testRecord{SessionID: "a", Count: 1}))
	require.NoError(t, s.Upsert(ctx, TypePreference, "u1:vol", testRecord{SessionID: "a", Count: 2}))

	rows, err := s.Query(ctx, TypePreference, nil, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var got testRecord
	require.NoError(t, json.Unmarshal(rows[0], &got))
	assert.Equal(t, 2, got.Count)
}

func TestQueryFilterOrderLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mk := func(id, channel, ended string) {
		require.NoError(t, s.Create(ctx, TypeConversation, id,
			testRecord{SessionID: id, Channel: channel, EndedAt: ended}))
	}
	mk("s1", "voice", "2026-08-26T10:00:00Z")
	mk("s2", "web", "2026-08-26T11:00:00Z")
	mk("s3", "voice", "2026-08-26T12:00:00Z")
	mk("s4", "voice", "2026-08-26T09:00:00Z")

	rows, err := s.Query(ctx, TypeConversation,
		Filter{"channel": "voice"},
		QueryOptions{OrderBy: "endedAt", Descending: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var first, second testRecord
	require.NoError(t, json.Unmarshal(rows[0], &first))
	require.NoError(t, json.Unmarshal(rows[1], &second))
	assert.Equal(t, "s3", first.SessionID)
	assert.Equal(t, "s1", second.SessionID)
}

func TestQuerySince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, TypeConversation, "old",
		testRecord{SessionID: "old", EndedAt: "2026-08-25T10:00:00Z"}))
	require.NoError(t, s.Create(ctx, TypeConversation, "new",
		testRecord{SessionID: "new", EndedAt: "2026-08-26T10:00:00Z"}))

	rows, err := s.Query(ctx, TypeConversation, nil,
		QueryOptions{OrderBy: "endedAt", Descending: true, Since: "2026-08-26T00:00:00Z"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var got testRecord
	require.NoError(t, json.Unmarshal(rows[0], &got))
	assert.Equal(t, "new", got.SessionID)
}

func TestQueryRejectsBadFieldNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Query(ctx, TypeConversation, Filter{"bad') --": "x"}, QueryOptions{})
	assert.Error(t, err)

	_, err = s.Query(ctx, TypeConversation, nil, QueryOptions{OrderBy: "a;b"})
	assert.Error(t, err)
}

func TestGetAbsent(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Get(context.Background(), TypeTask, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}
