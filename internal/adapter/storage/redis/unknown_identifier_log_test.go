package redis

import (
	"context"
	"testing"
	"time"

	"kiosk-ledger/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUnknownLog(t *testing.T, capacity int64, ttl time.Duration, now time.Time) (*UnknownIdentifierLog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := NewUnknownIdentifierLog(client, capacity, ttl)
	l.now = func() time.Time { return now }
	return l, mr
}

func TestUnknownIdentifierLog_RecordAndRecent(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l, _ := newTestUnknownLog(t, 10, time.Hour, now)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, domain.UnknownIdentifier{Type: domain.AccountIdentBarcode, Value: "4000", SeenAt: now.Add(-2 * time.Minute)}))
	require.NoError(t, l.Record(ctx, domain.UnknownIdentifier{Type: domain.AccountIdentRFID, Value: "AB:CD", SeenAt: now.Add(-time.Minute)}))

	got, err := l.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, domain.AccountIdentRFID, got[0].Type)
	assert.Equal(t, "AB:CD", got[0].Value, "value may contain the separator")
	assert.True(t, got[0].SeenAt.Equal(now.Add(-time.Minute)))
	assert.Equal(t, domain.AccountIdentBarcode, got[1].Type)
	assert.Equal(t, "4000", got[1].Value)
}

func TestUnknownIdentifierLog_RescanRefreshes(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l, _ := newTestUnknownLog(t, 10, time.Hour, now)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, domain.UnknownIdentifier{Type: domain.AccountIdentBarcode, Value: "1", SeenAt: now.Add(-3 * time.Minute)}))
	require.NoError(t, l.Record(ctx, domain.UnknownIdentifier{Type: domain.AccountIdentBarcode, Value: "2", SeenAt: now.Add(-2 * time.Minute)}))
	require.NoError(t, l.Record(ctx, domain.UnknownIdentifier{Type: domain.AccountIdentBarcode, Value: "1", SeenAt: now}))

	got, err := l.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].Value)
	assert.Equal(t, "2", got[1].Value)
}

func TestUnknownIdentifierLog_TrimsToCapacity(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l, mr := newTestUnknownLog(t, 2, time.Hour, now)
	ctx := context.Background()

	for i, v := range []string{"a", "b", "c"} {
		seen := now.Add(time.Duration(i-3) * time.Minute)
		require.NoError(t, l.Record(ctx, domain.UnknownIdentifier{Type: domain.AccountIdentBarcode, Value: v, SeenAt: seen}))
	}

	members, err := mr.ZMembers("unknown_identifiers")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	got, err := l.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Value)
	assert.Equal(t, "b", got[1].Value)
}

func TestUnknownIdentifierLog_DropsExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l, _ := newTestUnknownLog(t, 10, time.Hour, now)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, domain.UnknownIdentifier{Type: domain.AccountIdentBarcode, Value: "old", SeenAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, l.Record(ctx, domain.UnknownIdentifier{Type: domain.AccountIdentBarcode, Value: "new", SeenAt: now}))

	got, err := l.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Value)
}

func TestUnknownIdentifierLog_EmptyAndNoop(t *testing.T) {
	l, _ := newTestUnknownLog(t, 0, time.Hour, time.Now())

	got, err := l.Recent(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int64(1), l.capacity)

	var noop NoopUnknownIdentifierLog
	assert.NoError(t, noop.Record(context.Background(), domain.UnknownIdentifier{}))
	recent, err := noop.Recent(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, recent)
}
