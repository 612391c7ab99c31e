package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kiosk-ledger/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// UnknownIdentifierLog implements ports.UnknownIdentifierLog as one sorted set
// scored by the time the identifier was last scanned. Writes trim it to
// capacity and drop members older than ttl.
type UnknownIdentifierLog struct {
	client   *goredis.Client
	key      string
	capacity int64
	ttl      time.Duration
	now      func() time.Time
}

// NewUnknownIdentifierLog creates the log. A capacity below 1 keeps one entry.
func NewUnknownIdentifierLog(client *goredis.Client, capacity int64, ttl time.Duration) *UnknownIdentifierLog {
	if capacity < 1 {
		capacity = 1
	}
	return &UnknownIdentifierLog{
		client:   client,
		key:      "unknown_identifiers",
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Record adds or refreshes the identifier.
func (l *UnknownIdentifierLog) Record(ctx context.Context, ident domain.UnknownIdentifier) error {
	member := string(ident.Type) + ":" + ident.Value
	cutoff := l.now().Add(-l.ttl).UnixMilli()

	_, err := l.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, l.key, goredis.Z{Score: float64(ident.SeenAt.UnixMilli()), Member: member})
		pipe.ZRemRangeByScore(ctx, l.key, "-inf", "("+strconv.FormatInt(cutoff, 10))
		pipe.ZRemRangeByRank(ctx, l.key, 0, -(l.capacity + 1))
		pipe.Expire(ctx, l.key, l.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis unknown identifier record: %w", err)
	}
	return nil
}

// Recent returns the identifiers seen within ttl, most recent first.
func (l *UnknownIdentifierLog) Recent(ctx context.Context) ([]domain.UnknownIdentifier, error) {
	cutoff := l.now().Add(-l.ttl).UnixMilli()

	zs, err := l.client.ZRevRangeByScoreWithScores(ctx, l.key, &goredis.ZRangeBy{
		Max: "+inf",
		Min: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis unknown identifier list: %w", err)
	}

	out := make([]domain.UnknownIdentifier, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		typ, value, found := strings.Cut(member, ":")
		if !found {
			continue
		}
		out = append(out, domain.UnknownIdentifier{
			Type:   domain.AccountIdentType(typ),
			Value:  value,
			SeenAt: time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return out, nil
}

// NoopUnknownIdentifierLog discards everything. Used when Redis is disabled.
type NoopUnknownIdentifierLog struct{}

func (NoopUnknownIdentifierLog) Record(context.Context, domain.UnknownIdentifier) error { return nil }

func (NoopUnknownIdentifierLog) Recent(context.Context) ([]domain.UnknownIdentifier, error) {
	return nil, nil
}
