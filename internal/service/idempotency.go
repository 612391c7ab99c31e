package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kiosk-ledger/internal/core/domain"
	"kiosk-ledger/internal/core/ports"
	"kiosk-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// IdempotencyGuard issues tokens and makes token-carrying mutations safe to resubmit.
//
// Layer 1 is the Redis result cache (optional, best-effort). Layer 2 is the
// entry table itself: the token is looked up inside the unit of work, and the
// unique constraint on (kind, token) catches a concurrent duplicate that
// committed in between.
type IdempotencyGuard struct {
	policy *RetryPolicy
	tokens ports.TokenRepository
	cache  ports.IdempotencyCache
	ttl    time.Duration
	log    zerolog.Logger
}

// NewIdempotencyGuard creates an IdempotencyGuard. cache may be nil.
func NewIdempotencyGuard(policy *RetryPolicy, tokens ports.TokenRepository, cache ports.IdempotencyCache, ttl time.Duration, log zerolog.Logger) *IdempotencyGuard {
	return &IdempotencyGuard{
		policy: policy,
		tokens: tokens,
		cache:  cache,
		ttl:    ttl,
		log:    log,
	}
}

// IssueToken increments the shared counter in its own unit of work.
func (g *IdempotencyGuard) IssueToken(ctx context.Context) (int64, error) {
	var token int64
	err := g.policy.Run(ctx, "issue_token", func(ctx context.Context, tx pgx.Tx) error {
		next, err := g.tokens.Next(ctx, tx)
		if err != nil {
			return fmt.Errorf("next token: %w", err)
		}
		token = next
		return nil
	})
	if err != nil {
		return 0, err
	}
	return token, nil
}

// lookupFunc returns the result previously committed under token, or nil.
type lookupFunc[R any] func(ctx context.Context, tx pgx.Tx, token int64) (*R, error)

// execFunc performs the mutation inside the unit of work.
type execFunc[R any] func(ctx context.Context, tx pgx.Tx) (*R, error)

// ownsFunc reports whether an earlier result was produced for the current requester.
type ownsFunc[R any] func(prior *R) bool

// guard runs exec at most once per (kind, token). fresh is false when the result
// was replayed from an earlier submission; callers emit events only for fresh results.
// A prior result that owns rejects fails with apperror.ErrTokenConflict and is not replayed.
func guard[R any](ctx context.Context, g *IdempotencyGuard, kind domain.EntryKind, token *int64, owns ownsFunc[R], lookup lookupFunc[R], exec execFunc[R]) (res *R, fresh bool, err error) {
	op := string(kind)

	if token == nil {
		err = g.policy.Run(ctx, op, func(ctx context.Context, tx pgx.Tx) error {
			r, err := exec(ctx, tx)
			res = r
			return err
		})
		if err != nil {
			return nil, false, err
		}
		return res, true, nil
	}

	key := domain.BuildIdempotencyKey(kind, *token)
	if cached := cachedResult[R](ctx, g, key); cached != nil {
		if !owns(cached) {
			return nil, false, g.conflict(key)
		}
		return cached, false, nil
	}

	err = g.policy.Run(ctx, op, func(ctx context.Context, tx pgx.Tx) error {
		prior, err := lookup(ctx, tx, *token)
		if err != nil {
			return fmt.Errorf("lookup token: %w", err)
		}
		if prior != nil {
			if !owns(prior) {
				return g.conflict(key)
			}
			res, fresh = prior, false
			return nil
		}
		r, err := exec(ctx, tx)
		if err != nil {
			return err
		}
		res, fresh = r, true
		return nil
	})

	if isDuplicateToken(err) {
		g.log.Info().Str("key", key).Msg("token committed concurrently, returning prior result")
		err = g.policy.Run(ctx, op, func(ctx context.Context, tx pgx.Tx) error {
			prior, err := lookup(ctx, tx, *token)
			if err != nil {
				return fmt.Errorf("lookup token: %w", err)
			}
			if prior == nil {
				return fmt.Errorf("token %s reported taken but no entry found", key)
			}
			if !owns(prior) {
				return g.conflict(key)
			}
			res, fresh = prior, false
			return nil
		})
	}
	if err != nil {
		return nil, false, err
	}

	rememberResult(ctx, g, key, res)
	return res, fresh, nil
}

func (g *IdempotencyGuard) conflict(key string) error {
	g.log.Warn().Str("key", key).Msg("token reused by another requester, refusing replay")
	return apperror.ErrTokenConflict()
}

func cachedResult[R any](ctx context.Context, g *IdempotencyGuard, key string) *R {
	if g.cache == nil {
		return nil
	}
	data, err := g.cache.Get(ctx, key)
	if err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
		return nil
	}
	if data == nil {
		return nil
	}
	var r R
	if err := json.Unmarshal(data, &r); err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("discarding undecodable cached result")
		return nil
	}
	return &r
}

func rememberResult[R any](ctx context.Context, g *IdempotencyGuard, key string, res *R) {
	if g.cache == nil || res == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("failed to encode result for cache")
		return
	}
	if err := g.cache.Set(ctx, key, data, g.ttl); err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency in redis")
	}
}

// internal is shorthand for wrapping a storage failure with context.
func internal(format string, err error) error {
	return apperror.InternalError(fmt.Errorf(format+": %w", err))
}
