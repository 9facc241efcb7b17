package cache

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Resolver is the single read entry point over all cache tiers. Lookup
// order: snapshot, ledger, memo tier; the first hit wins. A miss means
// the caller must perform a network lookup and feed the terminal result
// back via Store.
type Resolver struct {
	memo      MemoStore
	ledger    *Ledger
	snapshots *SnapshotStore
	logger    zerolog.Logger
}

// NewResolver wires the tiers together. The ledger and snapshot store
// may be nil for a memo-only (volatile) configuration; nil tiers are
// skipped during resolution.
func NewResolver(memo MemoStore, ledger *Ledger, snapshots *SnapshotStore, logger zerolog.Logger) *Resolver {
	return &Resolver{
		memo:      memo,
		ledger:    ledger,
		snapshots: snapshots,
		logger:    logger,
	}
}

// Resolve returns the cached result for an identifier, or ErrMemoMiss
// when every tier misses.
//
// A snapshot that is not a positive record resolves to NotFound without
// a network call; the sink then degrades it into a ledger append so the
// next run skips the identifier before batching.
func (r *Resolver) Resolve(ctx context.Context, id string) (*Result, error) {
	if r.snapshots != nil {
		rec, err := r.snapshots.Read(id)
		switch {
		case err == nil:
			CacheHits.WithLabelValues("snapshot").Inc()
			if rec.IsYoinker {
				return &Result{Outcome: OutcomeFound, Record: rec}, nil
			}
			return &Result{Outcome: OutcomeNotFound}, nil
		case !errors.Is(err, ErrNoSnapshot):
			r.logger.Warn().Err(err).Str("user_id", id).Msg("Snapshot read error")
		}
	}

	if r.ledger != nil && r.ledger.Contains(id) {
		CacheHits.WithLabelValues("ledger").Inc()
		return &Result{Outcome: OutcomeNotFound}, nil
	}

	res, err := r.memo.Get(ctx, id)
	switch {
	case err == nil:
		CacheHits.WithLabelValues(r.memo.Tier()).Inc()
		return res, nil
	case !errors.Is(err, ErrMemoMiss):
		r.logger.Warn().Err(err).Str("user_id", id).Msg("Memo get error")
	}

	CacheMisses.Inc()
	return nil, ErrMemoMiss
}

// Store memoizes a terminal result. Unresolved results are treated as
// absence of information and never stored.
func (r *Resolver) Store(ctx context.Context, id string, res Result) {
	if !res.Terminal() {
		return
	}
	if err := r.memo.Set(ctx, id, res); err != nil {
		r.logger.Warn().Err(err).Str("user_id", id).Msg("Memo set error")
	}
}
