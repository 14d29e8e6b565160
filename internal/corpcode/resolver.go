package corpcode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aristath/dart-ebitda/internal/domain"
	"github.com/aristath/dart-ebitda/internal/snapshot"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultExpiry is how long a directory snapshot is trusted before it is
// downloaded again.
const DefaultExpiry = 30 * 24 * time.Hour

// After a failed download the stale directory keeps serving for this long
// before another download is attempted.
const refreshBackoff = time.Hour

// loadTimeout bounds one shared directory load, independent of the callers
// waiting on it.
const loadTimeout = 5 * time.Minute

// DocumentSource downloads the directory XML document.
type DocumentSource interface {
	CorpCodeDocument(ctx context.Context) ([]byte, error)
}

// Resolver maps company queries to directory records. The directory is loaded
// on first use and swapped atomically on refresh.
type Resolver struct {
	source DocumentSource
	store  snapshot.Store
	expiry time.Duration
	now    func() time.Time
	log    zerolog.Logger

	dir         atomic.Pointer[Directory]
	nextAttempt atomic.Int64 // unix nanos; no background refresh before this
	group       singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithExpiry sets the snapshot lifetime.
func WithExpiry(expiry time.Duration) ResolverOption {
	return func(r *Resolver) {
		if expiry > 0 {
			r.expiry = expiry
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver reading snapshots from store and downloading
// fresh ones from source.
func NewResolver(source DocumentSource, store snapshot.Store, log zerolog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		source: source,
		store:  store,
		expiry: DefaultExpiry,
		now:    time.Now,
		log:    log.With().Str("component", "corp_resolver").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the company matching query. Blank and unmatched queries
// yield a NotFoundError.
func (r *Resolver) Resolve(ctx context.Context, query string) (domain.CompanyRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.CompanyRecord{}, &domain.NotFoundError{Query: query}
	}

	dir, err := r.current(ctx)
	if err != nil {
		return domain.CompanyRecord{}, err
	}

	record, ok := dir.Lookup(query)
	if !ok {
		return domain.CompanyRecord{}, &domain.NotFoundError{Query: query}
	}
	return record, nil
}

// Current returns the loaded directory, or nil before the first load.
func (r *Resolver) Current() *Directory {
	return r.dir.Load()
}

// Refresh rebuilds the directory. Without force a fresh snapshot is reused;
// with force the directory is always downloaded again. Concurrent calls share
// one rebuild.
func (r *Resolver) Refresh(ctx context.Context, force bool) (*Directory, error) {
	key := "load"
	if force {
		key = "force"
	}

	ch := r.group.DoChan(key, func() (any, error) {
		// The load outlives any single caller.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		dir, stale, err := r.build(loadCtx, force)
		if err != nil {
			return nil, err
		}
		r.dir.Store(dir)
		if stale {
			r.nextAttempt.Store(r.now().Add(refreshBackoff).UnixNano())
		} else {
			r.nextAttempt.Store(0)
		}
		r.log.Info().
			Int("records", dir.Len()).
			Int("names", dir.Names()).
			Int("tickers", dir.Tickers()).
			Time("as_of", dir.AsOf()).
			Msg("Company directory loaded")
		return dir, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Directory), nil
	}
}

// current returns a usable directory, loading or refreshing it as needed.
// A stale directory keeps serving when the refresh fails.
func (r *Resolver) current(ctx context.Context) (*Directory, error) {
	dir := r.dir.Load()
	if dir == nil {
		return r.Refresh(ctx, false)
	}
	if !r.expired(dir.AsOf()) {
		return dir, nil
	}

	now := r.now()
	if now.UnixNano() < r.nextAttempt.Load() {
		return dir, nil
	}

	fresh, err := r.Refresh(ctx, false)
	if err != nil {
		if ctx.Err() != nil {
			// The caller left; the shared load carries on without it.
			return nil, ctx.Err()
		}
		r.nextAttempt.Store(now.Add(refreshBackoff).UnixNano())
		r.log.Warn().Err(err).Msg("Directory refresh failed, serving stale directory")
		return dir, nil
	}
	return fresh, nil
}

// build produces a directory from the snapshot or a fresh download. stale
// reports that the download failed and an expired snapshot was used instead.
func (r *Resolver) build(ctx context.Context, force bool) (dir *Directory, stale bool, err error) {
	var staleAsOf time.Time
	if !force {
		modTime, err := r.store.ModTime(ctx)
		switch {
		case err == nil && !r.expired(modTime):
			doc, err := r.store.Load(ctx)
			if err == nil {
				r.log.Debug().Str("location", r.store.Location()).Msg("Using directory snapshot")
				dir, err := ParseDirectory(doc, modTime)
				return dir, false, err
			}
			r.log.Warn().Err(err).Msg("Failed to read directory snapshot, downloading")
		case err == nil:
			staleAsOf = modTime
		case !errors.Is(err, snapshot.ErrNotFound):
			r.log.Warn().Err(err).Msg("Failed to inspect directory snapshot, downloading")
		}
	}

	r.log.Info().Msg("Downloading company directory")
	doc, err := r.source.CorpCodeDocument(ctx)
	if err != nil {
		err = fmt.Errorf("failed to download company directory: %w", err)
		if staleAsOf.IsZero() {
			return nil, false, err
		}
		staleDoc, loadErr := r.store.Load(ctx)
		if loadErr != nil {
			return nil, false, err
		}
		dir, parseErr := ParseDirectory(staleDoc, staleAsOf)
		if parseErr != nil {
			return nil, false, err
		}
		r.log.Warn().Err(err).Time("as_of", staleAsOf).Msg("Download failed, using expired directory snapshot")
		return dir, true, nil
	}

	dir, err = ParseDirectory(doc, r.now())
	if err != nil {
		return nil, false, err
	}

	if err := r.store.Save(ctx, doc); err != nil {
		r.log.Warn().Err(err).Str("location", r.store.Location()).Msg("Failed to save directory snapshot")
	}
	return dir, false, nil
}

func (r *Resolver) expired(asOf time.Time) bool {
	return r.now().Sub(asOf) >= r.expiry
}
