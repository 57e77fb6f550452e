package draft

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/internal/metrics"
	"github.com/fastygo/proposals/pkg/clock"
	"github.com/fastygo/proposals/pkg/logger"
	"github.com/fastygo/proposals/repository"
)

// DefaultWindow is how long an untouched draft stays resumable.
const DefaultWindow = 2 * time.Hour

// Config wires the lookup stages of a Finder.
type Config struct {
	// Cache is consulted first and refreshed on primary hits. Optional.
	Cache    repository.DraftCache
	// Bindings confirms cache hits against the stored row. Without it the
	// cache is not consulted.
	Bindings repository.DraftBindingResolver
	Primary  repository.DraftLookup
	Fallback repository.DraftLookup
	Window   time.Duration
	Clock    clock.Clock
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Finder locates a recent editable draft for a customer/actor pair so that
// retries and reloads continue it instead of creating a duplicate.
type Finder struct {
	cache    repository.DraftCache
	bindings repository.DraftBindingResolver
	primary  repository.DraftLookup
	fallback repository.DraftLookup
	window   time.Duration
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewFinder(cfg Config) *Finder {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Finder{
		cache:    cfg.Cache,
		bindings: cfg.Bindings,
		primary:  cfg.Primary,
		fallback: cfg.Fallback,
		window:   cfg.Window,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Window returns the recency window.
func (f *Finder) Window() time.Duration { return f.window }

// Find returns the most recently updated draft for key inside the window,
// or nil. Lookup errors never surface: when every stage fails the caller
// creates a new proposal.
func (f *Finder) Find(ctx context.Context, key domain.DraftKey) *domain.DraftRef {
	key = key.Normalize()
	if !key.Valid() {
		return nil
	}
	since := f.clock.Now().Add(-f.window)
	log := logger.WithRequestID(ctx, f.logger).With(zap.String("actor_id", key.ActorID))

	if f.cache != nil && f.bindings != nil {
		ref, err := f.cache.FindRecentDraft(ctx, key, since)
		switch {
		case err != nil:
			f.metrics.DraftLookupFailed("cache")
			log.Warn("draft cache lookup failed", zap.Error(err))
		case ref != nil && !ref.UpdatedAt.Before(since):
			if f.confirm(ctx, key, ref.ID) {
				return ref
			}
		}
	}

	for _, stage := range []struct {
		name   string
		lookup repository.DraftLookup
	}{
		{"primary", f.primary},
		{"fallback", f.fallback},
	} {
		if stage.lookup == nil {
			continue
		}
		ref, err := stage.lookup.FindRecentDraft(ctx, key, since)
		if err != nil {
			f.metrics.DraftLookupFailed(stage.name)
			log.Warn("draft lookup failed", zap.String("stage", stage.name), zap.Error(err))
			continue
		}
		if ref != nil {
			f.Remember(ctx, key, *ref)
		}
		return ref
	}
	return nil
}

// confirm checks a cached ref against the stored row and drops the entry
// when the proposal moved to another owner or email or left draft.
func (f *Finder) confirm(ctx context.Context, key domain.DraftKey, proposalID string) bool {
	binding, err := f.bindings.DraftBindingFor(ctx, proposalID)
	switch {
	case err == nil && binding.Resumable(key):
		return true
	case err != nil && !domain.IsDomainError(err, domain.ErrCodeNotFound):
		f.metrics.DraftLookupFailed("cache_confirm")
		logger.WithRequestID(ctx, f.logger).Warn("draft cache confirmation failed",
			zap.String("proposal_id", proposalID), zap.Error(err))
		return false
	}
	f.Forget(ctx, key)
	return false
}

// Remember records ref as the current draft for key in the cache.
func (f *Finder) Remember(ctx context.Context, key domain.DraftKey, ref domain.DraftRef) {
	if f.cache == nil {
		return
	}
	key = key.Normalize()
	if !key.Valid() {
		return
	}
	if err := f.cache.Remember(ctx, key, ref); err != nil {
		logger.WithRequestID(ctx, f.logger).Warn("draft cache write failed", zap.Error(err))
	}
}

// Forget drops the cached draft for key.
func (f *Finder) Forget(ctx context.Context, key domain.DraftKey) {
	if f.cache == nil {
		return
	}
	key = key.Normalize()
	if !key.Valid() {
		return
	}
	if err := f.cache.Forget(ctx, key); err != nil {
		logger.WithRequestID(ctx, f.logger).Warn("draft cache delete failed", zap.Error(err))
	}
}
