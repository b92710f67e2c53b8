// Package market loads price contexts for chat turns, going through the
// sqlite snapshot cache and falling back to stale snapshots when the live
// source is down.
package market

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ggonzalez94/tradeagent/internal/cache"
	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
	"github.com/ggonzalez94/tradeagent/internal/intent"
	"github.com/ggonzalez94/tradeagent/internal/model"
	"github.com/ggonzalez94/tradeagent/internal/providers"
)

const staleWarning = "price fetch failed; serving stale prices within max-stale budget"

// Options mirror the cache related settings.
type Options struct {
	TTL      time.Duration
	MaxStale time.Duration
	NoStale  bool
	Timeout  time.Duration
}

type Feed struct {
	provider providers.PriceProvider
	store    *cache.Store
	opts     Options
	log      zerolog.Logger
	now      func() time.Time
}

// Snapshot is a loaded price context plus the diagnostics that end up in the
// envelope meta.
type Snapshot struct {
	Prices    intent.PriceContext
	Cache     model.CacheStatus
	Providers []model.ProviderStatus
	Warnings  []string
}

// NewFeed wraps provider. store may be nil to disable caching.
func NewFeed(provider providers.PriceProvider, store *cache.Store, opts Options, log zerolog.Logger) *Feed {
	return &Feed{provider: provider, store: store, opts: opts, log: log, now: time.Now}
}

func (f *Feed) Source() string {
	return f.provider.Info().Name
}

// Load returns prices for symbols (the default basket when empty).
func (f *Feed) Load(ctx context.Context, symbols []string) (Snapshot, error) {
	symbols = providers.NormalizeSymbols(symbols)
	if len(symbols) == 0 {
		symbols = providers.DefaultSymbols()
	}
	key := cacheKey(f.Source(), symbols)

	var stale *cache.Snapshot
	if f.store != nil {
		cached, err := f.store.Get(key, f.opts.MaxStale)
		switch {
		case err != nil:
			f.log.Warn().Err(err).Str("key", key).Msg("price cache read failed")
		case cached.Hit && !cached.Stale:
			return Snapshot{
				Prices: cached.Prices,
				Cache:  model.CacheStatus{Status: "hit", AgeMS: cached.Age.Milliseconds()},
			}, nil
		case cached.Hit:
			stale = &cached
		}
	}

	fetchCtx := ctx
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}
	start := f.now()
	prices, err := f.provider.Prices(fetchCtx, symbols)
	status := []model.ProviderStatus{{Name: f.Source(), Status: StatusFromErr(err), LatencyMS: f.now().Sub(start).Milliseconds()}}
	if err != nil {
		if stale == nil {
			return Snapshot{Providers: status}, err
		}
		if !staleFallbackAllowed(err) {
			return Snapshot{Providers: status}, err
		}
		if f.opts.NoStale {
			return Snapshot{Providers: status}, clierr.Wrap(clierr.CodeStale, "fresh price fetch failed and stale fallback is disabled (--no-stale)", err)
		}
		if stale.TooStale {
			return Snapshot{Providers: status}, clierr.Wrap(clierr.CodeStale, "fresh price fetch failed and cached prices exceeded stale budget", err)
		}
		f.log.Warn().Err(err).Dur("age", stale.Age).Msg("serving stale prices")
		return Snapshot{
			Prices:    stale.Prices,
			Cache:     model.CacheStatus{Status: "hit", AgeMS: stale.Age.Milliseconds(), Stale: true},
			Providers: status,
			Warnings:  []string{staleWarning},
		}, nil
	}

	cacheStatus := model.CacheStatus{Status: "bypass"}
	if f.store != nil {
		cacheStatus = model.CacheStatus{Status: "miss"}
		if err := f.store.Put(key, prices, f.opts.TTL); err != nil {
			f.log.Warn().Err(err).Str("key", key).Msg("price cache write failed")
		} else {
			cacheStatus = model.CacheStatus{Status: "write"}
		}
		// Snapshots past the stale budget can never be served again.
		if f.opts.MaxStale >= 0 {
			if err := f.store.Prune(f.opts.MaxStale); err != nil {
				f.log.Warn().Err(err).Msg("price cache prune failed")
			}
		}
	}
	return Snapshot{Prices: prices, Cache: cacheStatus, Providers: status}, nil
}

// StatusFromErr maps a provider error to the status label used in envelope
// meta.
func StatusFromErr(err error) string {
	if err == nil {
		return "ok"
	}
	if cErr, ok := clierr.As(err); ok {
		switch cErr.Code {
		case clierr.CodeAuth:
			return "auth_error"
		case clierr.CodeRateLimited:
			return "rate_limited"
		case clierr.CodeUnavailable:
			return "unavailable"
		default:
			return "error"
		}
	}
	return "error"
}

func staleFallbackAllowed(err error) bool {
	cErr, ok := clierr.As(err)
	if !ok {
		return false
	}
	return cErr.Code == clierr.CodeUnavailable || cErr.Code == clierr.CodeRateLimited
}

func cacheKey(source string, symbols []string) string {
	return source + "|" + strings.Join(symbols, ",")
}

// Rows flattens prices into display rows ordered by symbol.
func Rows(prices intent.PriceContext, source string) model.PriceRows {
	rows := make(model.PriceRows, 0, len(prices))
	for _, sym := range prices.Symbols() {
		q := prices[sym]
		rows = append(rows, model.PriceRow{Symbol: sym, PriceUSD: q.Price, Change24h: q.Change24h, Source: source})
	}
	return rows
}
