package market

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ggonzalez94/tradeagent/internal/cache"
	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
	"github.com/ggonzalez94/tradeagent/internal/intent"
	"github.com/ggonzalez94/tradeagent/internal/model"
)

type fakeProvider struct {
	calls  int
	prices intent.PriceContext
	err    error
	asked  []string
}

func (f *fakeProvider) Info() model.ProviderInfo {
	return model.ProviderInfo{Name: "fake", Type: "prices"}
}

func (f *fakeProvider) Prices(_ context.Context, symbols []string) (intent.PriceContext, error) {
	f.calls++
	f.asked = symbols
	if f.err != nil {
		return nil, f.err
	}
	return f.prices, nil
}

func newTestFeed(t *testing.T, p *fakeProvider, opts Options) (*Feed, *time.Time) {
	t.Helper()
	tmp := t.TempDir()
	store, err := cache.Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store.SetClock(clock)
	feed := NewFeed(p, store, opts, zerolog.Nop())
	feed.now = clock
	return feed, &now
}

func TestLoadWritesThenHitsCache(t *testing.T) {
	p := &fakeProvider{prices: intent.PriceContext{"BTC": {Price: 65000}}}
	feed, now := newTestFeed(t, p, Options{TTL: 30 * time.Second, MaxStale: time.Minute})

	snap, err := feed.Load(context.Background(), []string{"btc"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.Cache.Status != "write" || snap.Prices.Price("BTC") != 65000 {
		t.Fatalf("unexpected first snapshot: %+v", snap)
	}
	if len(p.asked) != 1 || p.asked[0] != "BTC" {
		t.Fatalf("expected normalized symbols, got %v", p.asked)
	}
	if len(snap.Providers) != 1 || snap.Providers[0].Status != "ok" {
		t.Fatalf("unexpected provider status: %+v", snap.Providers)
	}

	*now = now.Add(10 * time.Second)
	snap, err = feed.Load(context.Background(), []string{"BTC"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.Cache.Status != "hit" || snap.Cache.Stale || p.calls != 1 {
		t.Fatalf("expected fresh cache hit without refetch, got %+v calls=%d", snap.Cache, p.calls)
	}
}

func TestLoadServesStaleWhenProviderDown(t *testing.T) {
	p := &fakeProvider{prices: intent.PriceContext{"ETH": {Price: 3000}}}
	feed, now := newTestFeed(t, p, Options{TTL: 30 * time.Second, MaxStale: 5 * time.Minute})
	if _, err := feed.Load(context.Background(), []string{"ETH"}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	p.err = clierr.New(clierr.CodeUnavailable, "down")
	*now = now.Add(2 * time.Minute)
	snap, err := feed.Load(context.Background(), []string{"ETH"})
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if !snap.Cache.Stale || snap.Prices.Price("ETH") != 3000 {
		t.Fatalf("unexpected stale snapshot: %+v", snap)
	}
	if len(snap.Warnings) != 1 || snap.Providers[0].Status != "unavailable" {
		t.Fatalf("expected stale warning and unavailable status, got %+v", snap)
	}
}

func TestLoadStaleBudgetAndNoStale(t *testing.T) {
	p := &fakeProvider{prices: intent.PriceContext{"SOL": {Price: 150}}}
	feed, now := newTestFeed(t, p, Options{TTL: 30 * time.Second, MaxStale: time.Minute})
	if _, err := feed.Load(context.Background(), []string{"SOL"}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	p.err = clierr.New(clierr.CodeRateLimited, "slow down")

	*now = now.Add(10 * time.Minute)
	if _, err := feed.Load(context.Background(), []string{"SOL"}); !clierr.Is(err, clierr.CodeStale) {
		t.Fatalf("expected stale budget error, got %v", err)
	}

	feed.opts.MaxStale = time.Hour
	feed.opts.NoStale = true
	if _, err := feed.Load(context.Background(), []string{"SOL"}); !clierr.Is(err, clierr.CodeStale) {
		t.Fatalf("expected no-stale error, got %v", err)
	}
}

func TestLoadDoesNotMaskNonTransientErrors(t *testing.T) {
	p := &fakeProvider{prices: intent.PriceContext{"BTC": {Price: 1}}}
	feed, now := newTestFeed(t, p, Options{TTL: time.Second, MaxStale: time.Hour})
	if _, err := feed.Load(context.Background(), nil); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(p.asked) == 0 {
		t.Fatal("expected default basket to be requested")
	}
	p.err = clierr.New(clierr.CodeAuth, "bad key")
	*now = now.Add(time.Minute)
	if _, err := feed.Load(context.Background(), nil); !clierr.Is(err, clierr.CodeAuth) {
		t.Fatalf("expected auth error to surface, got %v", err)
	}
}

func TestLoadWithoutCache(t *testing.T) {
	p := &fakeProvider{err: errors.New("boom")}
	feed := NewFeed(p, nil, Options{}, zerolog.Nop())
	snap, err := feed.Load(context.Background(), []string{"BTC"})
	if err == nil {
		t.Fatal("expected error without cache")
	}
	if snap.Providers[0].Status != "error" {
		t.Fatalf("unexpected status: %+v", snap.Providers)
	}

	p.err = nil
	p.prices = intent.PriceContext{"BTC": {Price: 2}}
	snap, err = feed.Load(context.Background(), []string{"BTC"})
	if err != nil || snap.Cache.Status != "bypass" {
		t.Fatalf("expected bypass cache status, got %+v err=%v", snap.Cache, err)
	}
}

func TestLoadPrunesSnapshotsPastStaleBudget(t *testing.T) {
	p := &fakeProvider{prices: intent.PriceContext{"BTC": {Price: 65000}, "ETH": {Price: 3000}}}
	feed, now := newTestFeed(t, p, Options{TTL: 30 * time.Second, MaxStale: time.Minute})
	if _, err := feed.Load(context.Background(), []string{"BTC"}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	*now = now.Add(10 * time.Minute)
	if _, err := feed.Load(context.Background(), []string{"ETH"}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	old, err := feed.store.Get(cacheKey(feed.Source(), []string{"BTC"}), -1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if old.Hit {
		t.Fatal("expected BTC snapshot past the stale budget to be pruned")
	}
	fresh, err := feed.store.Get(cacheKey(feed.Source(), []string{"ETH"}), -1)
	if err != nil || !fresh.Hit {
		t.Fatalf("expected ETH snapshot to survive, got %+v err=%v", fresh, err)
	}
}
