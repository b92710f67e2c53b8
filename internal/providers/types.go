package providers

import (
	"context"

	"github.com/ggonzalez94/tradeagent/internal/intent"
	"github.com/ggonzalez94/tradeagent/internal/model"
)

type Provider interface {
	Info() model.ProviderInfo
}

// PriceProvider returns current USD prices for canonical symbols. Symbols the
// source does not know are omitted from the result rather than failing it.
type PriceProvider interface {
	Provider
	Prices(ctx context.Context, symbols []string) (intent.PriceContext, error)
}

// DefaultSymbols is the basket fetched when the caller does not ask for
// specific symbols: every symbol the interpreter recognizes plus the
// memecoins the validator flags.
func DefaultSymbols() []string {
	return append(intent.KnownSymbols(), "PEPE", "SHIB", "BONK", "WIF", "FLOKI")
}

// NormalizeSymbols upper-cases, trims and dedupes symbols, keeping order.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		s := intent.ResolveSymbol(sym)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
