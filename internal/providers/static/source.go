// Package static serves prices from a JSON file, for offline use and demos.
package static

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
	"github.com/ggonzalez94/tradeagent/internal/intent"
	"github.com/ggonzalez94/tradeagent/internal/model"
	"github.com/ggonzalez94/tradeagent/internal/providers"
)

type Source struct {
	path string
}

func New(path string) *Source {
	return &Source{path: path}
}

func (s *Source) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "file",
		Type:         "prices",
		Capabilities: []string{"prices.spot"},
	}
}

// Prices reads the file on every call. Entries may be bare numbers or
// {"price": p, "change_24h": c} records.
func (s *Source) Prices(_ context.Context, symbols []string) (intent.PriceContext, error) {
	buf, err := os.ReadFile(s.path)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("read price file %s", s.path), err)
	}
	var all intent.PriceContext
	if err := json.Unmarshal(buf, &all); err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "decode price file", err)
	}
	all = all.Normalized()
	if len(symbols) == 0 {
		return all, nil
	}
	out := make(intent.PriceContext, len(symbols))
	for _, sym := range providers.NormalizeSymbols(symbols) {
		if q, ok := all[sym]; ok {
			out[sym] = q
		}
	}
	return out, nil
}
