package coingecko

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
	"github.com/ggonzalez94/tradeagent/internal/httpx"
	"github.com/ggonzalez94/tradeagent/internal/intent"
	"github.com/ggonzalez94/tradeagent/internal/model"
	"github.com/ggonzalez94/tradeagent/internal/providers"
	"github.com/ggonzalez94/tradeagent/internal/registry"
)

var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"APT":   "aptos",
	"SOL":   "solana",
	"DOGE":  "dogecoin",
	"USDC":  "usd-coin",
	"USDT":  "tether",
	"BNB":   "binancecoin",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"MATIC": "matic-network",
	"AVAX":  "avalanche-2",
	"PEPE":  "pepe",
	"SHIB":  "shiba-inu",
	"BONK":  "bonk",
	"WIF":   "dogwifcoin",
	"FLOKI": "floki",
}

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

func New(httpClient *httpx.Client, apiKey string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: registry.CoinGeckoBaseURL,
		apiKey:  strings.TrimSpace(apiKey),
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "coingecko",
		Type:          "prices",
		RequiresKey:   false,
		Capabilities:  []string{"prices.spot", "prices.change_24h"},
		KeyEnvVarName: "TRADEAGENT_COINGECKO_API_KEY",
	}
}

type quote struct {
	USD       *float64 `json:"usd"`
	Change24h *float64 `json:"usd_24h_change"`
}

func (c *Client) Prices(ctx context.Context, symbols []string) (intent.PriceContext, error) {
	bySymbol := map[string]string{}
	ids := make([]string, 0, len(symbols))
	for _, sym := range providers.NormalizeSymbols(symbols) {
		id, ok := coinIDs[sym]
		if !ok {
			continue
		}
		bySymbol[id] = sym
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return intent.PriceContext{}, nil
	}
	sort.Strings(ids)

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build coingecko request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	var resp map[string]quote
	if _, err := c.http.DoJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	out := make(intent.PriceContext, len(resp))
	for id, item := range resp {
		sym, ok := bySymbol[id]
		if !ok || item.USD == nil {
			continue
		}
		entry := intent.Quote{Price: *item.USD}
		if item.Change24h != nil {
			entry.Change24h = *item.Change24h
		} else {
			entry.Bare = true
		}
		out[sym] = entry
	}
	return out, nil
}
