package binance

import (
	"context"
	"errors"
	"strconv"
	"strings"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
	"github.com/ggonzalez94/tradeagent/internal/intent"
	"github.com/ggonzalez94/tradeagent/internal/model"
	"github.com/ggonzalez94/tradeagent/internal/providers"
)

const quoteAsset = "USDT"

// listed holds symbols with a spot USDT pair. Binance rejects the whole batch
// when any requested pair is unknown, so the request is filtered first.
var listed = map[string]struct{}{
	"BTC": {}, "ETH": {}, "APT": {}, "SOL": {}, "DOGE": {}, "USDC": {}, "BNB": {},
	"XRP": {}, "ADA": {}, "AVAX": {}, "PEPE": {}, "SHIB": {}, "BONK": {}, "WIF": {}, "FLOKI": {},
}

type Client struct {
	api *gobinance.Client
}

// New builds a market-data client. Public ticker endpoints need no keys.
func New(baseURL string) *Client {
	api := gobinance.NewClient("", "")
	if strings.TrimSpace(baseURL) != "" {
		api.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{api: api}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "binance",
		Type:         "prices",
		RequiresKey:  false,
		Capabilities: []string{"prices.spot", "prices.change_24h"},
	}
}

func (c *Client) Prices(ctx context.Context, symbols []string) (intent.PriceContext, error) {
	out := intent.PriceContext{}
	pairs := make([]string, 0, len(symbols))
	for _, sym := range providers.NormalizeSymbols(symbols) {
		if sym == quoteAsset {
			out[sym] = intent.Quote{Price: 1, Bare: true}
			continue
		}
		if _, ok := listed[sym]; !ok {
			continue
		}
		pairs = append(pairs, sym+quoteAsset)
	}
	if len(pairs) == 0 {
		return out, nil
	}

	stats, err := c.api.NewListPriceChangeStatsService().Symbols(pairs).Do(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	for _, st := range stats {
		if st == nil || !strings.HasSuffix(st.Symbol, quoteAsset) {
			continue
		}
		price, err := strconv.ParseFloat(st.LastPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		change, _ := strconv.ParseFloat(st.PriceChangePercent, 64)
		out[strings.TrimSuffix(st.Symbol, quoteAsset)] = intent.Quote{Price: price, Change24h: change}
	}
	return out, nil
}

func mapError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1003:
			return clierr.Wrap(clierr.CodeRateLimited, "binance rate limited request", err)
		case -1121:
			return clierr.Wrap(clierr.CodeUnsupported, "binance rejected symbol", err)
		}
	}
	return clierr.Wrap(clierr.CodeUnavailable, "binance ticker request failed", err)
}
