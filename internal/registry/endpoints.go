package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	// Price sources.
	CoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	BinanceBaseURL   = "https://api.binance.com"

	// OpenAI-compatible chat completions endpoint used for the model path.
	GroqBaseURL = "https://api.groq.com/openai/v1"
)

// CredentialSafe reports whether endpoint may receive an API key: https with
// a host, or plain http on a loopback host for local gateways.
func CredentialSafe(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
