package model

import (
	"strconv"
	"time"

	"github.com/ggonzalez94/tradeagent/internal/intent"
)

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
	Cache     CacheStatus      `json:"cache"`
	Partial   bool             `json:"partial"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type ProviderInfo struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	RequiresKey   bool     `json:"requires_key"`
	Capabilities  []string `json:"capabilities"`
	KeyEnvVarName string   `json:"key_env_var,omitempty"`
}

// PriceRow is one line of the prices command output.
type PriceRow struct {
	Symbol    string  `json:"symbol"`
	PriceUSD  float64 `json:"price_usd"`
	Change24h float64 `json:"change_24h"`
	Source    string  `json:"source"`
}

type PriceRows []PriceRow

func (r PriceRows) TableHeader() []string {
	return []string{"SYMBOL", "PRICE", "24H", "SOURCE"}
}

func (r PriceRows) TableRows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, p := range r {
		rows = append(rows, []string{p.Symbol, intent.Money(p.PriceUSD), strconv.FormatFloat(p.Change24h, 'f', 2, 64) + "%", p.Source})
	}
	return rows
}

// ChatTurn is the output of the chat command and the chat API.
type ChatTurn struct {
	Response       intent.Response `json:"response"`
	Source         string          `json:"source"`
	FallbackReason string          `json:"fallback_reason,omitempty"`
	SavedOrderID   string          `json:"saved_order_id,omitempty"`
}

func (c ChatTurn) PlainText() string {
	text := c.Response.PlainText()
	if c.SavedOrderID != "" {
		text += "Saved as order " + c.SavedOrderID + "\n"
	}
	return text
}
