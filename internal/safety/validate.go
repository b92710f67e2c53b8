// Package safety enforces response invariants on every candidate, whichever
// path produced it.
package safety

import (
	"fmt"
	"strings"

	"github.com/ggonzalez94/tradeagent/internal/intent"
)

const (
	DefaultMessage = "I processed your request."

	largeTradeThreshold     = 1000.0
	veryLargeTradeThreshold = 5000.0
)

// Memecoins are assets whose volatility always warrants high risk.
var Memecoins = map[string]struct{}{
	"PEPE": {}, "SHIB": {}, "DOGE": {}, "BONK": {}, "WIF": {}, "FLOKI": {},
}

// Validate returns a copy of candidate that satisfies the response
// invariants. It fills defaults, escalates risk and appends mandatory
// warnings. It never lowers risk, never clears confirmation and is
// idempotent. The candidate is not modified.
func Validate(candidate intent.Response, prices intent.PriceContext) intent.Response {
	resp := candidate.Clone()
	w := newWarnings(resp.Warnings)

	if strings.TrimSpace(resp.Message) == "" {
		resp.Message = DefaultMessage
	}
	if !resp.Intent.Valid() {
		resp.Intent = intent.IntentChat
	}
	if resp.Action == nil {
		resp.Action = &intent.Action{Type: intent.ActionNone}
	}
	action := resp.Action
	if !action.Type.Valid() {
		if action.Type != "" {
			w.add(fmt.Sprintf("⚠️ Unsupported action %q was ignored", string(action.Type)))
		}
		action.Type = intent.ActionNone
	}
	if action.RiskLevel != "" && !action.RiskLevel.Valid() {
		action.RiskLevel = ""
	}
	action.TokenFrom = normalizeSymbol(action.TokenFrom)
	action.TokenTo = normalizeSymbol(action.TokenTo)
	clampNonNegative(&action.AmountUSD)
	clampNonNegative(&action.AmountTokens)

	if amount := exposureUSD(action, prices); amount > largeTradeThreshold {
		w.add(fmt.Sprintf("⚠️ Large trade amount: %s", intent.Money(amount)))
		action.RequiresConfirmation = true
		if amount > veryLargeTradeThreshold {
			action.Escalate(intent.RiskHigh)
		} else {
			action.Escalate(intent.RiskMedium)
		}
	}

	if token := tradeToken(action); token != "" {
		if _, meme := Memecoins[token]; meme {
			w.add(fmt.Sprintf("⚠️ %s is a memecoin with high volatility", token))
			action.Escalate(intent.RiskHigh)
		}
	}

	if action.Type != intent.ActionNone {
		action.Escalate(intent.RiskLow)
	}
	resp.Warnings = w.list()
	return resp
}

// exposureUSD is the dollar size of the trade. Quantity-only trades are valued
// at the current price of the token being spent or bought.
func exposureUSD(a *intent.Action, prices intent.PriceContext) float64 {
	if a.AmountUSD != nil {
		return *a.AmountUSD
	}
	if a.AmountTokens == nil {
		return 0
	}
	token := a.TokenTo
	if a.Type == intent.ActionSell || a.Type == intent.ActionSwap || token == "" {
		token = a.TokenFrom
	}
	return *a.AmountTokens * prices.Price(token)
}

// tradeToken is the asset a trade exposes the user to. When the destination is
// a stablecoin the source is the interesting side.
func tradeToken(a *intent.Action) string {
	if a.TokenTo != "" {
		if _, stable := intent.Stablecoins[a.TokenTo]; !stable || a.TokenFrom == "" {
			return a.TokenTo
		}
	}
	return a.TokenFrom
}

func normalizeSymbol(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}

func clampNonNegative(v **float64) {
	if *v != nil && **v < 0 {
		*v = nil
	}
}

type warnings struct {
	seen  map[string]struct{}
	items []string
}

// newWarnings keeps existing entries as they are and only dedupes additions.
func newWarnings(existing []string) *warnings {
	w := &warnings{seen: make(map[string]struct{}, len(existing))}
	for _, msg := range existing {
		w.seen[msg] = struct{}{}
		w.items = append(w.items, msg)
	}
	return w
}

func (w *warnings) add(msg string) {
	if msg == "" {
		return
	}
	if _, ok := w.seen[msg]; ok {
		return
	}
	w.seen[msg] = struct{}{}
	w.items = append(w.items, msg)
}

func (w *warnings) list() []string {
	if len(w.items) == 0 {
		return nil
	}
	return w.items
}
