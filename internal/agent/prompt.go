package agent

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ggonzalez94/tradeagent/internal/intent"
)

const maxPromptOrders = 5

const responseProtocol = `Respond with a single JSON object and nothing else:
{
  "message": "markdown reply for the user",
  "intent": "chat | trade | price_check | portfolio | alert | analysis | help | error",
  "action": {
    "type": "none | buy | sell | swap | multi_trade | dca | limit_order | alert | cancel",
    "token_from": "SYMBOL or null",
    "token_to": "SYMBOL or null",
    "amount_usd": number or null,
    "amount_tokens": number or null,
    "condition": {"type": "immediate | price_above | price_below | time_based | recurring", "trigger_price": number or null, "frequency": "daily | weekly | monthly"},
    "risk_level": "low | medium | high | critical",
    "requires_confirmation": true,
    "trades": [{"type": "sell_all | buy", "token_from": "SYMBOL", "token_to": "SYMBOL", "percentage": 50, "description": "text"}]
  },
  "warnings": ["text"],
  "suggestions": ["short follow-up"]
}

Rules:
- Use upper-case ticker symbols.
- Every trade requires confirmation; never claim a trade was executed.
- Ask a clarifying question when the amount or token is ambiguous.
- Flag memecoins and trades above $1,000 as risky.`

// SystemPrompt renders the model instructions for one request. now is only
// used to stamp the prompt.
func SystemPrompt(req Request, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("You are a crypto trading assistant. You turn requests into structured trading actions and explain them briefly.\n\n")

	sb.WriteString("CURRENT MARKET PRICES:\n")
	sb.WriteString(priceSection(req.Prices))
	sb.WriteString("\n\nWALLET:\n")
	sb.WriteString(walletSection(req.Wallet))
	if len(req.PendingOrders) > 0 {
		sb.WriteString("\n\nPENDING ORDERS:\n")
		sb.WriteString(orderSection(req.PendingOrders))
	}
	sb.WriteString("\n\n")
	sb.WriteString(responseProtocol)
	fmt.Fprintf(&sb, "\n\nCurrent time: %s", now.UTC().Format("2006-01-02 15:04:05 UTC"))
	return sb.String()
}

func priceSection(prices intent.PriceContext) string {
	var lines []string
	for _, sym := range prices.Symbols() {
		q := prices[sym]
		if q.Price <= 0 {
			continue
		}
		if q.Bare {
			lines = append(lines, fmt.Sprintf("%s: %s", sym, intent.Money(q.Price)))
			continue
		}
		arrow := "📈"
		if q.Change24h < 0 {
			arrow = "📉"
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s (%+.2f%%)", arrow, sym, intent.Money(q.Price), q.Change24h))
	}
	if len(lines) == 0 {
		return "(Fetching prices...)"
	}
	return strings.Join(lines, "\n")
}

func walletSection(w *Wallet) string {
	if w == nil || w.Address == "" {
		return "Not connected"
	}
	addr := w.Address
	if len(addr) > 8 {
		addr = addr[:8] + "..."
	}
	lines := []string{
		"Address: " + addr,
		"Balance: " + intent.Money(w.BalanceUSD),
	}
	if len(w.Holdings) > 0 {
		syms := make([]string, 0, len(w.Holdings))
		for sym := range w.Holdings {
			syms = append(syms, sym)
		}
		sort.Strings(syms)
		parts := make([]string, 0, len(syms))
		for _, sym := range syms {
			parts = append(parts, fmt.Sprintf("%s %g", sym, w.Holdings[sym]))
		}
		lines = append(lines, "Holdings: "+strings.Join(parts, ", "))
	}
	return strings.Join(lines, "\n")
}

func orderSection(orders []PendingOrder) string {
	if len(orders) > maxPromptOrders {
		orders = orders[:maxPromptOrders]
	}
	lines := make([]string, 0, len(orders))
	for _, o := range orders {
		line := fmt.Sprintf("- %s %s", o.Type, o.Token)
		if o.AmountUSD != nil {
			line += " " + intent.Money(*o.AmountUSD)
		}
		if o.TriggerPrice != nil {
			line += " @ " + intent.Money(*o.TriggerPrice)
		}
		if o.ID != "" {
			line += fmt.Sprintf(" (id %s)", o.ID)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
