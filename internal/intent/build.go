package intent

import (
	"fmt"
	"strings"
)

const (
	defaultDCAAmount = 100.0
	largeBuyRisk     = 500.0
	largeBuyWarning  = 1000.0
)

var (
	referenceBasket    = []string{"BTC", "ETH", "APT", "SOL"}
	portfolioReference = []string{"BTC", "ETH", "APT"}
)

// builder holds per-request state while a branch composes its response.
type builder struct {
	text     string
	ents     Entities
	prices   PriceContext
	warnings []string
}

// Build composes the candidate response for a classified message. It does not
// apply safety checks.
func Build(branch Branch, text string, ents Entities, prices PriceContext) Response {
	b := &builder{text: text, ents: ents, prices: prices}
	var resp Response
	switch branch {
	case BranchRebalance:
		resp = b.rebalance()
	case BranchSwap:
		resp = b.swap()
	case BranchDCA:
		resp = b.dca()
	case BranchLimitOrder:
		resp = b.limitOrder()
	case BranchAlert:
		resp = b.alert()
	case BranchPortfolio:
		resp = b.portfolio()
	case BranchPriceCheck:
		resp = b.priceCheck()
	case BranchBuy:
		resp = b.buy()
	case BranchSell:
		resp = b.sell()
	case BranchHelp:
		resp = b.help()
	case BranchTokenMention:
		resp = b.tokenMention()
	default:
		resp = b.fallback()
	}
	resp.Warnings = append(b.warnings, resp.Warnings...)
	if resp.Action == nil {
		resp.Action = &Action{Type: ActionNone}
	}
	return resp
}

// quote returns the display label for symbol's price and records a warning
// when no price is known.
func (b *builder) quote(symbol string) (float64, string) {
	price := b.prices.Price(symbol)
	if price > 0 {
		return price, Money(price)
	}
	b.warn(fmt.Sprintf("⚠️ No price data for %s", symbol))
	return 0, "no price data"
}

func (b *builder) warn(msg string) {
	for _, w := range b.warnings {
		if w == msg {
			return
		}
	}
	b.warnings = append(b.warnings, msg)
}

// referenceLines lists known prices for symbols, skipping unpriced ones.
func (b *builder) referenceLines(symbols []string) []string {
	lines := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		price := b.prices.Price(sym)
		if price <= 0 {
			continue
		}
		line := fmt.Sprintf("• %s: %s", sym, Money(price))
		if q, ok := b.prices[sym]; ok && !q.Bare {
			line += " " + changeLabel(q.Change24h)
		}
		lines = append(lines, line)
	}
	return lines
}

func (b *builder) rebalance() Response {
	targets := rebalanceTargets(b.ents.Tokens)
	split := b.splitRatio()
	shares := []int{split.First, split.Second}

	trades := []SubTrade{{
		Type:        SubTradeSellAll,
		TokenTo:     "USDC",
		Description: "Liquidate portfolio",
	}}
	var plan strings.Builder
	plan.WriteString("1. Sell all current holdings to USDC\n")
	for i, sym := range targets {
		trades = append(trades, SubTrade{
			Type:        SubTradeBuy,
			TokenFrom:   "USDC",
			TokenTo:     sym,
			Percentage:  shares[i],
			Description: fmt.Sprintf("Buy %s with %d%%", sym, shares[i]),
		})
		_, label := b.quote(sym)
		fmt.Fprintf(&plan, "%d. Buy %s with %d%% of proceeds (now %s)\n", i+2, sym, shares[i], label)
	}

	return Response{
		Intent: IntentTrade,
		Message: fmt.Sprintf("🔄 **Portfolio Rebalance**\n\nPlan:\n%s\nSplit: %d/%d between %s and %s. Reply to confirm before anything executes.",
			plan.String(), split.First, split.Second, targets[0], targets[1]),
		Action: &Action{
			Type:                 ActionMultiTrade,
			RiskLevel:            RiskHigh,
			RequiresConfirmation: true,
			Trades:               trades,
		},
		Warnings: []string{
			"⚠️ This will sell ALL your current holdings",
			"⚠️ Large portfolio rebalance operation",
			"⚠️ Market volatility may affect execution prices",
		},
		Suggestions: []string{"Confirm execution", "Modify split ratio", "Cancel"},
	}
}

// rebalanceTargets picks two buy targets: BTC and ETH when named, else the
// first two detected tokens, else BTC and ETH. A lone BTC or ETH mention is
// paired with the next detected token or the other default.
func rebalanceTargets(tokens []string) []string {
	var named []string
	for _, sym := range tokens {
		if sym == "BTC" || sym == "ETH" {
			named = append(named, sym)
		}
	}
	switch {
	case len(named) == 2:
		return named
	case len(named) == 1:
		for _, sym := range append(append([]string{}, tokens...), "BTC", "ETH") {
			if sym != named[0] {
				return []string{named[0], sym}
			}
		}
	case len(tokens) >= 2:
		return []string{tokens[0], tokens[1]}
	}
	return []string{"BTC", "ETH"}
}

func (b *builder) splitRatio() SplitRatio {
	if b.ents.Split != nil {
		return *b.ents.Split
	}
	if len(b.ents.Percentages) >= 2 {
		return SplitRatio{First: b.ents.Percentages[0], Second: b.ents.Percentages[1]}
	}
	return defaultSplit
}

func (b *builder) swap() Response {
	from, to := b.ents.Tokens[0], b.ents.Tokens[1]
	fromPrice, fromLabel := b.quote(from)
	toPrice, toLabel := b.quote(to)

	var msg strings.Builder
	fmt.Fprintf(&msg, "🔁 **Swap %s → %s**\n\n", from, to)
	fmt.Fprintf(&msg, "• %s: %s\n• %s: %s\n", from, fromLabel, to, toLabel)
	if fromPrice > 0 && toPrice > 0 {
		fmt.Fprintf(&msg, "• Rate: 1 %s ≈ %s %s\n", from, quantity(fromPrice/toPrice), to)
	}

	action := &Action{
		Type:                 ActionSwap,
		TokenFrom:            from,
		TokenTo:              to,
		RiskLevel:            RiskMedium,
		RequiresConfirmation: true,
	}
	if amount, ok := b.ents.FirstAmount(); ok {
		action.AmountUSD = floatPtr(amount)
		fmt.Fprintf(&msg, "\nAmount: %s of %s.", Money(amount), from)
		if fromPrice > 0 {
			action.AmountTokens = floatPtr(amount / fromPrice)
		}
	} else {
		fmt.Fprintf(&msg, "\nHow much %s would you like to swap?", from)
	}

	return Response{
		Intent:      IntentTrade,
		Message:     msg.String(),
		Action:      action,
		Suggestions: []string{fmt.Sprintf("Swap all %s", from), fmt.Sprintf("Swap $100 of %s", from)},
	}
}

func (b *builder) dca() Response {
	token := b.ents.PrimaryToken("BTC")
	amount, ok := b.ents.FirstAmount()
	if !ok {
		amount = defaultDCAAmount
	}
	frequency, found := firstKeyword(b.text, []string{FrequencyDaily, FrequencyMonthly})
	if !found {
		frequency = FrequencyWeekly
	}
	_, label := b.quote(token)

	return Response{
		Intent: IntentTrade,
		Message: fmt.Sprintf("📅 **Dollar-Cost Averaging**\n\nBuy %s of %s %s.\nCurrent %s price: %s\n\nRecurring buys smooth out entry price over time.",
			Money(amount), token, frequency, token, label),
		Action: &Action{
			Type:      ActionDCA,
			TokenFrom: "USDC",
			TokenTo:   token,
			AmountUSD: floatPtr(amount),
			Condition: &Condition{
				Type:      ConditionRecurring,
				Frequency: frequency,
			},
			RiskLevel:            RiskLow,
			RequiresConfirmation: true,
		},
		Suggestions: []string{"Confirm DCA", "Change frequency", "Change amount"},
	}
}

func (b *builder) limitOrder() Response {
	token := b.ents.PrimaryToken("BTC")
	current, label := b.quote(token)
	side := "sell"
	if strings.Contains(b.text, "buy") {
		side = "buy"
	}
	cond := &Condition{Type: ConditionPriceBelow}
	if containsAny(b.text, risingKeywords) {
		cond.Type = ConditionPriceAbove
	}

	action := &Action{
		Type:                 ActionLimitOrder,
		OrderSide:            side,
		Condition:            cond,
		RiskLevel:            RiskLow,
		RequiresConfirmation: true,
	}
	if side == "buy" {
		action.TokenFrom, action.TokenTo = "USDC", token
	} else {
		action.TokenFrom, action.TokenTo = token, "USDC"
	}
	// The first dollar figure is the trigger; a second one sizes the order.
	if len(b.ents.Scaled) > 1 {
		action.AmountUSD = floatPtr(b.ents.Scaled[1])
	}

	direction := "drops below"
	if cond.Type == ConditionPriceAbove {
		direction = "rises above"
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "🎯 **Limit Order: %s %s**\n\nCurrent price: %s\n", strings.ToUpper(side), token, label)
	var suggestions []string
	if b.ents.TargetPrice != nil {
		cond.TriggerPrice = floatPtr(*b.ents.TargetPrice)
		fmt.Fprintf(&msg, "Trigger: when %s %s %s\n", token, direction, Money(*b.ents.TargetPrice))
		suggestions = []string{"Confirm order", "Change target price", "Cancel"}
	} else {
		fmt.Fprintf(&msg, "\nAt what price should this %s order trigger?", side)
		if current > 0 {
			suggestions = []string{
				fmt.Sprintf("%s %s at %s", titleCase(side), token, Money(current*0.95)),
				fmt.Sprintf("%s %s at %s", titleCase(side), token, Money(current*1.05)),
			}
		}
	}

	return Response{
		Intent:      IntentTrade,
		Message:     msg.String(),
		Action:      action,
		Suggestions: suggestions,
	}
}

func (b *builder) alert() Response {
	token := b.ents.PrimaryToken("BTC")
	current, label := b.quote(token)

	action := &Action{
		Type:                 ActionAlert,
		TokenTo:              token,
		RiskLevel:            RiskLow,
		RequiresConfirmation: true,
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "🔔 **Price Alert: %s**\n\nCurrent price: %s\n", token, label)
	var suggestions []string
	if target := b.ents.TargetPrice; target != nil {
		cond := &Condition{Type: ConditionPriceBelow, TriggerPrice: floatPtr(*target)}
		direction := "falls to"
		if *target >= current {
			cond.Type = ConditionPriceAbove
			direction = "reaches"
		}
		action.Condition = cond
		fmt.Fprintf(&msg, "I'll notify you when %s %s %s.", token, direction, Money(*target))
	} else if current > 0 {
		msg.WriteString("\nAt what price should I notify you?")
		suggestions = []string{
			fmt.Sprintf("Alert at %s", Money(current*1.1)),
			fmt.Sprintf("Alert at %s", Money(current*0.9)),
		}
	} else {
		msg.WriteString("\nAt what price should I notify you?")
		suggestions = []string{fmt.Sprintf("Set a target price for %s", token)}
	}

	return Response{
		Intent:      IntentAlert,
		Message:     msg.String(),
		Action:      action,
		Suggestions: suggestions,
	}
}

func (b *builder) portfolio() Response {
	var msg strings.Builder
	msg.WriteString("💼 **Portfolio**\n\nConnect your wallet to see your holdings and balances.")
	if lines := b.referenceLines(portfolioReference); len(lines) > 0 {
		msg.WriteString("\n\nReference prices:\n")
		msg.WriteString(strings.Join(lines, "\n"))
	}
	return Response{
		Intent:      IntentPortfolio,
		Message:     msg.String(),
		Action:      &Action{Type: ActionNone},
		Suggestions: []string{"Check prices", "Buy $100 of BTC", "Set up DCA"},
	}
}

func (b *builder) priceCheck() Response {
	var priced []string
	for _, sym := range b.ents.Tokens {
		if b.prices.Has(sym) {
			priced = append(priced, sym)
		}
	}
	if len(priced) == 1 {
		sym := priced[0]
		_, label := b.quote(sym)
		msg := fmt.Sprintf("📊 **%s**: %s", sym, label)
		if q := b.prices[sym]; !q.Bare && q.Price > 0 {
			msg += fmt.Sprintf(" (%s 24h)", changeLabel(q.Change24h))
		}
		return Response{
			Intent:      IntentPriceCheck,
			Message:     msg,
			Action:      &Action{Type: ActionNone},
			Suggestions: []string{fmt.Sprintf("Buy %s", sym), fmt.Sprintf("Sell %s", sym), fmt.Sprintf("Set alert for %s", sym)},
		}
	}

	lines := b.referenceLines(referenceBasket)
	if len(lines) == 0 {
		b.warn("⚠️ No price data available")
		return Response{
			Intent:  IntentPriceCheck,
			Message: "📊 Price data is unavailable right now. Try again in a moment.",
			Action:  &Action{Type: ActionNone},
		}
	}
	return Response{
		Intent:      IntentPriceCheck,
		Message:     "📊 **Current Prices**\n\n" + strings.Join(lines, "\n"),
		Action:      &Action{Type: ActionNone},
		Suggestions: []string{"Buy BTC", "Swap ETH to APT", "Set price alert"},
	}
}

func (b *builder) buy() Response {
	token := b.ents.PrimaryToken("APT")
	_, label := b.quote(token)
	action := &Action{
		Type:                 ActionBuy,
		TokenFrom:            "USDC",
		TokenTo:              token,
		RiskLevel:            RiskLow,
		RequiresConfirmation: true,
	}
	resp := Response{Intent: IntentTrade, Action: action}

	if containsAny(b.text, useMaxKeywords) {
		action.UseMax = true
		action.RiskLevel = RiskHigh
		resp.Message = fmt.Sprintf("🟢 **Buy %s with entire balance**\n\nCurrent price: %s", token, label)
		resp.Warnings = []string{"⚠️ This will use your entire balance"}
		resp.Suggestions = []string{"Confirm", fmt.Sprintf("Buy $100 of %s instead", token), "Cancel"}
		return resp
	}

	amount, ok := b.ents.FirstAmount()
	if !ok {
		resp.Message = fmt.Sprintf("🟢 **Buy %s**\n\nCurrent price: %s\n\nHow much would you like to buy?", token, label)
		resp.Suggestions = []string{
			fmt.Sprintf("Buy $50 of %s", token),
			fmt.Sprintf("Buy $100 of %s", token),
			fmt.Sprintf("Buy $500 of %s", token),
		}
		return resp
	}
	action.AmountUSD = floatPtr(amount)
	if amount > largeBuyRisk {
		action.RiskLevel = RiskMedium
	}
	if amount >= largeBuyWarning {
		resp.Warnings = []string{fmt.Sprintf("⚠️ Large trade: %s", Money(amount))}
	}
	resp.Message = fmt.Sprintf("🟢 **Buy %s of %s**\n\nCurrent price: %s", Money(amount), token, label)
	if price := b.prices.Price(token); price > 0 {
		action.AmountTokens = floatPtr(amount / price)
		resp.Message += fmt.Sprintf("\nEstimated: %s %s", quantity(amount/price), token)
	}
	resp.Suggestions = []string{"Confirm", "Change amount", "Cancel"}
	return resp
}

func (b *builder) sell() Response {
	token := b.ents.PrimaryToken("BTC")
	_, label := b.quote(token)
	action := &Action{
		Type:                 ActionSell,
		TokenFrom:            token,
		TokenTo:              "USDC",
		RiskLevel:            RiskLow,
		RequiresConfirmation: true,
	}
	resp := Response{Intent: IntentTrade, Action: action}

	if containsAny(b.text, useMaxKeywords) {
		action.SellAll = true
		action.RiskLevel = RiskHigh
		resp.Message = fmt.Sprintf("🔴 **Sell all %s**\n\nCurrent price: %s", token, label)
		resp.Warnings = []string{fmt.Sprintf("⚠️ This will sell ALL your %s", token)}
		resp.Suggestions = []string{"Confirm", fmt.Sprintf("Sell half of my %s", token), "Cancel"}
		return resp
	}

	amount, ok := b.ents.FirstAmount()
	if !ok {
		resp.Message = fmt.Sprintf("🔴 **Sell %s**\n\nCurrent price: %s\n\nHow much would you like to sell?", token, label)
		resp.Suggestions = []string{
			fmt.Sprintf("Sell $100 of %s", token),
			fmt.Sprintf("Sell all %s", token),
		}
		return resp
	}
	action.AmountUSD = floatPtr(amount)
	resp.Message = fmt.Sprintf("🔴 **Sell %s of %s**\n\nCurrent price: %s", Money(amount), token, label)
	resp.Suggestions = []string{"Confirm", "Change amount", "Cancel"}
	return resp
}

const capabilities = `I can help you with:
• Buy or sell: "buy $100 of BTC", "sell all ETH"
• Swap: "swap ETH to APT"
• Rebalance: "sell everything and split 60/40 into BTC and ETH"
• DCA: "buy $50 of BTC every week"
• Limit orders: "buy ETH when it drops below $3,000"
• Alerts: "alert me on SOL"
• Prices: "what's the price of BTC?"`

func (b *builder) help() Response {
	msg := "👋 **Hi! I'm your trading assistant.**\n\n" + capabilities
	if lines := b.referenceLines(portfolioReference); len(lines) > 0 {
		msg += "\n\nMarkets now:\n" + strings.Join(lines, "\n")
	}
	return Response{
		Intent:      IntentHelp,
		Message:     msg,
		Action:      &Action{Type: ActionNone},
		Suggestions: []string{"Check prices", "Buy $100 of BTC", "Show my portfolio"},
	}
}

func (b *builder) tokenMention() Response {
	token := b.ents.Tokens[0]
	_, label := b.quote(token)
	return Response{
		Intent:  IntentChat,
		Message: fmt.Sprintf("%s is trading at %s. What would you like to do with it?", token, label),
		Action:  &Action{Type: ActionNone},
		Suggestions: []string{
			fmt.Sprintf("Buy %s", token),
			fmt.Sprintf("Sell %s", token),
			fmt.Sprintf("Set alert for %s", token),
		},
	}
}

func (b *builder) fallback() Response {
	msg := "I'm not sure what you'd like to do. " + capabilities
	if lines := b.referenceLines(portfolioReference); len(lines) > 0 {
		msg += "\n\nMarkets now:\n" + strings.Join(lines, "\n")
	}
	return Response{
		Intent:      IntentChat,
		Message:     msg,
		Action:      &Action{Type: ActionNone},
		Suggestions: []string{"Help", "Check prices", "Show my portfolio"},
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
