package intent

import (
	"reflect"
	"strings"
	"testing"
)

func testPrices() PriceContext {
	return PriceContext{
		"BTC":  {Price: 65000, Change24h: 2.5},
		"ETH":  {Price: 3200, Change24h: -1.2},
		"APT":  {Price: 8.5, Change24h: 0.4},
		"SOL":  {Price: 150, Bare: true},
		"USDC": {Price: 1, Bare: true},
	}
}

func hasWarning(resp Response, fragment string) bool {
	for _, w := range resp.Warnings {
		if strings.Contains(w, fragment) {
			return true
		}
	}
	return false
}

func TestRebalanceExplicitSplit(t *testing.T) {
	in := Analyze("rebalance into BTC and ETH split 70/30", testPrices())
	if in.Entities.Split == nil || *in.Entities.Split != (SplitRatio{First: 70, Second: 30}) {
		t.Fatalf("unexpected split: %+v", in.Entities.Split)
	}
	resp := in.Response
	if resp.Intent != IntentTrade || resp.Action.Type != ActionMultiTrade {
		t.Fatalf("unexpected response: %+v", resp)
	}
	trades := resp.Action.Trades
	if len(trades) != 3 {
		t.Fatalf("expected 3 sub-trades, got %+v", trades)
	}
	if trades[0].Type != SubTradeSellAll || trades[0].TokenTo != "USDC" {
		t.Fatalf("expected sell-all leg first, got %+v", trades[0])
	}
	if trades[1].TokenTo != "BTC" || trades[1].Percentage != 70 {
		t.Fatalf("unexpected first buy leg: %+v", trades[1])
	}
	if trades[2].TokenTo != "ETH" || trades[2].Percentage != 30 {
		t.Fatalf("unexpected second buy leg: %+v", trades[2])
	}
	if resp.Action.RiskLevel != RiskHigh || !resp.Action.RequiresConfirmation {
		t.Fatalf("expected high risk with confirmation, got %+v", resp.Action)
	}
	if len(resp.Warnings) < 3 {
		t.Fatalf("expected at least three warnings, got %v", resp.Warnings)
	}
}

func TestRebalanceDefaults(t *testing.T) {
	resp := Interpret("sell everything", testPrices())
	trades := resp.Action.Trades
	if len(trades) != 3 || trades[1].TokenTo != "BTC" || trades[2].TokenTo != "ETH" {
		t.Fatalf("expected default BTC/ETH targets, got %+v", trades)
	}
	if trades[1].Percentage != 50 || trades[2].Percentage != 50 {
		t.Fatalf("expected default 50/50 split, got %+v", trades)
	}
}

func TestRebalanceTargetFallbacks(t *testing.T) {
	tests := []struct {
		text   string
		first  string
		second string
	}{
		{"rebalance into SOL", "BTC", "ETH"},
		{"rebalance into sol and usdc", "SOL", "USDC"},
		{"rebalance into BTC and SOL", "BTC", "SOL"},
		{"rebalance into eth", "ETH", "BTC"},
	}
	for _, tc := range tests {
		trades := Interpret(tc.text, testPrices()).Action.Trades
		if len(trades) != 3 || trades[1].TokenTo != tc.first || trades[2].TokenTo != tc.second {
			t.Fatalf("%q: expected %s/%s targets, got %+v", tc.text, tc.first, tc.second, trades)
		}
	}
}

func TestRebalanceFromPercentages(t *testing.T) {
	resp := Interpret("liquidate and put 60% sol 40% apt", testPrices())
	trades := resp.Action.Trades
	if trades[1].TokenTo != "SOL" || trades[1].Percentage != 60 {
		t.Fatalf("unexpected first buy leg: %+v", trades[1])
	}
	if trades[2].TokenTo != "APT" || trades[2].Percentage != 40 {
		t.Fatalf("unexpected second buy leg: %+v", trades[2])
	}
}

func TestBuyLargeAmount(t *testing.T) {
	in := Analyze("buy $1,250.50 of ETH", testPrices())
	if len(in.Entities.Amounts) != 1 || in.Entities.Amounts[0] != 1250.50 {
		t.Fatalf("unexpected amounts: %v", in.Entities.Amounts)
	}
	resp := in.Response
	a := resp.Action
	if a.Type != ActionBuy || a.TokenTo != "ETH" || a.AmountUSD == nil || *a.AmountUSD != 1250.50 {
		t.Fatalf("unexpected action: %+v", a)
	}
	if a.RiskLevel.Rank() < RiskMedium.Rank() {
		t.Fatalf("expected at least medium risk, got %s", a.RiskLevel)
	}
	if !hasWarning(resp, "Large trade") {
		t.Fatalf("expected large trade warning, got %v", resp.Warnings)
	}
	if a.AmountTokens == nil {
		t.Fatal("expected estimated token amount")
	}
}

func TestBuySmallAmountIsLowRisk(t *testing.T) {
	resp := Interpret("buy $200 of sol", testPrices())
	if resp.Action.RiskLevel != RiskLow || len(resp.Warnings) != 0 {
		t.Fatalf("unexpected risk or warnings: %+v %v", resp.Action, resp.Warnings)
	}
	resp = Interpret("buy $600 of sol", testPrices())
	if resp.Action.RiskLevel != RiskMedium || len(resp.Warnings) != 0 {
		t.Fatalf("expected medium risk without warning, got %+v %v", resp.Action, resp.Warnings)
	}
}

func TestBuyWithoutAmountAsks(t *testing.T) {
	resp := Interpret("buy", testPrices())
	if resp.Action.TokenTo != "APT" || resp.Action.AmountUSD != nil {
		t.Fatalf("expected APT buy without amount, got %+v", resp.Action)
	}
	if !strings.Contains(resp.Message, "How much") {
		t.Fatalf("expected clarifying question, got %q", resp.Message)
	}
	if len(resp.Suggestions) == 0 {
		t.Fatal("expected amount suggestions")
	}
}

func TestBuyMax(t *testing.T) {
	resp := Interpret("buy max btc", testPrices())
	if !resp.Action.UseMax || resp.Action.RiskLevel != RiskHigh {
		t.Fatalf("expected use_max high risk, got %+v", resp.Action)
	}
	if !hasWarning(resp, "entire balance") {
		t.Fatalf("expected entire balance warning, got %v", resp.Warnings)
	}
}

func TestSellAll(t *testing.T) {
	resp := Interpret("sell all my eth", testPrices())
	a := resp.Action
	if a.Type != ActionSell || !a.SellAll || a.TokenFrom != "ETH" || a.RiskLevel != RiskHigh {
		t.Fatalf("unexpected action: %+v", a)
	}
	if !hasWarning(resp, "sell ALL your ETH") {
		t.Fatalf("expected sell-all warning, got %v", resp.Warnings)
	}
	resp = Interpret("sell $300", testPrices())
	if resp.Action.TokenFrom != "BTC" || resp.Action.AmountUSD == nil || *resp.Action.AmountUSD != 300 {
		t.Fatalf("expected BTC sell of $300, got %+v", resp.Action)
	}
}

func TestSwapRate(t *testing.T) {
	resp := Interpret("swap ETH to APT", testPrices())
	a := resp.Action
	if a.Type != ActionSwap || a.TokenFrom != "ETH" || a.TokenTo != "APT" || !a.RequiresConfirmation {
		t.Fatalf("unexpected action: %+v", a)
	}
	if !strings.Contains(resp.Message, "Rate: 1 ETH ≈") {
		t.Fatalf("expected rate line, got %q", resp.Message)
	}
	if a.AmountUSD != nil {
		t.Fatalf("expected no amount, got %v", *a.AmountUSD)
	}
}

func TestSwapWithoutTargetPriceOmitsRate(t *testing.T) {
	prices := testPrices()
	delete(prices, "APT")
	resp := Interpret("swap $500 of ETH to APT", prices)
	if strings.Contains(resp.Message, "Rate:") {
		t.Fatalf("expected rate line to be omitted, got %q", resp.Message)
	}
	if !hasWarning(resp, "No price data for APT") {
		t.Fatalf("expected no price data warning, got %v", resp.Warnings)
	}
	if resp.Action.AmountUSD == nil || *resp.Action.AmountUSD != 500 {
		t.Fatalf("expected amount 500, got %+v", resp.Action)
	}
}

func TestDCAFrequency(t *testing.T) {
	resp := Interpret("daily dca of $25 into sol", testPrices())
	a := resp.Action
	if a.Type != ActionDCA || a.TokenTo != "SOL" || *a.AmountUSD != 25 {
		t.Fatalf("unexpected action: %+v", a)
	}
	if a.Condition == nil || a.Condition.Type != ConditionRecurring || a.Condition.Frequency != FrequencyDaily {
		t.Fatalf("unexpected condition: %+v", a.Condition)
	}

	resp = Interpret("dca into eth", testPrices())
	if resp.Action.Condition.Frequency != FrequencyWeekly || *resp.Action.AmountUSD != 100 {
		t.Fatalf("expected weekly $100 default, got %+v", resp.Action)
	}
	resp = Interpret("recurring monthly buy", testPrices())
	if resp.Action.TokenTo != "BTC" || resp.Action.Condition.Frequency != FrequencyMonthly {
		t.Fatalf("expected monthly BTC plan, got %+v", resp.Action)
	}
}

func TestLimitOrder(t *testing.T) {
	resp := Interpret("buy ETH when it drops below $3,000", testPrices())
	a := resp.Action
	if a.Type != ActionLimitOrder || a.OrderSide != "buy" || a.TokenFrom != "USDC" || a.TokenTo != "ETH" {
		t.Fatalf("unexpected action: %+v", a)
	}
	if a.Condition.Type != ConditionPriceBelow || *a.Condition.TriggerPrice != 3000 {
		t.Fatalf("unexpected condition: %+v", a.Condition)
	}

	resp = Interpret("sell btc if it reaches $80k", testPrices())
	a = resp.Action
	if a.OrderSide != "sell" || a.TokenFrom != "BTC" || a.Condition.Type != ConditionPriceAbove || *a.Condition.TriggerPrice != 80000 {
		t.Fatalf("unexpected action: %+v %+v", a, a.Condition)
	}
}

func TestLimitOrderSizeHonoursKSuffix(t *testing.T) {
	in := Analyze("buy eth when it drops below $3k with $6k", testPrices())
	a := in.Response.Action
	if a.Type != ActionLimitOrder || a.Condition == nil || *a.Condition.TriggerPrice != 3000 {
		t.Fatalf("unexpected action: %+v", a)
	}
	if a.AmountUSD == nil || *a.AmountUSD != 6000 {
		t.Fatalf("expected order size 6000, got %v", a.AmountUSD)
	}
	if want := []float64{3, 6}; !reflect.DeepEqual(in.Entities.Amounts, want) {
		t.Fatalf("expected raw amounts %v, got %v", want, in.Entities.Amounts)
	}
}

func TestAlertWithKSuffix(t *testing.T) {
	in := Analyze("alert me when BTC hits $100k", testPrices())
	if in.Entities.TargetPrice == nil || *in.Entities.TargetPrice != 100000 {
		t.Fatalf("expected target price 100000, got %v", in.Entities.TargetPrice)
	}
	cond := in.Response.Action.Condition
	if cond == nil || cond.Type != ConditionPriceAbove || *cond.TriggerPrice != 100000 {
		t.Fatalf("unexpected condition: %+v", cond)
	}
	if !in.Response.Action.RequiresConfirmation {
		t.Fatal("expected alert to require confirmation")
	}
}

func TestAlertSuggestsThresholds(t *testing.T) {
	resp := Interpret("alert me on btc", testPrices())
	if resp.Intent != IntentAlert || resp.Action.Type != ActionAlert {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Suggestions) != 2 || !strings.Contains(resp.Suggestions[0], "$71,500") || !strings.Contains(resp.Suggestions[1], "$58,500") {
		t.Fatalf("unexpected suggestions: %v", resp.Suggestions)
	}

	resp = Interpret("watch sol at $120", testPrices())
	cond := resp.Action.Condition
	if cond == nil || cond.Type != ConditionPriceBelow || *cond.TriggerPrice != 120 {
		t.Fatalf("unexpected condition: %+v", cond)
	}
}

func TestPortfolio(t *testing.T) {
	resp := Interpret("show my portfolio", testPrices())
	if resp.Intent != IntentPortfolio || resp.Action.Type != ActionNone {
		t.Fatalf("unexpected response: %+v", resp)
	}
	for _, sym := range []string{"BTC", "ETH", "APT"} {
		if !strings.Contains(resp.Message, sym) {
			t.Fatalf("expected %s reference price in %q", sym, resp.Message)
		}
	}
}

func TestPriceCheckSingleToken(t *testing.T) {
	resp := Interpret("what's the price of btc", testPrices())
	if resp.Intent != IntentPriceCheck || !strings.Contains(resp.Message, "$65,000.00") {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Suggestions) == 0 || resp.Suggestions[0] != "Buy BTC" {
		t.Fatalf("unexpected suggestions: %v", resp.Suggestions)
	}
}

func TestPriceCheckBasketSkipsUnpriced(t *testing.T) {
	prices := testPrices()
	delete(prices, "APT")
	resp := Interpret("price check", prices)
	if strings.Contains(resp.Message, "APT") {
		t.Fatalf("expected APT to be filtered, got %q", resp.Message)
	}
	for _, sym := range []string{"BTC", "ETH", "SOL"} {
		if !strings.Contains(resp.Message, sym) {
			t.Fatalf("expected %s in basket, got %q", sym, resp.Message)
		}
	}
}

func TestUnknownPriceIsFlagged(t *testing.T) {
	resp := Interpret("buy $100 of matic", testPrices())
	if strings.Contains(resp.Message, "$0.00") {
		t.Fatalf("expected no zero price in message, got %q", resp.Message)
	}
	if !strings.Contains(resp.Message, "no price data") || !hasWarning(resp, "No price data for MATIC") {
		t.Fatalf("expected no price data flag, got %q %v", resp.Message, resp.Warnings)
	}
}

func TestHelpAndDefault(t *testing.T) {
	resp := Interpret("hello", testPrices())
	if resp.Intent != IntentHelp || resp.Action.Type != ActionNone {
		t.Fatalf("unexpected help response: %+v", resp)
	}
	resp = Interpret("zzz qqq", nil)
	if resp.Intent != IntentChat || resp.Action.Type != ActionNone {
		t.Fatalf("unexpected default response: %+v", resp)
	}
	if !strings.Contains(resp.Message, "I can help you with") {
		t.Fatalf("expected capability summary, got %q", resp.Message)
	}
}

func TestTokenMention(t *testing.T) {
	resp := Interpret("solana", testPrices())
	if resp.Intent != IntentChat || !strings.Contains(resp.Message, "SOL is trading at $150.00") {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestPlainText(t *testing.T) {
	resp := Response{Message: "hi", Warnings: []string{"w1"}, Suggestions: []string{"a", "b"}}
	got := resp.PlainText()
	if got != "hi\n\nw1\n\nTry: a | b\n" {
		t.Fatalf("unexpected plain text: %q", got)
	}
}

func TestMoneyKeepsSubCentPrecision(t *testing.T) {
	tests := map[float64]string{
		65000:        "$65,000.00",
		0.5:          "$0.50",
		0.0000123456: "$0.00001235",
		0.004:        "$0.004",
		0:            "$0.00",
	}
	for in, want := range tests {
		if got := Money(in); got != want {
			t.Fatalf("Money(%v) = %q, want %q", in, got, want)
		}
	}
}
