// Package intent turns free-text trading requests into structured responses
// without a language model: entity extraction, an ordered intent cascade and
// per-intent response templates.
package intent

// Intent tags the kind of conversation turn a Response represents.
type Intent string

const (
	IntentChat       Intent = "chat"
	IntentTrade      Intent = "trade"
	IntentPriceCheck Intent = "price_check"
	IntentPortfolio  Intent = "portfolio"
	IntentAlert      Intent = "alert"
	IntentAnalysis   Intent = "analysis"
	IntentHelp       Intent = "help"
	IntentError      Intent = "error"
)

var validIntents = map[Intent]struct{}{
	IntentChat: {}, IntentTrade: {}, IntentPriceCheck: {}, IntentPortfolio: {},
	IntentAlert: {}, IntentAnalysis: {}, IntentHelp: {}, IntentError: {},
}

func (i Intent) Valid() bool {
	_, ok := validIntents[i]
	return ok
}

type ActionType string

const (
	ActionNone       ActionType = "none"
	ActionBuy        ActionType = "buy"
	ActionSell       ActionType = "sell"
	ActionSwap       ActionType = "swap"
	ActionMultiTrade ActionType = "multi_trade"
	ActionDCA        ActionType = "dca"
	ActionLimitOrder ActionType = "limit_order"
	ActionAlert      ActionType = "alert"
	ActionCancel     ActionType = "cancel"
)

var validActionTypes = map[ActionType]struct{}{
	ActionNone: {}, ActionBuy: {}, ActionSell: {}, ActionSwap: {}, ActionMultiTrade: {},
	ActionDCA: {}, ActionLimitOrder: {}, ActionAlert: {}, ActionCancel: {},
}

func (t ActionType) Valid() bool {
	_, ok := validActionTypes[t]
	return ok
}

// RiskLevel is ordered low < medium < high < critical. The zero value means unset.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank returns the ordinal of the level; unset and unknown levels rank 0.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

func (r RiskLevel) Valid() bool { return r.Rank() > 0 }

// AtLeast returns the higher of r and floor.
func (r RiskLevel) AtLeast(floor RiskLevel) RiskLevel {
	if floor.Rank() > r.Rank() {
		return floor
	}
	return r
}

type ConditionType string

const (
	ConditionImmediate  ConditionType = "immediate"
	ConditionPriceAbove ConditionType = "price_above"
	ConditionPriceBelow ConditionType = "price_below"
	ConditionTimeBased  ConditionType = "time_based"
	ConditionRecurring  ConditionType = "recurring"
)

// Condition gates when an action fires. TriggerPrice is set for the price
// variants, Expiry for time_based and Frequency for recurring.
type Condition struct {
	Type         ConditionType `json:"type"`
	TriggerPrice *float64      `json:"trigger_price,omitempty"`
	Expiry       string        `json:"expiry,omitempty"`
	Frequency    string        `json:"frequency,omitempty"`
}

const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

const (
	SubTradeSellAll = "sell_all"
	SubTradeBuy     = "buy"
)

// SubTrade is one leg of a multi_trade action, listed in execution order.
type SubTrade struct {
	Type        string `json:"type"`
	TokenFrom   string `json:"token_from,omitempty"`
	TokenTo     string `json:"token_to,omitempty"`
	Percentage  int    `json:"percentage,omitempty"`
	Description string `json:"description"`
}

type Action struct {
	Type                 ActionType `json:"type"`
	TokenFrom            string     `json:"token_from,omitempty"`
	TokenTo              string     `json:"token_to,omitempty"`
	AmountUSD            *float64   `json:"amount_usd,omitempty"`
	AmountTokens         *float64   `json:"amount_tokens,omitempty"`
	UseMax               bool       `json:"use_max,omitempty"`
	SellAll              bool       `json:"sell_all,omitempty"`
	OrderSide            string     `json:"order_side,omitempty"`
	Condition            *Condition `json:"condition,omitempty"`
	RiskLevel            RiskLevel  `json:"risk_level,omitempty"`
	RequiresConfirmation bool       `json:"requires_confirmation"`
	Trades               []SubTrade `json:"trades,omitempty"`
}

// Escalate raises the risk level to at least level. It never lowers it.
func (a *Action) Escalate(level RiskLevel) {
	a.RiskLevel = a.RiskLevel.AtLeast(level)
}

// Response is the unit returned to callers, whichever path produced it.
type Response struct {
	Message       string   `json:"message"`
	Intent        Intent   `json:"intent"`
	Action        *Action  `json:"action"`
	Warnings      []string `json:"warnings,omitempty"`
	Suggestions   []string `json:"suggestions,omitempty"`
	MarketContext string   `json:"market_context,omitempty"`
}

// Clone returns a deep copy so later stages never alias caller-owned slices.
func (r Response) Clone() Response {
	out := r
	out.Warnings = append([]string(nil), r.Warnings...)
	out.Suggestions = append([]string(nil), r.Suggestions...)
	if r.Action != nil {
		a := *r.Action
		a.AmountUSD = cloneFloat(r.Action.AmountUSD)
		a.AmountTokens = cloneFloat(r.Action.AmountTokens)
		if r.Action.Condition != nil {
			c := *r.Action.Condition
			c.TriggerPrice = cloneFloat(r.Action.Condition.TriggerPrice)
			a.Condition = &c
		}
		a.Trades = append([]SubTrade(nil), r.Action.Trades...)
		out.Action = &a
	}
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func floatPtr(v float64) *float64 { return &v }
