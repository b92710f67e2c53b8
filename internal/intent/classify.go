package intent

import "strings"

// Branch identifies which rule in the cascade handled a message.
type Branch int

const (
	BranchRebalance Branch = iota + 1
	BranchSwap
	BranchDCA
	BranchLimitOrder
	BranchAlert
	BranchPortfolio
	BranchPriceCheck
	BranchBuy
	BranchSell
	BranchHelp
	BranchTokenMention
	BranchDefault
)

var branchNames = map[Branch]string{
	BranchRebalance:    "rebalance",
	BranchSwap:         "swap",
	BranchDCA:          "dca",
	BranchLimitOrder:   "limit_order",
	BranchAlert:        "alert",
	BranchPortfolio:    "portfolio",
	BranchPriceCheck:   "price_check",
	BranchBuy:          "buy",
	BranchSell:         "sell",
	BranchHelp:         "help",
	BranchTokenMention: "token_mention",
	BranchDefault:      "default",
}

func (b Branch) String() string {
	if name, ok := branchNames[b]; ok {
		return name
	}
	return "unknown"
}

var (
	rebalanceKeywords   = []string{"liquidate", "convert all", "sell everything", "rebalance", "split"}
	swapKeywords        = []string{"swap", "exchange", "convert", "trade"}
	recurringKeywords   = []string{"dca", "recurring", "weekly", "daily", "monthly", "every"}
	conditionalKeywords = []string{"limit", "when", "if", "drops", "reaches", "hits", "below", "above"}
	alertKeywords       = []string{"alert", "notify", "tell me when", "watch"}
	portfolioKeywords   = []string{"portfolio", "holdings", "balance", "what do i have", "my assets"}
	priceKeywords       = []string{"price", "how much", "what's", "cost", "worth", "value"}
	greetingKeywords    = []string{"hello", "hi", "help", "hey", "start"}
	useMaxKeywords      = []string{"all", "everything", "max"}
	risingKeywords      = []string{"above", "reaches", "hits"}
)

type guard struct {
	branch Branch
	match  func(text string, ents Entities) bool
}

func keywordGuard(b Branch, keywords []string) guard {
	return guard{branch: b, match: func(text string, _ Entities) bool {
		return containsAny(text, keywords)
	}}
}

// cascade is evaluated top to bottom and the first match wins. Keyword sets
// overlap, so the order is load-bearing: "sell everything" must reach the
// rebalance rule before the plain sell rule sees it.
var cascade = []guard{
	keywordGuard(BranchRebalance, rebalanceKeywords),
	{branch: BranchSwap, match: func(text string, ents Entities) bool {
		return containsAny(text, swapKeywords) && len(ents.Tokens) >= 2
	}},
	keywordGuard(BranchDCA, recurringKeywords),
	keywordGuard(BranchLimitOrder, conditionalKeywords),
	keywordGuard(BranchAlert, alertKeywords),
	keywordGuard(BranchPortfolio, portfolioKeywords),
	keywordGuard(BranchPriceCheck, priceKeywords),
	keywordGuard(BranchBuy, []string{"buy"}),
	keywordGuard(BranchSell, []string{"sell"}),
	keywordGuard(BranchHelp, greetingKeywords),
	{branch: BranchTokenMention, match: func(_ string, ents Entities) bool {
		return len(ents.Tokens) > 0
	}},
}

// Classify selects the branch for normalized (lower-case) text.
func Classify(text string, ents Entities) Branch {
	for _, g := range cascade {
		if g.match(text, ents) {
			return g.branch
		}
	}
	return BranchDefault
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// firstKeyword returns the first keyword, in priority order, present in text.
func firstKeyword(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}

func (b Branch) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}
