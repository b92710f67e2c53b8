package intent

import (
	"sort"
	"strings"
)

type alias struct {
	name   string
	symbol string
}

// aliasTable maps lower-case names to canonical symbols. Matching is by
// substring; table order only breaks ties between aliases found at the same
// offset.
var aliasTable = []alias{
	{"bitcoin", "BTC"}, {"btc", "BTC"},
	{"ethereum", "ETH"}, {"eth", "ETH"},
	{"aptos", "APT"}, {"apt", "APT"},
	{"solana", "SOL"}, {"sol", "SOL"},
	{"doge", "DOGE"}, {"dogecoin", "DOGE"},
	{"usdc", "USDC"},
	{"usdt", "USDT"},
	{"bnb", "BNB"}, {"binance", "BNB"},
	{"xrp", "XRP"}, {"ripple", "XRP"},
	{"cardano", "ADA"}, {"ada", "ADA"},
	{"polygon", "MATIC"}, {"matic", "MATIC"},
	{"avalanche", "AVAX"}, {"avax", "AVAX"},
}

// Stablecoins are the quote assets trades settle through.
var Stablecoins = map[string]struct{}{"USDC": {}, "USDT": {}}

// KnownSymbols returns every canonical symbol in the alias table, deduplicated,
// in table order.
func KnownSymbols() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(aliasTable))
	for _, a := range aliasTable {
		if _, ok := seen[a.symbol]; ok {
			continue
		}
		seen[a.symbol] = struct{}{}
		out = append(out, a.symbol)
	}
	return out
}

// ResolveSymbol maps an alias or symbol to its canonical form. Unknown input is
// upper-cased and returned as is.
func ResolveSymbol(input string) string {
	clean := strings.ToLower(strings.TrimSpace(input))
	for _, a := range aliasTable {
		if a.name == clean {
			return a.symbol
		}
	}
	return strings.ToUpper(clean)
}

// detectTokens returns each canonical symbol mentioned in lower, ordered by the
// offset of its earliest alias match.
func detectTokens(lower string) []string {
	type hit struct {
		symbol string
		offset int
		rank   int
	}
	bySymbol := map[string]*hit{}
	hits := make([]*hit, 0, 4)
	for rank, a := range aliasTable {
		idx := strings.Index(lower, a.name)
		if idx < 0 {
			continue
		}
		if h, ok := bySymbol[a.symbol]; ok {
			if idx < h.offset {
				h.offset = idx
			}
			continue
		}
		h := &hit{symbol: a.symbol, offset: idx, rank: rank}
		bySymbol[a.symbol] = h
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].offset != hits[j].offset {
			return hits[i].offset < hits[j].offset
		}
		return hits[i].rank < hits[j].rank
	})
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.symbol)
	}
	return out
}
