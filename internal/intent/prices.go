package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Quote is one entry of a PriceContext. It decodes from either a bare number
// or a record with at least a price and optionally a 24h change percentage.
type Quote struct {
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
	// Bare is set when the entry carried only a price.
	Bare bool `json:"-"`
}

func (q *Quote) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*q = Quote{Bare: true}
		return nil
	}
	if trimmed[0] != '{' {
		var price float64
		if err := json.Unmarshal(trimmed, &price); err != nil {
			return fmt.Errorf("decode bare price: %w", err)
		}
		*q = Quote{Price: price, Bare: true}
		return nil
	}
	var rec struct {
		Price     *float64 `json:"price"`
		Change24h *float64 `json:"change_24h"`
	}
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return fmt.Errorf("decode price record: %w", err)
	}
	out := Quote{}
	if rec.Price != nil {
		out.Price = *rec.Price
	}
	if rec.Change24h != nil {
		out.Change24h = *rec.Change24h
	}
	*q = out
	return nil
}

// MarshalJSON writes bare quotes back as plain numbers.
func (q Quote) MarshalJSON() ([]byte, error) {
	if q.Bare {
		return json.Marshal(q.Price)
	}
	return json.Marshal(struct {
		Price     float64 `json:"price"`
		Change24h float64 `json:"change_24h"`
	}{q.Price, q.Change24h})
}

// PriceContext maps canonical upper-case symbols to current quotes. It is an
// immutable snapshot for the duration of one request.
type PriceContext map[string]Quote

// Price returns the current price for symbol, or 0 when unknown.
func (p PriceContext) Price(symbol string) float64 {
	if p == nil {
		return 0
	}
	q, ok := p[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok || q.Price < 0 {
		return 0
	}
	return q.Price
}

// Has reports whether symbol has an entry, priced or not.
func (p PriceContext) Has(symbol string) bool {
	if p == nil {
		return false
	}
	_, ok := p[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// Symbols lists the context's symbols in sorted order.
func (p PriceContext) Symbols() []string {
	out := make([]string, 0, len(p))
	for sym := range p {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Normalized returns a copy keyed by trimmed upper-case symbols.
func (p PriceContext) Normalized() PriceContext {
	out := make(PriceContext, len(p))
	for sym, q := range p {
		key := strings.ToUpper(strings.TrimSpace(sym))
		if key == "" {
			continue
		}
		out[key] = q
	}
	return out
}
