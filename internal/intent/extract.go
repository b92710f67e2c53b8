package intent

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	percentPattern     = regexp.MustCompile(`(\d+)\s*%`)
	amountPattern      = regexp.MustCompile(`\$\s*(\d+(?:,\d{3})*(?:\.\d+)?)`)
	splitPattern       = regexp.MustCompile(`(\d+)\s*[/\-]\s*(\d+)`)
	evenSplitPattern   = regexp.MustCompile(`50 50`)
	targetPricePattern = regexp.MustCompile(`\$\s*(\d+(?:,\d{3})*(?:\.\d+)?)(k?)`)
)

// SplitRatio allocates liquidation proceeds across two targets.
type SplitRatio struct {
	First  int `json:"first"`
	Second int `json:"second"`
}

var defaultSplit = SplitRatio{First: 50, Second: 50}

// Entities is everything pulled out of one message. Sequences keep the order
// in which they appear in the text.
type Entities struct {
	Tokens      []string    `json:"detected_tokens"`
	Percentages []int       `json:"percentages"`
	Amounts     []float64   `json:"amounts"`
	// Scaled holds the same dollar figures with a k suffix applied.
	Scaled      []float64   `json:"scaled_amounts"`
	Split       *SplitRatio `json:"split_ratio,omitempty"`
	TargetPrice *float64    `json:"target_price,omitempty"`
}

// Extract parses entities from raw text. It never fails; missing entities are
// left empty.
func Extract(text string) Entities {
	lower := strings.ToLower(text)
	scaled := extractScaledAmounts(lower)
	ents := Entities{
		Tokens:      detectTokens(lower),
		Percentages: extractPercentages(lower),
		Amounts:     extractAmounts(text),
		Scaled:      scaled,
		Split:       extractSplit(lower),
	}
	if len(scaled) > 0 {
		target := scaled[0]
		ents.TargetPrice = &target
	}
	return ents
}

// PrimaryToken returns the first detected token or fallback.
func (e Entities) PrimaryToken(fallback string) string {
	if len(e.Tokens) > 0 {
		return e.Tokens[0]
	}
	return fallback
}

// FirstAmount returns the first dollar amount in the text.
func (e Entities) FirstAmount() (float64, bool) {
	if len(e.Amounts) == 0 {
		return 0, false
	}
	return e.Amounts[0], true
}

func extractPercentages(lower string) []int {
	matches := percentPattern.FindAllStringSubmatch(lower, -1)
	out := make([]int, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

func extractAmounts(text string) []float64 {
	matches := amountPattern.FindAllStringSubmatch(text, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, ok := parseDecimal(m[1])
		if !ok {
			continue
		}
		out = append(out, v)
	}
	return out
}

func extractSplit(lower string) *SplitRatio {
	if m := splitPattern.FindStringSubmatch(lower); m != nil {
		first, err1 := strconv.Atoi(m[1])
		second, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil {
			return &SplitRatio{First: first, Second: second}
		}
	}
	if evenSplitPattern.MatchString(lower) {
		split := defaultSplit
		return &split
	}
	return nil
}

func extractScaledAmounts(lower string) []float64 {
	matches := targetPricePattern.FindAllStringSubmatch(lower, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, ok := parseDecimal(m[1])
		if !ok {
			continue
		}
		if m[2] == "k" {
			v *= 1000
		}
		out = append(out, v)
	}
	return out
}

func parseDecimal(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
