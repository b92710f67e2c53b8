package intent

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Money renders a dollar value with thousands separators and two decimals.
// Sub-cent values keep four significant digits.
func Money(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "$0.00"
	}
	if v > 0 && v < 0.01 {
		rounded, _ := strconv.ParseFloat(fmt.Sprintf("%.4g", v), 64)
		return "$" + strconv.FormatFloat(rounded, 'f', -1, 64)
	}
	return "$" + humanize.FormatFloat("#,###.##", v)
}

func quantity(v float64) string {
	if v >= 1 {
		return humanize.FormatFloat("#,###.####", v)
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.8f", v), "0"), ".")
}

func changeLabel(change float64) string {
	arrow := "📈"
	if change < 0 {
		arrow = "📉"
	}
	return fmt.Sprintf("%s %+.2f%%", arrow, change)
}

// PlainText renders a response for terminal output.
func (r Response) PlainText() string {
	var sb strings.Builder
	sb.WriteString(r.Message)
	if len(r.Warnings) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(strings.Join(r.Warnings, "\n"))
	}
	if len(r.Suggestions) > 0 {
		sb.WriteString("\n\nTry: ")
		sb.WriteString(strings.Join(r.Suggestions, " | "))
	}
	sb.WriteString("\n")
	return sb.String()
}
