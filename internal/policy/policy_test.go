package policy

import (
	"testing"

	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
	"github.com/ggonzalez94/tradeagent/internal/intent"
	"github.com/ggonzalez94/tradeagent/internal/safety"
)

func TestCheckCommandAllowed(t *testing.T) {
	if err := CheckCommandAllowed(nil, "orders list"); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	if err := CheckCommandAllowed([]string{"Orders  List"}, "orders list"); err != nil {
		t.Fatalf("expected command to be allowed: %v", err)
	}
	if err := CheckCommandAllowed([]string{"prices"}, "chat"); !clierr.Is(err, clierr.CodeBlocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
}

func TestCheckSaveAllowed(t *testing.T) {
	tests := []struct {
		name   string
		action *intent.Action
		strict bool
		code   clierr.Code
	}{
		{name: "nil action", action: nil, code: clierr.CodeUsage},
		{name: "none", action: &intent.Action{Type: intent.ActionNone}, code: clierr.CodeUsage},
		{name: "market buy", action: &intent.Action{Type: intent.ActionBuy, RiskLevel: intent.RiskLow}, code: clierr.CodeUsage},
		{name: "limit order", action: &intent.Action{Type: intent.ActionLimitOrder, RiskLevel: intent.RiskMedium}},
		{name: "alert", action: &intent.Action{Type: intent.ActionAlert, RiskLevel: intent.RiskLow}},
		{name: "high risk dca relaxed", action: &intent.Action{Type: intent.ActionDCA, RiskLevel: intent.RiskHigh}},
		{name: "high risk dca strict", action: &intent.Action{Type: intent.ActionDCA, RiskLevel: intent.RiskHigh}, strict: true, code: clierr.CodeBlocked},
		{name: "medium strict", action: &intent.Action{Type: intent.ActionLimitOrder, RiskLevel: intent.RiskMedium}, strict: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckSaveAllowed(tc.action, tc.strict)
			if tc.code == 0 {
				if err != nil {
					t.Fatalf("expected save to be allowed, got %v", err)
				}
				return
			}
			if !clierr.Is(err, tc.code) {
				t.Fatalf("expected code %d, got %v", tc.code, err)
			}
		})
	}
}

func TestCheckSaveAllowedStrictBlocksLargeLimitOrder(t *testing.T) {
	resp := safety.Validate(intent.Interpret("buy eth when it drops below $3k with $6k", nil), nil)
	if err := CheckSaveAllowed(resp.Action, true); !clierr.Is(err, clierr.CodeBlocked) {
		t.Fatalf("expected strict mode to block a $6k order, got %v", err)
	}
	if err := CheckSaveAllowed(resp.Action, false); err != nil {
		t.Fatalf("expected order to be saveable outside strict mode: %v", err)
	}
}
