package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
	"github.com/ggonzalez94/tradeagent/internal/intent"
)

// saveable lists the action types that describe something to wait for.
// Immediate trades are confirmed in the wallet, not stored.
var saveable = map[intent.ActionType]struct{}{
	intent.ActionLimitOrder: {},
	intent.ActionAlert:      {},
	intent.ActionDCA:        {},
}

func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		if normalize(allowed) == normPath {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// CheckSaveAllowed decides whether a validated action may be persisted as a
// pending order. In strict mode high and critical risk actions are refused.
func CheckSaveAllowed(action *intent.Action, strict bool) error {
	if action == nil {
		return clierr.New(clierr.CodeUsage, "response has no action to save")
	}
	if _, ok := saveable[action.Type]; !ok {
		return clierr.New(clierr.CodeUsage, "only limit_order, alert and dca actions can be saved, got "+string(action.Type))
	}
	if strict && action.RiskLevel.Rank() >= intent.RiskHigh.Rank() {
		return clierr.New(clierr.CodeBlocked, "strict mode refuses to save "+string(action.RiskLevel)+" risk orders")
	}
	return nil
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
