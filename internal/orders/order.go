// Package orders persists confirmed-pending actions (trades, limit orders,
// alerts) produced by chat turns. Nothing here executes them.
package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"

	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
	"github.com/ggonzalez94/tradeagent/internal/intent"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
)

type Order struct {
	ID        string        `json:"id"`
	Status    Status        `json:"status"`
	Type      string        `json:"type"`
	Token     string        `json:"token,omitempty"`
	Action    intent.Action `json:"action"`
	Request   string        `json:"request"`
	Source    string        `json:"source,omitempty"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

// New wraps an action as a pending order. Actions of type none cannot be
// stored.
func New(action intent.Action, request, source string, now time.Time) (Order, error) {
	if action.Type == "" || action.Type == intent.ActionNone {
		return Order{}, clierr.New(clierr.CodeUsage, "response has no action to save")
	}
	ts := now.UTC().Format(time.RFC3339)
	return Order{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Type:      string(action.Type),
		Token:     primaryToken(action),
		Action:    action,
		Request:   strings.TrimSpace(request),
		Source:    source,
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

// TriggerPrice returns the price condition, if any.
func (o Order) TriggerPrice() *float64 {
	if o.Action.Condition == nil {
		return nil
	}
	return o.Action.Condition.TriggerPrice
}

func primaryToken(a intent.Action) string {
	if a.TokenTo != "" {
		if _, stable := intent.Stablecoins[a.TokenTo]; !stable || a.TokenFrom == "" {
			return a.TokenTo
		}
	}
	return a.TokenFrom
}
