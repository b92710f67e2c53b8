package agent

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
	"github.com/ggonzalez94/tradeagent/internal/intent"
)

// Wallet is the caller's view of the user's account. It is only interpolated
// into the prompt.
type Wallet struct {
	Address    string             `json:"address"`
	BalanceUSD float64            `json:"balance_usd"`
	Holdings   map[string]float64 `json:"holdings,omitempty"`
}

// PendingOrder summarizes an order awaiting execution.
type PendingOrder struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Token        string   `json:"token"`
	AmountUSD    *float64 `json:"amount_usd,omitempty"`
	TriggerPrice *float64 `json:"trigger_price,omitempty"`
	Status       string   `json:"status,omitempty"`
}

type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one user turn plus the immutable context it is answered in.
type Request struct {
	Message       string              `json:"message"`
	Prices        intent.PriceContext `json:"prices,omitempty"`
	Wallet        *Wallet             `json:"wallet,omitempty"`
	PendingOrders []PendingOrder      `json:"pending_orders,omitempty"`
	History       []HistoryMessage    `json:"history,omitempty"`
}

// NormalizeAddress validates a hex wallet address. 20-byte addresses are
// returned in checksum form, longer ones (Aptos style) in lower case.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", nil
	}
	raw, err := hexutil.Decode(addr)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "wallet address must be 0x-prefixed hex", err)
	}
	switch len(raw) {
	case common.AddressLength:
		return common.BytesToAddress(raw).Hex(), nil
	case 32:
		return hexutil.Encode(raw), nil
	default:
		return "", clierr.New(clierr.CodeUsage, "wallet address must be 20 or 32 bytes")
	}
}
