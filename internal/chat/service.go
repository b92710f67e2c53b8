// Package chat wires one conversation turn end to end: it gathers the price
// and order context, asks the agent, and optionally stores the resulting
// action as a pending order.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ggonzalez94/tradeagent/internal/agent"
	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
	"github.com/ggonzalez94/tradeagent/internal/intent"
	"github.com/ggonzalez94/tradeagent/internal/market"
	"github.com/ggonzalez94/tradeagent/internal/orders"
	"github.com/ggonzalez94/tradeagent/internal/policy"
)

// pendingLimit bounds how many stored orders are offered to the prompt.
const pendingLimit = 20

type Turn struct {
	Message string
	History []agent.HistoryMessage
	Wallet  *agent.Wallet
	Save    bool
}

type Outcome struct {
	Result   agent.Result
	Saved    *orders.Order
	Market   market.Snapshot
	Warnings []string
}

type Service struct {
	agent  *agent.Agent
	feed   *market.Feed
	orders *orders.Store
	strict bool
	log    zerolog.Logger
	now    func() time.Time
}

// NewService builds a chat service. feed and store are optional: without a
// feed turns are answered with an empty price context, without a store
// nothing is listed or saved.
func NewService(a *agent.Agent, feed *market.Feed, store *orders.Store, strict bool, log zerolog.Logger) *Service {
	return &Service{agent: a, feed: feed, orders: store, strict: strict, log: log, now: time.Now}
}

func (s *Service) Handle(ctx context.Context, turn Turn) (Outcome, error) {
	if strings.TrimSpace(turn.Message) == "" {
		return Outcome{}, clierr.New(clierr.CodeUsage, "message is required")
	}
	if turn.Save && s.orders == nil {
		return Outcome{}, clierr.New(clierr.CodeUsage, "saving orders requires an orders store")
	}
	wallet, err := normalizeWallet(turn.Wallet)
	if err != nil {
		return Outcome{}, err
	}

	var (
		snap    market.Snapshot
		pending []agent.PendingOrder
		notes   = make([]string, 2)
	)
	g, gctx := errgroup.WithContext(ctx)
	if s.feed != nil {
		g.Go(func() error {
			loaded, err := s.feed.Load(gctx, nil)
			if err != nil {
				s.log.Warn().Err(err).Str("source", s.feed.Source()).Msg("prices unavailable")
				notes[0] = "prices unavailable, answering without market data"
				snap = market.Snapshot{Providers: loaded.Providers}
				return nil
			}
			snap = loaded
			return nil
		})
	}
	if s.orders != nil {
		g.Go(func() error {
			items, err := s.orders.List(orders.StatusPending, pendingLimit)
			if err != nil {
				s.log.Warn().Err(err).Msg("pending orders unavailable")
				notes[1] = "pending orders unavailable"
				return nil
			}
			pending = PendingFromOrders(items)
			return nil
		})
	}
	// Loaders degrade to warnings, so Wait only reports cancellation.
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	result := s.agent.Chat(ctx, agent.Request{
		Message:       turn.Message,
		Prices:        snap.Prices,
		Wallet:        wallet,
		PendingOrders: pending,
		History:       turn.History,
	})

	out := Outcome{Result: result, Market: snap}
	out.Warnings = append(out.Warnings, snap.Warnings...)
	for _, n := range notes {
		if n != "" {
			out.Warnings = append(out.Warnings, n)
		}
	}
	if !turn.Save {
		return out, nil
	}

	if err := policy.CheckSaveAllowed(result.Response.Action, s.strict); err != nil {
		return out, err
	}
	order, err := orders.New(*result.Response.Action, turn.Message, string(result.Source), s.now())
	if err != nil {
		return out, err
	}
	if err := s.orders.Save(order); err != nil {
		return out, clierr.Wrap(clierr.CodeInternal, "save order", err)
	}
	s.log.Info().Str("order_id", order.ID).Str("type", order.Type).Msg("order saved")
	out.Saved = &order
	return out, nil
}

// PendingFromOrders summarizes stored orders for the prompt.
func PendingFromOrders(items []orders.Order) []agent.PendingOrder {
	out := make([]agent.PendingOrder, 0, len(items))
	for _, o := range items {
		out = append(out, agent.PendingOrder{
			ID:           o.ID,
			Type:         o.Type,
			Token:        o.Token,
			AmountUSD:    o.Action.AmountUSD,
			TriggerPrice: o.TriggerPrice(),
			Status:       string(o.Status),
		})
	}
	return out
}

func normalizeWallet(w *agent.Wallet) (*agent.Wallet, error) {
	if w == nil {
		return nil, nil
	}
	addr, err := agent.NormalizeAddress(w.Address)
	if err != nil {
		return nil, err
	}
	if addr == "" && w.BalanceUSD == 0 && len(w.Holdings) == 0 {
		return nil, nil
	}
	norm := *w
	norm.Address = addr
	if len(w.Holdings) > 0 {
		norm.Holdings = make(map[string]float64, len(w.Holdings))
		for sym, qty := range w.Holdings {
			if s := intent.ResolveSymbol(sym); s != "" {
				norm.Holdings[s] += qty
			}
		}
	}
	return &norm, nil
}
