// Package server exposes the chat agent over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/tradeagent/internal/agent"
	"github.com/ggonzalez94/tradeagent/internal/chat"
	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
	"github.com/ggonzalez94/tradeagent/internal/intent"
	"github.com/ggonzalez94/tradeagent/internal/market"
	"github.com/ggonzalez94/tradeagent/internal/model"
	"github.com/ggonzalez94/tradeagent/internal/orders"
	"github.com/ggonzalez94/tradeagent/internal/version"
)

// Deps are the collaborators the handlers call. Orders may be nil, in which
// case order listing is empty and saving is refused.
type Deps struct {
	Chat         *chat.Service
	Feed         *market.Feed
	Orders       *orders.Store
	ModelEnabled bool
}

type Server struct {
	echo    *echo.Echo
	deps    Deps
	metrics *Metrics
	log     zerolog.Logger
}

func New(deps Deps, log zerolog.Logger) *Server {
	s := &Server{
		echo:    echo.New(),
		deps:    deps,
		metrics: NewMetrics(),
		log:     log,
	}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(s.metrics.middleware())
	e.Use(s.requestLogging())

	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	api := e.Group("/api")
	api.POST("/chat", s.chat)
	api.GET("/prices", s.prices)
	api.GET("/orders", s.listOrders)
	return s
}

func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Metrics() *Metrics { return s.metrics }

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return clierr.Wrap(clierr.CodeUnavailable, "http server", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		s.log.Info().Msg("http server stopped")
		return nil
	}
}

type historyItem struct {
	Role    string `json:"role" validate:"omitempty,max=16"`
	Content string `json:"content" validate:"max=4000"`
}

type walletRequest struct {
	Address    string             `json:"address" validate:"omitempty,startswith=0x"`
	BalanceUSD float64            `json:"balance_usd" validate:"gte=0"`
	Holdings   map[string]float64 `json:"holdings" validate:"omitempty,dive,gte=0"`
}

type chatRequest struct {
	Message string         `json:"message" validate:"required,max=2000"`
	History []historyItem  `json:"history" validate:"max=100,dive"`
	Wallet  *walletRequest `json:"wallet"`
	Save    bool           `json:"save"`
}

type chatResponse struct {
	Response       intent.Response `json:"response"`
	Source         agent.Source    `json:"source"`
	FallbackReason string          `json:"fallback_reason,omitempty"`
	SavedOrder     *orders.Order   `json:"saved_order,omitempty"`
	Warnings       []string        `json:"warnings,omitempty"`
}

func (s *Server) chat(c echo.Context) error {
	req := &chatRequest{}
	if err := bindAndValidate(c, req); err != nil {
		return writeError(c, err)
	}
	turn := chat.Turn{Message: req.Message, Save: req.Save}
	for _, h := range req.History {
		turn.History = append(turn.History, agent.HistoryMessage{Role: h.Role, Content: h.Content})
	}
	if req.Wallet != nil {
		turn.Wallet = &agent.Wallet{Address: req.Wallet.Address, BalanceUSD: req.Wallet.BalanceUSD, Holdings: req.Wallet.Holdings}
	}

	start := time.Now()
	out, err := s.deps.Chat.Handle(c.Request().Context(), turn)
	if err != nil {
		return writeError(c, err)
	}
	s.metrics.ObserveChat(out.Result, time.Since(start))
	return c.JSON(http.StatusOK, chatResponse{
		Response:       out.Result.Response,
		Source:         out.Result.Source,
		FallbackReason: out.Result.FallbackReason,
		SavedOrder:     out.Saved,
		Warnings:       out.Warnings,
	})
}

type pricesQuery struct {
	Symbols string `query:"symbols" validate:"max=512"`
}

type pricesResponse struct {
	Prices    model.PriceRows        `json:"prices"`
	Cache     model.CacheStatus      `json:"cache"`
	Providers []model.ProviderStatus `json:"providers,omitempty"`
	Warnings  []string               `json:"warnings,omitempty"`
}

func (s *Server) prices(c echo.Context) error {
	q := &pricesQuery{}
	if err := bindAndValidate(c, q); err != nil {
		return writeError(c, err)
	}
	if s.deps.Feed == nil {
		return writeError(c, clierr.New(clierr.CodeUnavailable, "no price source configured"))
	}
	var symbols []string
	for _, part := range strings.Split(q.Symbols, ",") {
		if p := strings.TrimSpace(part); p != "" {
			symbols = append(symbols, p)
		}
	}
	snap, err := s.deps.Feed.Load(c.Request().Context(), symbols)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, pricesResponse{
		Prices:    market.Rows(snap.Prices, s.deps.Feed.Source()),
		Cache:     snap.Cache,
		Providers: snap.Providers,
		Warnings:  snap.Warnings,
	})
}

type ordersQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=pending cancelled"`
	Limit  int    `query:"limit" default:"20" validate:"gte=1,lte=200"`
}

type ordersResponse struct {
	Orders []orders.Order `json:"orders"`
}

func (s *Server) listOrders(c echo.Context) error {
	q := &ordersQuery{}
	if err := bindAndValidate(c, q); err != nil {
		return writeError(c, err)
	}
	if s.deps.Orders == nil {
		return c.JSON(http.StatusOK, ordersResponse{Orders: []orders.Order{}})
	}
	items, err := s.deps.Orders.List(orders.Status(q.Status), q.Limit)
	if err != nil {
		return writeError(c, clierr.Wrap(clierr.CodeInternal, "list orders", err))
	}
	return c.JSON(http.StatusOK, ordersResponse{Orders: items})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":        "ok",
		"version":       version.CLIVersion,
		"model_enabled": s.deps.ModelEnabled,
	})
}

// handleError renders echo's own errors (404, 405, panics) in the API error
// shape.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := clierr.CodeInternal
		switch he.Code {
		case http.StatusNotFound:
			code = clierr.CodeNotFound
		case http.StatusMethodNotAllowed, http.StatusBadRequest:
			code = clierr.CodeUsage
		}
		_ = c.JSON(he.Code, errorResponse{Error: errorBody{
			Code:    int(code),
			Type:    clierr.TypeName(code),
			Message: fmt.Sprintf("%v", he.Message),
		}})
		return
	}
	s.log.Error().Err(err).Str("path", c.Path()).Msg("unhandled handler error")
	_ = writeError(c, err)
}

func (s *Server) requestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			ev := s.log.Debug()
			if status >= http.StatusInternalServerError {
				ev = s.log.Error()
			}
			ev.Str("method", c.Request().Method).
				Str("route", c.Path()).
				Int("status", status).
				Dur("took", time.Since(start)).
				Msg("http request")
			return err
		}
	}
}
