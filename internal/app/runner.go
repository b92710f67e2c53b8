package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/tradeagent/internal/agent"
	"github.com/ggonzalez94/tradeagent/internal/cache"
	"github.com/ggonzalez94/tradeagent/internal/chat"
	"github.com/ggonzalez94/tradeagent/internal/config"
	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
	"github.com/ggonzalez94/tradeagent/internal/httpx"
	"github.com/ggonzalez94/tradeagent/internal/intent"
	"github.com/ggonzalez94/tradeagent/internal/llm"
	"github.com/ggonzalez94/tradeagent/internal/logging"
	"github.com/ggonzalez94/tradeagent/internal/market"
	"github.com/ggonzalez94/tradeagent/internal/model"
	"github.com/ggonzalez94/tradeagent/internal/orders"
	"github.com/ggonzalez94/tradeagent/internal/out"
	"github.com/ggonzalez94/tradeagent/internal/policy"
	"github.com/ggonzalez94/tradeagent/internal/providers"
	"github.com/ggonzalez94/tradeagent/internal/providers/binance"
	"github.com/ggonzalez94/tradeagent/internal/providers/coingecko"
	"github.com/ggonzalez94/tradeagent/internal/providers/static"
	"github.com/ggonzalez94/tradeagent/internal/registry"
	"github.com/ggonzalez94/tradeagent/internal/schema"
	"github.com/ggonzalez94/tradeagent/internal/server"
	"github.com/ggonzalez94/tradeagent/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner        *Runner
	flags         config.GlobalFlags
	settings      config.Settings
	log           zerolog.Logger
	root          *cobra.Command
	lastCommand   string
	lastWarnings  []string
	lastProviders []model.ProviderStatus

	cache  *cache.Store
	orders *orders.Store
	feed   *market.Feed
	model  agent.ModelClient

	// priceProvider overrides the configured source; tests set it.
	priceProvider providers.PriceProvider
}

func (r *Runner) Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.run(ctx, args, nil)
}

func (r *Runner) run(ctx context.Context, args []string, prices providers.PriceProvider) int {
	state := &runtimeState{runner: r, log: zerolog.Nop(), priceProvider: prices}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.ExecuteContext(ctx)
	err = normalizeRunError(err)
	defer state.close()
	if err == nil {
		return 0
	}
	state.renderError("", err, state.lastWarnings, state.lastProviders)
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.orders != nil {
		_ = s.orders.Close()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Crypto trading assistant: chat requests become validated trade actions",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			log, err := logging.New(settings.LogLevel, settings.LogFormat, s.runner.stderr)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "configure logging", err)
			}
			s.log = log

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}
			return s.prepare(path)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted paths allowed)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.Strict, "strict", false, "Refuse to save high-risk orders")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Provider and model request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per provider request")
	cmd.PersistentFlags().StringVar(&s.flags.MaxStale, "max-stale", "", "Maximum stale fallback window after TTL expiry")
	cmd.PersistentFlags().BoolVar(&s.flags.NoStale, "no-stale", false, "Reject stale cached prices")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable price cache reads and writes")
	cmd.PersistentFlags().StringVar(&s.flags.PriceSource, "price-source", "", "Price source: coingecko, binance or file")
	cmd.PersistentFlags().BoolVar(&s.flags.Offline, "offline", false, "Skip the model and answer with rules only")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.EnvFile, "env-file", "", "Path to .env file (default ./.env)")

	cmd.AddCommand(s.newChatCommand())
	cmd.AddCommand(s.newPricesCommand())
	cmd.AddCommand(s.newOrdersCommand())
	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// prepare opens only what the command needs, so schema and version never
// touch the data directory.
func (s *runtimeState) prepare(path string) error {
	needPrices, needOrders := commandNeeds(path)
	if needPrices && s.feed == nil {
		if s.settings.CacheEnabled && s.cache == nil {
			store, err := cache.Open(s.settings.CachePath, s.settings.CacheLockPath)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "open cache", err)
			}
			s.cache = store
		}
		provider, err := s.selectPriceProvider()
		if err != nil {
			return err
		}
		s.feed = market.NewFeed(provider, s.cache, market.Options{
			TTL:      s.settings.PriceTTL,
			MaxStale: s.settings.MaxStale,
			NoStale:  s.settings.NoStale,
			Timeout:  s.settings.Timeout,
		}, logging.Component(s.log, "market"))
	}
	if needOrders && s.orders == nil {
		store, err := orders.OpenStore(s.settings.OrdersPath, s.settings.OrdersLockPath)
		if err != nil {
			return clierr.Wrap(clierr.CodeInternal, "open orders store", err)
		}
		s.orders = store
	}
	if needPrices && needOrders && s.model == nil && s.settings.ModelConfigured() {
		s.model = llm.New(llm.Options{
			BaseURL:     s.settings.ModelBaseURL,
			APIKey:      s.settings.ModelAPIKey,
			Model:       s.settings.ModelName,
			Temperature: s.settings.Temperature,
			MaxTokens:   s.settings.MaxTokens,
			Timeout:     s.settings.Timeout,
			Retries:     s.settings.Retries,
		})
	}
	return nil
}

func (s *runtimeState) selectPriceProvider() (providers.PriceProvider, error) {
	if s.priceProvider != nil {
		return s.priceProvider, nil
	}
	switch s.settings.PriceSource {
	case "coingecko":
		httpClient := httpx.New(s.settings.Timeout, s.settings.Retries, httpx.WithRateLimit(s.settings.RateLimit, 1))
		return coingecko.New(httpClient, s.settings.CoinGeckoAPIKey), nil
	case "binance":
		return binance.New(registry.BinanceBaseURL), nil
	case "file":
		return static.New(s.settings.PriceFile), nil
	default:
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown price source %q", s.settings.PriceSource))
	}
}

func (s *runtimeState) newAgent() *agent.Agent {
	return agent.New(s.model, logging.Component(s.log, "agent"),
		agent.WithClock(s.runner.now),
		agent.WithHistoryLimit(s.settings.HistoryLimit),
	)
}

func (s *runtimeState) newChatService() *chat.Service {
	return chat.NewService(s.newAgent(), s.feed, s.orders, s.settings.Strict, logging.Component(s.log, "chat"))
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil, false)
		},
	}
	return cmd
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Provider commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List price sources and the model endpoint (no keys required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := []model.ProviderInfo{
				coingecko.New(nil, "").Info(),
				binance.New("").Info(),
				static.New("").Info(),
				modelInfo(),
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), infos, nil, cacheMetaBypass(), nil, false)
		},
	}
	root.AddCommand(list)
	return root
}

func modelInfo() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "model",
		Type:          "chat",
		RequiresKey:   true,
		Capabilities:  []string{"chat.completions"},
		KeyEnvVarName: "GROQ_API_KEY",
	}
}

func (s *runtimeState) newChatCommand() *cobra.Command {
	var (
		save        bool
		address     string
		balance     float64
		holdings    map[string]string
		historyFile string
	)
	cmd := &cobra.Command{
		Use:   "chat <message...>",
		Short: "Interpret a trading request and print the validated response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())
			turn := chat.Turn{Message: strings.Join(args, " "), Save: save}

			wallet, err := walletFromFlags(address, balance, holdings)
			if err != nil {
				return err
			}
			turn.Wallet = wallet
			if historyFile != "" {
				history, err := readHistory(historyFile)
				if err != nil {
					return err
				}
				turn.History = history
			}

			outcome, err := s.newChatService().Handle(cmd.Context(), turn)
			statuses := append([]model.ProviderStatus(nil), outcome.Market.Providers...)
			if outcome.Result.Source != "" {
				statuses = append(statuses, modelStatus(outcome.Result))
			}
			s.captureCommandDiagnostics(outcome.Warnings, statuses)
			if err != nil {
				return err
			}

			data := model.ChatTurn{
				Response:       outcome.Result.Response,
				Source:         string(outcome.Result.Source),
				FallbackReason: outcome.Result.FallbackReason,
			}
			if outcome.Saved != nil {
				data.SavedOrderID = outcome.Saved.ID
			}
			return s.emitSuccess(commandPath, data, outcome.Warnings, cacheStatusOf(outcome.Market), statuses, len(outcome.Market.Prices) == 0)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Store a limit order, alert or DCA plan as a pending order")
	cmd.Flags().StringVar(&address, "wallet-address", "", "Connected wallet address (0x hex)")
	cmd.Flags().Float64Var(&balance, "wallet-balance-usd", 0, "Wallet balance in USD")
	cmd.Flags().StringToStringVar(&holdings, "holdings", nil, "Wallet holdings as SYMBOL=QTY pairs")
	cmd.Flags().StringVar(&historyFile, "history-file", "", "JSON file with prior messages [{role, content}]")
	return cmd
}

func (s *runtimeState) newPricesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices [symbols...]",
		Short: "Show current USD prices (default basket when no symbols given)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())
			var symbols []string
			for _, arg := range args {
				symbols = append(symbols, splitCSV(arg)...)
			}
			snap, err := s.feed.Load(cmd.Context(), symbols)
			s.captureCommandDiagnostics(snap.Warnings, snap.Providers)
			if err != nil {
				return err
			}
			rows := market.Rows(snap.Prices, s.feed.Source())
			return s.emitSuccess(commandPath, rows, snap.Warnings, cacheStatusOf(snap), snap.Providers, false)
		},
	}
	return cmd
}

func (s *runtimeState) newOrdersCommand() *cobra.Command {
	root := &cobra.Command{Use: "orders", Short: "Pending orders saved from chat"}

	var status string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved orders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := orders.Status(strings.ToLower(strings.TrimSpace(status)))
			switch st {
			case "", orders.StatusPending, orders.StatusCancelled:
			default:
				return clierr.New(clierr.CodeUsage, "--status must be pending or cancelled")
			}
			items, err := s.orders.List(st, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list orders", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), orderTable(items), nil, cacheMetaBypass(), nil, false)
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status (pending, cancelled)")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum orders to return")
	root.AddCommand(list)

	cancel := &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel a pending order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := s.orders.Cancel(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), order, nil, cacheMetaBypass(), nil, false)
		},
	}
	root.AddCommand(cancel)
	return root
}

func (s *runtimeState) newServeCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := s.settings.ListenAddr
			if strings.TrimSpace(listen) != "" {
				addr = listen
			}
			srv := server.New(server.Deps{
				Chat:         s.newChatService(),
				Feed:         s.feed,
				Orders:       s.orders,
				ModelEnabled: s.model != nil,
			}, logging.Component(s.log, "server"))
			return srv.Start(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config, :8080)")
	return cmd
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus, providers []model.ProviderStatus, partial bool) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: uuid.NewString(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Cache:     cacheStatus,
			Partial:   partial,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string, providers []model.ProviderStatus) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.CodeInternal
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		code = cErr.Code
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    clierr.ExitCode(err),
			Type:    clierr.TypeName(code),
			Message: message,
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: uuid.NewString(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Cache:     cacheMetaBypass(),
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

// orderTable renders saved orders as a table in plain mode.
type orderTable []orders.Order

func (t orderTable) TableHeader() []string {
	return []string{"ID", "STATUS", "TYPE", "TOKEN", "TRIGGER", "AMOUNT", "CREATED"}
}

func (t orderTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, o := range t {
		trigger, amount := "-", "-"
		if tp := o.TriggerPrice(); tp != nil {
			trigger = intent.Money(*tp)
		}
		if o.Action.AmountUSD != nil {
			amount = intent.Money(*o.Action.AmountUSD)
		}
		rows = append(rows, []string{o.ID, string(o.Status), o.Type, o.Token, trigger, amount, o.CreatedAt})
	}
	return rows
}

func walletFromFlags(address string, balance float64, holdings map[string]string) (*agent.Wallet, error) {
	if address == "" && balance == 0 && len(holdings) == 0 {
		return nil, nil
	}
	if balance < 0 {
		return nil, clierr.New(clierr.CodeUsage, "--wallet-balance-usd must be non-negative")
	}
	w := &agent.Wallet{Address: address, BalanceUSD: balance}
	if len(holdings) > 0 {
		w.Holdings = make(map[string]float64, len(holdings))
		for sym, raw := range holdings {
			qty, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil || qty < 0 {
				return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid holding quantity for %s: %q", sym, raw))
			}
			w.Holdings[sym] = qty
		}
	}
	return w, nil
}

func readHistory(path string) ([]agent.HistoryMessage, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "read history file", err)
	}
	var history []agent.HistoryMessage
	if err := json.Unmarshal(buf, &history); err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "history file must be a JSON array of {role, content}", err)
	}
	return history, nil
}

func modelStatus(res agent.Result) model.ProviderStatus {
	status := "ok"
	switch res.FallbackReason {
	case "":
	case agent.ReasonModelDisabled:
		status = "disabled"
	case agent.ReasonModelError:
		status = "error"
	default:
		status = res.FallbackReason
	}
	return model.ProviderStatus{Name: "model", Status: status}
}

func cacheStatusOf(snap market.Snapshot) model.CacheStatus {
	if snap.Cache.Status == "" {
		return cacheMetaMiss()
	}
	return snap.Cache
}

func commandNeeds(path string) (needPrices, needOrders bool) {
	switch normalizeCommandPath(path) {
	case "chat", "serve":
		return true, true
	case "prices":
		return true, false
	case "orders list", "orders cancel":
		return false, true
	default:
		return false, false
	}
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		norm := strings.ToUpper(strings.TrimSpace(part))
		if norm != "" {
			out = append(out, norm)
		}
	}
	return out
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass", AgeMS: 0, Stale: false}
}

func cacheMetaMiss() model.CacheStatus {
	return model.CacheStatus{Status: "miss", AgeMS: 0, Stale: false}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}

func (s *runtimeState) captureCommandDiagnostics(warnings []string, providers []model.ProviderStatus) {
	if len(warnings) == 0 {
		s.lastWarnings = nil
	} else {
		s.lastWarnings = append([]string(nil), warnings...)
	}
	if len(providers) == 0 {
		s.lastProviders = nil
	} else {
		s.lastProviders = append([]model.ProviderStatus(nil), providers...)
	}
}
