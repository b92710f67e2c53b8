// Package agent answers chat turns: it asks the model for a structured
// response, falls back to the rule-based interpreter when the model cannot
// help, and validates whatever comes back.
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ggonzalez94/tradeagent/internal/intent"
	"github.com/ggonzalez94/tradeagent/internal/llm"
	"github.com/ggonzalez94/tradeagent/internal/safety"
)

const DefaultHistoryLimit = 10

// ModelClient is the model path. *llm.Client satisfies it.
type ModelClient interface {
	Available() bool
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

type Source string

const (
	SourceModel Source = "model"
	SourceRules Source = "rules"
)

// Fallback reasons reported when the rule path answers.
const (
	ReasonModelDisabled = "model_disabled"
	ReasonModelError    = "model_error"
	ReasonMalformed     = "malformed_output"
)

type Result struct {
	Response       intent.Response `json:"response"`
	Source         Source          `json:"source"`
	FallbackReason string          `json:"fallback_reason,omitempty"`
}

type Agent struct {
	model        ModelClient
	log          zerolog.Logger
	now          func() time.Time
	historyLimit int
}

type Option func(*Agent)

func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

func WithHistoryLimit(n int) Option {
	return func(a *Agent) {
		if n >= 0 {
			a.historyLimit = n
		}
	}
}

// New builds an agent. A nil model runs the rule path only.
func New(model ModelClient, log zerolog.Logger, opts ...Option) *Agent {
	a := &Agent{
		model:        model,
		log:          log,
		now:          time.Now,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Chat answers one turn. It never fails: model problems degrade to the rule
// path and the result is always validated.
func (a *Agent) Chat(ctx context.Context, req Request) Result {
	prices := req.Prices.Normalized()
	req.Prices = prices

	candidate, reason := a.fromModel(ctx, req)
	source := SourceModel
	if reason != "" {
		candidate = intent.Interpret(req.Message, prices)
		source = SourceRules
	}
	resp := safety.Validate(candidate, prices)

	a.log.Debug().
		Str("source", string(source)).
		Str("intent", string(resp.Intent)).
		Str("action", string(resp.Action.Type)).
		Str("risk", string(resp.Action.RiskLevel)).
		Msg("chat turn answered")
	return Result{Response: resp, Source: source, FallbackReason: reason}
}

func (a *Agent) fromModel(ctx context.Context, req Request) (intent.Response, string) {
	if a.model == nil || !a.model.Available() {
		return intent.Response{}, ReasonModelDisabled
	}
	raw, err := a.model.Complete(ctx, a.messages(req))
	if err != nil {
		a.log.Warn().Err(err).Msg("model call failed, answering with rules")
		return intent.Response{}, ReasonModelError
	}
	resp, err := DecodeResponse(raw)
	if err != nil {
		a.log.Warn().Err(err).Int("bytes", len(raw)).Msg("model output malformed, answering with rules")
		return intent.Response{}, ReasonMalformed
	}
	return resp, ""
}

func (a *Agent) messages(req Request) []llm.Message {
	history := req.History
	if len(history) > a.historyLimit {
		history = history[len(history)-a.historyLimit:]
	}
	out := make([]llm.Message, 0, len(history)+2)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt(req, a.now())})
	for _, h := range history {
		role := llm.RoleUser
		if strings.EqualFold(strings.TrimSpace(h.Role), llm.RoleAssistant) {
			role = llm.RoleAssistant
		}
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		out = append(out, llm.Message{Role: role, Content: h.Content})
	}
	out = append(out, llm.Message{Role: llm.RoleUser, Content: req.Message})
	return out
}
