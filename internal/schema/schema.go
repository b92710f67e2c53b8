package schema

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ggonzalez94/tradeagent/internal/intent"
)

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Aliases     []string        `json:"aliases,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	GlobalFlags []FlagSchema    `json:"global_flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
	Vocabulary  *Vocabulary     `json:"vocabulary,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

// Vocabulary lists the enum values a chat response can carry, so callers can
// validate responses without reading docs.
type Vocabulary struct {
	Intents        []intent.Intent        `json:"intents"`
	ActionTypes    []intent.ActionType    `json:"action_types"`
	RiskLevels     []intent.RiskLevel     `json:"risk_levels"`
	ConditionTypes []intent.ConditionType `json:"condition_types"`
}

func ResponseVocabulary() Vocabulary {
	return Vocabulary{
		Intents: []intent.Intent{
			intent.IntentChat, intent.IntentTrade, intent.IntentPriceCheck, intent.IntentPortfolio,
			intent.IntentAlert, intent.IntentAnalysis, intent.IntentHelp, intent.IntentError,
		},
		ActionTypes: []intent.ActionType{
			intent.ActionNone, intent.ActionBuy, intent.ActionSell, intent.ActionSwap, intent.ActionMultiTrade,
			intent.ActionDCA, intent.ActionLimitOrder, intent.ActionAlert, intent.ActionCancel,
		},
		RiskLevels: []intent.RiskLevel{intent.RiskLow, intent.RiskMedium, intent.RiskHigh, intent.RiskCritical},
		ConditionTypes: []intent.ConditionType{
			intent.ConditionImmediate, intent.ConditionPriceAbove, intent.ConditionPriceBelow,
			intent.ConditionTimeBased, intent.ConditionRecurring,
		},
	}
}

// Build serializes the command at commandPath (the root when empty). The root
// schema also carries persistent flags and the response vocabulary.
func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	cmd := root
	if strings.TrimSpace(commandPath) != "" {
		parts := strings.Fields(strings.TrimSpace(commandPath))
		for _, p := range parts {
			found := false
			for _, c := range cmd.Commands() {
				if c.Name() == p || contains(c.Aliases, p) {
					cmd = c
					found = true
					break
				}
			}
			if !found {
				return CommandSchema{}, fmt.Errorf("command not found: %s", commandPath)
			}
		}
	}
	s := serialize(cmd)
	if cmd == root {
		s.GlobalFlags = visit(root.PersistentFlags())
		vocab := ResponseVocabulary()
		s.Vocabulary = &vocab
	}
	return s, nil
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Aliases: cmd.Aliases,
		Flags:   visit(cmd.LocalNonPersistentFlags()),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}
	return s
}

func visit(flags *pflag.FlagSet) []FlagSchema {
	items := []FlagSchema{}
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		items = append(items, FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
		})
	})
	return items
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
