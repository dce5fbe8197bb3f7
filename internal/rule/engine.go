package rule

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xtmatch/xtmatch/internal/config"
	"github.com/xtmatch/xtmatch/internal/rule/action"
	"github.com/xtmatch/xtmatch/internal/rule/common"
	"github.com/xtmatch/xtmatch/internal/rule/match"
	"github.com/xtmatch/xtmatch/internal/statistics"
)

// Verdict is the outcome of evaluating one packet.
type Verdict struct {
	Action common.ActionType
	// Rule is nil when no terminal rule matched.
	Rule common.Rule
	// Index is the position of Rule in the rule list, or -1.
	Index int
}

func (v Verdict) RuleName() string {
	if v.Rule == nil {
		return "default"
	}
	return v.Rule.Name()
}

type Engine struct {
	rules         []common.Rule
	indexes       []int
	defaultAction common.Action
	recorder      *statistics.Recorder
}

// NewEngine builds the rules in order. Rules that fail validation or
// construction are logged and left out; the positions of the remaining
// rules still refer to the configured list.
func NewEngine(rules []config.Rule, defaultAction string, reg *match.Registry, opts *match.Options, recorder *statistics.Recorder) (*Engine, error) {
	def := action.FromType(common.ActionType(strings.ToUpper(defaultAction)))
	if def == nil || !def.Terminal() {
		return nil, fmt.Errorf("%w: default action %q", match.ErrUnknownAction, defaultAction)
	}

	e := &Engine{
		defaultAction: def,
		recorder:      recorder,
	}

	validate := config.NewValidator()
	for i := range rules {
		rule := rules[i]
		if rule.Name == "" {
			rule.Name = fmt.Sprintf("%s-%d", strings.ToLower(rule.Type), i)
		}

		if err := validate.Struct(&rule); err != nil {
			slog.Warn("Invalid rule", slog.Int("index", i), slog.Any("rule", &rule), slog.Any("error", err))
			continue
		}

		r, err := reg.New(&rule, opts)
		if err != nil {
			slog.Warn("reg.New", slog.Int("index", i), slog.Any("rule", &rule), slog.Any("error", err))
			continue
		}
		slog.Debug("Rule loaded", slog.Int("index", i), slog.Any("rule", r))

		e.rules = append(e.rules, r)
		e.indexes = append(e.indexes, i)
	}

	return e, nil
}

func (e *Engine) Rules() []common.Rule {
	return e.rules
}

// Evaluate runs the rules in order. The first matching rule with a
// terminal action decides; matching LOG rules are executed on the way.
// A rule that cannot be evaluated is skipped.
func (e *Engine) Evaluate(metadata *common.Metadata) Verdict {
	for i, rule := range e.rules {
		matched, err := rule.Match(metadata)
		if err != nil {
			slog.Warn("rule.Match", slog.String("rule", rule.Name()), slog.Any("metadata", metadata), slog.Any("error", err))
			continue
		}
		if !matched {
			continue
		}

		act := rule.Action()
		e.recorder.AddHit(e.indexes[i], rule.Name(), string(act.Type()))
		act.Execute(rule, metadata)
		if !act.Terminal() {
			continue
		}

		slog.Debug("Rule matched", slog.Any("rule", rule), slog.Any("metadata", metadata))
		e.recorder.AddVerdict(string(act.Type()))
		return Verdict{Action: act.Type(), Rule: rule, Index: e.indexes[i]}
	}

	slog.Debug("No rule matched", slog.Any("metadata", metadata))
	e.recorder.AddVerdict(string(e.defaultAction.Type()))
	return Verdict{Action: e.defaultAction.Type(), Index: -1}
}

// EvaluateBytes decodes data and evaluates it as packet index.
func (e *Engine) EvaluateBytes(index int, data []byte) Verdict {
	return e.Evaluate(common.NewMetadata(index, data))
}
