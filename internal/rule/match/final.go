package match

import (
	"fmt"
	"log/slog"

	"github.com/xtmatch/xtmatch/internal/config"
	"github.com/xtmatch/xtmatch/internal/rule/action"
	"github.com/xtmatch/xtmatch/internal/rule/common"
)

type final struct {
	name   string
	action common.Action
}

func (f *final) Type() common.RuleType {
	return common.RuleTypeFinal
}

func (f *final) Name() string {
	return f.name
}

func (f *final) Match(metadata *common.Metadata) (bool, error) {
	return true, nil
}

func (f *final) Action() common.Action {
	return f.action
}

func (f *final) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", string(f.Type())),
		slog.String("name", f.name),
		slog.String("action", string(f.action.Type())),
	)
}

func NewFinal(rule *config.Rule, opts *Options) (common.Rule, error) {
	act := action.NewAction(rule)
	if act == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, rule.Action)
	}
	return &final{name: rule.Name, action: act}, nil
}
