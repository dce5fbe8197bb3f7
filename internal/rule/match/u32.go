package match

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/xtmatch/xtmatch/internal/bpf"
	"github.com/xtmatch/xtmatch/internal/config"
	"github.com/xtmatch/xtmatch/internal/rule/action"
	"github.com/xtmatch/xtmatch/internal/rule/common"
	"github.com/xtmatch/xtmatch/internal/u32"
)

type U32 struct {
	name    string
	action  common.Action
	match   *u32.Match
	matcher u32.Matcher
	source  string
}

func (u *U32) Type() common.RuleType {
	return common.RuleTypeU32
}

func (u *U32) Name() string {
	return u.name
}

func (u *U32) Match(metadata *common.Metadata) (bool, error) {
	return u.matcher.Matches(metadata.Packet), nil
}

func (u *U32) Action() common.Action {
	return u.action
}

// Record is the compiled match, shared with every other rule using the
// same expression.
func (u *U32) Record() *u32.Match {
	return u.match
}

func (u *U32) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", string(u.Type())),
		slog.String("name", u.name),
		slog.String("match", u.source),
		slog.Any("record", u.match),
		slog.String("action", string(u.action.Type())),
	)
}

func NewU32(rule *config.Rule, opts *Options) (common.Rule, error) {
	act := action.NewAction(rule)
	if act == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, rule.Action)
	}

	var (
		m      *u32.Match
		source string
		err    error
	)
	switch {
	case rule.Match != "":
		source = rule.Match
		m, err = opts.Cache.Parse(rule.Match, opts.ATMode)
	case rule.MatchRaw != "":
		source = "raw"
		m, err = decodeRaw(rule.MatchRaw, opts.ATMode)
	default:
		err = fmt.Errorf("%w: no match", u32.ErrSyntax)
	}
	if err != nil {
		return nil, err
	}

	if rule.Invert {
		inverted := *m
		inverted.Invert = !m.Invert
		m = &inverted
	}

	u := &U32{
		name:    rule.Name,
		action:  act,
		match:   m,
		matcher: m,
		source:  source,
	}
	if opts.Backend == config.BackendBPF {
		if u.matcher, err = bpf.NewMatcher(m); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func decodeRaw(s string, mode u32.ATMode) (*u32.Match, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("hex.DecodeString: %w", err)
	}
	var info u32.Info
	if err := info.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return u32.Compile(&info, u32.WithATMode(mode))
}
