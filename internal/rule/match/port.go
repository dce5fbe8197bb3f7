package match

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/gopacket/layers"

	"github.com/xtmatch/xtmatch/internal/config"
	"github.com/xtmatch/xtmatch/internal/portrange"
	"github.com/xtmatch/xtmatch/internal/rule/action"
	"github.com/xtmatch/xtmatch/internal/rule/common"
)

// Port matches UDP or TCP port ranges.
type Port struct {
	ruleType common.RuleType
	name     string
	action   common.Action
	protocol layers.IPProtocol
	record   *portrange.Record
}

func (p *Port) Type() common.RuleType {
	return p.ruleType
}

func (p *Port) Name() string {
	return p.name
}

// Match only looks at packets of the rule's protocol, and never at
// non-first fragments, which carry no ports.
func (p *Port) Match(metadata *common.Metadata) (bool, error) {
	if metadata.Protocol != p.protocol || metadata.Fragment {
		return false, nil
	}
	return p.record.Matches(metadata.Packet)
}

func (p *Port) Action() common.Action {
	return p.action
}

func (p *Port) Record() *portrange.Record {
	return p.record
}

func (p *Port) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", string(p.ruleType)),
		slog.String("name", p.name),
		slog.Any("ports", p.record),
		slog.String("action", string(p.action.Type())),
	)
}

func NewPort(rule *config.Rule, opts *Options) (common.Rule, error) {
	act := action.NewAction(rule)
	if act == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, rule.Action)
	}

	var proto layers.IPProtocol
	switch common.RuleType(rule.Type) {
	case common.RuleTypeUDP:
		proto = layers.IPProtocolUDP
	case common.RuleTypeTCP:
		proto = layers.IPProtocolTCP
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, rule.Type)
	}

	record, err := portrange.Parse(strings.ToLower(rule.Type), rule.SourcePort, rule.DestinationPort)
	if err != nil {
		return nil, err
	}

	return &Port{
		ruleType: common.RuleType(rule.Type),
		name:     rule.Name,
		action:   act,
		protocol: proto,
		record:   record,
	}, nil
}
