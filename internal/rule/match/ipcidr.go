package match

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/xtmatch/xtmatch/internal/config"
	"github.com/xtmatch/xtmatch/internal/rule/action"
	"github.com/xtmatch/xtmatch/internal/rule/common"
)

// IPCIDR matches the source (SRC-IP) or destination (IP-CIDR) address
// against a network.
type IPCIDR struct {
	ruleType common.RuleType
	name     string
	action   common.Action
	ipNet    *net.IPNet
}

func (i *IPCIDR) Type() common.RuleType {
	return i.ruleType
}

func (i *IPCIDR) Name() string {
	return i.name
}

func (i *IPCIDR) Match(metadata *common.Metadata) (bool, error) {
	ip := metadata.DstIP
	if i.ruleType == common.RuleTypeSrcIP {
		ip = metadata.SrcIP
	}
	if ip == nil {
		return false, nil
	}
	return i.ipNet.Contains(ip), nil
}

func (i *IPCIDR) Action() common.Action {
	return i.action
}

func (i *IPCIDR) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", string(i.ruleType)),
		slog.String("name", i.name),
		slog.String("ip_cidr", i.ipNet.String()),
		slog.String("action", string(i.action.Type())),
	)
}

func NewIPCIDR(rule *config.Rule, opts *Options) (common.Rule, error) {
	act := action.NewAction(rule)
	if act == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, rule.Action)
	}

	ruleType := common.RuleType(rule.Type)
	if ruleType != common.RuleTypeSrcIP && ruleType != common.RuleTypeIPCIDR {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, rule.Type)
	}

	cidr := rule.CIDR
	if !strings.Contains(cidr, "/") {
		if strings.Contains(cidr, ":") {
			cidr += "/128"
		} else {
			cidr += "/32"
		}
	}

	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("net.ParseCIDR: %w", err)
	}

	return &IPCIDR{
		ruleType: ruleType,
		name:     rule.Name,
		action:   act,
		ipNet:    ipNet,
	}, nil
}
