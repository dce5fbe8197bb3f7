package common

import "github.com/xtmatch/xtmatch/internal/config"

type RuleType string

const (
	RuleTypeU32    = RuleType(config.RuleTypeU32)
	RuleTypeUDP    = RuleType(config.RuleTypeUDP)
	RuleTypeTCP    = RuleType(config.RuleTypeTCP)
	RuleTypeSrcIP  = RuleType(config.RuleTypeSrcIP)
	RuleTypeIPCIDR = RuleType(config.RuleTypeIPCIDR)
	RuleTypeFinal  = RuleType(config.RuleTypeFinal)
)

type Rule interface {
	Type() RuleType
	Name() string
	// Match reports whether the rule applies. An error means the rule
	// could not be evaluated against this packet and is skipped.
	Match(metadata *Metadata) (bool, error)
	Action() Action
}
