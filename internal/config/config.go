package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type RuleType string

const (
	RuleTypeU32    RuleType = "U32"
	RuleTypeUDP    RuleType = "UDP"
	RuleTypeTCP    RuleType = "TCP"
	RuleTypeSrcIP  RuleType = "SRC-IP"
	RuleTypeIPCIDR RuleType = "IP-CIDR"
	RuleTypeFinal  RuleType = "FINAL"
)

type Backend string

const (
	BackendNative Backend = "native"
	BackendBPF    Backend = "bpf"
)

type Config struct {
	LogLevel string `mapstructure:"log-level" yaml:"log-level" validate:"oneof=debug info warn error"`
	LogFile  string `mapstructure:"log-file" yaml:"log-file,omitempty"`

	DefaultAction string  `mapstructure:"default-action" yaml:"default-action" validate:"oneof=ACCEPT DROP"`
	ATMode        string  `mapstructure:"at-mode" yaml:"at-mode" validate:"oneof=absolute cumulative"`
	Backend       Backend `mapstructure:"backend" yaml:"backend" validate:"oneof=native bpf"`
	CacheSize     int     `mapstructure:"cache-size" yaml:"cache-size" validate:"gte=0"`

	StatsFile     string        `mapstructure:"stats-file" yaml:"stats-file,omitempty"`
	StatsInterval time.Duration `mapstructure:"stats-interval" yaml:"stats-interval" validate:"gte=0"`

	Rules     []Rule `mapstructure:"rules" yaml:"rules" validate:"dive"`
	RulesJSON string `mapstructure:"rules-json" yaml:"-"`
}

type Rule struct {
	Name string `json:"name,omitempty" mapstructure:"name" yaml:"name,omitempty"`
	Type string `json:"type" mapstructure:"type" yaml:"type" validate:"required,oneof=U32 UDP TCP SRC-IP IP-CIDR FINAL"`

	Match    string `json:"match,omitempty" mapstructure:"match" yaml:"match,omitempty"`
	MatchRaw string `json:"match_raw,omitempty" mapstructure:"match-raw" yaml:"match-raw,omitempty" validate:"omitempty,hexadecimal"`
	Invert   bool   `json:"invert,omitempty" mapstructure:"invert" yaml:"invert,omitempty"`

	SourcePort      string `json:"source_port,omitempty" mapstructure:"source-port" yaml:"source-port,omitempty"`
	DestinationPort string `json:"destination_port,omitempty" mapstructure:"destination-port" yaml:"destination-port,omitempty"`

	CIDR string `json:"cidr,omitempty" mapstructure:"cidr" yaml:"cidr,omitempty" validate:"omitempty,cidr|ip"`

	Action string `json:"action" mapstructure:"action" yaml:"action" validate:"required,oneof=ACCEPT DROP LOG"`
}

func (r *Rule) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("type", r.Type),
		slog.String("action", r.Action),
	}
	if r.Name != "" {
		attrs = append(attrs, slog.String("name", r.Name))
	}
	if r.Match != "" {
		attrs = append(attrs, slog.String("match", r.Match))
	}
	if r.CIDR != "" {
		attrs = append(attrs, slog.String("cidr", r.CIDR))
	}
	if r.SourcePort != "" {
		attrs = append(attrs, slog.String("source-port", r.SourcePort))
	}
	if r.DestinationPort != "" {
		attrs = append(attrs, slog.String("destination-port", r.DestinationPort))
	}
	return slog.GroupValue(attrs...)
}

// validateRule checks the fields that depend on the rule type.
func validateRule(sl validator.StructLevel) {
	r := sl.Current().Interface().(Rule)

	switch RuleType(r.Type) {
	case RuleTypeU32:
		if (r.Match == "") == (r.MatchRaw == "") {
			sl.ReportError(r.Match, "Match", "match", "match_xor_match_raw", "")
		}
	case RuleTypeUDP, RuleTypeTCP:
		if r.Match != "" || r.MatchRaw != "" {
			sl.ReportError(r.Match, "Match", "match", "excluded_for_port_rule", "")
		}
		if r.Invert {
			sl.ReportError(r.Invert, "Invert", "invert", "excluded_for_port_rule", "")
		}
	case RuleTypeSrcIP, RuleTypeIPCIDR, RuleTypeFinal:
		if r.Match != "" || r.MatchRaw != "" || r.Invert {
			sl.ReportError(r.Match, "Match", "match", "u32_rule_only", "")
		}
	}

	isIPRule := RuleType(r.Type) == RuleTypeSrcIP || RuleType(r.Type) == RuleTypeIPCIDR
	if isIPRule != (r.CIDR != "") {
		sl.ReportError(r.CIDR, "CIDR", "cidr", "required_for_ip_rule_only", "")
	}
	if RuleType(r.Type) != RuleTypeUDP && RuleType(r.Type) != RuleTypeTCP &&
		(r.SourcePort != "" || r.DestinationPort != "") {
		sl.ReportError(r.SourcePort, "SourcePort", "source-port", "port_rule_only", "")
	}
}

func NewValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterStructValidation(validateRule, Rule{})
	return validate
}

// BuildConfigFromViper decodes the merged flag, env and file settings,
// normalizes enum casing and validates the result.
func BuildConfigFromViper() (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := viper.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("viper.Unmarshal: %w", err)
	}

	if len(cfg.Rules) == 0 && cfg.RulesJSON != "" {
		if err := json.Unmarshal([]byte(cfg.RulesJSON), &cfg.Rules); err != nil {
			return nil, fmt.Errorf("failed to parse rules JSON: %w", err)
		}
	}

	cfg.normalize()

	if err := NewValidator().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.DefaultAction = strings.ToUpper(c.DefaultAction)
	c.ATMode = strings.ToLower(c.ATMode)
	c.Backend = Backend(strings.ToLower(string(c.Backend)))
	for i := range c.Rules {
		r := &c.Rules[i]
		r.Type = strings.ToUpper(r.Type)
		r.Action = strings.ToUpper(r.Action)
		r.MatchRaw = strings.TrimPrefix(strings.TrimPrefix(r.MatchRaw, "0x"), "0X")
	}
}

func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("Log Level", c.LogLevel),
		slog.String("Log File", c.LogFile),
		slog.String("Default Action", c.DefaultAction),
		slog.String("AT Mode", c.ATMode),
		slog.String("Backend", string(c.Backend)),
		slog.Int("Rules", len(c.Rules)),
		slog.String("Stats File", c.StatsFile),
		slog.Duration("Stats Interval", c.StatsInterval),
	)
}
