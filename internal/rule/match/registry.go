package match

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xtmatch/xtmatch/internal/config"
	"github.com/xtmatch/xtmatch/internal/rule/common"
	"github.com/xtmatch/xtmatch/internal/u32"
)

var (
	ErrUnsupportedType = errors.New("unsupported rule type")
	ErrDuplicateType   = errors.New("rule type already registered")
	ErrUnknownAction   = errors.New("unknown action")
)

// Options carries the engine-wide settings every factory sees.
type Options struct {
	ATMode  u32.ATMode
	Backend config.Backend
	// Cache may be nil.
	Cache *Cache
}

// Factory builds a rule from its validated configuration.
type Factory func(rule *config.Rule, opts *Options) (common.Rule, error)

// Registry maps rule types to factories. The host fills it once at
// startup; nothing registers itself.
type Registry struct {
	mu        sync.RWMutex
	factories map[common.RuleType]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[common.RuleType]Factory),
	}
}

func (r *Registry) Register(t common.RuleType, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[t]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, t)
	}
	r.factories[t] = f
	return nil
}

func (r *Registry) New(rule *config.Rule, opts *Options) (common.Rule, error) {
	r.mu.RLock()
	f, ok := r.factories[common.RuleType(rule.Type)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, rule.Type)
	}
	if opts == nil {
		opts = &Options{}
	}
	return f(rule, opts)
}

// RegisterDefaults installs every rule type this module implements.
func RegisterDefaults(r *Registry) error {
	return errors.Join(
		r.Register(common.RuleTypeU32, NewU32),
		r.Register(common.RuleTypeUDP, NewPort),
		r.Register(common.RuleTypeTCP, NewPort),
		r.Register(common.RuleTypeSrcIP, NewIPCIDR),
		r.Register(common.RuleTypeIPCIDR, NewIPCIDR),
		r.Register(common.RuleTypeFinal, NewFinal),
	)
}
