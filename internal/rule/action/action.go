package action

import (
	"github.com/xtmatch/xtmatch/internal/config"
	"github.com/xtmatch/xtmatch/internal/rule/common"
)

var (
	AcceptAction = NewAccept()
	DropAction   = NewDrop()
	LogAction    = NewLog()
)

func NewAction(rule *config.Rule) common.Action {
	return FromType(common.ActionType(rule.Action))
}

// FromType returns the shared action for t, or nil when t is unknown.
func FromType(t common.ActionType) common.Action {
	switch t {
	case common.ActionAccept:
		return AcceptAction
	case common.ActionDrop:
		return DropAction
	case common.ActionLog:
		return LogAction
	default:
		return nil
	}
}
