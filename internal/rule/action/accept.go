package action

import "github.com/xtmatch/xtmatch/internal/rule/common"

type Accept struct{}

func (a *Accept) Type() common.ActionType {
	return common.ActionAccept
}

func (a *Accept) Terminal() bool {
	return true
}

func (a *Accept) Execute(rule common.Rule, metadata *common.Metadata) {}

func NewAccept() *Accept {
	return &Accept{}
}
