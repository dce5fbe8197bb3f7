package action

import "github.com/xtmatch/xtmatch/internal/rule/common"

type Drop struct{}

func (d *Drop) Type() common.ActionType {
	return common.ActionDrop
}

func (d *Drop) Terminal() bool {
	return true
}

func (d *Drop) Execute(rule common.Rule, metadata *common.Metadata) {}

func NewDrop() *Drop {
	return &Drop{}
}
