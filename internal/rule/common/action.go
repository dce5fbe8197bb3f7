package common

type ActionType string

const (
	ActionAccept ActionType = "ACCEPT"
	ActionDrop   ActionType = "DROP"
	ActionLog    ActionType = "LOG"
)

type Action interface {
	Type() ActionType
	// Terminal actions end evaluation with their own verdict.
	Terminal() bool
	Execute(rule Rule, metadata *Metadata)
}
