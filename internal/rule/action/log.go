package action

import (
	"context"
	"log/slog"

	"github.com/xtmatch/xtmatch/internal/rule/common"
)

// Log records the packet and lets evaluation continue with the next rule.
type Log struct {
	Level slog.Level
}

func (l *Log) Type() common.ActionType {
	return common.ActionLog
}

func (l *Log) Terminal() bool {
	return false
}

func (l *Log) Execute(rule common.Rule, metadata *common.Metadata) {
	slog.Log(context.Background(), l.Level, "Packet logged",
		slog.String("rule", rule.Name()),
		slog.Any("metadata", metadata),
	)
}

func NewLog() *Log {
	return &Log{Level: slog.LevelInfo}
}
