// Package zaplog adapts the ledger and workflow logging hooks to zap.
package zaplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/workflow"
	"go.uber.org/zap"
)

const (
	messageLedgerOperation = "ledger operation"
	messageTransition      = "workflow operation"
)

// Logger implements points.OperationLogger and workflow.TransitionLogger.
type Logger struct {
	logger *zap.Logger
}

// New wraps a zap logger; nil falls back to a no-op logger.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger}
}

// LogOperation writes one line per ledger write. Failures log at warn level.
func (adapter *Logger) LogOperation(_ context.Context, entry points.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("actor_id", entry.ActorID),
		zap.String("user_id", entry.UserID),
		zap.Int64("amount", entry.Amount),
	}
	if entry.EntryID != "" {
		fields = append(fields, zap.String("entry_id", entry.EntryID))
	}
	if entry.ReferenceType != "" {
		fields = append(fields, zap.String("reference_type", entry.ReferenceType.String()))
	}
	if entry.ReferenceID != "" {
		fields = append(fields, zap.String("reference_id", entry.ReferenceID))
	}
	if entry.Error != nil {
		adapter.logger.Warn(messageLedgerOperation, append(fields, zap.Error(entry.Error))...)
		return
	}
	adapter.logger.Info(messageLedgerOperation, fields...)
}

// LogTransition writes one line per workflow creation, edit or transition.
func (adapter *Logger) LogTransition(_ context.Context, entry workflow.TransitionLog) {
	fields := []zap.Field{
		zap.String("kind", entry.Kind.String()),
		zap.String("action", entry.Action),
		zap.String("status", entry.Status),
		zap.String("actor_id", entry.ActorID),
		zap.String("entity_id", entry.EntityID),
	}
	if entry.From != "" || entry.To != "" {
		fields = append(fields, zap.String("from", entry.From.String()), zap.String("to", entry.To.String()))
	}
	if entry.Grants > 0 {
		fields = append(fields, zap.Int("grants", entry.Grants))
	}
	if entry.Error != nil {
		adapter.logger.Warn(messageTransition, append(fields, zap.Error(entry.Error))...)
		return
	}
	adapter.logger.Info(messageTransition, fields...)
}
