package workflow

import "context"

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// TransitionLogger receives one callback per creation, update and transition.
type TransitionLogger interface {
	LogTransition(ctx context.Context, entry TransitionLog)
}

// TransitionLog describes a workflow operation and its outcome.
type TransitionLog struct {
	Kind     Kind
	EntityID string
	Action   string
	ActorID  string
	From     Status
	To       Status
	Grants   int
	Status   string
	Error    error
}

// WithTransitionLogger wires a logger for every workflow operation.
func WithTransitionLogger(logger TransitionLogger) EngineOption {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

// WithPolicy overrides the default policy constants.
func WithPolicy(policy Policy) EngineOption {
	return func(engine *Engine) {
		engine.policy = policy
	}
}

func (engine *Engine) logTransition(ctx context.Context, entry TransitionLog) {
	if engine.logger == nil {
		return
	}
	if entry.Error != nil {
		entry.Status = operationStatusError
	} else {
		entry.Status = operationStatusOK
	}
	engine.logger.LogTransition(ctx, entry)
}
