package fallback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docbreak/internal/models"

	"go.uber.org/zap"
)

// Registry is the part of models.Registry the orchestrator needs.
type Registry interface {
	DefaultModel(task models.Task) string
	NextModel(task models.Task, current string, excluded map[string]bool) (string, bool)
}

// ExhaustedError is returned when every model the orchestrator was allowed
// to try has failed. Tried is in attempt order and Err is the last failure.
type ExhaustedError struct {
	Task  models.Task
	Tried []string
	Err   error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all models failed for %s after %d attempt(s) [%s]: %v",
		e.Task, len(e.Tried), strings.Join(e.Tried, ", "), e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Orchestrator walks a task's candidate models until a call succeeds.
type Orchestrator struct {
	registry Registry
	state    *State
	log      *zap.Logger
}

// New creates an Orchestrator. A nil state starts empty; a nil logger
// discards output.
func New(registry Registry, state *State, log *zap.Logger) *Orchestrator {
	if state == nil {
		state = NewState()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{registry: registry, state: state, log: log}
}

// State exposes the shared failure and performance record.
func (o *Orchestrator) State() *State { return o.state }

// Execute calls call with startModel (or the task's default when empty) and,
// on error, with each next candidate that has neither been tried in this
// chain nor failed earlier for the task. At most maxRetries models are tried;
// values below 1 mean a single attempt. Attempts are strictly sequential.
func Execute[T any](ctx context.Context, o *Orchestrator, task models.Task, startModel string, maxRetries int,
	call func(ctx context.Context, model string) (T, error)) (T, error) {
	var zero T
	if maxRetries <= 0 {
		maxRetries = 1
	}
	model := startModel
	if model == "" {
		model = o.registry.DefaultModel(task)
	}

	var (
		tried   []string
		lastErr error
	)
	for {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		tried = append(tried, model)
		start := time.Now()
		res, err := call(ctx, model)
		if err == nil {
			o.state.RecordSuccess(task, model)
			o.log.Info("fallback.success",
				zap.String("task", string(task)),
				zap.String("model", model),
				zap.Int("attempt", len(tried)),
				zap.Duration("elapsed", time.Since(start)),
			)
			return res, nil
		}
		lastErr = err
		o.state.RecordFailure(task, model)
		o.log.Warn("fallback.attempt_failed",
			zap.String("task", string(task)),
			zap.String("model", model),
			zap.Int("attempt", len(tried)),
			zap.Error(err),
		)
		if len(tried) >= maxRetries {
			break
		}
		next, ok := o.registry.NextModel(task, model, o.state.failedSet(task, tried))
		if !ok {
			break
		}
		o.log.Info("fallback.switch", zap.String("task", string(task)), zap.String("from", model), zap.String("to", next))
		model = next
	}

	o.log.Error("fallback.exhausted", zap.String("task", string(task)), zap.Strings("tried", tried), zap.Error(lastErr))
	return zero, &ExhaustedError{Task: task, Tried: tried, Err: lastErr}
}
