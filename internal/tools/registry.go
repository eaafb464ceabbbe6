package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Handler executes one tool call. The returned string is handed back
// to the run verbatim; a returned error is downgraded to a diagnostic
// string by the registry, never propagated.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Registry maps tool names to handlers and their function schemas.
type Registry struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	definitions []openai.FunctionDefinition
	logger      *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

func (r *Registry) Register(def openai.FunctionDefinition, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Name] = handler
	r.definitions = append(r.definitions, def)
}

// Definitions returns the function schemas of every registered tool,
// for wiring into provisioned assistants.
func (r *Registry) Definitions() []openai.FunctionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]openai.FunctionDefinition, len(r.definitions))
	copy(defs, r.definitions)
	return defs
}

// Invoke runs the named tool and always produces a string output: the
// run protocol expects one output per call regardless of success, so
// unknown tools, handler errors and panics all come back as
// human-readable diagnostics.
func (r *Registry) Invoke(ctx context.Context, name, args string) (output string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Tool handler panicked",
				zap.String("tool", name),
				zap.Any("panic", rec))
			output = fmt.Sprintf("tool %s failed unexpectedly", name)
		}
	}()

	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("No handler registered for tool", zap.String("tool", name))
		return fmt.Sprintf("tool %s is not available", name)
	}

	result, err := handler(ctx, json.RawMessage(args))
	if err != nil {
		r.logger.Error("Tool execution failed",
			zap.String("tool", name),
			zap.Error(err))
		return fmt.Sprintf("tool %s failed: %v", name, err)
	}
	return result
}
