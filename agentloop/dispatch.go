package agentloop

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Dispatcher resolves tool calls against a registry and runs them in an
// execution environment. Dispatch never returns an error and never panics:
// every failure is reported as a failure Observation.
type Dispatcher struct {
	registry *ToolRegistry
	env      ExecutionEnvironment
}

// NewDispatcher creates a Dispatcher over registry and env.
func NewDispatcher(registry *ToolRegistry, env ExecutionEnvironment) *Dispatcher {
	if registry == nil {
		registry = NewToolRegistry()
	}
	return &Dispatcher{registry: registry, env: env}
}

// Registry returns the registry the dispatcher resolves names against.
func (d *Dispatcher) Registry() *ToolRegistry {
	return d.registry
}

// Environment returns the execution environment tools run in.
func (d *Dispatcher) Environment() ExecutionEnvironment {
	return d.env
}

// Dispatch runs one tool call and returns its Observation.
func (d *Dispatcher) Dispatch(ctx context.Context, call ToolCall) (obs Observation) {
	tool := d.registry.Get(call.Name)
	if tool == nil {
		log.Warn().Str("tool", call.Name).Msg("tool not found in registry")
		return NewUnknownToolObservation(call.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("tool", call.Name).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("tool panicked")
			obs = NewFailureObservation(call.Name, fmt.Sprintf("%s panicked: %v", call.Name, r))
		}
	}()

	args, err := CoerceArguments(tool.Spec, call.Arguments)
	if err != nil {
		err = errors.Wrapf(err, "%s()", call.Name)
		log.Debug().Err(err).Msg("argument coercion failed")
		return NewFailureObservation(call.Name, err.Error())
	}

	result, err := tool.Invoke(ctx, args, d.env)
	if err != nil {
		log.Debug().Err(err).Str("tool", call.Name).Msg("tool returned an error")
		return NewFailureObservation(call.Name, err.Error())
	}
	return ToObservation(result)
}
