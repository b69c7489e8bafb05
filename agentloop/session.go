package agentloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SessionState represents the current lifecycle state of a session.
type SessionState string

const (
	StateStarted    SessionState = "started"
	StateRunning    SessionState = "running"
	StateTerminated SessionState = "terminated"
)

var (
	// ErrSessionNotStarted is returned by Run when the session has already
	// left the started state.
	ErrSessionNotStarted = errors.New("session is not in the started state")
	// ErrIterationLimit is returned when MaxIterations is reached before the
	// model calls finish.
	ErrIterationLimit = errors.New("iteration limit reached")
)

// SessionConfig holds configuration for a session.
type SessionConfig struct {
	MaxIterations       int  `json:"max_iterations"`        // 0 = unlimited
	MaxObservationChars int  `json:"max_observation_chars"` // 0 = per-tool defaults
	EnableLoopDetection bool `json:"enable_loop_detection"`
	LoopDetectionWindow int  `json:"loop_detection_window"`
	EventBufferSize     int  `json:"event_buffer_size"`
}

// DefaultSessionConfig returns the default configuration: no iteration cap,
// loop detection over the last 10 calls.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxIterations:       0,
		EnableLoopDetection: true,
		LoopDetectionWindow: 10,
		EventBufferSize:     256,
	}
}

// Result is the outcome of a session that ended with a finish call.
type Result struct {
	Status      CompletionStatus `json:"status" yaml:"status"`
	Message     string           `json:"message" yaml:"message"`
	Observation Observation      `json:"observation" yaml:"observation"`
	Iterations  int              `json:"iterations" yaml:"iterations"`
}

// Session drives one task from the initial prompt to a finish call. A session
// runs once; create a new one per task.
type Session struct {
	id         string
	llm        LLM
	dispatcher *Dispatcher
	config     SessionConfig
	emitter    *EventEmitter

	mu         sync.Mutex
	state      SessionState
	transcript *Transcript
	dispatched []ToolCall
	iterations int
}

// NewSession creates a session that asks llm for calls and runs them through
// dispatcher.
func NewSession(llm LLM, dispatcher *Dispatcher, config *SessionConfig) *Session {
	sessionID := uuid.New().String()

	cfg := DefaultSessionConfig()
	if config != nil {
		cfg = *config
	}

	return &Session{
		id:         sessionID,
		llm:        llm,
		dispatcher: dispatcher,
		config:     cfg,
		emitter:    NewEventEmitter(sessionID, cfg.EventBufferSize),
		state:      StateStarted,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Iterations returns the number of model invocations so far.
func (s *Session) Iterations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iterations
}

// Transcript returns the session transcript, or nil before Run.
func (s *Session) Transcript() *Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// Events returns the event channel. It is closed when Run returns.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Run executes the task until the model calls finish. Tool failures are fed
// back to the model and never end the session; only an LLM error, context
// cancellation or the iteration cap does.
func (s *Session) Run(ctx context.Context, task string) (*Result, error) {
	s.mu.Lock()
	if s.state != StateStarted {
		s.mu.Unlock()
		return nil, ErrSessionNotStarted
	}
	specs := s.dispatcher.Registry().Specs()
	workDir := ""
	if env := s.dispatcher.Environment(); env != nil {
		workDir = env.WorkingDirectory()
	}
	s.transcript = NewTranscript(BuildInitialPrompt(task, specs, workDir))
	s.state = StateRunning
	s.mu.Unlock()

	defer s.emitter.Close()

	logger := log.With().Str("session", s.id).Logger()
	s.emitter.Emit(EventSessionStart, 0, map[string]interface{}{
		"task":  task,
		"tools": len(specs),
	})

	for {
		if err := ctx.Err(); err != nil {
			s.terminate()
			s.emitter.Emit(EventError, s.Iterations(), map[string]interface{}{
				"error": err.Error(),
			})
			return nil, errors.Wrap(err, "session cancelled")
		}

		s.mu.Lock()
		if s.config.MaxIterations > 0 && s.iterations >= s.config.MaxIterations {
			n := s.iterations
			s.mu.Unlock()
			s.terminate()
			s.emitter.Emit(EventIterationLimit, n, map[string]interface{}{
				"max_iterations": s.config.MaxIterations,
			})
			return nil, errors.Wrapf(ErrIterationLimit, "after %d iterations", n)
		}
		s.iterations++
		iteration := s.iterations
		s.mu.Unlock()

		prompt := s.transcript.String()
		logger.Debug().Int("iteration", iteration).Int("prompt_chars", len(prompt)).Msg("invoking model")
		s.emitter.Emit(EventLLMRequest, iteration, map[string]interface{}{
			"prompt_chars": len(prompt),
		})

		out, err := s.llm.Invoke(ctx, prompt, specs)
		if err != nil {
			s.terminate()
			s.emitter.Emit(EventError, iteration, map[string]interface{}{
				"error": err.Error(),
			})
			return nil, errors.Wrap(err, "unrecoverable LLM error")
		}
		if out == nil {
			out = &ModelOutput{}
		}
		s.emitter.Emit(EventLLMResponse, iteration, map[string]interface{}{
			"text":             out.Text,
			"structured_calls": len(out.StructuredCalls),
			"output_tokens":    out.Usage.OutputTokens,
		})

		calls := ExtractToolCalls(out)
		if len(calls) > 1 {
			ignored := make([]string, 0, len(calls)-1)
			for _, c := range calls[1:] {
				ignored = append(ignored, c.Name)
			}
			logger.Warn().Int("iteration", iteration).Strs("ignored", ignored).Msg("model issued several tool calls, only the first is run")
			s.emitter.Emit(EventWarning, iteration, map[string]interface{}{
				"message": fmt.Sprintf("%d extra tool calls ignored", len(ignored)),
				"ignored": ignored,
			})
		}

		if len(calls) == 0 {
			s.transcript.AppendTurn(iteration, out.Text, nil, nil, "")
			continue
		}

		call := calls[0]
		obs := s.dispatch(ctx, iteration, call)

		if obs.IsFinish() {
			s.transcript.AppendFinish(iteration, out.Text, call, obs)
			s.terminate()
			status := CompletionFalse
			if obs.Finish != nil {
				status = obs.Finish.Status
			}
			logger.Info().Int("iterations", iteration).Str("status", string(status)).Msg("session finished")
			s.emitter.Emit(EventSessionEnd, iteration, map[string]interface{}{
				"status":  string(status),
				"message": obs.Content,
			})
			return &Result{
				Status:      status,
				Message:     obs.Content,
				Observation: obs,
				Iterations:  iteration,
			}, nil
		}

		rendered := TruncateToolOutput(obs.String(), call.Name, s.config.MaxObservationChars)
		s.transcript.AppendTurn(iteration, out.Text, &call, &obs, rendered)

		s.mu.Lock()
		s.dispatched = append(s.dispatched, call)
		history := s.dispatched
		s.mu.Unlock()

		if s.config.EnableLoopDetection && DetectLoop(history, s.config.LoopDetectionWindow) {
			warning := fmt.Sprintf("Loop detected: the last %d tool calls follow a repeating pattern. Try a different approach.", s.config.LoopDetectionWindow)
			s.transcript.AppendSteering(iteration, warning)
			logger.Warn().Int("iteration", iteration).Msg("loop detected")
			s.emitter.Emit(EventLoopDetection, iteration, map[string]interface{}{
				"message": warning,
			})
		}
	}
}

// dispatch runs one call, emitting the start and end events. The end event
// carries the full rendering even when the transcript copy is truncated.
func (s *Session) dispatch(ctx context.Context, iteration int, call ToolCall) Observation {
	s.emitter.Emit(EventToolCallStart, iteration, map[string]interface{}{
		"tool_name": call.Name,
		"call_id":   call.ID,
		"call":      call.Raw(),
	})

	obs := s.dispatcher.Dispatch(ctx, call)

	data := map[string]interface{}{
		"tool_name": call.Name,
		"call_id":   call.ID,
		"kind":      string(obs.Kind),
		"summary":   obs.Summary(),
		"output":    obs.String(),
	}
	if obs.IsFailure() {
		data["error"] = obs.Content
	}
	s.emitter.Emit(EventToolCallEnd, iteration, data)
	return obs
}

func (s *Session) terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateTerminated
}
