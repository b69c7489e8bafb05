package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/martinemde/alita/agentloop"
	"github.com/martinemde/alita/eventbus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const sessionEventsTopic eventbus.Topic = "session.events"

// forwardEvents publishes every session event to the bus until the
// session's event stream ends.
func forwardEvents(ctx context.Context, bus *eventbus.Bus, session *agentloop.Session) {
	for e := range session.Events() {
		payload, err := json.Marshal(e)
		if err != nil {
			log.Warn().Err(err).Str("kind", string(e.Kind)).Msg("could not encode session event")
			continue
		}
		if err := bus.Publish(ctx, eventbus.NewPublishEvent(sessionEventsTopic, "session", string(payload))); err != nil {
			log.Warn().Err(err).Str("kind", string(e.Kind)).Msg("could not publish session event")
		}
	}
}

// progressPrinter prints one line per interesting session event.
type progressPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

func (p *progressPrinter) ProcessEvent(_ context.Context, e eventbus.Event) error {
	var se agentloop.SessionEvent
	if err := json.Unmarshal([]byte(e.Payload.Content), &se); err != nil {
		return errors.Wrap(err, "decoding session event")
	}

	line := progressLine(se)
	if line == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.out, line)
	return err
}

func progressLine(e agentloop.SessionEvent) string {
	str := func(key string) string {
		s, _ := e.Data[key].(string)
		return s
	}

	switch e.Kind {
	case agentloop.EventSessionStart:
		return fmt.Sprintf("session %s: %s", e.SessionID, str("task"))
	case agentloop.EventToolCallStart:
		return fmt.Sprintf("[%d] %s", e.Iteration, str("call"))
	case agentloop.EventToolCallEnd:
		if errMsg := str("error"); errMsg != "" {
			return fmt.Sprintf("[%d]   failed: %s", e.Iteration, errMsg)
		}
		return fmt.Sprintf("[%d]   %s", e.Iteration, str("summary"))
	case agentloop.EventWarning, agentloop.EventLoopDetection:
		return fmt.Sprintf("[%d] warning: %s", e.Iteration, str("message"))
	case agentloop.EventIterationLimit:
		return fmt.Sprintf("[%d] iteration limit reached", e.Iteration)
	case agentloop.EventError:
		return fmt.Sprintf("[%d] error: %s", e.Iteration, str("error"))
	case agentloop.EventSessionEnd:
		return fmt.Sprintf("[%d] finished (%s): %s", e.Iteration, str("status"), str("message"))
	default:
		return ""
	}
}
