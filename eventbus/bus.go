package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed          = errors.New("event bus is closed")
	ErrNotStarted      = errors.New("event bus is not started")
	ErrUnknownReceiver = errors.New("no processor registered for receiver")
	ErrNoSubscribers   = errors.New("no processor subscribed to topic")
)

const directTopicPrefix = "direct."

func directTopic(receiver string) string {
	return directTopicPrefix + receiver
}

// Bus routes events between named processors over an in-process watermill
// pub/sub. Publish returns once every receiving processor has handled the
// event, so events on one topic are processed in publish order. A processor
// must not publish to a topic it is itself subscribed to.
type Bus struct {
	logger watermill.LoggerAdapter
	pubSub *gochannel.GoChannel
	router *message.Router

	mu          sync.RWMutex
	processors  map[string]Processor
	subscribers map[Topic][]string
	handlers    map[string]bool
	started     bool
	closed      bool
	runCtx      context.Context
	cancel      context.CancelFunc

	inflight  sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the watermill logger used by the pub/sub and router.
func WithLogger(logger watermill.LoggerAdapter) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// New creates a stopped bus. Register processors, then call Start.
func New(options ...Option) (*Bus, error) {
	b := &Bus{
		logger:      watermill.NopLogger{},
		processors:  map[string]Processor{},
		subscribers: map[Topic][]string{},
		handlers:    map[string]bool{},
	}
	for _, o := range options {
		o(b)
	}

	b.pubSub = gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, b.logger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 5 * time.Second}, b.logger)
	if err != nil {
		return nil, errors.Wrap(err, "creating event router")
	}
	b.router = router
	return b, nil
}

// Register subscribes the processor called name to topics. Every processor
// also receives direct events addressed to its name. Registering a name
// again adds topics; the processor first registered under that name is kept.
func (b *Bus) Register(name string, p Processor, topics ...Topic) error {
	if name == "" {
		return errors.New("processor name must not be empty")
	}
	if p == nil {
		return errors.Errorf("processor %s is nil", name)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if _, ok := b.processors[name]; !ok {
		b.processors[name] = p
		b.addHandler(name, directTopic(name), p)
	}
	registered := b.processors[name]
	for _, t := range topics {
		key := fmt.Sprintf("%s@%s", name, t)
		if b.handlers[key] {
			continue
		}
		b.subscribers[t] = append(b.subscribers[t], name)
		b.addHandler(key, string(t), registered)
	}
	started, ctx := b.started, b.runCtx
	b.mu.Unlock()

	log.Debug().Str("processor", name).Interface("topics", topics).Msg("registered event processor")

	if started {
		if err := b.router.RunHandlers(ctx); err != nil {
			return errors.Wrapf(err, "starting handlers for %s", name)
		}
	}
	return nil
}

// addHandler must be called with b.mu held.
func (b *Bus) addHandler(handlerName, topic string, p Processor) {
	b.handlers[handlerName] = true
	b.router.AddNoPublisherHandler(handlerName, topic, b.pubSub, b.handle(handlerName, p))
}

func (b *Bus) handle(handlerName string, p Processor) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var e Event
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			log.Error().Err(err).Str("handler", handlerName).Str("message_id", msg.UUID).Msg("dropping undecodable event")
			return nil
		}

		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("handler", handlerName).Str("panic", fmt.Sprint(r)).Msg("event processor panicked")
			}
		}()

		if err := p.ProcessEvent(msg.Context(), e); err != nil {
			log.Error().Err(err).Str("handler", handlerName).Str("topic", string(e.Topic)).Msg("error processing event")
		}
		return nil
	}
}

// Start runs the router in the background and returns once it is ready to
// deliver events.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = true
	b.runCtx, b.cancel = context.WithCancel(ctx)
	runCtx := b.runCtx
	b.mu.Unlock()

	errc := make(chan error, 1)
	go func() {
		errc <- b.router.Run(runCtx)
	}()

	select {
	case <-b.router.Running():
		log.Debug().Msg("event bus started")
		return nil
	case err := <-errc:
		return errors.Wrap(err, "starting event bus")
	}
}

// Publish delivers e. Direct events go to their receiver; others fan out to
// every processor subscribed to the topic.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if e.Topic == "" {
		e.Topic = DefaultTopic
	}

	b.mu.RLock()
	switch {
	case b.closed:
		b.mu.RUnlock()
		return ErrClosed
	case !b.started:
		b.mu.RUnlock()
		return ErrNotStarted
	}
	topic := string(e.Topic)
	if e.IsDirect() {
		if _, ok := b.processors[e.Receiver]; !ok {
			b.mu.RUnlock()
			log.Warn().Str("receiver", e.Receiver).Str("sender", e.Sender).Msg("no processor found for receiver")
			return errors.Wrap(ErrUnknownReceiver, e.Receiver)
		}
		topic = directTopic(e.Receiver)
	} else if len(b.subscribers[e.Topic]) == 0 {
		b.mu.RUnlock()
		return errors.Wrap(ErrNoSubscribers, topic)
	}
	b.inflight.Add(1)
	b.mu.RUnlock()
	defer b.inflight.Done()

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "publishing event")
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("sender", e.Sender)

	if err := b.pubSub.Publish(topic, msg); err != nil {
		return errors.Wrapf(err, "publishing to %s", topic)
	}
	log.Trace().Str("topic", topic).Str("sender", e.Sender).Msg("published event")
	return nil
}

// Processors returns the registered processor names, sorted.
func (b *Bus) Processors() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.processors))
	for name := range b.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subscribers returns the processors subscribed to topic in registration
// order.
func (b *Bus) Subscribers(topic Topic) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.subscribers[topic]...)
}

// StopWhenIdle rejects new events, waits for in-flight ones to be processed
// and closes the bus. If ctx ends first the bus is closed immediately.
func (b *Bus) StopWhenIdle(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return b.shutdown()
	case <-ctx.Done():
		_ = b.shutdown()
		return errors.Wrap(ctx.Err(), "waiting for in-flight events")
	}
}

// Close stops the bus without waiting for in-flight events.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.shutdown()
}

func (b *Bus) shutdown() error {
	b.closeOnce.Do(func() {
		log.Debug().Msg("closing event publisher")
		if err := b.pubSub.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub")
			b.closeErr = errors.Wrap(err, "closing pubsub")
		}

		log.Debug().Msg("closing event router")
		if err := b.router.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close router")
			if b.closeErr == nil {
				b.closeErr = errors.Wrap(err, "closing router")
			}
		}

		b.mu.Lock()
		if b.cancel != nil {
			b.cancel()
		}
		b.mu.Unlock()
	})
	return b.closeErr
}
