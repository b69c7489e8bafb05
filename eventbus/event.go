package eventbus

import "context"

// Topic names a stream of published events.
type Topic string

// DefaultTopic is used when an event names no topic.
const DefaultTopic Topic = "default"

// Payload is the body of an event.
type Payload struct {
	Content string `json:"content"`
}

// Event is a message between processors. Events with a Receiver are direct:
// they go to that processor only and their Topic is ignored. All others are
// published to every processor subscribed to Topic.
type Event struct {
	Topic    Topic   `json:"topic"`
	Payload  Payload `json:"payload"`
	Sender   string  `json:"sender"`
	Receiver string  `json:"receiver,omitempty"`
}

// NewPublishEvent creates an event for all subscribers of topic.
func NewPublishEvent(topic Topic, sender, content string) Event {
	return Event{Topic: topic, Sender: sender, Payload: Payload{Content: content}}
}

// NewDirectEvent creates an event for a single receiver.
func NewDirectEvent(receiver, sender, content string) Event {
	return Event{Topic: DefaultTopic, Sender: sender, Receiver: receiver, Payload: Payload{Content: content}}
}

// IsDirect reports whether the event is addressed to a single processor.
func (e Event) IsDirect() bool {
	return e.Receiver != ""
}

// Processor handles events delivered by the bus. Errors are logged by the
// bus and never reach the publisher.
type Processor interface {
	ProcessEvent(ctx context.Context, e Event) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, e Event) error

// ProcessEvent calls f.
func (f ProcessorFunc) ProcessEvent(ctx context.Context, e Event) error {
	return f(ctx, e)
}
