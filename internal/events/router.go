package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/chatclient/internal/session"
)

// TopicSession carries session changes and notifications.
const TopicSession = "session"

// Kind tells the envelope payloads apart.
type Kind string

const (
	KindChanged      Kind = "changed"
	KindNotification Kind = "notification"
)

// Envelope is the wire form of everything published on TopicSession.
type Envelope struct {
	Kind         Kind                  `json:"kind"`
	Change       *session.Change       `json:"change,omitempty"`
	Notification *session.Notification `json:"notification,omitempty"`
}

// Decode parses an envelope from a watermill payload.
func Decode(payload []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return Envelope{}, errors.Wrap(err, "decode session event")
	}
	return e, nil
}

// EventRouter fans session events out over an in-process gochannel pubsub.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
}

type EventRouterOption func(*EventRouter)

// WithVerbose routes watermill's own logs through zerolog.
func WithVerbose() EventRouterOption {
	return func(r *EventRouter) {
		r.logger = NewWatermillLogger(log.Logger)
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}
	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, ret.logger)
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, errors.Wrap(err, "create watermill router")
	}
	ret.router = router

	return ret, nil
}

// AddHandler subscribes f to topic.
func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// Run blocks until ctx is cancelled or the router is closed.
func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

// RunHandlers starts handlers added after Run.
func (e *EventRouter) RunHandlers(ctx context.Context) error {
	return e.router.RunHandlers(ctx)
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) Close() error {
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Str("component", "events").Msg("failed to close pubsub")
	}
	if err := e.router.Close(); err != nil {
		log.Error().Err(err).Str("component", "events").Msg("failed to close router")
	}
	return nil
}

// Observer returns a session.Observer publishing on TopicSession.
func (e *EventRouter) Observer() session.Observer {
	return &publishingObserver{publisher: e.Publisher, topic: TopicSession}
}

type publishingObserver struct {
	publisher message.Publisher
	topic     string
}

func (p *publishingObserver) SessionChanged(c session.Change) {
	p.publish(Envelope{Kind: KindChanged, Change: &c})
}

func (p *publishingObserver) Notify(n session.Notification) {
	p.publish(Envelope{Kind: KindNotification, Notification: &n})
}

func (p *publishingObserver) publish(env Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		log.Warn().Err(err).Str("component", "events").Msg("failed to encode session event")
		return
	}
	if err := p.publisher.Publish(p.topic, message.NewMessage(watermill.NewUUID(), b)); err != nil {
		log.Warn().Err(err).Str("component", "events").Msg("failed to publish session event")
	}
}
