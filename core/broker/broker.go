package broker

import (
	"sync"

	"code.halcyonprotocol.io/halcyon/core/events"
	"code.halcyonprotocol.io/halcyon/logging"
)

const namedLogger = "broker"

// Subscriber receives events pushed through the broker.
type Subscriber interface {
	Push(evts ...events.Event)
}

// Interface is the event bus surface the engines depend on.
//
//go:generate go run github.com/golang/mock/mockgen -destination mocks/broker_mock.go -package mocks code.halcyonprotocol.io/halcyon/core/broker Interface
type Interface interface {
	Send(event events.Event)
	SendBatch(events []events.Event)
}

// Broker is a synchronous fan-out bus, events are pushed to every
// registered subscriber in registration order.
type Broker struct {
	Config
	log *logging.Logger

	mu   sync.Mutex
	subs []Subscriber
}

func New(log *logging.Logger, config Config) *Broker {
	log = log.Named(namedLogger)
	log.SetLevel(config.Level.Get())

	return &Broker{
		Config: config,
		log:    log,
	}
}

// Subscribe registers a subscriber for all events.
func (b *Broker) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

func (b *Broker) Send(event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.log.GetLevel() == logging.DebugLevel {
		b.log.Debug("sending event", logging.String("type", event.Type().String()))
	}
	for _, s := range b.subs {
		s.Push(event)
	}
}

func (b *Broker) SendBatch(evts []events.Event) {
	if len(evts) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.Push(evts...)
	}
}
