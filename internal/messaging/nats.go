// Package messaging provides a NATS client wrapper for publishing DatViz
// domain events and consuming them in the auditor.
package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATS subjects for domain events.
const (
	SubjectUserRegistered  = "datviz.user.registered"
	SubjectCreditsDeducted = "datviz.credits.deducted"
	SubjectUploadProcessed = "datviz.upload.processed"

	// SubjectAll matches every domain event.
	SubjectAll = "datviz.>"
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "datviz",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("[nats] disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("[nats] reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info().Msg("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("[nats] connected")

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// PublishEvent JSON-encodes event and publishes it on subject.
func (c *NATSClient) PublishEvent(subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("nats encode %s: %w", subject, err)
	}
	return c.conn.Publish(subject, data)
}

// SubscribeEvents delivers every domain event with its concrete subject.
// queue, when non-empty, load-balances events across auditor instances.
func (c *NATSClient) SubscribeEvents(queue string, handler func(subject string, data []byte)) error {
	cb := func(msg *nats.Msg) { handler(msg.Subject, msg.Data) }

	var (
		sub *nats.Subscription
		err error
	)
	if queue != "" {
		sub, err = c.conn.QueueSubscribe(SubjectAll, queue, cb)
	} else {
		sub, err = c.conn.Subscribe(SubjectAll, cb)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", SubjectAll, err)
	}

	c.mu.Lock()
	c.subs[SubjectAll] = sub
	c.mu.Unlock()
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("[nats] drain failed")
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Warn().Err(err).Msg("[nats] connection drain failed")
	}

	log.Info().Msg("[nats] client closed")
}
