// Package eventbus wraps a NATS connection for the typed social,
// moderation and stream events published across the platform: follow
// graph mutations (§4.I), moderation sanctions (§4.F), and stream
// lifecycle/fan-out signaling (§4.D) that downstream consumers
// (notification dispatch adapters, feed invalidation) subscribe to.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/okinrev/veza/internal/metrics"
)

type Config struct {
	URL             string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
	MaxPingsOut     int
	PingInterval    time.Duration
}

func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		ReconnectJitter: 500 * time.Millisecond,
		MaxPingsOut:     3,
		PingInterval:    20 * time.Second,
	}
}

// Client publishes and subscribes to typed subjects. Handlers are
// stored so Close can unsubscribe cleanly on shutdown.
type Client struct {
	conn      *nats.Conn
	metrics   *metrics.Registry
	logger    zerolog.Logger
	subs      map[string]*nats.Subscription
	subsMutex sync.RWMutex
}

func NewClient(cfg Config, reg *metrics.Registry, logger zerolog.Logger) (*Client, error) {
	c := &Client{
		metrics: reg,
		logger:  logger,
		subs:    make(map[string]*nats.Subscription),
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(cfg.ReconnectJitter, cfg.ReconnectJitter),
		nats.MaxPingsOutstanding(cfg.MaxPingsOut),
		nats.PingInterval(cfg.PingInterval),
		nats.ConnectHandler(c.onConnect),
		nats.DisconnectErrHandler(c.onDisconnect),
		nats.ReconnectHandler(c.onReconnect),
		nats.ErrorHandler(c.onError),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to event bus: %w", err)
	}

	c.conn = conn
	c.metrics.SetEventBusConnected(true)
	return c, nil
}

func (c *Client) onConnect(conn *nats.Conn) {
	c.logger.Info().Str("url", conn.ConnectedUrl()).Msg("event bus connected")
	c.metrics.SetEventBusConnected(true)
}

func (c *Client) onDisconnect(_ *nats.Conn, err error) {
	c.logger.Warn().Err(err).Msg("event bus disconnected")
	c.metrics.SetEventBusConnected(false)
}

func (c *Client) onReconnect(conn *nats.Conn) {
	c.logger.Info().Str("url", conn.ConnectedUrl()).Msg("event bus reconnected")
	c.metrics.SetEventBusConnected(true)
	c.metrics.IncrementEventBusReconnects()
}

func (c *Client) onError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Error().Err(err).Msg("event bus error")
}

// Subscribe registers handler for subject. handler receives the raw
// payload; callers unmarshal into their typed event.
func (c *Client) Subscribe(subject string, handler func([]byte)) error {
	c.subsMutex.Lock()
	defer c.subsMutex.Unlock()

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		start := time.Now()
		handler(msg.Data)
		c.metrics.IncrementEventBusMessages()
		c.metrics.RecordEventBusLatency(time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	c.subs[subject] = sub
	c.logger.Debug().Str("subject", subject).Msg("event bus subscribed")
	return nil
}

func (c *Client) Unsubscribe(subject string) error {
	c.subsMutex.Lock()
	defer c.subsMutex.Unlock()

	sub, ok := c.subs[subject]
	if !ok {
		return fmt.Errorf("not subscribed to %s", subject)
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", subject, err)
	}
	delete(c.subs, subject)
	return nil
}

// Publish sends a raw payload.
func (c *Client) Publish(subject string, data []byte) error {
	start := time.Now()
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	c.metrics.RecordEventBusLatency(time.Since(start))
	return nil
}

// PublishEvent JSON-encodes event and publishes it to subject.
func (c *Client) PublishEvent(subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", subject, err)
	}
	return c.Publish(subject, data)
}

func (c *Client) IsConnected() bool { return c.conn != nil && c.conn.IsConnected() }

func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if c.IsConnected() {
				return nil
			}
		}
	}
}

func (c *Client) Close() error {
	c.subsMutex.Lock()
	defer c.subsMutex.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn().Err(err).Str("subject", subject).Msg("unsubscribe failed during shutdown")
		}
	}
	if c.conn != nil {
		c.conn.Close()
		c.metrics.SetEventBusConnected(false)
	}
	return nil
}
