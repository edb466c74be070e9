package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectClassified carries a summary of every completed classification.
	SubjectClassified = "swarm.verdict.classified"
	// SubjectEscalation carries one event per escalated message.
	SubjectEscalation = "swarm.verdict.escalation"
	// SubjectClassifyRequest accepts request/reply classification jobs.
	SubjectClassifyRequest = "swarm.verdict.classify.request"
)

// DefaultMaxConcurrent is the number of requests one Serve call handles at
// once when no limit is given.
const DefaultMaxConcurrent = 8

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger

	mu          sync.Mutex
	subs        []*nats.Subscription
	served      []*nats.Subscription
	dispatchers []*dispatcher
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("verdict"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// RequestHandler turns one request payload into its reply.
type RequestHandler func(ctx context.Context, data []byte) []byte

// Serve answers request/reply messages on subject. Members of the same queue
// group share the load. Up to limit requests run concurrently; while all
// slots are busy the subscription stops taking new messages. Messages without
// a reply subject are dropped.
func (c *Client) Serve(subject, queue string, limit int, handler RequestHandler) error {
	d := newDispatcher(limit, handler, c.logger)
	sub, err := c.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		if msg.Reply == "" {
			c.logger.Warn("dropping request without reply subject", "subject", msg.Subject)
			return
		}
		d.dispatch(msg.Subject, msg.Data, msg.Respond)
	})
	if err != nil {
		return fmt.Errorf("queue subscribe %s: %w", subject, err)
	}
	c.mu.Lock()
	c.served = append(c.served, sub)
	c.dispatchers = append(c.dispatchers, d)
	c.mu.Unlock()
	c.logger.Info("serving", "subject", subject, "queue", queue, "max_concurrent", d.limit())
	return nil
}

// StopServing unsubscribes every Serve subscription and waits for requests
// already in flight to be answered.
func (c *Client) StopServing() {
	c.mu.Lock()
	served, dispatchers := c.served, c.dispatchers
	c.served, c.dispatchers = nil, nil
	c.mu.Unlock()

	for _, sub := range served {
		_ = sub.Unsubscribe()
	}
	for _, d := range dispatchers {
		d.wait()
	}
}

// dispatcher runs request handlers on their own goroutines, bounded by a
// semaphore.
type dispatcher struct {
	sem      chan struct{}
	handler  RequestHandler
	logger   *slog.Logger
	inflight sync.WaitGroup
}

func newDispatcher(limit int, handler RequestHandler, logger *slog.Logger) *dispatcher {
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}
	return &dispatcher{sem: make(chan struct{}, limit), handler: handler, logger: logger}
}

func (d *dispatcher) limit() int { return cap(d.sem) }

// dispatch blocks only while every slot is taken.
func (d *dispatcher) dispatch(subject string, data []byte, respond func([]byte) error) {
	d.sem <- struct{}{}
	d.inflight.Add(1)
	go func() {
		defer func() {
			<-d.sem
			d.inflight.Done()
		}()
		reply := d.handler(context.Background(), data)
		if err := respond(reply); err != nil {
			d.logger.Error("failed to respond", "subject", subject, "error", err)
		}
	}()
}

func (d *dispatcher) wait() {
	d.inflight.Wait()
}

// Request sends data on subject and waits for a single reply.
func (c *Client) Request(ctx context.Context, subject string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	msg, err := c.conn.RequestWithContext(ctx, subject, payload)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", subject, err)
	}
	return msg.Data, nil
}

func (c *Client) Connected() bool {
	return c.conn.IsConnected()
}

func (c *Client) Close() {
	c.StopServing()
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Drain()
}
