package analytics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-realty-access/pkg/utilities"
)

// Event is one analytics hit handed to a Sink.
type Event struct {
	ID       string         `json:"event_id"`
	Name     string         `json:"name"`
	ClientID string         `json:"client_id,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	At       time.Time      `json:"at"`
}

// Sink delivers events somewhere.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// LogSink writes every event as a structured log line.
type LogSink struct {
	Logger *zap.SugaredLogger
}

func (s LogSink) Send(_ context.Context, e Event) error {
	s.Logger.Infow("analytics event",
		"event_id", e.ID,
		"name", e.Name,
		"client_id", e.ClientID,
		"params", e.Params,
	)
	return nil
}

// Discard drops events.
type Discard struct{}

func (Discard) Send(context.Context, Event) error { return nil }

type Config struct {
	Enabled   bool
	QueueSize int
}

// ConfigFromEnv reads ANALYTICS_ENABLED (default on) and ANALYTICS_QUEUE_SIZE.
func ConfigFromEnv() Config {
	cfg := Config{Enabled: os.Getenv("ANALYTICS_ENABLED") != "0", QueueSize: 256}
	if v, err := strconv.Atoi(os.Getenv("ANALYTICS_QUEUE_SIZE")); err == nil && v > 0 {
		cfg.QueueSize = v
	}
	return cfg
}

var errClosed = errors.New("analytics tracker closed")

// Tracker queues events for a single sink worker. Every Track* call returns
// immediately: before Init and after Close they do nothing, and a full queue
// drops the event.
type Tracker struct {
	mu      sync.RWMutex
	queue   chan Event
	done    chan struct{}
	size    int
	running bool
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewTracker(cfg Config, logger *zap.SugaredLogger) *Tracker {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	return &Tracker{size: size, logger: logger, now: time.Now}
}

// Init starts delivering to sink. Calling it again while running is a no-op.
func (t *Tracker) Init(sink Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.queue = make(chan Event, t.size)
	t.done = make(chan struct{})
	t.running = true
	go t.deliver(sink, t.queue, t.done)
}

// Close stops accepting events and waits for queued ones to be delivered or ctx to end.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	close(t.queue)
	done := t.done
	t.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) deliver(sink Sink, queue <-chan Event, done chan<- struct{}) {
	defer close(done)
	for e := range queue {
		if err := t.send(sink, e); err != nil {
			t.logger.Warnw("analytics send failed", "name", e.Name, "event_id", e.ID, "err", err)
		}
	}
}

func (t *Tracker) send(sink Sink, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sink.Send(ctx, e)
}

// TrackEvent enqueues a named event.
func (t *Tracker) TrackEvent(ctx context.Context, name string, params map[string]any) {
	if t == nil || name == "" {
		return
	}
	e := Event{
		ID:       utilities.NewKSUID(),
		Name:     name,
		ClientID: ClientIDFromContext(ctx),
		Params:   params,
		At:       t.now(),
	}
	if err := t.enqueue(e); err != nil && !errors.Is(err, errClosed) {
		t.logger.Debugw("analytics event dropped", "name", name, "err", err)
	}
}

func (t *Tracker) enqueue(e Event) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.running {
		return errClosed
	}
	select {
	case t.queue <- e:
		return nil
	default:
		return errors.New("queue full")
	}
}

// TrackPageView records a page view. Title may be empty.
func (t *Tracker) TrackPageView(ctx context.Context, path, title string) {
	params := map[string]any{"page_path": path}
	if title != "" {
		params["page_title"] = title
	}
	t.TrackEvent(ctx, "page_view", params)
}

func (t *Tracker) TrackPropertyView(ctx context.Context, propertyID, propertyType string, price float64) {
	t.TrackEvent(ctx, "property_view", map[string]any{
		"property_id":   propertyID,
		"property_type": propertyType,
		"value":         price,
	})
}

func (t *Tracker) TrackPropertySearch(ctx context.Context, query string, filters map[string]any) {
	params := map[string]any{"search_term": query}
	for k, v := range filters {
		if k == "search_term" {
			continue
		}
		params[k] = v
	}
	t.TrackEvent(ctx, "search", params)
}

func (t *Tracker) TrackAgentContact(ctx context.Context, agentID, method string) {
	t.TrackEvent(ctx, "agent_contact", map[string]any{"agent_id": agentID, "contact_method": method})
}

func (t *Tracker) TrackSignUp(ctx context.Context, userType string) {
	t.TrackEvent(ctx, "sign_up", map[string]any{"method": "email", "user_type": userType})
}

func (t *Tracker) TrackLogin(ctx context.Context, method string) {
	t.TrackEvent(ctx, "login", map[string]any{"method": method})
}
