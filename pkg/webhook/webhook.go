// Package webhook provides HTTP webhook notification support for lock events.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/timelock-wallet/tlw/pkg/config"
	"github.com/timelock-wallet/tlw/pkg/logging"
	"github.com/timelock-wallet/tlw/pkg/model"
)

// EventType represents the type of lock event that can trigger webhooks.
type EventType string

const (
	EventLockCreated    EventType = EventType(model.TopicLockCreated)
	EventLockWithdrawn  EventType = EventType(model.TopicLockWithdrawn)
	EventCreateFailed   EventType = EventType(model.TopicCreateFailed)
	EventWithdrawFailed EventType = EventType(model.TopicWithdrawFailed)
	EventRefreshFailed  EventType = EventType(model.TopicRefreshFailed)
	EventLockAnomaly    EventType = EventType(model.TopicLockAnomaly)
	EventInvalidInput   EventType = EventType(model.TopicInvalidInput)
)

// Event represents a lock event payload sent to webhooks.
type Event struct {
	Event       EventType      `json:"event"`
	Timestamp   string         `json:"timestamp"`
	Kind        string         `json:"kind,omitempty"`
	Owner       string         `json:"owner,omitempty"`
	LockID      string         `json:"lock_id,omitempty"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Code        string         `json:"code,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// EventFromNotification maps a user notification onto a webhook event.
func EventFromNotification(n model.Notification) Event {
	ev := Event{
		Event:       EventType(n.Topic),
		Kind:        string(n.Kind),
		Owner:       n.Owner,
		LockID:      n.LockID,
		Title:       n.Title,
		Description: n.Description,
		Code:        n.Code,
	}
	if !n.At.IsZero() {
		ev.Timestamp = n.At.UTC().Format(time.RFC3339)
	}
	return ev
}

// HookConfig represents a single webhook configuration.
type HookConfig struct {
	URL     string        `json:"url"`
	Secret  string        `json:"secret,omitempty"`
	Events  []EventType   `json:"events"`
	Timeout time.Duration `json:"timeout"`
	Enabled bool          `json:"enabled"`
}

// Config represents the webhook configuration.
type Config struct {
	Hooks          []HookConfig  `json:"hooks"`
	Enabled        bool          `json:"enabled"`
	MaxRetries     int           `json:"max_retries"`
	RetryDelay     time.Duration `json:"retry_delay"`
	AsyncQueueSize int           `json:"async_queue_size"`
}

// DefaultConfig returns the default webhook configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		MaxRetries:     3,
		RetryDelay:     5 * time.Second,
		AsyncQueueSize: 100,
	}
}

// FromConfig converts the YAML webhook section. Durations are assumed to have
// passed config validation.
func FromConfig(wc config.WebhookConfig) *Config {
	cfg := &Config{
		Enabled:        wc.Enabled,
		MaxRetries:     wc.MaxRetries,
		AsyncQueueSize: wc.AsyncQueueSize,
	}
	cfg.RetryDelay, _ = time.ParseDuration(wc.RetryDelay)
	if cfg.AsyncQueueSize <= 0 {
		cfg.AsyncQueueSize = DefaultConfig().AsyncQueueSize
	}
	for _, h := range wc.Hooks {
		hook := HookConfig{URL: h.URL, Secret: h.Secret, Enabled: h.Enabled}
		hook.Timeout, _ = time.ParseDuration(h.Timeout)
		for _, e := range h.Events {
			hook.Events = append(hook.Events, EventType(e))
		}
		cfg.Hooks = append(cfg.Hooks, hook)
	}
	return cfg
}

// Client handles sending webhook notifications.
type Client struct {
	config *Config
	http   *http.Client
	log    *logging.Logger
	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

type job struct {
	event Event
	hook  HookConfig
}

// NewClient creates a new webhook client. A nil logger means the global one.
func NewClient(cfg *Config, log *logging.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logging.Global()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		log:    log.WithFields(map[string]any{"component": "webhook"}),
		queue:  make(chan *job, cfg.AsyncQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Enabled {
		c.start()
	}

	return c
}

func (c *Client) start() {
	c.once.Do(func() {
		c.wg.Add(1)
		go c.worker()
	})
}

// worker processes webhook notifications in the background.
func (c *Client) worker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			// Drain remaining jobs
			for len(c.queue) > 0 {
				job := <-c.queue
				c.send(job)
			}
			return
		case job := <-c.queue:
			c.send(job)
		}
	}
}

// Deliver forwards a notification asynchronously. It satisfies the
// notification surface's sink interface.
func (c *Client) Deliver(n model.Notification) {
	if n.Topic == "" {
		return
	}
	if err := c.Send(EventFromNotification(n), true); err != nil {
		c.log.ErrorErr("webhook delivery failed", err, map[string]any{"event": string(n.Topic)})
	}
}

// Send sends an event to all matching webhooks.
// If async is true, the event is queued for background sending.
// If async is false, the event is sent synchronously.
func (c *Client) Send(event Event, async bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.config.Enabled || c.closed {
		return nil
	}

	var hooks []HookConfig
	for _, hook := range c.config.Hooks {
		if !hook.Enabled {
			continue
		}
		if matchesEvent(hook, event.Event) {
			hooks = append(hooks, hook)
		}
	}

	if len(hooks) == 0 {
		return nil
	}

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if async {
		for _, hook := range hooks {
			select {
			case c.queue <- &job{event: event, hook: hook}:
			default:
				c.log.Warn("webhook queue full, dropping event", map[string]any{"event": string(event.Event)})
			}
		}
		return nil
	}

	var lastErr error
	for _, hook := range hooks {
		if err := c.sendSync(&job{event: event, hook: hook}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (c *Client) send(job *job) {
	if err := c.sendSync(job); err != nil {
		c.log.ErrorErr("webhook error", err, map[string]any{"event": string(job.event.Event), "url": job.hook.URL})
	}
}

// sendSync sends a webhook synchronously with retries.
func (c *Client) sendSync(job *job) error {
	payload, err := json.Marshal(job.event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return c.ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		if lastErr = c.post(job, payload); lastErr == nil {
			return nil
		}
	}

	return lastErr
}

func (c *Client) post(job *job, payload []byte) error {
	ctx := context.Background()
	if job.hook.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.hook.Timeout)
		defer cancel()
	}

	req, err := createRequest(ctx, job.hook, job.event.Event, payload)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
}

func createRequest(ctx context.Context, hook HookConfig, event EventType, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "TLW-Webhook/1.0")
	req.Header.Set("X-TLW-Event", string(event))

	if hook.Secret != "" {
		req.Header.Set("X-TLW-Signature", Sign(payload, hook.Secret))
	}

	return req, nil
}

// Sign creates an HMAC-SHA256 signature for the payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func matchesEvent(hook HookConfig, event EventType) bool {
	for _, e := range hook.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// Close drains queued events and shuts down the webhook client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.config.Enabled || c.closed {
		return nil
	}
	c.closed = true

	c.cancel()
	c.wg.Wait()
	return nil
}
