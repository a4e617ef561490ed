package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/ports"
)

const defaultTimeout = 5 * time.Second

// DeliveryError describes a failed delivery.
type DeliveryError struct {
	URL   string
	Event domain.ResolutionEvent
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook %s for key %s: %v", e.URL, e.Event.Key, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Option configures a Notifier.
type Option func(*Notifier)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithTimeout bounds a single delivery (default 5s).
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithLogger sets the logger used for failed deliveries.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// WithErrorHandler is called for every failed delivery, after it is logged.
func WithErrorHandler(fn func(*DeliveryError)) Option {
	return func(n *Notifier) { n.onError = fn }
}

// Notifier POSTs resolution events as JSON. Each Dispatch runs as a detached
// task: it outlives the request that started it and its failures are logged,
// never returned or retried.
type Notifier struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
	onError func(*DeliveryError)

	errs    chan *DeliveryError
	drained chan struct{}

	mu       sync.Mutex
	inflight sync.WaitGroup
	closed   bool
}

// NewNotifier starts the goroutine that drains delivery errors.
func NewNotifier(opts ...Option) *Notifier {
	n := &Notifier{
		client:  &http.Client{},
		timeout: defaultTimeout,
		logger:  slog.Default(),
		errs:    make(chan *DeliveryError, 64),
		drained: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	go n.drain()
	return n
}

// Dispatch returns immediately. Cancelling ctx does not cancel the delivery.
func (n *Notifier) Dispatch(ctx context.Context, url string, event domain.ResolutionEvent) {
	if url == "" {
		return
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		n.logger.Warn("webhook dropped, notifier closed", "component", "webhook", "key", event.Key)
		return
	}
	n.inflight.Add(1)
	n.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer n.inflight.Done()

		if err := n.deliver(detached, url, event); err != nil {
			n.report(&DeliveryError{URL: url, Event: event, Err: err})
		}
	}()
}

func (n *Notifier) deliver(ctx context.Context, url string, event domain.ResolutionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// report hands the error to the drain goroutine, logging inline if it is backed up.
func (n *Notifier) report(derr *DeliveryError) {
	select {
	case n.errs <- derr:
	default:
		n.handle(derr)
	}
}

func (n *Notifier) drain() {
	defer close(n.drained)
	for derr := range n.errs {
		n.handle(derr)
	}
}

func (n *Notifier) handle(derr *DeliveryError) {
	n.logger.Warn("webhook delivery failed",
		"component", "webhook", "key", derr.Event.Key, "url", derr.URL, "error", derr.Err)
	if n.onError != nil {
		n.onError(derr)
	}
}

// Close stops accepting events and waits for in-flight deliveries, or for ctx.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.inflight.Wait()
		close(n.errs)
		<-n.drained
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ ports.Notifier = (*Notifier)(nil)
