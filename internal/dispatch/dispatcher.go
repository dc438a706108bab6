package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/delivery"
	"github.com/vietddude/relay/internal/metrics"
)

// Config tunes the dispatch engine.
type Config struct {
	// MaxBatchSize caps the number of requests per outgoing call.
	MaxBatchSize int
	// MaxRetries caps delivery attempts per request; a request reaching it
	// is dropped.
	MaxRetries int
	// InitialRetryDelay seeds the 1.5x exponential backoff.
	InitialRetryDelay time.Duration
	// RetryPollInterval is the retry worker's sleep between sweeps while
	// entries remain scheduled.
	RetryPollInterval time.Duration
	// DispatchStopTimeout bounds the wait for the dispatch worker on Stop.
	DispatchStopTimeout time.Duration
	// RetryStopTimeout bounds the wait for the retry worker on Stop.
	RetryStopTimeout time.Duration
}

// DefaultConfig provides the production tuning.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:        1000,
		MaxRetries:          16,
		InitialRetryDelay:   60 * time.Second,
		RetryPollInterval:   10 * time.Second,
		DispatchStopTimeout: 10 * time.Second,
		RetryStopTimeout:    15 * time.Second,
	}
}

// ErrorListener receives a human-readable message whenever the remote
// rejects a specific request. Invoked synchronously from the worker that
// discovered the rejection.
type ErrorListener func(message string)

// DeadLetterSink journals requests the engine gives up on. Best-effort
// diagnostics only; failures are logged and ignored.
type DeadLetterSink interface {
	Record(ctx context.Context, r *domain.Request, reason, detail string) error
}

// Dispatcher owns the call queue, the retry store and the lifecycle of the
// two background workers. Producers call Enqueue from any goroutine and
// never block beyond a brief append; the host calls Stop once at shutdown.
type Dispatcher struct {
	cfg       Config
	transport delivery.Transport
	log       *slog.Logger

	queue *callQueue
	store *retryStore

	// workerMu guards worker creation so queue append latency is
	// unaffected by spawn decisions.
	workerMu       sync.Mutex
	dispatchActive bool
	retryActive    bool
	dispatchDone   chan struct{}
	retryDone      chan struct{}

	stopping atomic.Bool
	flushAll atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}

	listenerMu sync.RWMutex
	listener   ErrorListener

	dead DeadLetterSink
}

// New creates a dispatcher delivering through the given transport.
func New(cfg Config, transport delivery.Transport) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		transport: transport,
		log:       slog.Default(),
		queue:     newCallQueue(),
		store:     newRetryStore(),
		stopCh:    make(chan struct{}),
	}
}

// SetErrorListener registers the rejection callback. Last registration
// wins; a nil listener clears it.
func (d *Dispatcher) SetErrorListener(fn ErrorListener) {
	d.listenerMu.Lock()
	d.listener = fn
	d.listenerMu.Unlock()
}

// SetDeadLetter registers an optional dead-letter journal.
func (d *Dispatcher) SetDeadLetter(sink DeadLetterSink) {
	d.dead = sink
}

// Enqueue appends a request to the call queue and spawns the dispatch
// worker if none is active. Safe from any number of producer goroutines.
func (d *Dispatcher) Enqueue(r *domain.Request) {
	d.queue.push(r)
	metrics.EventsEnqueued.WithLabelValues(r.Endpoint.String()).Inc()
	metrics.QueueDepth.Set(float64(d.queue.len()))
	d.maybeSpawnDispatch()
}

// QueueDepth reports the number of requests waiting in the call queue.
func (d *Dispatcher) QueueDepth() int {
	return d.queue.len()
}

// RetryDepth reports the number of requests awaiting retry.
func (d *Dispatcher) RetryDepth() int {
	return d.store.size()
}

// Stop drains the engine. New Enqueue calls are still accepted while
// draining. With immediate set, the retry worker abandons scheduled delays
// and gives every stored request one final attempt. Blocks the caller only
// up to the configured bounded waits, then returns regardless of
// outstanding work.
func (d *Dispatcher) Stop(immediate bool) {
	d.stopping.Store(true)
	if immediate {
		d.flushAll.Store(true)
	}
	d.stopOnce.Do(func() { close(d.stopCh) })

	d.workerMu.Lock()
	dispatchDone := d.dispatchDone
	retryDone := d.retryDone
	d.workerMu.Unlock()

	if !waitClosed(dispatchDone, d.cfg.DispatchStopTimeout) {
		d.log.Warn("dispatch worker did not drain in time", "queue_depth", d.queue.len())
	}
	if !waitClosed(retryDone, d.cfg.RetryStopTimeout) {
		d.log.Warn("retry worker did not finish in time", "retry_depth", d.store.size())
	}
}

func (d *Dispatcher) maybeSpawnDispatch() {
	d.workerMu.Lock()
	defer d.workerMu.Unlock()
	if d.dispatchActive || d.queue.len() == 0 {
		return
	}
	d.dispatchActive = true
	d.dispatchDone = make(chan struct{})
	go d.dispatchLoop(d.dispatchDone)
}

func (d *Dispatcher) maybeSpawnRetry() {
	d.workerMu.Lock()
	defer d.workerMu.Unlock()
	// While draining, whatever is already pending is handled by the
	// worker that is still live; no new delay-scheduling begins.
	if d.retryActive || d.stopping.Load() {
		return
	}
	d.retryActive = true
	d.retryDone = make(chan struct{})
	go d.retryLoop(d.retryDone)
}

// dispatchLoop drains the call queue one batch at a time, then exits. A
// fresh worker is spawned by the next Enqueue; at most one is ever live.
func (d *Dispatcher) dispatchLoop(done chan struct{}) {
	defer close(done)
	for {
		batch := d.queue.nextBatch(d.cfg.MaxBatchSize)
		if batch == nil {
			d.workerMu.Lock()
			if d.queue.len() == 0 {
				d.dispatchActive = false
				d.workerMu.Unlock()
				return
			}
			d.workerMu.Unlock()
			continue
		}
		metrics.QueueDepth.Set(float64(d.queue.len()))
		metrics.BatchSize.WithLabelValues(batch[0].Endpoint.String()).Observe(float64(len(batch)))
		d.send(batch)
	}
}

// retryLoop sweeps due entries out of the retry store and resubmits them,
// sequentially, as singleton calls. It exits once the store is empty or a
// stop signal is observed; otherwise it sleeps a fixed poll interval
// between sweeps.
func (d *Dispatcher) retryLoop(done chan struct{}) {
	defer close(done)
	for {
		flush := d.flushAll.Load()
		due := d.store.takeDue(time.Now(), flush)
		metrics.RetryDepth.Set(float64(d.store.size()))

		for _, r := range due {
			r.Retries++
			d.send([]*domain.Request{r})
		}

		d.workerMu.Lock()
		if d.store.size() == 0 {
			d.retryActive = false
			d.workerMu.Unlock()
			return
		}
		d.workerMu.Unlock()

		if d.stopping.Load() {
			if d.flushAll.Load() && !flush {
				// The immediate-stop signal landed mid-pass; run the
				// last-chance flush before exiting.
				continue
			}
			d.workerMu.Lock()
			d.retryActive = false
			d.workerMu.Unlock()
			return
		}

		select {
		case <-d.stopCh:
		case <-time.After(d.cfg.RetryPollInterval):
		}
	}
}

// send delivers one batch and routes the outcome. A rejected batch larger
// than one is never dropped wholesale: it is decomposed into singleton
// calls so the accept/reject decision lands on individual requests. The
// decomposed calls cannot split again, so replay depth is bounded.
func (d *Dispatcher) send(batch []*domain.Request) {
	endpoint := batch[0].Endpoint
	payloads := make([]domain.Payload, len(batch))
	for i, r := range batch {
		payloads[i] = r.Payload
	}

	err := d.transport.Send(context.Background(), endpoint, payloads)
	if err == nil {
		metrics.EventsDelivered.WithLabelValues(endpoint.String()).Add(float64(len(batch)))
		return
	}

	var netErr *delivery.NetworkError
	if errors.As(err, &netErr) {
		d.log.Debug("delivery failed, scheduling retries",
			"endpoint", endpoint.String(), "batch", len(batch), "error", err)
		for _, r := range batch {
			d.scheduleRetry(r)
		}
		return
	}

	if len(batch) > 1 {
		// The remote rejects an entire batch for a single bad member;
		// replay one by one to isolate it.
		metrics.BatchSplits.WithLabelValues(endpoint.String()).Inc()
		d.log.Debug("batch rejected, replaying as singletons",
			"endpoint", endpoint.String(), "batch", len(batch), "error", err)
		for _, r := range batch {
			d.send([]*domain.Request{r})
		}
		return
	}

	// Singleton rejection: surface it and drop the request. Retrying a
	// semantically-rejected payload cannot succeed.
	r := batch[0]
	message := err.Error()
	var apiErr *delivery.APIError
	if errors.As(err, &apiErr) {
		message = apiErr.Message
	}
	d.notifyError(message)
	d.deadLetter(r, metrics.ReasonRejected, message)
	metrics.EventsDropped.WithLabelValues(endpoint.String(), metrics.ReasonRejected).Inc()
	d.log.Warn("request rejected upstream",
		"endpoint", endpoint.String(), "request_id", r.ID, "error", message)
}

// scheduleRetry places a request into the retry store with a freshly
// computed backoff, or drops it once the attempt cap is reached.
func (d *Dispatcher) scheduleRetry(r *domain.Request) {
	if r.Retries >= d.cfg.MaxRetries {
		d.deadLetter(r, metrics.ReasonMaxRetries, "retry attempts exhausted")
		metrics.EventsDropped.WithLabelValues(r.Endpoint.String(), metrics.ReasonMaxRetries).Inc()
		d.log.Debug("dropping request after max retries",
			"endpoint", r.Endpoint.String(), "request_id", r.ID, "retries", r.Retries)
		return
	}

	r.NextRetryAt = time.Now().Add(d.backoffDelay(r.Retries))
	d.store.add(r)
	metrics.RetriesScheduled.WithLabelValues(r.Endpoint.String()).Inc()
	metrics.RetryDepth.Set(float64(d.store.size()))
	d.maybeSpawnRetry()
}

// backoffDelay computes InitialRetryDelay * 1.5^(retries+1).
func (d *Dispatcher) backoffDelay(retries int) time.Duration {
	return time.Duration(float64(d.cfg.InitialRetryDelay) * math.Pow(1.5, float64(retries+1)))
}

func (d *Dispatcher) notifyError(message string) {
	d.listenerMu.RLock()
	fn := d.listener
	d.listenerMu.RUnlock()
	if fn != nil {
		fn(message)
	}
}

func (d *Dispatcher) deadLetter(r *domain.Request, reason, detail string) {
	if d.dead == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.dead.Record(ctx, r, reason, detail); err != nil {
		d.log.Debug("dead letter journal failed", "request_id", r.ID, "error", err)
	}
}

// waitClosed waits for ch to close, up to timeout. A nil channel counts as
// already closed (no worker was ever spawned).
func waitClosed(ch chan struct{}, timeout time.Duration) bool {
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}
