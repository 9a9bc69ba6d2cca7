package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"dbvoir/internal/logging"
	"dbvoir/internal/metrics"
	"dbvoir/internal/processed"
	"dbvoir/internal/services"
)

var (
	// ErrQueueFull is returned by Submit when the bounded queue has no room.
	ErrQueueFull = errors.New("dispatch queue full")
	// ErrAlreadyQueued is returned by Submit for a path that is already
	// waiting or being imported.
	ErrAlreadyQueued = errors.New("already queued for import")
	// ErrStopped is returned by Submit after the worker has shut down.
	ErrStopped = errors.New("dispatch worker stopped")
)

// Handler runs one dispatch. Dispatcher implements it.
type Handler interface {
	Dispatch(ctx context.Context, path string) (Outcome, error)
}

// Completion reports a finished dispatch to an optional observer.
type Completion struct {
	Path     string
	Trigger  string
	Outcome  Outcome
	Err      error
	Queued   time.Duration
	Finished time.Time
}

type job struct {
	key      string
	path     string
	trigger  string
	enqueued time.Time
}

// Worker feeds a Handler from a bounded queue on a single goroutine, so
// imports never overlap.
type Worker struct {
	handler Handler
	queue   chan job
	logger  *slog.Logger

	mu       sync.Mutex
	queued   map[string]struct{}
	inflight job
	stopped  bool
	last     *Completion
	observer func(Completion)
}

// NewWorker constructs a worker with room for size queued paths.
func NewWorker(handler Handler, size int, logger *slog.Logger) *Worker {
	if size <= 0 {
		size = 1
	}
	return &Worker{
		handler: handler,
		queue:   make(chan job, size),
		logger:  logging.NewComponentLogger(logger, "worker"),
		queued:  make(map[string]struct{}),
	}
}

// OnComplete registers fn to run after every dispatch. It must not block.
func (w *Worker) OnComplete(fn func(Completion)) {
	w.mu.Lock()
	w.observer = fn
	w.mu.Unlock()
}

// Submit enqueues a path discovered by the watcher without blocking.
func (w *Worker) Submit(path string) error {
	return w.SubmitFrom("watcher", path)
}

// SubmitFrom enqueues path, recording what triggered it. Duplicates are
// detected on processed.Key; the handler receives path as spelled on disk.
func (w *Worker) SubmitFrom(trigger, path string) error {
	key := processed.Key(path)
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrStopped
	}
	if _, ok := w.queued[key]; ok || w.inflight.key == key {
		return ErrAlreadyQueued
	}
	select {
	case w.queue <- job{key: key, path: filepath.Clean(path), trigger: trigger, enqueued: time.Now()}:
	default:
		metrics.DispatchRejectedTotal.Inc()
		return ErrQueueFull
	}
	w.queued[key] = struct{}{}
	metrics.DispatchQueueDepth.Set(float64(w.depthLocked()))
	return nil
}

// Run processes queued paths until ctx is cancelled. Work still queued at
// shutdown is dropped; the in-flight import is cancelled through ctx.
func (w *Worker) Run(ctx context.Context) {
	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case next := <-w.queue:
			if ctx.Err() != nil {
				return
			}
			w.process(ctx, next)
		}
	}
}

func (w *Worker) process(ctx context.Context, next job) {
	w.mu.Lock()
	delete(w.queued, next.key)
	w.inflight = next
	metrics.DispatchQueueDepth.Set(float64(w.depthLocked()))
	w.mu.Unlock()

	queued := time.Since(next.enqueued)
	outcome, err := w.handler.Dispatch(services.WithTrigger(ctx, next.trigger), next.path)
	if err != nil && ctx.Err() == nil {
		w.logger.Debug("dispatch returned error",
			logging.String(logging.FieldPath, next.path),
			logging.String("outcome", string(outcome)),
			logging.Error(err),
		)
	}

	done := Completion{
		Path:     next.path,
		Trigger:  next.trigger,
		Outcome:  outcome,
		Err:      err,
		Queued:   queued,
		Finished: time.Now(),
	}
	w.mu.Lock()
	w.inflight = job{}
	w.last = &done
	observer := w.observer
	metrics.DispatchQueueDepth.Set(float64(w.depthLocked()))
	w.mu.Unlock()

	if observer != nil {
		observer(done)
	}
}

func (w *Worker) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for {
		select {
		case dropped := <-w.queue:
			delete(w.queued, dropped.key)
		default:
			metrics.DispatchQueueDepth.Set(0)
			return
		}
	}
}

// Depth returns queued plus in-flight paths.
func (w *Worker) Depth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.depthLocked()
}

func (w *Worker) depthLocked() int {
	depth := len(w.queued)
	if w.inflight.key != "" {
		depth++
	}
	return depth
}

// InFlight returns the path currently being imported, if any.
func (w *Worker) InFlight() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inflight.path
}

// Last returns the most recent completed dispatch.
func (w *Worker) Last() (Completion, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return Completion{}, false
	}
	return *w.last, true
}
