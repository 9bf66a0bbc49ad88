// Package effects runs best-effort side effects detached from the primary
// mutation that produced them. Leaderboard updates, activity-set writes and
// proof persistence go through here: their failures are logged and counted
// but never block or roll back the mutation.
package effects

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/gm_engine/internal/app/metrics"
	"github.com/R3E-Network/gm_engine/internal/app/system"
	"github.com/R3E-Network/gm_engine/pkg/logger"
)

// Effect is one detached unit of work.
type Effect struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner accepts effects for eventual execution.
type Runner interface {
	Enqueue(e Effect)
}

const (
	defaultQueueSize = 256
	runTimeout       = 10 * time.Second
)

var _ system.Service = (*Worker)(nil)

// Worker consumes enqueued effects on a single background goroutine.
// Enqueue never blocks: when the queue is full or the worker is stopped
// the effect is dropped, logged and counted.
type Worker struct {
	log   *logger.Logger
	queue chan Effect

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewWorker creates a worker with the given queue capacity (0 for the
// default).
func NewWorker(queueSize int, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.NewDefault("effects")
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Worker{
		log:   log,
		queue: make(chan Effect, queueSize),
	}
}

func (w *Worker) Name() string { return "effects" }

// Start launches the consumer goroutine.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	go w.consume(runCtx)
	return nil
}

// Stop drains nothing: pending effects are dropped, consistent with their
// fire-and-forget contract.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	return nil
}

// Enqueue submits an effect without blocking.
func (w *Worker) Enqueue(e Effect) {
	if e.Run == nil {
		return
	}
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		metrics.RecordEffectDropped()
		w.log.WithField("effect", e.Name).Warn("effect dropped: worker not running")
		return
	}

	select {
	case w.queue <- e:
	default:
		metrics.RecordEffectDropped()
		w.log.WithField("effect", e.Name).Warn("effect dropped: queue full")
	}
}

func (w *Worker) consume(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-w.queue:
			w.run(ctx, e)
		}
	}
}

func (w *Worker) run(ctx context.Context, e Effect) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	err := e.Run(runCtx)
	metrics.RecordEffect(e.Name, err)
	if err != nil {
		w.log.WithField("effect", e.Name).WithError(err).Warn("side effect failed")
	}
}

// Inline executes effects synchronously on the caller's goroutine. It keeps
// the same observability contract as the worker and is used by tests and
// single-process deployments.
type Inline struct {
	Log *logger.Logger
}

var _ Runner = Inline{}

func (r Inline) Enqueue(e Effect) {
	if e.Run == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	err := e.Run(ctx)
	metrics.RecordEffect(e.Name, err)
	if err != nil && r.Log != nil {
		r.Log.WithField("effect", e.Name).WithError(err).Warn("side effect failed")
	}
}
