// Package scheduler queues submitted runs for asynchronous execution and
// hands their streaming output to API consumers. The queue is unbounded and
// the dispatch loop never exits on executor failures; a panicking run is
// logged and the loop moves on.
package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/haasonsaas/assistantd/internal/observability"
	"github.com/haasonsaas/assistantd/pkg/models"
)

// ExecuteFunc performs one run and reports its output through the stream.
// The implementation owns terminal status transitions and must always call
// Finish on the stream.
type ExecuteFunc func(ctx context.Context, run *models.Run, stream *OutputStream)

// Options configures a Scheduler.
type Options struct {
	// StreamTTL is how long an unconsumed output stream survives before
	// the sweep drops it (default 10 minutes).
	StreamTTL time.Duration

	// SweepInterval throttles expiry sweeps (default 1 minute).
	SweepInterval time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

type Scheduler struct {
	execute ExecuteFunc
	logger  *slog.Logger
	metrics *observability.Metrics

	streamTTL     time.Duration
	sweepInterval time.Duration

	mu       sync.Mutex
	notEmpty *sync.Cond
	queue    []*models.Run
	streams  map[string]*OutputStream
	closed   bool

	lastSweep time.Time
	wg        sync.WaitGroup
	startOnce sync.Once
}

func New(execute ExecuteFunc, opts Options) *Scheduler {
	if opts.StreamTTL == 0 {
		opts.StreamTTL = 10 * time.Minute
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Scheduler{
		execute:       execute,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		streamTTL:     opts.StreamTTL,
		sweepInterval: opts.SweepInterval,
		streams:       make(map[string]*OutputStream),
		lastSweep:     time.Now(),
	}
	s.notEmpty = sync.NewCond(&s.mu)
	return s
}

// Start launches the dispatch loop. Further calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.dispatch(ctx)
		go func() {
			<-ctx.Done()
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			s.notEmpty.Broadcast()
		}()
	})
}

// Submit enqueues a run for execution. Submission never blocks and never
// rejects. The run's output stream is created when the dispatch loop picks
// the run up; until then Stream reports no registration.
func (s *Scheduler) Submit(run *models.Run) {
	s.mu.Lock()
	s.queue = append(s.queue, run)
	s.mu.Unlock()
	s.notEmpty.Signal()

	if s.metrics != nil {
		s.metrics.RunsSubmitted.Inc()
	}
	s.logger.Debug("run queued", "run_id", run.ID, "thread_id", run.ThreadID)
}

// Stream returns the output stream for a dispatched run, if one is
// registered. Queued runs have no stream yet.
func (s *Scheduler) Stream(runID string) (*OutputStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream, ok := s.streams[runID]
	return stream, ok
}

// Release drops a stream from the registry once its consumer has drained
// it. Events already queued remain readable by the holder.
func (s *Scheduler) Release(runID string) {
	s.mu.Lock()
	_, ok := s.streams[runID]
	delete(s.streams, runID)
	s.mu.Unlock()
	if ok && s.metrics != nil {
		s.metrics.StreamsActive.Dec()
	}
}

// Wait blocks until all in-flight executions have finished. Meant for
// shutdown and tests; new submissions queued after the context driving
// Start is cancelled are not picked up.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) dispatch(ctx context.Context) {
	for {
		run, ok := s.next()
		if !ok {
			return
		}

		stream := newOutputStream()
		s.mu.Lock()
		s.streams[run.ID] = stream
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.StreamsActive.Inc()
		}

		s.sweepExpired()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runOne(ctx, run, stream)
		}()
	}
}

func (s *Scheduler) next() (*models.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.notEmpty.Wait()
	}
	if s.closed {
		return nil, false
	}
	run := s.queue[0]
	s.queue = s.queue[1:]
	return run, true
}

func (s *Scheduler) runOne(ctx context.Context, run *models.Run, stream *OutputStream) {
	if s.metrics != nil {
		s.metrics.RunsInFlight.Inc()
		defer s.metrics.RunsInFlight.Dec()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("run execution panicked",
				"run_id", run.ID, "panic", r, "stack", string(debug.Stack()))
			stream.Finish(nil)
		}
	}()

	start := time.Now()
	s.execute(ctx, run, stream)
	s.logger.Debug("run execution finished", "run_id", run.ID, "duration", time.Since(start))
}

// sweepExpired drops streams older than the TTL. Runs at most once per
// sweep interval, piggybacked on dispatch.
func (s *Scheduler) sweepExpired() {
	s.mu.Lock()
	if time.Since(s.lastSweep) < s.sweepInterval {
		s.mu.Unlock()
		return
	}
	s.lastSweep = time.Now()

	var expired []*OutputStream
	for id, stream := range s.streams {
		if time.Since(stream.CreatedAt()) > s.streamTTL {
			expired = append(expired, stream)
			delete(s.streams, id)
			s.logger.Info("dropping expired run stream", "run_id", id)
		}
	}
	s.mu.Unlock()

	for _, stream := range expired {
		stream.abandon()
		if s.metrics != nil {
			s.metrics.StreamsActive.Dec()
		}
	}
}
