// Package parallel fans the blocks of one output file out to a bounded pool
// of compression workers and emits the results in submission order.
package parallel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
	"github.com/iamNilotpal/blockcomp/pkg/logger"
	"github.com/iamNilotpal/blockcomp/pkg/system"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrSchedulerClosed = errors.New("scheduler is finished")

// BlockCompressor compresses block seq of a file. It must be safe for
// concurrent use and its result must depend only on its arguments.
type BlockCompressor interface {
	CompressAt(seq uint64, raw []byte) *domain.CompressedBlock
}

// EmitFunc receives stored blocks in submission order, one call at a time.
type EmitFunc func(seq uint64, raw []byte, blk *domain.CompressedBlock) error

type Options struct {
	// Threads is the worker count. One compresses inline on the caller's
	// goroutine.
	Threads int

	// QueueDepth bounds blocks waiting for a worker.
	// Default: 2 * Threads
	QueueDepth int

	Compressor BlockCompressor
	Emit       EmitFunc

	// Target is the size the estimate is compared against by ReachedTarget.
	Target ports.FileSizeTarget

	Logger *zap.SugaredLogger
}

type job struct {
	seq uint64
	raw []byte
}

type result struct {
	job
	blk *domain.CompressedBlock
}

// Scheduler is driven by a single producer: Submit and Finish must not be
// called concurrently with each other. Size queries may come from anywhere.
type Scheduler struct {
	opts Options
	log  *zap.SugaredLogger

	nextSeq  atomic.Uint64
	jobs     chan job
	results  chan result
	workers  errgroup.Group
	done     chan struct{}
	finished atomic.Bool

	statsMu         sync.Mutex
	inFlightRaw     uint64
	completedRaw    uint64
	completedStored uint64

	errMu sync.Mutex
	err   error
}

// New starts the workers. They live until Finish.
func New(opts Options) (*Scheduler, error) {
	if opts.Compressor == nil || opts.Emit == nil {
		return nil, pkgerrors.NewConfigurationError("new scheduler", errors.New("compressor and emit are required"))
	}
	if opts.Threads < 1 {
		return nil, pkgerrors.NewValidationError("parallel_threads", opts.Threads, errors.New("must be at least 1"))
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 2 * opts.Threads
	}

	s := &Scheduler{opts: opts, log: logger.OrNop(opts.Logger), done: make(chan struct{})}
	if opts.Threads == 1 {
		close(s.done)
		return s, nil
	}

	s.jobs = make(chan job, opts.QueueDepth)
	s.results = make(chan result, opts.QueueDepth+opts.Threads)

	for i := 0; i < opts.Threads; i++ {
		s.workers.Go(func() error {
			for j := range s.jobs {
				s.results <- result{job: j, blk: opts.Compressor.CompressAt(j.seq, j.raw)}
			}
			return nil
		})
	}
	go s.collect()

	s.log.Debugw("parallel compression started", "threads", opts.Threads, "queue", opts.QueueDepth)
	return s, nil
}

// Submit queues raw as the next block. It blocks while the queue is full;
// if ctx ends first the block is not submitted. Once accepted a block always
// runs to completion. raw must not be modified afterwards.
func (s *Scheduler) Submit(ctx context.Context, raw []byte) error {
	if s.finished.Load() {
		return ErrSchedulerClosed
	}
	if err := s.Err(); err != nil {
		return err
	}

	j := job{seq: s.nextSeq.Load(), raw: raw}

	if s.opts.Threads == 1 {
		s.nextSeq.Add(1)
		s.complete(j, s.opts.Compressor.CompressAt(j.seq, j.raw))
		return s.Err()
	}

	s.statsMu.Lock()
	s.inFlightRaw += uint64(len(raw))
	s.statsMu.Unlock()

	select {
	case s.jobs <- j:
		s.nextSeq.Add(1)
		return nil
	case <-ctx.Done():
		s.statsMu.Lock()
		s.inFlightRaw -= uint64(len(raw))
		s.statsMu.Unlock()
		return ctx.Err()
	}
}

// collect reorders results and emits them.
func (s *Scheduler) collect() {
	defer close(s.done)

	pending := make(map[uint64]result)
	var next uint64
	for r := range s.results {
		pending[r.seq] = r
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			s.complete(ready.job, ready.blk)
			next++
		}
	}
}

// complete accounts for a finished block and emits it unless emission has
// already failed.
func (s *Scheduler) complete(j job, blk *domain.CompressedBlock) {
	s.statsMu.Lock()
	if s.opts.Threads > 1 {
		s.inFlightRaw -= uint64(len(j.raw))
	}
	s.completedRaw += uint64(len(j.raw))
	s.completedStored += uint64(blk.StoredLen())
	s.statsMu.Unlock()

	if s.Err() != nil {
		return
	}
	if err := s.opts.Emit(j.seq, j.raw, blk); err != nil {
		s.setErr(err)
		s.log.Warnw("block emission failed", "seq", j.seq, "error", err)
	}
}

// EstimatedSize projects the stored size of everything submitted so far:
// completed stored bytes plus in-flight raw bytes scaled by the ratio seen
// on completed blocks. The projection may undershoot; overshooting the
// target is accepted when parallelism is enabled.
func (s *Scheduler) EstimatedSize() uint64 {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	ratio := 1.0
	if s.completedRaw > 0 {
		ratio = float64(s.completedStored) / float64(s.completedRaw)
	}
	return s.completedStored + uint64(float64(s.inFlightRaw)*ratio)
}

// ReachedTarget reports whether the estimate has reached the target size.
func (s *Scheduler) ReachedTarget() bool {
	if s.opts.Target == nil {
		return false
	}
	target := s.opts.Target.TargetFileSize()
	return target > 0 && s.EstimatedSize() >= target
}

// Submitted is the number of blocks accepted so far.
func (s *Scheduler) Submitted() uint64 {
	return s.nextSeq.Load()
}

// Finish waits for every accepted block to be emitted and stops the workers.
// The drain runs even when ctx is already done, since accepted blocks cannot
// be cancelled mid-flight and the workers would otherwise never exit. It
// returns the first emission error.
func (s *Scheduler) Finish(ctx context.Context) error {
	if !s.finished.CompareAndSwap(false, true) {
		return ErrSchedulerClosed
	}

	if s.opts.Threads > 1 {
		if err := system.RunWithContext(context.WithoutCancel(ctx), func(context.Context) error {
			close(s.jobs)
			err := s.workers.Wait()
			close(s.results)
			<-s.done
			return err
		}); err != nil {
			return err
		}
		s.log.Debugw("parallel compression drained", "blocks", s.nextSeq.Load())
	}

	return s.Err()
}

// Err returns the first error reported by the emit callback, or nil. Once
// set, Submit refuses further blocks and Finish returns it after the drain.
func (s *Scheduler) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Scheduler) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
