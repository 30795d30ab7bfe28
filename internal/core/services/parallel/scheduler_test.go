package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/iamNilotpal/blockcomp/internal/adapters/compression"
	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	"github.com/iamNilotpal/blockcomp/internal/core/services/block"
	"github.com/iamNilotpal/blockcomp/internal/core/services/mixed"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	seq uint64
	blk *domain.CompressedBlock
}

type recorder struct {
	mu     sync.Mutex
	blocks []emitted
	fail   error
}

func (r *recorder) emit(seq uint64, _ []byte, blk *domain.CompressedBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.blocks = append(r.blocks, emitted{seq: seq, blk: blk})
	return nil
}

// halving stores every block at half its size, sleeping longer for early
// blocks so workers finish out of order.
type halving struct{}

func (halving) CompressAt(seq uint64, raw []byte) *domain.CompressedBlock {
	time.Sleep(time.Duration(8-seq%8) * time.Millisecond)
	return &domain.CompressedBlock{Type: domain.SnappyCompression, Payload: raw[:len(raw)/2], RawLen: len(raw)}
}

func payload(i int) []byte {
	b := make([]byte, 0, 4096)
	for j := 0; len(b) < 4096; j++ {
		b = fmt.Appendf(b, "block=%d,row=%d,name=item-%d;", i, j, (i*j)%97)
	}
	return b
}

func runFile(t *testing.T, threads int) []emitted {
	t.Helper()

	m, err := compression.NewBuiltinManager(nil)
	require.NoError(t, err)
	defer m.Close()

	picker, err := mixed.NewRoundRobin(
		domain.SnappyCompression, domain.ZSTDCompression, domain.LZ4Compression, domain.ZlibCompression,
	)
	require.NoError(t, err)

	opts := domain.DefaultCompressionOptions()
	opts.ParallelThreads = uint32(threads)
	c, err := block.NewCompressor(block.Options{Picker: picker, Compression: opts, Manager: m})
	require.NoError(t, err)
	defer c.Close()

	rec := &recorder{}
	s, err := New(Options{Threads: threads, Compressor: c, Emit: rec.emit})
	require.NoError(t, err)

	for i := 0; i < 64; i++ {
		require.NoError(t, s.Submit(context.Background(), payload(i)))
	}
	require.NoError(t, s.Finish(context.Background()))
	return rec.blocks
}

func TestOutputIndependentOfThreads(t *testing.T) {
	serial := runFile(t, 1)
	parallel := runFile(t, 8)

	require.Len(t, serial, 64)
	require.Equal(t, len(serial), len(parallel))
	for i := range serial {
		assert.Equal(t, uint64(i), parallel[i].seq)
		assert.Equal(t, serial[i].blk, parallel[i].blk, "block %d", i)
	}
}

func TestOrderedEmission(t *testing.T) {
	rec := &recorder{}
	s, err := New(Options{Threads: 4, QueueDepth: 16, Compressor: halving{}, Emit: rec.emit})
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		require.NoError(t, s.Submit(context.Background(), payload(i)))
	}
	require.NoError(t, s.Finish(context.Background()))

	require.Len(t, rec.blocks, 40)
	for i, e := range rec.blocks {
		assert.Equal(t, uint64(i), e.seq)
	}
	assert.Equal(t, uint64(40), s.Submitted())
	assert.Equal(t, uint64(40*2048), s.EstimatedSize())
}

func TestEstimatedSize(t *testing.T) {
	t.Run("no history assumes ratio one", func(t *testing.T) {
		s := &Scheduler{inFlightRaw: 1000}
		assert.Equal(t, uint64(1000), s.EstimatedSize())
	})

	t.Run("in flight scaled by history", func(t *testing.T) {
		s := &Scheduler{completedRaw: 4000, completedStored: 1000, inFlightRaw: 2000}
		assert.Equal(t, uint64(1000+500), s.EstimatedSize())
	})

	t.Run("reached target", func(t *testing.T) {
		target := ports.FileSizeTargetFunc(func() uint64 { return 1500 })
		s := &Scheduler{opts: Options{Target: target}, completedRaw: 4000, completedStored: 1000, inFlightRaw: 2000}
		assert.True(t, s.ReachedTarget())

		s.inFlightRaw = 1000
		assert.False(t, s.ReachedTarget())
	})

	t.Run("no target never seals", func(t *testing.T) {
		s := &Scheduler{completedStored: 1 << 40}
		assert.False(t, s.ReachedTarget())
	})
}

func TestEmitFailure(t *testing.T) {
	for _, threads := range []int{1, 4} {
		t.Run(fmt.Sprintf("threads=%d", threads), func(t *testing.T) {
			boom := errors.New("disk full")
			rec := &recorder{fail: boom}
			s, err := New(Options{Threads: threads, Compressor: halving{}, Emit: rec.emit})
			require.NoError(t, err)

			_ = s.Submit(context.Background(), payload(0))
			assert.ErrorIs(t, s.Finish(context.Background()), boom)
			assert.ErrorIs(t, s.Submit(context.Background(), payload(1)), ErrSchedulerClosed)
		})
	}
}

func TestSubmitCancelled(t *testing.T) {
	gate := make(chan struct{})
	blocked := compressFunc(func(seq uint64, raw []byte) *domain.CompressedBlock {
		<-gate
		return &domain.CompressedBlock{Type: domain.NoCompression, Payload: raw, RawLen: len(raw)}
	})

	rec := &recorder{}
	s, err := New(Options{Threads: 2, QueueDepth: 1, Compressor: blocked, Emit: rec.emit})
	require.NoError(t, err)

	// Two blocks occupy the workers and one fills the queue.
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Submit(context.Background(), payload(i)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.Submit(ctx, payload(3))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint64(3), s.Submitted())

	close(gate)
	require.NoError(t, s.Finish(context.Background()))
	assert.Len(t, rec.blocks, 3)
}

func TestFinishCancelledContextDrains(t *testing.T) {
	rec := &recorder{}
	s, err := New(Options{Threads: 4, Compressor: halving{}, Emit: rec.emit})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Submit(context.Background(), payload(i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Finish(ctx))
	assert.Len(t, rec.blocks, 3)

	select {
	case <-s.done:
	default:
		t.Fatal("collector still running after Finish")
	}
	_, open := <-s.jobs
	assert.False(t, open)

	assert.ErrorIs(t, s.Finish(context.Background()), ErrSchedulerClosed)
}

type compressFunc func(seq uint64, raw []byte) *domain.CompressedBlock

func (f compressFunc) CompressAt(seq uint64, raw []byte) *domain.CompressedBlock { return f(seq, raw) }

func TestNewValidation(t *testing.T) {
	rec := &recorder{}

	_, err := New(Options{Threads: 2, Emit: rec.emit})
	assert.True(t, pkgerrors.IsConfigurationError(err))

	_, err = New(Options{Threads: 0, Compressor: halving{}, Emit: rec.emit})
	assert.True(t, pkgerrors.IsConfigurationError(err))
}
