package table

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/iamNilotpal/blockcomp/internal/adapters/budget"
	"github.com/iamNilotpal/blockcomp/internal/adapters/compression"
	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	"github.com/iamNilotpal/blockcomp/internal/core/services/block"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	begun    int
	dict     *domain.Dictionary
	blocks   []*domain.CompressedBlock
	err      error
	beginErr error
}

func (s *memorySink) Begin(dict *domain.Dictionary) error {
	if s.beginErr != nil {
		return s.beginErr
	}
	s.begun++
	s.dict = dict
	return nil
}

func (s *memorySink) WriteBlock(blk *domain.CompressedBlock) error {
	if s.err != nil {
		return s.err
	}
	s.blocks = append(s.blocks, blk)
	return nil
}

func newManager(t *testing.T) ports.CompressionManager {
	t.Helper()
	m, err := compression.NewBuiltinManager(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func record(i int) []byte {
	b := make([]byte, 0, 2048)
	for j := 0; len(b) < 2048; j++ {
		b = fmt.Appendf(b, `{"id":%d,"seq":%d,"kind":"metric","host":"node-%d"}`, i, j, j%5)
	}
	return b[:2048]
}

func tier(t domain.CompressionType, mutate func(*domain.CompressionOptions)) domain.Tier {
	opts := domain.DefaultCompressionOptions()
	if mutate != nil {
		mutate(&opts)
	}
	return domain.Tier{Type: t, Options: opts}
}

func readBack(t *testing.T, m ports.CompressionManager, sink *memorySink) [][]byte {
	t.Helper()
	d, err := block.NewDecompressor(block.DecompressorOptions{Manager: m, Dictionary: sink.dict})
	require.NoError(t, err)
	defer d.Close()

	out := make([][]byte, 0, len(sink.blocks))
	for _, blk := range sink.blocks {
		raw, err := d.Decompress(blk)
		require.NoError(t, err)
		out = append(out, raw)
	}
	return out
}

func TestWriterWithoutDictionary(t *testing.T) {
	m := newManager(t)
	sink := &memorySink{}

	w, err := NewWriter(Options{Tier: tier(domain.LZ4Compression, nil), Manager: m, Sink: sink})
	require.NoError(t, err)
	assert.Equal(t, 1, sink.begun, "sink begins immediately without a dictionary")
	assert.Equal(t, domain.DictionaryDisabled, w.DictionaryState())

	var want [][]byte
	for i := 0; i < 10; i++ {
		want = append(want, record(i))
		require.NoError(t, w.Add(context.Background(), record(i)))
	}

	stats, err := w.Finish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), stats.Blocks)
	assert.Equal(t, uint64(10), stats.CompressedBlocks)
	assert.Equal(t, uint64(10*2048), stats.RawBytes)
	assert.Less(t, stats.StoredBytes, stats.RawBytes)
	assert.Nil(t, sink.dict)

	assert.Equal(t, want, readBack(t, m, sink))

	assert.ErrorIs(t, w.Add(context.Background(), record(0)), ErrWriterClosed)
}

func TestWriterDictionaryLifecycle(t *testing.T) {
	for _, threads := range []uint32{1, 4} {
		t.Run(fmt.Sprintf("threads=%d", threads), func(t *testing.T) {
			m := newManager(t)
			sink := &memorySink{}
			b := budget.New(0)

			w, err := NewWriter(Options{
				Tier: tier(domain.ZSTDCompression, func(o *domain.CompressionOptions) {
					o.MaxDictBytes = 1024
					o.MaxDictBufferBytes = 8 * 2048
					o.ParallelThreads = threads
				}),
				Manager: m,
				Sink:    sink,
				Budget:  b,
			})
			require.NoError(t, err)
			assert.Zero(t, sink.begun, "sink waits for the dictionary")

			var want [][]byte
			for i := 0; i < 8; i++ {
				want = append(want, record(i))
				require.NoError(t, w.Add(context.Background(), record(i)))
			}
			assert.Equal(t, domain.DictionaryCollecting, w.DictionaryState())
			assert.Empty(t, sink.blocks)
			assert.Equal(t, uint64(8*2048), w.EstimatedSize())
			assert.Equal(t, uint64(8*2048), b.Used())

			for i := 8; i < 20; i++ {
				want = append(want, record(i))
				require.NoError(t, w.Add(context.Background(), record(i)))
			}
			assert.Equal(t, domain.DictionaryReady, w.DictionaryState())
			assert.Zero(t, b.Used(), "charge released once the dictionary is ready")

			stats, err := w.Finish(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, sink.begun)
			require.NotNil(t, sink.dict)
			assert.Equal(t, 1024, sink.dict.Len())
			assert.Equal(t, 1024, stats.DictionaryBytes)
			assert.Equal(t, uint64(20), stats.Blocks)

			assert.Equal(t, want, readBack(t, m, sink))
		})
	}
}

func TestWriterBudgetExhaustion(t *testing.T) {
	m := newManager(t)
	sink := &memorySink{}
	b := budget.New(3 * 2048)

	w, err := NewWriter(Options{
		Tier: tier(domain.ZSTDCompression, func(o *domain.CompressionOptions) {
			o.MaxDictBytes = 512
		}),
		Manager: m,
		Sink:    sink,
		Budget:  b,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Add(context.Background(), record(i)))
	}
	assert.Equal(t, domain.DictionaryCollecting, w.DictionaryState())

	// The fourth charge fails, so sampling ends early and every block flows.
	require.NoError(t, w.Add(context.Background(), record(3)))
	assert.Equal(t, domain.DictionaryReady, w.DictionaryState())
	assert.Len(t, sink.blocks, 4)
	assert.Zero(t, b.Used())
	assert.Equal(t, uint64(1), b.Rejected())

	_, err = w.Finish(context.Background())
	require.NoError(t, err)
	assert.Len(t, readBack(t, m, sink), 4)
}

func TestWriterFinishWhileSampling(t *testing.T) {
	m := newManager(t)
	sink := &memorySink{}

	w, err := NewWriter(Options{
		Tier:    tier(domain.ZlibCompression, func(o *domain.CompressionOptions) { o.MaxDictBytes = 256 }),
		Manager: m,
		Sink:    sink,
	})
	require.NoError(t, err)

	require.NoError(t, w.Add(context.Background(), record(1)))
	require.NoError(t, w.Add(context.Background(), record(2)))

	stats, err := w.Finish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Blocks)
	assert.Equal(t, 256, sink.dict.Len())
	assert.Equal(t, [][]byte{record(1), record(2)}, readBack(t, m, sink))
}

func TestWriterShouldSeal(t *testing.T) {
	m := newManager(t)
	target := ports.FileSizeTargetFunc(func() uint64 { return 4096 })

	w, err := NewWriter(Options{
		Tier:    tier(domain.NoCompression, nil),
		Manager: m,
		Sink:    &memorySink{},
		Target:  target,
	})
	require.NoError(t, err)

	require.NoError(t, w.Add(context.Background(), record(0)))
	assert.False(t, w.ShouldSeal())
	require.NoError(t, w.Add(context.Background(), record(1)))
	assert.True(t, w.ShouldSeal())

	stats, err := w.Finish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.RawBlocks)
	assert.Equal(t, stats.RawBytes, stats.StoredBytes)
}

func TestWriterAbandonReleasesBudget(t *testing.T) {
	m := newManager(t)
	b := budget.New(0)

	w, err := NewWriter(Options{
		Tier:    tier(domain.ZSTDCompression, func(o *domain.CompressionOptions) { o.MaxDictBytes = 1024 }),
		Manager: m,
		Sink:    &memorySink{},
		Budget:  b,
	})
	require.NoError(t, err)

	require.NoError(t, w.Add(context.Background(), record(0)))
	assert.Equal(t, uint64(2048), b.Used())

	w.Abandon()
	assert.Zero(t, b.Used())
	assert.ErrorIs(t, w.Add(context.Background(), record(1)), ErrWriterClosed)
}

func TestWriterSinkFailure(t *testing.T) {
	m := newManager(t)
	boom := errors.New("write failed")

	w, err := NewWriter(Options{Tier: tier(domain.SnappyCompression, nil), Manager: m, Sink: &memorySink{err: boom}})
	require.NoError(t, err)

	assert.ErrorIs(t, w.Add(context.Background(), record(0)), boom)
	assert.ErrorIs(t, w.Add(context.Background(), record(1)), boom)
	assert.ErrorIs(t, w.Err(), boom)
	_, err = w.Finish(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestWriterBeginFailureIsSticky(t *testing.T) {
	m := newManager(t)
	b := budget.New(0)
	diskFull := errors.New("disk full")

	w, err := NewWriter(Options{
		Tier: tier(domain.ZSTDCompression, func(o *domain.CompressionOptions) {
			o.MaxDictBytes = 1024
			o.MaxDictBufferBytes = 2 * 2048
		}),
		Manager: m,
		Sink:    &memorySink{beginErr: diskFull},
		Budget:  b,
	})
	require.NoError(t, err)

	require.NoError(t, w.Add(context.Background(), record(0)))
	require.NoError(t, w.Add(context.Background(), record(1)))
	assert.ErrorIs(t, w.Add(context.Background(), record(2)), diskFull)

	for i := 3; i < 6; i++ {
		assert.ErrorIs(t, w.Add(context.Background(), record(i)), diskFull)
	}
	_, err = w.Finish(context.Background())
	assert.ErrorIs(t, err, diskFull)
	assert.Zero(t, b.Used())
}

func TestWriterFailedFinalizeIsSticky(t *testing.T) {
	m := newManager(t)
	b := budget.New(0)
	sink := &memorySink{}

	w, err := NewWriter(Options{
		Tier: tier(domain.ZSTDCompression, func(o *domain.CompressionOptions) {
			o.MaxDictBytes = 1024
			o.MaxDictBufferBytes = 2 * 2048
			o.ParallelThreads = 2
		}),
		Manager: m,
		Sink:    sink,
		Budget:  b,
	})
	require.NoError(t, err)

	require.NoError(t, w.Add(context.Background(), record(0)))
	require.NoError(t, w.Add(context.Background(), record(1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Add(ctx, record(2)), context.Canceled)
	assert.ErrorIs(t, w.Add(context.Background(), record(3)), context.Canceled)
	assert.Equal(t, uint64(2*2048), b.Used(), "held blocks keep their charge")

	_, err = w.Finish(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.blocks)
	assert.Zero(t, b.Used())
}

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// lateCancel passes the first Err check and is cancelled from then on, so
// it ends while the dictionary is being finalized.
type lateCancel struct {
	context.Context
	checks atomic.Int32
}

func (c *lateCancel) Done() <-chan struct{} { return closedDone }

func (c *lateCancel) Err() error {
	if c.checks.Add(1) == 1 {
		return nil
	}
	return context.Canceled
}

func TestWriterHeldBlocksSurviveCancellation(t *testing.T) {
	m := newManager(t)
	sink := &memorySink{}

	w, err := NewWriter(Options{
		Tier: tier(domain.ZSTDCompression, func(o *domain.CompressionOptions) {
			o.MaxDictBytes = 1024
			o.MaxDictBufferBytes = 8 * 2048
			o.ParallelThreads = 2
		}),
		Manager: m,
		Sink:    sink,
	})
	require.NoError(t, err)

	var want [][]byte
	for i := 0; i < 8; i++ {
		want = append(want, record(i))
		require.NoError(t, w.Add(context.Background(), record(i)))
	}

	// The current block may or may not win the race against the cancelled
	// context, but every held block must reach the file.
	addErr := w.Add(&lateCancel{Context: context.Background()}, record(8))
	if addErr != nil {
		assert.ErrorIs(t, addErr, context.Canceled)
		assert.ErrorIs(t, w.Add(context.Background(), record(9)), context.Canceled)
	} else {
		want = append(want, record(8))
	}

	_, err = w.Finish(context.Background())
	if addErr != nil {
		assert.ErrorIs(t, err, context.Canceled)
	} else {
		require.NoError(t, err)
	}
	assert.Equal(t, want, readBack(t, m, sink))
}

func TestWriterValidation(t *testing.T) {
	m := newManager(t)

	_, err := NewWriter(Options{Tier: tier(domain.ZSTDCompression, nil), Manager: m})
	assert.True(t, pkgerrors.IsConfigurationError(err))

	_, err = NewWriter(Options{Tier: tier(domain.DisableCompressionOption, nil), Manager: m, Sink: &memorySink{}})
	assert.True(t, pkgerrors.IsConfigurationError(err))

	_, err = NewWriter(Options{
		Tier:    tier(domain.ZSTDCompression, func(o *domain.CompressionOptions) { o.MaxCompressedBytesPerKb = 0 }),
		Manager: m,
		Sink:    &memorySink{},
	})
	assert.True(t, pkgerrors.IsConfigurationError(err))

	_, err = NewWriter(Options{Tier: tier(0x90, nil), Manager: m, Sink: &memorySink{}})
	assert.True(t, pkgerrors.IsUnsupportedError(err))
}
