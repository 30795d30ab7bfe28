package extra

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(n int) []byte {
	var buf bytes.Buffer
	for i := 0; buf.Len() < n; i++ {
		fmt.Fprintf(&buf, "row:%d|tenant:%d|", i, i%5)
	}
	return buf.Bytes()[:n]
}

func TestNewManagerRange(t *testing.T) {
	for _, base := range []domain.CompressionType{0x07, 0x7F, 0xFE, 0xFF} {
		_, err := NewManager(base)
		assert.True(t, pkgerrors.IsConfigurationError(err), "base 0x%02X", uint8(base))
	}

	m, err := NewManager(0x90)
	require.NoError(t, err)
	assert.Equal(t, []domain.CompressionType{0x90, 0x91}, m.Types())
	assert.True(t, m.Claims(0x91))
	assert.False(t, m.Claims(0x92))
	assert.Equal(t, ManagerName, m.Name())
}

func TestRoundTrip(t *testing.T) {
	m, err := NewManager(DefaultBase)
	require.NoError(t, err)

	for _, typ := range m.Types() {
		for _, level := range []int{domain.DefaultCompressionLevel, 1, 2, 5} {
			t.Run(fmt.Sprintf("%s/%d", typ, level), func(t *testing.T) {
				raw := sample(20000)
				opts := domain.DefaultCompressionOptions()
				opts.Level = level

				c, err := m.Compressor(typ, opts)
				require.NoError(t, err)
				compressed, err := c.Compress(raw)
				require.NoError(t, err)
				assert.Less(t, len(compressed), len(raw))

				n, ok := c.(ports.SizeProber).DecompressedSize(compressed)
				require.True(t, ok)
				assert.Equal(t, len(raw), n)

				d, err := m.Decompressor(typ)
				require.NoError(t, err)
				out, err := d.Decompress(compressed, len(raw))
				require.NoError(t, err)
				assert.Equal(t, raw, out)

				_, err = d.Decompress(compressed, len(raw)-1)
				assert.Error(t, err)

				_, err = c.CompressBounded(raw, 4)
				assert.True(t, ports.IsBufferTooSmall(err))
			})
		}
	}

	_, err = m.Decompressor(0x82)
	assert.True(t, pkgerrors.IsUnsupportedError(err))
}

func TestS2Dictionary(t *testing.T) {
	m, err := NewManager(DefaultBase)
	require.NoError(t, err)
	require.True(t, m.SupportsDictionary(DefaultBase))
	require.False(t, m.SupportsDictionary(DefaultBase+1))

	trainer, ok := m.Trainer(DefaultBase)
	require.True(t, ok)
	dict, err := trainer.FinalizeDictionary([][]byte{sample(100 << 10)}, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, maxS2DictSize, dict.Len())

	c, err := m.Compressor(DefaultBase, domain.DefaultCompressionOptions())
	require.NoError(t, err)
	primed, err := c.(ports.DictionaryCodec).WithDictionary(dict)
	require.NoError(t, err)

	raw := sample(1000)
	compressed, err := primed.Compress(raw)
	require.NoError(t, err)

	d, err := m.Decompressor(DefaultBase)
	require.NoError(t, err)
	reader, err := d.(ports.DictionaryCodec).WithDictionary(dict)
	require.NoError(t, err)
	out, err := reader.Decompress(compressed, len(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}
