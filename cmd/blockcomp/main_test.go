package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iamNilotpal/blockcomp/config"
	"github.com/iamNilotpal/blockcomp/internal/core/services/manager"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
	"github.com/iamNilotpal/blockcomp/pkg/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func corpus(n int) []byte {
	rng := rand.New(rand.NewPCG(3, 5))
	var b []byte
	for i := 0; len(b) < n; i++ {
		b = fmt.Appendf(b, "%d\tGET /api/v1/items/%d\t%d\t%dms\n", i, rng.IntN(500), 200+rng.IntN(4)*100, rng.IntN(90))
	}
	return b[:n]
}

func registryFor(t *testing.T, cfg *config.Config) *manager.Registry {
	t.Helper()
	r, err := newRegistry(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestCompressDecompressStream(t *testing.T) {
	tests := map[string]func(*config.Config){
		"defaults": func(*config.Config) {},
		"zstd dictionary parallel": func(c *config.Config) {
			c.Compression = "zstd"
			c.CompressionOpts = "{max_dict_bytes=4096;zstd_max_train_bytes=65536;parallel_threads=4;checksum=true}"
		},
		"zlib legacy options": func(c *config.Config) {
			c.Compression = "zlib"
			c.CompressionOpts = "6:15:0:1024"
			c.ChecksumAlgorithm = "crc64-ecma"
		},
		"bottommost override": func(c *config.Config) {
			c.BottommostCompression = "bzip2"
			c.Bottommost = true
		},
		"mixed round robin": func(c *config.Config) {
			c.Mixed = config.MixedConfig{Mode: config.MixedRoundRobin, Types: []string{"lz4", "custom80", "custom81", "none"}}
		},
		"mixed random": func(c *config.Config) {
			c.CompressionOpts = "{parallel_threads=3}"
			c.Mixed = config.MixedConfig{Mode: config.MixedRandom, Types: []string{"snappy", "lz4hc", "zstd"}, Seed: 9}
		},
	}

	input := corpus(200 << 10)
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			mutate(cfg)
			require.NoError(t, cfg.Validate())
			r := registryFor(t, cfg)

			var compressed bytes.Buffer
			stats, err := compressStream(context.Background(), cfg, r, zap.NewNop().Sugar(), bytes.NewReader(input), &compressed)
			require.NoError(t, err)
			assert.Equal(t, uint64(len(input)), stats.RawBytes)
			assert.Equal(t, uint64(50), stats.Blocks)
			assert.Less(t, compressed.Len(), len(input))

			var restored bytes.Buffer
			n, err := decompressStream(r, bytes.NewReader(compressed.Bytes()), &restored)
			require.NoError(t, err)
			assert.Equal(t, uint64(len(input)), n)
			assert.Equal(t, input, restored.Bytes())

			report, err := inspectStream(bytes.NewReader(compressed.Bytes()))
			require.NoError(t, err)
			assert.Len(t, report.Blocks, 50)
			assert.Equal(t, stats.StoredBytes, report.StoredBytes)
		})
	}
}

func TestOutputIndependentOfThreads(t *testing.T) {
	input := corpus(128 << 10)

	compress := func(threads int) []byte {
		cfg := config.DefaultConfig()
		cfg.Compression = "zstd"
		cfg.CompressionOpts = fmt.Sprintf("{level=3;max_dict_bytes=2048;parallel_threads=%d}", threads)
		cfg.Mixed = config.MixedConfig{Mode: config.MixedRandom, Types: []string{"zstd", "snappy", "zlib"}, Seed: 1}

		var out bytes.Buffer
		_, err := compressStream(context.Background(), cfg, registryFor(t, cfg), zap.NewNop().Sugar(), bytes.NewReader(input), &out)
		require.NoError(t, err)
		return out.Bytes()
	}

	serial := compress(1)
	parallel := compress(8)

	// The headers carry the options string, which names the thread count.
	serialReport, err := inspectStream(bytes.NewReader(serial))
	require.NoError(t, err)
	parallelReport, err := inspectStream(bytes.NewReader(parallel))
	require.NoError(t, err)
	assert.Equal(t, serialReport.Blocks, parallelReport.Blocks)
	assert.Equal(t, serialReport.StoredBytes, parallelReport.StoredBytes)
}

func TestDecompressUnknownCustomType(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Compression = "custom80"

	var compressed bytes.Buffer
	_, err := compressStream(context.Background(), cfg, registryFor(t, cfg), zap.NewNop().Sugar(), bytes.NewReader(corpus(8192)), &compressed)
	require.NoError(t, err)

	reader := config.DefaultConfig()
	reader.EnableCustomCodecs = false

	_, err = decompressStream(registryFor(t, reader), bytes.NewReader(compressed.Bytes()), &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUnsupportedError(err))
}

func TestDecompressCorruptStream(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Compression = "zstd"
	cfg.CompressionOpts = "{checksum=true}"
	r := registryFor(t, cfg)

	var compressed bytes.Buffer
	_, err := compressStream(context.Background(), cfg, r, zap.NewNop().Sugar(), bytes.NewReader(corpus(16384)), &compressed)
	require.NoError(t, err)

	data := compressed.Bytes()
	_, err = decompressStream(r, bytes.NewReader(data[:len(data)-3]), &bytes.Buffer{})
	assert.True(t, pkgerrors.IsCorruptionError(err))

	flipped := bytes.Clone(data)
	flipped[len(flipped)-10] ^= 0xff
	_, err = decompressStream(r, bytes.NewReader(flipped), &bytes.Buffer{})
	assert.True(t, pkgerrors.IsCorruptionError(err))
}

func TestListTypes(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, listTypes(&out, registryFor(t, config.DefaultConfig())))

	text := out.String()
	for _, want := range []string{"NoCompression", "Snappy", "ZSTD", "Xpress", "Custom80", "Custom81", "builtin", "extra"} {
		assert.Contains(t, text, want)
	}
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.log")
	packed := filepath.Join(dir, "input.bcmp")
	restored := filepath.Join(dir, "restored.log")
	cfgPath := filepath.Join(dir, "blockcomp.yaml")

	data := corpus(64 << 10)
	require.NoError(t, os.WriteFile(input, data, 0o644))
	require.NoError(t, os.WriteFile(cfgPath, []byte("compression: zstd\nlog_level: error\n"), 0o644))

	run := func(args ...string) (string, error) {
		t.Helper()
		force, split, jsonOutput, configPath, logLevel = false, false, false, "", ""
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(args)
		err := rootCmd.Execute()
		return out.String(), err
	}

	_, err := run("compress", "--config", cfgPath, input, packed)
	require.NoError(t, err)

	_, err = run("compress", "--config", cfgPath, input, packed)
	assert.ErrorIs(t, err, ErrOutputExists)

	_, err = run("compress", "--config", cfgPath, "--force", input, packed)
	require.NoError(t, err)

	_, err = run("decompress", "--log-level", "error", packed, restored)
	require.NoError(t, err)
	got, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	out, err := run("inspect", packed)
	require.NoError(t, err)
	assert.Contains(t, out, "type:        ZSTD")

	out, err = run("inspect", "--json", packed)
	require.NoError(t, err)
	assert.Contains(t, out, `"default_type": "ZSTD"`)

	out, err = run("options", "4:-14:0:1024")
	require.NoError(t, err)
	assert.Contains(t, out, "level=4;")
	assert.Contains(t, out, "max_dict_bytes=1024;")

	_, err = run("options", "{level=1;nope=2}")
	assert.True(t, pkgerrors.IsConfigurationError(err))

	_, err = run("decompress", "--log-level", "error", input, filepath.Join(dir, "bad.out"))
	assert.True(t, pkgerrors.IsCorruptionError(err))
	_, statErr := os.Stat(filepath.Join(dir, "bad.out"))
	assert.True(t, os.IsNotExist(statErr), "failed output must not be left behind")
}

func TestSplitCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.log")
	output := filepath.Join(dir, "parts.bcmp")
	restored := filepath.Join(dir, "restored.log")
	cfgPath := filepath.Join(dir, "blockcomp.yaml")

	data := corpus(64 << 10)
	require.NoError(t, os.WriteFile(input, data, 0o644))
	require.NoError(t, os.WriteFile(cfgPath, []byte("compression: none\ntarget_file_size: 16384\nlog_level: error\n"), 0o644))

	force, split, jsonOutput, configPath, logLevel = false, true, false, cfgPath, ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"compress", "--config", cfgPath, "--split", input, output})
	require.NoError(t, rootCmd.Execute())

	parts := strings.Fields(out.String())
	require.Len(t, parts, 4)
	for i, p := range parts {
		assert.Equal(t, fs.PartName(output, uint64(i+1)), p)
	}

	force, split, jsonOutput, configPath, logLevel = false, false, false, "", "error"
	rootCmd.SetArgs(append(append([]string{"decompress"}, parts...), restored))
	require.NoError(t, rootCmd.Execute())

	got, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCompressSplitKeepsDictionaryPerPart(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Compression = "zstd"
	cfg.CompressionOpts = "{max_dict_bytes=1024;max_dict_buffer_bytes=8192}"
	cfg.TargetFileSize = 8192
	r := registryFor(t, cfg)

	output := filepath.Join(t.TempDir(), "out.bcmp")
	data := corpus(96 << 10)
	paths, stats, err := compressSplit(context.Background(), cfg, r, zap.NewNop().Sugar(), bytes.NewReader(data), output)
	require.NoError(t, err)
	require.Greater(t, len(paths), 1)
	assert.Equal(t, uint64(len(data)), stats.RawBytes)

	var restored bytes.Buffer
	for _, p := range paths {
		f, err := os.Open(p)
		require.NoError(t, err)

		report, err := inspectStream(f)
		require.NoError(t, err)
		assert.Equal(t, 1024, report.DictionaryBytes, p)

		_, err = f.Seek(0, 0)
		require.NoError(t, err)
		_, err = decompressStream(r, f, &restored)
		require.NoError(t, err)
		f.Close()
	}
	assert.Equal(t, data, restored.Bytes())
}
