// Package config loads the YAML configuration of the blockcomp tool.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/iamNilotpal/blockcomp/internal/adapters/checksum"
	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/serialize"
	"gopkg.in/yaml.v3"
)

// Mixed modes.
const (
	MixedNone       = "none"
	MixedRoundRobin = "round_robin"
	MixedRandom     = "random"
)

type Config struct {
	Compression               string `yaml:"compression"`                 // Type of every output file
	CompressionOpts           string `yaml:"compression_opts"`            // Either textual options form
	BottommostCompression     string `yaml:"bottommost_compression"`      // "disable" keeps Compression
	BottommostCompressionOpts string `yaml:"bottommost_compression_opts"` // Used only with enabled=true
	Bottommost                bool   `yaml:"bottommost"`                  // Treat output as bottommost

	BlockSize             uint32 `yaml:"block_size"`              // Uncompressed bytes per block
	TargetFileSize        uint64 `yaml:"target_file_size"`        // Caps dictionary sampling
	DictionaryBudgetBytes uint64 `yaml:"dictionary_budget_bytes"` // Zero is unlimited
	ChecksumAlgorithm     string `yaml:"checksum_algorithm"`      // Frame checksum algorithm

	EnableCustomCodecs bool  `yaml:"enable_custom_codecs"` // Register s2 and minlz
	CustomCodecBase    uint8 `yaml:"custom_codec_base"`    // Tag of s2, minlz is base+1

	Mixed    MixedConfig `yaml:"mixed"`
	LogLevel string      `yaml:"log_level"`
}

// Holds the per-block type rotation settings.
type MixedConfig struct {
	Mode  string   `yaml:"mode"`  // none, round_robin or random
	Types []string `yaml:"types"` // Candidate types, defaults to the file type
	Seed  uint64   `yaml:"seed"`  // Seed of the random mode
}

// Returns a Config struct with reasonable default values.
func DefaultConfig() *Config {
	return &Config{
		Compression:           "snappy",
		BottommostCompression: "disable",
		BlockSize:             4 * 1024,          // 4KB
		TargetFileSize:        64 * 1024 * 1024,  // 64MB
		DictionaryBudgetBytes: 256 * 1024 * 1024, // 256MB
		ChecksumAlgorithm:     string(checksum.XXHash32),
		EnableCustomCodecs:    true,
		CustomCodecBase:       uint8(domain.FirstCustomCompression),
		Mixed:                 MixedConfig{Mode: MixedNone},
		LogLevel:              "info",
	}
}

// Loads configuration from a YAML file. Keys missing from the file keep
// their defaults.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks a config built in code.
func (c *Config) Validate() error {
	return validateConfig(c)
}

func validateConfig(config *Config) error {
	if _, err := config.ResolvedTier(); err != nil {
		return err
	}

	if config.BlockSize == 0 {
		return errors.New("block_size must be greater than 0")
	}
	if config.BlockSize > domain.MaxBlockSize {
		return fmt.Errorf("block_size must not exceed %d", domain.MaxBlockSize)
	}

	if err := checksum.Validate(&domain.ChecksumOptions{
		Algorithm: domain.ChecksumAlgorithm(config.ChecksumAlgorithm),
	}); err != nil {
		return err
	}

	if config.EnableCustomCodecs {
		base := domain.CompressionType(config.CustomCodecBase)
		if !base.IsCustom() || !(base + 1).IsCustom() {
			return fmt.Errorf(
				"custom_codec_base must leave two ids inside 0x%02X-0x%02X, got 0x%02X",
				uint8(domain.FirstCustomCompression), uint8(domain.LastCustomCompression), config.CustomCodecBase,
			)
		}
	}

	if err := validateMixedConfig(&config.Mixed); err != nil {
		return fmt.Errorf("invalid mixed configuration: %w", err)
	}

	return nil
}

func validateMixedConfig(config *MixedConfig) error {
	switch config.Mode {
	case "", MixedNone, MixedRoundRobin, MixedRandom:
	default:
		return fmt.Errorf("mode must be one of none, round_robin or random, got %q", config.Mode)
	}

	_, err := config.CompressionTypes()
	return err
}

// CompressionTypes parses the candidate types.
func (m *MixedConfig) CompressionTypes() ([]domain.CompressionType, error) {
	types := make([]domain.CompressionType, 0, len(m.Types))
	for _, name := range m.Types {
		t, err := domain.ParseCompressionType(name)
		if err != nil {
			return nil, err
		}
		if !t.IsValid() {
			return nil, fmt.Errorf("%s cannot be stored", t)
		}
		types = append(types, t)
	}
	return types, nil
}

// Enabled reports whether blocks rotate over several types.
func (m *MixedConfig) Enabled() bool {
	return m.Mode == MixedRoundRobin || m.Mode == MixedRandom
}

// TopTier is the regular compression setting.
func (c *Config) TopTier() (domain.Tier, error) {
	t, err := domain.ParseCompressionType(c.Compression)
	if err != nil {
		return domain.Tier{}, fmt.Errorf("compression: %w", err)
	}
	if !t.IsValid() {
		return domain.Tier{}, fmt.Errorf("compression: %s cannot be stored", t)
	}

	opts, err := parseOptions(c.CompressionOpts)
	if err != nil {
		return domain.Tier{}, fmt.Errorf("compression_opts: %w", err)
	}
	return domain.Tier{Type: t, Options: opts}, nil
}

// BottommostTier is the bottommost override. An empty type means unset.
func (c *Config) BottommostTier() (domain.Tier, error) {
	t := domain.DisableCompressionOption
	if c.BottommostCompression != "" {
		var err error
		if t, err = domain.ParseCompressionType(c.BottommostCompression); err != nil {
			return domain.Tier{}, fmt.Errorf("bottommost_compression: %w", err)
		}
		if t != domain.DisableCompressionOption && !t.IsValid() {
			return domain.Tier{}, fmt.Errorf("bottommost_compression: %s cannot be stored", t)
		}
	}

	opts, err := parseOptions(c.BottommostCompressionOpts)
	if err != nil {
		return domain.Tier{}, fmt.Errorf("bottommost_compression_opts: %w", err)
	}
	return domain.Tier{Type: t, Options: opts}, nil
}

// ResolvedTier is the setting output files are written with.
func (c *Config) ResolvedTier() (domain.Tier, error) {
	top, err := c.TopTier()
	if err != nil {
		return domain.Tier{}, err
	}
	bottom, err := c.BottommostTier()
	if err != nil {
		return domain.Tier{}, err
	}
	return domain.ResolveTier(top, bottom, c.Bottommost), nil
}

func parseOptions(text string) (domain.CompressionOptions, error) {
	if text == "" {
		return domain.DefaultCompressionOptions(), nil
	}
	return serialize.ParseCompressionOptions(text)
}
