package compression

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/klauspost/compress/dict"
	"github.com/klauspost/compress/zstd"
)

// ErrTrainingFailed is returned when the trainer cannot produce a usable
// dictionary from the given samples.
var ErrTrainingFailed = errors.New("dictionary training failed")

// RawTrainer builds raw-content dictionaries. It serves codecs without a
// trainer of their own, so TrainDictionary and FinalizeDictionary agree.
type RawTrainer struct{}

func (RawTrainer) TrainDictionary(samples [][]byte, maxBytes int) (*domain.Dictionary, error) {
	return RawTrainer{}.FinalizeDictionary(samples, maxBytes)
}

// FinalizeDictionary concatenates samples and keeps the last maxBytes bytes;
// content near the end of a raw dictionary is the cheapest to reference.
// Fewer sample bytes than maxBytes yield a smaller dictionary.
func (RawTrainer) FinalizeDictionary(samples [][]byte, maxBytes int) (*domain.Dictionary, error) {
	if maxBytes <= 0 {
		return &domain.Dictionary{}, nil
	}

	total := 0
	for _, s := range samples {
		total += len(s)
	}

	size := min(total, maxBytes)
	data := make([]byte, size)
	pos := size
	for i := len(samples) - 1; i >= 0 && pos > 0; i-- {
		s := samples[i]
		if len(s) > pos {
			s = s[len(s)-pos:]
		}
		pos -= copy(data[pos-len(s):pos], s)
	}

	d := &domain.Dictionary{Data: data}
	if len(data) > 0 {
		d.ID = RawDictionaryID(data)
	}
	return d, nil
}

// ZstdTrainer trains zstd dictionaries with the klauspost dictionary builder.
type ZstdTrainer struct {
	// Level tunes the entropy tables of the trained dictionary.
	Level int
}

// TrainDictionary returns a trained dictionary of at most maxBytes. The
// dictionary id is derived from the samples so identical input always yields
// an identical dictionary.
func (z ZstdTrainer) TrainDictionary(samples [][]byte, maxBytes int) (*domain.Dictionary, error) {
	if maxBytes <= 0 {
		return &domain.Dictionary{}, nil
	}

	h := xxhash.New()
	for _, s := range samples {
		_, _ = h.Write(s)
	}
	id := uint32(h.Sum64())
	if id == 0 {
		id = 1
	}

	level := zstd.SpeedDefault
	if z.Level != 0 {
		level = ZstdEncoderLevel(z.Level)
	}

	data, err := dict.BuildZstdDict(samples, dict.Options{
		MaxDictSize: maxBytes,
		HashBytes:   6,
		ZstdDictID:  id,
		ZstdLevel:   level,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTrainingFailed, err)
	}
	if len(data) > maxBytes || !IsZstdTrainedDictionary(data) {
		return nil, fmt.Errorf("%w: produced %d bytes for a %d byte limit", ErrTrainingFailed, len(data), maxBytes)
	}

	// A dictionary the codec cannot load would fail every block of the file.
	probe, err := NewZstdCodec(ZstdOptions{Level: z.Level, Concurrency: 1, Dictionary: &domain.Dictionary{Data: data}})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTrainingFailed, err)
	}
	probe.Close()

	return &domain.Dictionary{Data: data, ID: ZstdDictionaryID(data), Trained: true}, nil
}

// FinalizeDictionary skips training and uses the samples as raw content.
func (z ZstdTrainer) FinalizeDictionary(samples [][]byte, maxBytes int) (*domain.Dictionary, error) {
	return RawTrainer{}.FinalizeDictionary(samples, maxBytes)
}
