package domain

// DictionaryState is the phase of a per-file dictionary builder.
type DictionaryState uint8

const (
	// DictionaryDisabled is terminal: blocks are compressed independently.
	DictionaryDisabled DictionaryState = iota + 1

	// DictionaryCollecting buffers blocks as samples.
	DictionaryCollecting

	// DictionaryFinalizing runs the trainer or raw finalize over the samples.
	DictionaryFinalizing

	// DictionaryReady is terminal: the dictionary is frozen and used for every
	// remaining block of the file.
	DictionaryReady
)

func (s DictionaryState) String() string {
	switch s {
	case DictionaryDisabled:
		return "disabled"
	case DictionaryCollecting:
		return "collecting"
	case DictionaryFinalizing:
		return "finalizing"
	case DictionaryReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Dictionary is a priming byte sequence built from one file's samples.
// It must not be modified once finalized and is never shared across files.
type Dictionary struct {
	// Data is the serialized dictionary: either a trained zstd dictionary
	// (starting with the zstd dictionary magic) or raw content.
	Data []byte

	// ID identifies the dictionary inside codec frames. Trained dictionaries
	// carry their own id, raw ones derive it from their content.
	ID uint32

	// Trained is set when Data came out of the trainer.
	Trained bool
}

// Empty reports whether d carries no usable content. An empty dictionary
// compresses exactly like no dictionary.
func (d *Dictionary) Empty() bool {
	return d == nil || len(d.Data) == 0
}

// Len returns the dictionary size in bytes; a nil dictionary has length 0.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Data)
}
