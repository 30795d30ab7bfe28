package dictionary

const (
	// DefaultTargetFileSize bounds sample buffering when neither
	// max_dict_buffer_bytes nor a file size target is available.
	DefaultTargetFileSize = 64 << 20 // 64MB

	// sampleSeed fixes the sample order so identical input always trains an
	// identical dictionary.
	sampleSeed = 0x5eed_d1c7
)
