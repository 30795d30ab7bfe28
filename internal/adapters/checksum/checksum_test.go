package checksum

import (
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSummers(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	for _, alg := range []string{"", "xxhash32", "crc32-ieee", "crc64-iso", "crc64-ecma"} {
		t.Run(alg, func(t *testing.T) {
			cs, err := NewCheckSummer(domain.ChecksumAlgorithm(alg))
			require.NoError(t, err)

			sum := cs.Calculate(data)
			assert.True(t, cs.Verify(data, sum))
			assert.False(t, cs.Verify(data[1:], sum))
			assert.NotEmpty(t, cs.Name())
		})
	}
}

func TestXXHash32MatchesFrameChecksum(t *testing.T) {
	data := []byte("frame content")
	assert.Equal(t, uint32(xxhash.Sum64(data)), NewXXHash32().Calculate(data))
}

func TestUnknownAlgorithm(t *testing.T) {
	_, err := NewCheckSummer("sha512")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidationError(err))
	assert.NoError(t, Validate(DefaultOptions()))
}
