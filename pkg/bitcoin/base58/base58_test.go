package base58

import (
	"testing"

	mrtron "github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		{0x00},
		{0x00, 0x00, 0x01},
		[]byte("hello bitcoin"),
		{0xff, 0x00, 0xab, 0xcd, 0xef},
	}
	for _, in := range inputs {
		encoded := Encode(in)
		decoded, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, in, decoded)
	}
}

// TestEncodeMatchesAlternateImplementation cross-checks this package's
// encoding against an independent base58 implementation on the same
// Bitcoin alphabet, to catch an off-by-one in the leading-zero or
// digit-order logic that a self-consistent round-trip test alone would
// not.
func TestEncodeMatchesAlternateImplementation(t *testing.T) {
	inputs := [][]byte{
		{0x00, 0x01, 0x02, 0x03},
		[]byte("the quick brown fox"),
		{0x00, 0x00, 0xde, 0xad, 0xbe, 0xef},
	}
	for _, in := range inputs {
		assert.Equal(t, mrtron.Encode(in), Encode(in))
	}
}
