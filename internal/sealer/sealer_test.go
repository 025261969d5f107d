package sealer_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-azure-oauth2-client/internal/sealer"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestSealer_RoundTrip(t *testing.T) {
	s, err := sealer.New(testKey())
	require.NoError(t, err)

	sealed, err := s.Seal("refresh-token-value")
	require.NoError(t, err)
	require.NotContains(t, sealed, "refresh-token-value")

	again, err := s.Seal("refresh-token-value")
	require.NoError(t, err)
	require.NotEqual(t, sealed, again, "nonce is random")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "refresh-token-value", plain)
}

func TestSealer_EmptyAndClearValues(t *testing.T) {
	s, err := sealer.New(testKey())
	require.NoError(t, err)

	sealed, err := s.Seal("")
	require.NoError(t, err)
	require.Empty(t, sealed)

	plain, err := s.Open("stored-before-key")
	require.NoError(t, err)
	require.Equal(t, "stored-before-key", plain)

	ptr, err := s.SealPtr(nil)
	require.NoError(t, err)
	require.Nil(t, ptr)
}

func TestSealer_NilPassThrough(t *testing.T) {
	s, err := sealer.New(nil)
	require.NoError(t, err)
	require.Nil(t, s)

	v, err := s.Seal("secret")
	require.NoError(t, err)
	require.Equal(t, "secret", v)
}

func TestSealer_Errors(t *testing.T) {
	_, err := sealer.New([]byte("short"))
	require.Error(t, err)

	s, err := sealer.New(testKey())
	require.NoError(t, err)
	sealed, err := s.Seal("secret")
	require.NoError(t, err)

	other, err := sealer.New(bytes.Repeat([]byte{0x07}, 32))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	require.Error(t, err)

	var none *sealer.Sealer
	_, err = none.Open(sealed)
	require.Error(t, err)
}
