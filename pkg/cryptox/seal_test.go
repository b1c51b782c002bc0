package cryptox_test

import (
	"testing"

	"github.com/emberworks/fireside/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	plaintext := []byte("1//refresh-token-material")

	sealed, err := cryptox.Seal(plaintext, "correct horse battery staple")
	require.NoError(t, err)
	require.NotContains(t, string(sealed), string(plaintext))

	opened, err := cryptox.Open(sealed, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestOpenWrongPassphrase(t *testing.T) {
	t.Parallel()

	sealed, err := cryptox.Seal([]byte("secret"), "right")
	require.NoError(t, err)

	_, err = cryptox.Open(sealed, "wrong")
	require.Error(t, err)
}

func TestOpenTamperedBlob(t *testing.T) {
	t.Parallel()

	sealed, err := cryptox.Seal([]byte("secret"), "pass")
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0x01
	_, err = cryptox.Open(sealed, "pass")
	require.Error(t, err)
}

func TestOpenTruncated(t *testing.T) {
	t.Parallel()

	_, err := cryptox.Open([]byte("short"), "pass")
	require.ErrorIs(t, err, cryptox.ErrSealedTooShort)
}

func TestSealIsRandomized(t *testing.T) {
	t.Parallel()

	a, err := cryptox.Seal([]byte("secret"), "pass")
	require.NoError(t, err)
	b, err := cryptox.Seal([]byte("secret"), "pass")
	require.NoError(t, err)

	// Fresh salt and nonce every time.
	require.NotEqual(t, a, b)
}
