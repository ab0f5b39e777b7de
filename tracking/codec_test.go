package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec("super-secret")
	require.NoError(t, err)

	token, err := codec.Encode(42, "giulia@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	campaignID, email, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), campaignID)
	assert.Equal(t, "giulia@example.com", email)
}

func TestCodecTokensAreOpaque(t *testing.T) {
	codec, err := NewCodec("super-secret")
	require.NoError(t, err)

	token, err := codec.Encode(42, "giulia@example.com")
	require.NoError(t, err)

	assert.NotContains(t, token, "giulia")
	assert.NotContains(t, token, "42")
}

func TestCodecRejectsCorruptedToken(t *testing.T) {
	codec, err := NewCodec("super-secret")
	require.NoError(t, err)

	token, err := codec.Encode(42, "giulia@example.com")
	require.NoError(t, err)

	corrupted := token[:len(token)-2] + "zz"
	_, _, err = codec.Decode(corrupted)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestCodecRejectsGarbage(t *testing.T) {
	codec, err := NewCodec("super-secret")
	require.NoError(t, err)

	for _, token := range []string{"", "!!!", "abc", "dG9rZW4"} {
		_, _, err := codec.Decode(token)
		assert.ErrorIs(t, err, ErrMalformedToken, "token=%q", token)
	}
}

func TestCodecRejectsForeignToken(t *testing.T) {
	codecA, err := NewCodec("secret-a")
	require.NoError(t, err)

	codecB, err := NewCodec("secret-b")
	require.NoError(t, err)

	token, err := codecA.Encode(42, "giulia@example.com")
	require.NoError(t, err)

	_, _, err = codecB.Decode(token)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestCodecEmptySecret(t *testing.T) {
	_, err := NewCodec("")
	assert.Error(t, err)
}
