package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer("page-token-secret")
	require.NoError(t, err)

	sealed, err := s.Seal("EAAB-token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
	assert.NotContains(t, sealed, "EAAB-token")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "EAAB-token", plain)
}

func TestSealerReadsLegacyPlainText(t *testing.T) {
	s, err := NewSealer("k")
	require.NoError(t, err)

	plain, err := s.Open("legacy-token")
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", plain)
}

func TestSealerWithoutKey(t *testing.T) {
	s, err := NewSealer("")
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	v, err := s.Seal("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	other, _ := NewSealer("k")
	sealed, _ := other.Seal("abc")
	_, err = s.Open(sealed)
	assert.Error(t, err)
}
