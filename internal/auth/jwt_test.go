package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("operator-phone", "classtracker", "secret", time.Minute, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := Parse(pair.AccessToken, "secret", "classtracker")
	require.NoError(t, err)
	require.Equal(t, "operator-phone", claims.Subject)
	require.Equal(t, "access", claims.Kind)

	refresh, err := Parse(pair.RefreshToken, "secret", "classtracker")
	require.NoError(t, err)
	require.Equal(t, "refresh", refresh.Kind)
}

func TestParseRejectsBadTokens(t *testing.T) {
	pair, err := Issue("c1", "classtracker", "secret", time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "other-key", "classtracker")
	require.Error(t, err, "wrong signing key")

	_, err = Parse(pair.AccessToken, "secret", "someone-else")
	require.Error(t, err, "issuer mismatch")

	_, err = Parse("not-a-token", "secret", "classtracker")
	require.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue("c1", "classtracker", "secret", -time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "secret", "classtracker")
	require.Error(t, err)
}
