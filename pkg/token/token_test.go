package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuerIssue(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	issuer := NewIssuerWithClock(48*time.Hour, func() time.Time { return base })

	tok, expiresAt, err := issuer.Issue()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(tok), 43) // 32 bytes base64url, no padding
	assert.Equal(t, base.Add(48*time.Hour), expiresAt)

	other, _, err := issuer.Issue()
	require.NoError(t, err)
	assert.NotEqual(t, tok, other)
}

func TestIssuerDefaultTTL(t *testing.T) {
	base := time.Now()
	issuer := NewIssuerWithClock(0, func() time.Time { return base })
	_, expiresAt, err := issuer.Issue()
	require.NoError(t, err)
	assert.Equal(t, base.UTC().Add(48*time.Hour), expiresAt)
}

func TestMintCredential(t *testing.T) {
	issuer := NewIssuer(time.Hour)
	cred, err := issuer.MintCredential("8d7c9c44-9f34-4f1e-9f2b-1f2d3e4a5b6c")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cred, "OUTING-8d7c9c44-9f34-4f1e-9f2b-1f2d3e4a5b6c-"))

	id, ok := CredentialRequestID(cred)
	require.True(t, ok)
	assert.Equal(t, "8d7c9c44-9f34-4f1e-9f2b-1f2d3e4a5b6c", id)

	again, err := issuer.MintCredential("8d7c9c44-9f34-4f1e-9f2b-1f2d3e4a5b6c")
	require.NoError(t, err)
	assert.NotEqual(t, cred, again)
}

func TestCredentialRequestIDRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "OUTING-", "OUTING--", "TICKET-abc-XYZ", "OUTING-abc-"} {
		_, ok := CredentialRequestID(raw)
		assert.False(t, ok, raw)
	}
}

func TestBuildLink(t *testing.T) {
	link := BuildLink("https://portal.campus.example/", "tok123")
	assert.Equal(t, "https://portal.campus.example/guardian/approve/tok123", link)
}
