package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const (
	// tokenBytes yields 256 bits of entropy per approval token.
	tokenBytes = 32
	// suffixLen is the length of the random component appended to QR
	// credentials. The alphabet below gives ~41 bits, enough that a
	// credential cannot be predicted from the request id alone.
	suffixLen      = 8
	suffixAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	credentialPrefix = "OUTING-"
)

// Issuer mints guardian approval tokens and QR pass credentials from a
// cryptographically strong random source.
type Issuer struct {
	ttl time.Duration
	now func() time.Time
}

// NewIssuer constructs an issuer with the given token TTL.
func NewIssuer(ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &Issuer{ttl: ttl, now: time.Now}
}

// NewIssuerWithClock is used by tests to pin the clock.
func NewIssuerWithClock(ttl time.Duration, now func() time.Time) *Issuer {
	issuer := NewIssuer(ttl)
	if now != nil {
		issuer.now = now
	}
	return issuer
}

// Issue returns a single-use approval token and its expiry.
func (i *Issuer) Issue() (string, time.Time, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("read token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), i.now().UTC().Add(i.ttl), nil
}

// MintCredential returns an opaque QR pass credential bound to the request.
func (i *Issuer) MintCredential(requestID string) (string, error) {
	buf := make([]byte, suffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read credential entropy: %w", err)
	}
	suffix := make([]byte, suffixLen)
	for n, b := range buf {
		suffix[n] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return fmt.Sprintf("%s%s-%s", credentialPrefix, requestID, suffix), nil
}

// BuildLink composes the public guardian approval URL for a token.
func BuildLink(baseURL, tok string) string {
	return fmt.Sprintf("%s/guardian/approve/%s", strings.TrimRight(baseURL, "/"), tok)
}

// CredentialRequestID extracts the request id embedded in a QR credential.
// The random suffix never contains a dash, so everything between the prefix
// and the last dash is the id (request ids are UUIDs and contain dashes
// themselves).
func CredentialRequestID(credential string) (string, bool) {
	if !strings.HasPrefix(credential, credentialPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(credential, credentialPrefix)
	idx := strings.LastIndex(rest, "-")
	if idx <= 0 || idx == len(rest)-1 {
		return "", false
	}
	return rest[:idx], true
}
