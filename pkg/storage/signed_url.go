package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignedURLSigner creates and validates signed download tokens for stored artifacts.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a signed token referencing the artifact.
func (s *SignedURLSigner) Generate(ref string) (string, time.Time, error) {
	if ref == "" {
		return "", time.Time{}, fmt.Errorf("artifact reference required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	encodedRef := base64.RawURLEncoding.EncodeToString([]byte(ref))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	token := strings.Join([]string{ts, encodedRef, s.sign(ts, encodedRef)}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the embedded artifact reference.
func (s *SignedURLSigner) Parse(token string) (string, time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", time.Time{}, fmt.Errorf("invalid token format")
	}
	ts, encodedRef, signature := parts[0], parts[1], parts[2]

	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid timestamp")
	}
	if !hmac.Equal([]byte(s.sign(ts, encodedRef)), []byte(signature)) {
		return "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return "", time.Time{}, fmt.Errorf("token expired")
	}
	rawRef, err := base64.RawURLEncoding.DecodeString(encodedRef)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("decode reference: %w", err)
	}
	return string(rawRef), expiresAt, nil
}

func (s *SignedURLSigner) sign(ts, encodedRef string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(ts + "|" + encodedRef))
	return hex.EncodeToString(mac.Sum(nil))
}
