package chat

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"alarmrelay/internal/config"
)

// SignatureHeader carries the payload signature:
//
//	X-AlarmRelay-Signature: t=<unix>,v1=<hex>[,v1_old=<hex>]
//
// v1 is HMAC-SHA256 over "<t>.<body>" with the current secret; v1_old uses
// the previous secret while it is still within its grace period.
const SignatureHeader = "X-AlarmRelay-Signature"

// Signer produces SignatureHeader values. The zero value is not usable; use
// NewSigner.
type Signer struct {
	secret            string
	previous          string
	previousExpiresAt time.Time
}

// NewSigner returns a Signer for cfg, or nil when no signing secret is set.
// A previous secret without an expiry is never used.
func NewSigner(cfg config.ChatConfig) *Signer {
	if cfg.SigningSecret == "" {
		return nil
	}
	s := &Signer{secret: cfg.SigningSecret.Unmask()}
	if cfg.PreviousSigningSecret != "" && !cfg.PreviousSecretExpiresAt.IsZero() {
		s.previous = cfg.PreviousSigningSecret.Unmask()
		s.previousExpiresAt = cfg.PreviousSecretExpiresAt
	}
	return s
}

// Sign returns the header value for payload at now.
func (s *Signer) Sign(payload []byte, now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	header := "t=" + ts + ",v1=" + computeHMAC(ts, payload, s.secret)
	if s.previous != "" && !now.After(s.previousExpiresAt) {
		header += ",v1_old=" + computeHMAC(ts, payload, s.previous)
	}
	return header
}

// Verify reports whether header carries a valid signature of payload under
// secret. Either v1 or v1_old may match. Receivers use it; the sink only
// signs.
func Verify(payload []byte, header, secret string) bool {
	parts := parseSignatureHeader(header)
	if parts.timestamp == "" || secret == "" {
		return false
	}
	expected := computeHMAC(parts.timestamp, payload, secret)
	for _, got := range []string{parts.v1, parts.v1Old} {
		if got != "" && hmac.Equal([]byte(got), []byte(expected)) {
			return true
		}
	}
	return false
}

type signatureParts struct {
	timestamp string
	v1        string
	v1Old     string
}

func parseSignatureHeader(header string) signatureParts {
	var parts signatureParts
	for _, segment := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			parts.timestamp = strings.TrimSpace(value)
		case "v1":
			parts.v1 = strings.TrimSpace(value)
		case "v1_old":
			parts.v1Old = strings.TrimSpace(value)
		}
	}
	return parts
}

func computeHMAC(timestamp string, payload []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
