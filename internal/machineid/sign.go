package machineid

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultFreshnessWindow is how long a signed identifier stays acceptable to
// Verify after it was produced.
const DefaultFreshnessWindow = 600 * time.Second

var (
	// ErrMalformed is returned when a signed string does not have the
	// fingerprint:timestamp:tag shape.
	ErrMalformed = errors.New("machineid: malformed signed identifier")
	// ErrExpired is returned when the timestamp falls outside the freshness
	// window.
	ErrExpired = errors.New("machineid: signed identifier outside freshness window")
	// ErrBadSignature is returned when the recomputed tag does not match.
	ErrBadSignature = errors.New("machineid: signature mismatch")
	// ErrFormatOnly is returned by Verify in the no-secret fallback mode to
	// flag that only a shape check was performed, not a cryptographic one.
	ErrFormatOnly = errors.New("machineid: verified by format only, no shared secret provisioned")
)

// Sign produces `fingerprint:unix_seconds:truncated_16_hex_tag` where the
// tag is an HMAC-SHA256 over "fingerprint:unix_seconds" keyed by secret,
// truncated to its first 16 hex characters.
func Sign(fingerprint string, secret []byte, now time.Time) string {
	ts := now.Unix()
	payload := fmt.Sprintf("%s:%d", fingerprint, ts)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	tag := hex.EncodeToString(mac.Sum(nil))[:16]
	return payload + ":" + tag
}

// Verify checks a signed identifier produced by Sign.
//
// If secret is empty, Verify degrades to a format-only check (32-hex
// fingerprint, well-formed timestamp, 16-hex tag) and, when the shape is
// valid, returns ErrFormatOnly instead of nil so callers can distinguish the
// fallback from a genuine cryptographic pass — this mode is a documented
// compatibility fallback, never the default.
//
// Verification fails closed: any error return means the identifier must be
// treated as unverified.
func Verify(signed string, secret []byte, window time.Duration, now time.Time) error {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}

	parts := strings.Split(signed, ":")
	if len(parts) != 3 {
		return ErrMalformed
	}
	fingerprint, tsRaw, tag := parts[0], parts[1], parts[2]

	if len(fingerprint) != FingerprintLength || !isHex(fingerprint) {
		return ErrMalformed
	}

	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return ErrMalformed
	}

	if len(secret) == 0 {
		if len(tag) != 16 || !isHex(tag) {
			return ErrMalformed
		}
		return ErrFormatOnly
	}

	age := now.Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > window {
		return ErrExpired
	}

	payload := fingerprint + ":" + tsRaw
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))[:16]

	if !hmac.Equal([]byte(expected), []byte(tag)) {
		return ErrBadSignature
	}
	return nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}
