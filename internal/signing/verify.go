// Package signing validates the storefront proxy's HMAC-signed requests
// (spec §4.1). Verification is pure and side-effect free; replay tracking
// is the session actor's responsibility (internal/session).
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Reason is a verification failure code. Reasons are safe to return to
// callers for status-code mapping but never logged alongside the
// signature or the shared secret.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonMissingSignature     Reason = "missing_signature"
	ReasonInvalidTimestamp     Reason = "invalid_timestamp"
	ReasonTimestampOutOfRange  Reason = "timestamp_out_of_range"
	ReasonHMACMismatch         Reason = "hmac_mismatch"
	ReasonInternalError        Reason = "internal_error"
)

// MaxTimestampSkew is the ± window (spec §4.1 b) for the optional
// timestamp query parameter.
const MaxTimestampSkew = 300 * time.Second

// Result is the outcome of Verify.
type Result struct {
	OK     bool
	Reason Reason
}

// Request is the subset of an inbound HTTP request Verify needs. Callers
// build this from the net/http request without handing Verify the whole
// *http.Request, keeping the verifier transport-agnostic and easy to
// unit-test.
type Request struct {
	Query url.Values
	Body  []byte
	// HeaderSignature is the value of X-Shopify-Hmac-Sha256, if present.
	HeaderSignature string
	Now             time.Time
}

var signatureQueryKeys = []string{"signature", "hmac", "shopify_hmac"}

// ExtractSignature returns the signature carried by the header or by one
// of the recognized query parameters (spec §4.1 a).
func ExtractSignature(req Request) string {
	if req.HeaderSignature != "" {
		return req.HeaderSignature
	}
	for _, k := range signatureQueryKeys {
		if v := req.Query.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// Canonicalize builds the signed message per spec §4.1: every query
// parameter except signature/hmac/shopify_hmac, grouped by key preserving
// multi-values, keys sorted lexicographically, values for a key joined by
// commas, entries joined by "&" as key=value, with the raw body appended.
func Canonicalize(query url.Values, body []byte) []byte {
	keys := make([]string, 0, len(query))
	for k := range query {
		if isSignatureKey(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(query[k], ","))
	}
	b.Write(body)
	return []byte(b.String())
}

func isSignatureKey(k string) bool {
	for _, sk := range signatureQueryKeys {
		if k == sk {
			return true
		}
	}
	return false
}

// Verify checks signature presence, timestamp freshness, and HMAC-SHA256
// correctness in constant time. It never consults replay state; callers
// pair Verify with the session actor's replay_check for full protection.
func Verify(req Request, secret string) Result {
	sig := ExtractSignature(req)
	if sig == "" {
		return Result{OK: false, Reason: ReasonMissingSignature}
	}

	if ts := req.Query.Get("timestamp"); ts != "" {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return Result{OK: false, Reason: ReasonInvalidTimestamp}
		}
		now := req.Now
		if now.IsZero() {
			now = time.Now()
		}
		delta := now.Sub(time.Unix(sec, 0))
		if delta < 0 {
			delta = -delta
		}
		if delta > MaxTimestampSkew {
			return Result{OK: false, Reason: ReasonTimestampOutOfRange}
		}
	}

	message := Canonicalize(req.Query, req.Body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	expected := mac.Sum(nil)

	decoded, err := decodeSignature(sig, len(expected))
	if err != nil {
		return Result{OK: false, Reason: ReasonHMACMismatch}
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return Result{OK: false, Reason: ReasonHMACMismatch}
	}
	return Result{OK: true}
}

// decodeSignature accepts hex-encoded signatures, the common shape for
// Shopify-style app-proxy HMACs. A signature of the wrong decoded length
// can never match, so it is rejected before the constant-time compare.
func decodeSignature(sig string, wantLen int) ([]byte, error) {
	decoded, err := hex.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if len(decoded) != wantLen {
		return nil, fmt.Errorf("signature length mismatch")
	}
	return decoded, nil
}

// StatusCode maps a Reason to the HTTP status spec §4.1 requires: every
// failure mode is 401 except internal_error, which is 500.
func StatusCode(r Reason) int {
	if r == ReasonInternalError {
		return 500
	}
	return 401
}
