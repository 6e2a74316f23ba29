package chatproto

import (
	"errors"
	"strings"
)

// ErrInvalidCartID is returned when a cart identifier does not match the
// merchant cart GID shape (spec §6.5).
var ErrInvalidCartID = errors.New("invalid cart id format")

const cartGIDPrefix = "gid://shopify/Cart/"

// NormalizeCartID canonicalizes a merchant cart identifier.
//
// It strips whitespace, drops the sentinel "null" literal (returning ""
// with no error so callers can omit the field from transport), and when
// the "?key=..." suffix is missing but a session-bound cart key is known,
// appends it. A non-empty, non-null value that doesn't match the cart GID
// shape is rejected.
func NormalizeCartID(raw string, sessionCartKey string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	if !strings.HasPrefix(trimmed, cartGIDPrefix) {
		return "", ErrInvalidCartID
	}
	rest := trimmed[len(cartGIDPrefix):]
	if rest == "" {
		return "", ErrInvalidCartID
	}
	if strings.Contains(rest, "?key=") {
		return trimmed, nil
	}
	if sessionCartKey != "" {
		return trimmed + "?key=" + sessionCartKey, nil
	}
	return trimmed, nil
}

// CartKeyFragment extracts the bare "<k>" key fragment from a normalized
// cart GID ("gid://shopify/Cart/<id>?key=<k>"), for callers that need to
// pass sessionCartKey into NormalizeCartID itself — that parameter is the
// bare fragment, not a full GID. Returns "" if id has no "?key=" suffix.
func CartKeyFragment(id string) string {
	idx := strings.Index(id, "?key=")
	if idx < 0 {
		return ""
	}
	return id[idx+len("?key="):]
}
