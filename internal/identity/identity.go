// Package identity extracts the caller's identity from request headers.
//
// The identity is the bearer token itself. Shape is the only thing checked
// here; whether a token is acceptable is decided by an Authorizer.
package identity

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"balloon-service/internal/util"
)

const authorizationHeader = "Authorization"

// HeaderLookup is a case-insensitive header source.
type HeaderLookup interface {
	Lookup(name string) (string, bool)
}

// HTTPHeaders adapts an http.Header.
type HTTPHeaders http.Header

func (h HTTPHeaders) Lookup(name string) (string, bool) {
	if v := http.Header(h).Get(name); v != "" {
		return v, true
	}
	// Keys set without canonicalization are not found by Get.
	for k, vs := range h {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0], true
		}
	}
	return "", false
}

// MapHeaders adapts a plain key/value mapping.
type MapHeaders map[string]string

func (h MapHeaders) Lookup(name string) (string, bool) {
	if v, ok := h[name]; ok {
		return v, true
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// ExtractUserName returns the bearer token of the Authorization header.
// ok is false when the header is missing or not of the form "Bearer <token>".
func ExtractUserName(headers HeaderLookup) (userName string, ok bool) {
	if headers == nil {
		return "", false
	}

	value, found := headers.Lookup(authorizationHeader)
	if !found || value == "" {
		util.Debug("Authorization header not found")
		return "", false
	}

	parts := strings.Split(value, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		util.Debug("Authorization header is not a valid bearer token")
		return "", false
	}
	return parts[1], true
}

// FromRequest is ExtractUserName over the request headers.
func FromRequest(r *http.Request) (string, bool) {
	return ExtractUserName(HTTPHeaders(r.Header))
}

// Authorizer restricts identities to a set of shared secrets. The zero value
// accepts every identity.
type Authorizer struct {
	tokens [][]byte
}

// NewAuthorizer builds an Authorizer for the given tokens. Empty entries are
// ignored; with no tokens left every identity is accepted.
func NewAuthorizer(tokens ...string) *Authorizer {
	a := &Authorizer{}
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t != "" {
			a.tokens = append(a.tokens, []byte(t))
		}
	}
	return a
}

// Enforcing reports whether the authorizer restricts identities at all.
func (a *Authorizer) Enforcing() bool {
	return a != nil && len(a.tokens) > 0
}

// Authorize reports whether userName is an accepted identity.
func (a *Authorizer) Authorize(userName string) bool {
	if !a.Enforcing() {
		return userName != ""
	}
	candidate := []byte(userName)
	matched := 0
	for _, t := range a.tokens {
		matched |= subtle.ConstantTimeCompare(candidate, t)
	}
	return matched == 1
}
