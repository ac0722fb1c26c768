package auth

import (
	"net/http"
	"strings"
)

const (
	HeaderAuthorization  = "Authorization"
	HeaderForwardedUser  = "X-Forwarded-User"
	HeaderForwardedEmail = "X-Forwarded-Email"

	bearerPrefix = "Bearer "
)

//nolint:gochecknoglobals // fixed set of identity headers, in output order
var forwardedHeaders = []string{HeaderForwardedUser, HeaderForwardedEmail}

// NormalizeBearer returns token as an Authorization header value, adding the
// bearer scheme only when it is missing.
func NormalizeBearer(token string) string {
	if strings.HasPrefix(token, bearerPrefix) {
		return token
	}
	return bearerPrefix + token
}

// StripBearer returns the bare token from an Authorization header value.
func StripBearer(value string) string {
	return strings.TrimPrefix(value, bearerPrefix)
}

// ForwardedIdentityFromHeader extracts the proxy-injected identity headers.
// Keys are emitted in canonical form and only when a value is present.
func ForwardedIdentityFromHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(forwardedHeaders))
	if h == nil {
		return out
	}
	for _, name := range forwardedHeaders {
		v := h.Get(name)
		if v == "" {
			// http.Header built by hand may hold the raw lowercase key.
			if vs := h[strings.ToLower(name)]; len(vs) > 0 {
				v = vs[0]
			}
		}
		if v != "" {
			out[name] = v
		}
	}
	return out
}

// ForwardedIdentityFromMap is ForwardedIdentityFromHeader for the plain header
// map carried inside an AuthRequest.
func ForwardedIdentityFromMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(forwardedHeaders))
	for _, name := range forwardedHeaders {
		v := m[name]
		if v == "" {
			v = m[strings.ToLower(name)]
		}
		if v != "" {
			out[name] = v
		}
	}
	return out
}

// OutboundHeaders builds the header set for a call made on behalf of a user:
// the normalized bearer token plus forwarded identity, the latter winning on
// collision. An empty token contributes no Authorization header.
func OutboundHeaders(token string, forwarded map[string]string) map[string]string {
	headers := make(map[string]string, len(forwarded)+1)
	if token != "" {
		headers[HeaderAuthorization] = NormalizeBearer(token)
	}
	for k, v := range forwarded {
		headers[k] = v
	}
	return headers
}
