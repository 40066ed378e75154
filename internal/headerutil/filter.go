// Package headerutil filters and masks HTTP header lists for the proxy's
// outbound and log-recording paths. It operates on plain name/value pairs
// rather than http.Header so the same logic works for both directions
// without round-tripping through net/textproto's canonicalization.
package headerutil

import "strings"

// Pair is a single header name/value.
type Pair struct {
	Name  string
	Value string
}

var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"proxy-connection":    true,
}

// ToUpstream filters a client's request headers for forwarding to a
// backend: it drops hop-by-hop headers (plus any named in the incoming
// Connection header), the inbound Authorization/Host/Content-Length, and
// sets Authorization/Content-Type for the chosen backend.
func ToUpstream(in []Pair, apiKey string) []Pair {
	drop := connectionDropSet(in)
	var out []Pair
	hasContentType := false
	for _, p := range in {
		lower := strings.ToLower(p.Name)
		if hopByHop[lower] || drop[lower] {
			continue
		}
		if lower == "authorization" || lower == "host" || lower == "content-length" {
			continue
		}
		if lower == "content-type" {
			hasContentType = true
		}
		out = append(out, p)
	}
	if apiKey != "" {
		out = append(out, Pair{Name: "Authorization", Value: "Bearer " + apiKey})
	}
	if !hasContentType {
		out = append(out, Pair{Name: "Content-Type", Value: "application/json"})
	}
	return out
}

// FromUpstream filters an upstream backend's response headers for
// forwarding to the client: hop-by-hop plus any Connection-listed names,
// and Content-Length/Transfer-Encoding/Content-Encoding (the forwarder may
// have already decompressed the body).
func FromUpstream(in []Pair) []Pair {
	drop := connectionDropSet(in)
	var out []Pair
	for _, p := range in {
		lower := strings.ToLower(p.Name)
		if hopByHop[lower] || drop[lower] {
			continue
		}
		if lower == "content-length" || lower == "transfer-encoding" || lower == "content-encoding" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// connectionDropSet returns the lowercased set of header names listed in
// any incoming Connection header, which must also be dropped.
func connectionDropSet(in []Pair) map[string]bool {
	drop := map[string]bool{}
	for _, p := range in {
		if strings.ToLower(p.Name) != "connection" {
			continue
		}
		for _, tok := range strings.Split(p.Value, ",") {
			tok = strings.ToLower(strings.TrimSpace(tok))
			if tok != "" {
				drop[tok] = true
			}
		}
	}
	return drop
}

// MaskForLog rewrites sensitive header values for log recording: it never
// forwards these values, only renders them safe to persist.
func MaskForLog(in []Pair) []Pair {
	out := make([]Pair, len(in))
	for i, p := range in {
		lower := strings.ToLower(p.Name)
		switch lower {
		case "authorization":
			out[i] = Pair{Name: p.Name, Value: maskAuthorization(p.Value)}
		case "host":
			out[i] = Pair{Name: p.Name, Value: "<host>"}
		case "proxy-connection":
			out[i] = Pair{Name: p.Name, Value: "<redacted>"}
		default:
			out[i] = p
		}
	}
	return out
}

// maskAuthorization rewrites "<scheme> <token>" to "<scheme> <first-3>****".
func maskAuthorization(v string) string {
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return "****"
	}
	scheme, token := parts[0], parts[1]
	prefixLen := 3
	if len(token) < prefixLen {
		prefixLen = len(token)
	}
	return scheme + " " + token[:prefixLen] + "****"
}
