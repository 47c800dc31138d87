package auditlog

import (
	"net"
	"net/http"
	"strings"
)

// RequestMeta carries the request attribution an audit record needs,
// decoupled from net/http so the login service can be driven from tests
// without a real request.
type RequestMeta struct {
	ForwardedFor   string // X-Forwarded-For
	RealIP         string // X-Real-IP
	CFConnectingIP string // CF-Connecting-IP
	RemoteAddr     string // transport-level peer address
	UserAgent      string
	RequestID      string
}

// MetaFromRequest extracts attribution headers from an HTTP request.
func MetaFromRequest(r *http.Request) RequestMeta {
	return RequestMeta{
		ForwardedFor:   r.Header.Get("X-Forwarded-For"),
		RealIP:         r.Header.Get("X-Real-IP"),
		CFConnectingIP: r.Header.Get("CF-Connecting-IP"),
		RemoteAddr:     r.RemoteAddr,
		UserAgent:      r.UserAgent(),
	}
}

// ClientIP resolves the client address, preferring proxy-supplied headers
// over the socket address. This is correct only behind a trusted proxy
// that sets these headers; exposed directly, the headers are spoofable.
func (m RequestMeta) ClientIP() string {
	if ip := firstForwardedFor(m.ForwardedFor); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(m.RealIP); ip != "" && !strings.EqualFold(ip, "unknown") {
		return ip
	}
	if ip := strings.TrimSpace(m.CFConnectingIP); ip != "" {
		return ip
	}
	return peerAddress(m.RemoteAddr)
}

// firstForwardedFor returns the first comma-separated X-Forwarded-For
// token, trimmed, unless the header is empty or the literal "unknown".
func firstForwardedFor(header string) string {
	header = strings.TrimSpace(header)
	if header == "" || strings.EqualFold(header, "unknown") {
		return ""
	}
	first := header
	if idx := strings.Index(header, ","); idx >= 0 {
		first = header[:idx]
	}
	return strings.TrimSpace(first)
}

// peerAddress strips the port from a host:port remote address.
func peerAddress(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
