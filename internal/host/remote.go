package host

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type remoteAddrKey struct{}

// WithRemoteAddr returns a context carrying the client network address.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey{}, addr)
}

// RemoteAddrFrom returns the client address stored in ctx, or Unknown.
func RemoteAddrFrom(ctx context.Context) string {
	if ctx == nil {
		return Unknown
	}
	if addr, ok := ctx.Value(remoteAddrKey{}).(string); ok && addr != "" {
		return addr
	}
	return Unknown
}

// Middleware stamps the client address of each request into its context
// so operations invoked while serving it are attributed to the client.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithRemoteAddr(r.Context(), clientAddr(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientAddr prefers the first X-Forwarded-For hop, then RemoteAddr without port.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return h
	}
	return r.RemoteAddr
}
