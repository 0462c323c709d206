package internal

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/sebest/xff"
)

// ClientIP works out the address a credential should be bound to. A
// X-Real-Ip header wins, then the first public address in X-Forwarded-For,
// then the socket peer.
//
// Both headers are taken at face value. They must be set by a trusted
// reverse proxy; a directly exposed server has to be wrapped in
// RemoteXRealIP so clients cannot pick the address their token is bound to.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}

	addr := xff.GetRemoteAddr(r)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}

	return addr
}

// XForwardedForToXRealIP sets X-Real-Ip from the request's forwarding
// headers when no upstream proxy has already done so.
func XForwardedForToXRealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Real-Ip") == "" {
			if ip := ClientIP(r); ip != "" {
				r.Header.Set("X-Real-Ip", ip)
			}
		}

		next.ServeHTTP(w, r)
	})
}

// RemoteXRealIP overwrites X-Real-Ip with the socket peer's address when
// useRemoteAddress is set, discarding anything the client sent. Unix socket
// listeners have no peer address, so localhost is used.
func RemoteXRealIP(useRemoteAddress bool, bindNetwork string, next http.Handler) http.Handler {
	if !useRemoteAddress {
		slog.Debug("skipping middleware, useRemoteAddress is empty")
		return next
	}

	if bindNetwork == "unix" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Set("X-Real-Ip", "127.0.0.1")
			next.ServeHTTP(w, r)
		})
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		r.Header.Set("X-Real-Ip", host)
		next.ServeHTTP(w, r)
	})
}
