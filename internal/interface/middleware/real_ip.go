package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClientIPKey is the gin context key holding the address resolved by RealIP.
const ClientIPKey = "real_ip"

// proxyHeaders are consulted in order; for a list only the left-most entry counts.
var proxyHeaders = []string{"CF-Connecting-IP", "X-Real-IP", "X-Forwarded-For"}

// RealIP resolves the client address that rate-limit keys and access logs use.
// When trustProxy is false the forwarding headers are ignored and only the
// TCP peer address is used.
func RealIP(trustProxy bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ClientIPKey, resolveClientIP(c.Request, trustProxy))
		c.Next()
	}
}

func resolveClientIP(req *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range proxyHeaders {
			v := req.Header.Get(h)
			if i := strings.IndexByte(v, ','); i >= 0 {
				v = v[:i]
			}
			if ip := net.ParseIP(strings.TrimSpace(v)); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(req.RemoteAddr)
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}

// clientIP reads the address stored by RealIP, or the peer address when RealIP did not run.
func clientIP(c *gin.Context) string {
	if ip := c.GetString(ClientIPKey); ip != "" {
		return ip
	}
	if ip := resolveClientIP(c.Request, false); ip != "" {
		return ip
	}
	return "unknown"
}

// routePath prefers the matched route pattern so /user/:id shares one bucket and one log path.
func routePath(c *gin.Context) string {
	if fp := c.FullPath(); fp != "" {
		return fp
	}
	return c.Request.URL.Path
}
