package middleware

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IPWhitelist guards the operator endpoints. Entries may be single addresses
// or CIDR prefixes. An empty list allows everyone; a list whose entries are
// all invalid allows no one.
func IPWhitelist(entries []string, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	var prefixes []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if p, err := netip.ParsePrefix(e); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			a = a.Unmap()
			prefixes = append(prefixes, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		log.Warn("ip whitelist: ignoring invalid entry", zap.String("entry", e))
	}
	open := len(entries) == 0

	return func(c *gin.Context) {
		if open || allowedAddr(prefixes, c.ClientIP()) {
			c.Next()
			return
		}
		log.Warn("ip whitelist: denied",
			zap.String("ip", c.ClientIP()),
			zap.String("path", c.Request.URL.Path),
			zap.String("trace_id", GetTraceID(c)))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied", "code": "Forbidden"})
	}
}

func allowedAddr(prefixes []netip.Prefix, ip string) bool {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
