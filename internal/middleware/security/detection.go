package security

import (
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/Sonrial/family-budget/internal/log"
)

// TrustedProxies are the networks allowed to set forwarding headers.
var TrustedProxies = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
}

var (
	suspiciousPatterns = []string{
		"../", "..\\", ".env", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", ".git", ".ssh",
		"eval(", "javascript:", "<script", "union select",
		"etc/passwd", "cmd.exe",
	}
	suspiciousAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan",
	}
	unusualMethods = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}
)

// Detector flags requests that look like scans. Flagged requests are
// logged and counted, never blocked.
type Detector struct {
	suspicious atomic.Int64
}

func NewDetector() *Detector {
	return &Detector{}
}

// DetectSuspiciousRequest analyzes request patterns for potential threats.
func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	path := strings.ToLower(r.URL.Path)
	query, err := url.QueryUnescape(r.URL.RawQuery)
	if err != nil {
		query = r.URL.RawQuery
	}
	query = strings.ToLower(query)
	for _, p := range suspiciousPatterns {
		if strings.Contains(path, p) || strings.Contains(query, p) {
			return true
		}
	}

	agent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range suspiciousAgents {
		if strings.Contains(agent, a) {
			return true
		}
	}

	for _, m := range unusualMethods {
		if r.Method == m {
			return true
		}
	}

	if len(r.URL.String()) > 2048 {
		return true
	}
	// more than 5 proxy hops
	return strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5
}

func (d *Detector) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.DetectSuspiciousRequest(c.Request) {
			d.suspicious.Add(1)
			ctx := c.Request.Context()
			log.FromContext(ctx).WithComponent(log.ComponentSecurity).WarnContext(ctx, "Suspicious request",
				log.FieldMethod, c.Request.Method,
				log.FieldPath, c.Request.URL.Path,
				log.FieldClientIP, c.ClientIP(),
				log.FieldUserAgent, c.Request.UserAgent())
		}
		c.Next()
	}
}

func (d *Detector) SuspiciousRequests() int64 {
	return d.suspicious.Load()
}
