package intake

import (
	"encoding/json"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Detector decides whether a submission comes from automated traffic.
// reason is logged, never returned to the client.
type Detector interface {
	IsBot(r *http.Request, body []byte) (bot bool, reason string)
}

// HoneypotField is a form field hidden from humans; bots tend to fill it.
const HoneypotField = "website"

const maxTrackedClients = 10000

var botUserAgent = regexp.MustCompile(`(?i)(curl|wget|python-requests|headless|bot|crawler|spider)`)

// HeuristicDetector flags empty or scripted user agents, a filled honeypot
// field, and clients exceeding a per-IP submission rate.
type HeuristicDetector struct {
	// RatePerIP is submissions per second per client IP. <=0 disables the
	// rate check.
	RatePerIP float64
	Burst     int
	// TrustForwarded uses the first X-Forwarded-For entry as the client IP.
	TrustForwarded bool

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func (d *HeuristicDetector) IsBot(r *http.Request, body []byte) (bool, string) {
	ua := strings.TrimSpace(r.UserAgent())
	if ua == "" {
		return true, "empty user agent"
	}
	if botUserAgent.MatchString(ua) {
		return true, "automated user agent"
	}
	if honeypotFilled(body) {
		return true, "honeypot field filled"
	}
	if !d.allow(d.clientIP(r)) {
		return true, "rate limited"
	}
	return false, ""
}

func honeypotFilled(body []byte) bool {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	v, ok := fields[HoneypotField]
	if !ok || v == nil {
		return false
	}
	s, isString := v.(string)
	return !isString || strings.TrimSpace(s) != ""
}

func (d *HeuristicDetector) clientIP(r *http.Request) string {
	if d.TrustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (d *HeuristicDetector) allow(ip string) bool {
	if d.RatePerIP <= 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.buckets == nil || len(d.buckets) >= maxTrackedClients {
		d.buckets = make(map[string]*rate.Limiter)
	}
	lim, ok := d.buckets[ip]
	if !ok {
		burst := d.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(d.RatePerIP), burst)
		d.buckets[ip] = lim
	}
	return lim.Allow()
}
