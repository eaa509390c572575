// Package fetch retrieves public pages and reduces them to visible text for
// the research agent.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

const (
	defaultMaxChars = 20000
	maxBodyBytes    = 4 << 20
	userAgent       = "inbound-lead-agent/1.0 (+research)"
)

// ErrBlockedAddress is returned for URLs that resolve to loopback, private,
// link-local or otherwise non-public addresses.
var ErrBlockedAddress = errors.New("address is not publicly routable")

type Options struct {
	// MaxChars caps the returned text. Zero means 20000.
	MaxChars int
	// PerHostRPS limits requests per hostname. Zero disables.
	PerHostRPS float64
	// AllowPrivateNetworks disables the public-address check on the default
	// client. Ignored when HTTPClient is set.
	AllowPrivateNetworks bool
	HTTPClient           *http.Client
}

// Page is the visible text of one fetched URL.
type Page struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated,omitempty"`
}

type Fetcher struct {
	http       *http.Client
	publicOnly bool
	maxChars   int
	limits     *hostLimiter
}

func New(opts Options) *Fetcher {
	hc := opts.HTTPClient
	if hc == nil {
		hc = newClient(!opts.AllowPrivateNetworks)
	}
	maxChars := opts.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	var hl *hostLimiter
	if opts.PerHostRPS > 0 {
		hl = newHostLimiter(opts.PerHostRPS, 1)
	}
	return &Fetcher{
		http:       hc,
		publicOnly: opts.HTTPClient == nil && !opts.AllowPrivateNetworks,
		maxChars:   maxChars,
		limits:     hl,
	}
}

// Page fetches raw (absolute http/https URL) and extracts title and body text.
func (f *Fetcher) Page(ctx context.Context, raw string) (Page, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Page{}, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Page{}, fmt.Errorf("url must be absolute http(s), got %q", raw)
	}
	if u.Host == "" {
		return Page{}, fmt.Errorf("url has no host: %q", raw)
	}
	if f.publicOnly {
		if addr, err := netip.ParseAddr(u.Hostname()); err == nil && !publicAddr(addr) {
			return Page{}, fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
		}
	}

	if f.limits != nil {
		if err := f.limits.wait(ctx, u.Host); err != nil {
			return Page{}, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.http.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode/100 != 2 {
		return Page{}, fmt.Errorf("fetch %s: status %s", u.String(), resp.Status)
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.HasPrefix(ct, "text/plain") {
		b, err := io.ReadAll(body)
		if err != nil {
			return Page{}, err
		}
		text, truncated := clip(collapseSpace(string(b)), f.maxChars)
		return Page{URL: u.String(), Text: text, Truncated: truncated}, nil
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}
	title, text := extractText(doc)
	text, truncated := clip(text, f.maxChars)
	return Page{URL: u.String(), Title: title, Text: text, Truncated: truncated}, nil
}

func extractText(doc *goquery.Document) (string, string) {
	title := collapseSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, template, svg, iframe, nav, footer, form").Remove()

	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	var blocks []string
	root.Find("h1, h2, h3, h4, p, li, td, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		// Skip containers whose text is already covered by a nested block.
		if s.Find("p, li").Length() > 0 {
			return
		}
		if t := collapseSpace(s.Text()); t != "" {
			blocks = append(blocks, t)
		}
	})
	if len(blocks) == 0 {
		return title, collapseSpace(root.Text())
	}
	return title, strings.Join(blocks, "\n")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string, max int) (string, bool) {
	r := []rune(s)
	if len(r) <= max {
		return s, false
	}
	return string(r[:max]), true
}

// hostLimiter rate-limits per hostname.
type hostLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
	b  int
}

func newHostLimiter(reqPerSec float64, burst int) *hostLimiter {
	return &hostLimiter{
		m: make(map[string]*rate.Limiter),
		r: rate.Limit(reqPerSec),
		b: burst,
	}
}

func (hl *hostLimiter) wait(ctx context.Context, host string) error {
	hl.mu.Lock()
	lim, ok := hl.m[host]
	if !ok {
		lim = rate.NewLimiter(hl.r, hl.b)
		hl.m[host] = lim
	}
	hl.mu.Unlock()
	return lim.Wait(ctx)
}

// newClient builds the default client. With publicOnly, every dial
// (redirects included) is checked against the resolved address, and no proxy
// is used so the check sees the real peer.
func newClient(publicOnly bool) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if publicOnly {
		dialer.Control = guardDial
	}
	tr := &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if !publicOnly {
		tr.Proxy = http.ProxyFromEnvironment
	}
	return &http.Client{Timeout: 20 * time.Second, Transport: tr}
}

func guardDial(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	if !publicAddr(addr) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
	}
	return nil
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

func publicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		sharedAddressSpace.Contains(addr):
		return false
	}
	return true
}
