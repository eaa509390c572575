package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shpitdev/inbound-lead-agent/internal/fetch"
	"github.com/shpitdev/inbound-lead-agent/internal/mockproviders"
)

const acmePage = `<!doctype html>
<html><head><title> Acme | Analytics </title><style>body{color:red}</style></head>
<body>
<nav><a href="/">Home</a></nav>
<main>
  <h1>Acme Analytics</h1>
  <p>We help   retailers
     forecast demand.</p>
  <ul><li>Real-time dashboards</li><li>Warehouse sync</li></ul>
  <script>var tracking = "should not appear";</script>
</main>
<footer>Copyright</footer>
</body></html>`

func TestPage(t *testing.T) {
	t.Parallel()

	srv := mockproviders.New()
	srv.SetPage("acme", acmePage)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	f := fetch.New(fetch.Options{PerHostRPS: 100, AllowPrivateNetworks: true})
	page, err := f.Page(context.Background(), ts.URL+"/pages/acme")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.Title != "Acme | Analytics" {
		t.Fatalf("title=%q", page.Title)
	}
	want := "Acme Analytics\nWe help retailers forecast demand.\nReal-time dashboards\nWarehouse sync"
	if page.Text != want {
		t.Fatalf("text mismatch:\n--- got ---\n%s\n--- want ---\n%s", page.Text, want)
	}
	for _, banned := range []string{"tracking", "Copyright", "Home", "color:red"} {
		if strings.Contains(page.Text, banned) {
			t.Fatalf("text should not contain %q: %q", banned, page.Text)
		}
	}
}

func TestPage_Truncates(t *testing.T) {
	t.Parallel()

	srv := mockproviders.New()
	srv.SetPage("long", "<html><body><p>"+strings.Repeat("a", 50)+"</p></body></html>")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	f := fetch.New(fetch.Options{MaxChars: 10, AllowPrivateNetworks: true})
	page, err := f.Page(context.Background(), ts.URL+"/pages/long")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.Text != strings.Repeat("a", 10) || !page.Truncated {
		t.Fatalf("unexpected page: %#v", page)
	}
}

func TestPage_Errors(t *testing.T) {
	t.Parallel()

	srv := mockproviders.New()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	f := fetch.New(fetch.Options{AllowPrivateNetworks: true})
	tests := []struct {
		name string
		url  string
	}{
		{name: "relative", url: "/pages/acme"},
		{name: "ftp", url: "ftp://example.com/file"},
		{name: "not_found", url: ts.URL + "/pages/missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.Page(context.Background(), tt.url); err == nil {
				t.Fatalf("expected error for %q", tt.url)
			}
		})
	}
}

func TestPage_RefusesNonPublicAddresses(t *testing.T) {
	t.Parallel()

	var hits int
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		_, _ = w.Write([]byte("INTERNAL-SECRET aws_secret=abc"))
	}))
	defer ts.Close()
	port := ts.URL[strings.LastIndex(ts.URL, ":")+1:]

	f := fetch.New(fetch.Options{})
	tests := []struct {
		name string
		url  string
	}{
		{name: "loopback", url: ts.URL + "/latest/meta-data"},
		{name: "localhost_name", url: "http://localhost:" + port + "/latest/meta-data"},
		{name: "metadata", url: "http://169.254.169.254/latest/meta-data"},
		{name: "private", url: "http://10.0.0.1/"},
		{name: "shared_space", url: "http://100.64.0.1/"},
		{name: "ipv6_loopback", url: "http://[::1]:" + port + "/"},
		{name: "mapped_v4", url: "http://[::ffff:127.0.0.1]:" + port + "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.Page(context.Background(), tt.url)
			if !errors.Is(err, fetch.ErrBlockedAddress) {
				t.Fatalf("expected ErrBlockedAddress for %q, got page=%#v err=%v", tt.url, page, err)
			}
		})
	}

	mu.Lock()
	defer mu.Unlock()
	if hits != 0 {
		t.Fatalf("blocked fetches reached the server %d times", hits)
	}
}
