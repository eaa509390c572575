// mock-providers serves a local stand-in for Exa and the Slack Web API, used
// for running leadagent without real credentials.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/inbound-lead-agent/internal/mockproviders"
)

func main() {
	addr := defaultString("MOCK_PROVIDERS_ADDR", ":8080")
	apiKey := defaultString("MOCK_EXA_API_KEY", "")
	slackToken := defaultString("MOCK_SLACK_TOKEN", "")
	channels := defaultString("MOCK_SLACK_CHANNELS", "")

	fs := flag.NewFlagSet("mock-providers", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&apiKey, "exa-api-key", apiKey, "Require this x-api-key on Exa endpoints (empty disables)")
	fs.StringVar(&slackToken, "slack-token", slackToken, "Require this bot token on Slack endpoints (empty disables)")
	fs.StringVar(&channels, "channels", channels, "Extra Slack channels as comma-separated id=name pairs (also supports env: MOCK_SLACK_CHANNELS)")
	_ = fs.Parse(os.Args[1:])

	srv := mockproviders.New()
	srv.RequireAPIKey(apiKey)
	srv.RequireSlackToken(slackToken)
	for _, pair := range splitCSV(channels) {
		id, name, ok := strings.Cut(pair, "=")
		if !ok {
			name = id
		}
		srv.AddChannel(strings.TrimSpace(id), strings.TrimSpace(name))
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-providers listening on %s (exa=/search slack=/slack/api/)\n", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
