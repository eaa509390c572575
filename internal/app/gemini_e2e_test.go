//go:build gemini_e2e

package app_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shpitdev/inbound-lead-agent/internal/app"
	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"github.com/shpitdev/inbound-lead-agent/internal/mockproviders"
	"github.com/shpitdev/inbound-lead-agent/internal/pipeline"
	"github.com/shpitdev/inbound-lead-agent/internal/workflow"
)

// Real Gemini, mocked Exa and Slack, simulated SMTP.
func TestRunLocal_RealGemini_EndToEnd(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Fatalf("GEMINI_API_KEY is required for gemini_e2e tests")
	}
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		t.Fatalf("GEMINI_MODEL is required for gemini_e2e tests")
	}

	mock := mockproviders.New()
	ts := httptest.NewServer(mock.Handler())
	t.Cleanup(ts.Close)

	cfg := testConfig(ts.URL)
	cfg.Gemini.APIKey = apiKey
	cfg.Gemini.Model = model
	cfg.Gemini.BaseURL = os.Getenv("GEMINI_BASE_URL")
	cfg.Research.MaxSteps = 6

	ctx := context.Background()
	logger := discardLogger()
	comps, err := app.Build(ctx, cfg, nil, logger)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	runner, err := workflow.NewRunner(comps.Steps, workflow.Options{Timeout: 3 * time.Minute}, logger)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}

	baseDir := t.TempDir()
	if artifactDir := os.Getenv("GEMINI_E2E_ARTIFACT_DIR"); artifactDir != "" {
		if err := os.MkdirAll(artifactDir, 0o755); err != nil {
			t.Fatalf("create GEMINI_E2E_ARTIFACT_DIR: %v", err)
		}
		baseDir = artifactDir
	}
	inputPath := filepath.Join(baseDir, "leads.csv")
	outputPath := filepath.Join(baseDir, "outcomes.csv")

	// Synthetic leads only.
	in := "email,name,company,message\n" +
		"cto@example.com,Alex Doe,Example Retail,\"We run 40 stores and need a faster analytics stack for daily sales reporting.\"\n" +
		"someone@example.org,Sam Roe,,\"My login stopped working, please reset my password.\"\n"
	if err := os.WriteFile(inputPath, []byte(in), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	if err := app.RunLocal(ctx, inputPath, outputPath, pipeline.Options{Workers: 1, FailFast: true}, runner, logger); err != nil {
		t.Fatalf("RunLocal failed: %v", err)
	}

	f, err := os.Open(outputPath)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer func() {
		_ = f.Close()
	}()
	rows, err := pipeline.ReadCSV(f)
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.Status == pipeline.StatusError || row.Status == pipeline.StatusInvalid {
			t.Fatalf("row[%d] failed: %#v", i, row)
		}
		if !lead.ParseCategory(row.Category).Known() {
			t.Fatalf("row[%d] has unknown category %q", i, row.Category)
		}
		if lead.ParseCategory(row.Category).Qualifying() && row.DraftSubject == "" {
			t.Fatalf("row[%d] qualifying without a draft: %#v", i, row)
		}
	}
}
