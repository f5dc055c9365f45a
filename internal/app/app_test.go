package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/tradein/internal/app"
	"github.com/MrWong99/tradein/internal/config"
	"github.com/MrWong99/tradein/internal/lead/mock"
	"github.com/MrWong99/tradein/internal/observe"
)

const testGridPath = "../pricegrid/testdata/grid.csv"

// testConfig returns a defaulted config pointing at the test grid.
func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Grid:   config.GridConfig{Path: testGridPath, Version: "test"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithMetrics(testMetrics(t))}, opts...)
	a, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func post(t *testing.T, srv *httptest.Server, path, body string) (int, []byte) {
	t.Helper()
	resp, err := srv.Client().Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func TestNew_Handler(t *testing.T) {
	t.Parallel()

	store := &mock.Store{}
	a := newApp(t, testConfig(), app.WithLeadStore(store))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if code, body := get(t, srv, path); code != http.StatusOK {
			t.Errorf("GET %s = %d, body %s", path, code, body)
		}
	}

	code, body := post(t, srv, "/v1/quotes",
		`{"trade":{"model":"Nintendo Switch Lite","condition":"good"},"target":{"model":"Nintendo Switch 2"}}`)
	if code != http.StatusOK {
		t.Fatalf("POST /v1/quotes = %d, body %s", code, body)
	}
	var q struct {
		Quote struct {
			TopUp float64 `json:"top_up"`
		} `json:"quote"`
	}
	if err := json.Unmarshal(body, &q); err != nil {
		t.Fatal(err)
	}
	if q.Quote.TopUp != 440 {
		t.Errorf("top_up = %v, want 440", q.Quote.TopUp)
	}

	code, body = post(t, srv, "/v1/turns", `{"session_id":"s1","user":"I have a PS5 Slim 1TB in good condition"}`)
	if code != http.StatusOK {
		t.Fatalf("POST /v1/turns = %d, body %s", code, body)
	}
	if n := len(store.Updates()); n != 1 {
		t.Errorf("lead updates = %d, want 1", n)
	}
}

func TestNew_CorrelationHeader(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), app.WithLeadStore(&mock.Store{}))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header missing")
	}
}

func TestNew_DisabledLeadStore(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig())
	ctx := context.Background()

	if _, err := a.MCP().Call(ctx, "submit_lead", `{"session_id":"s1"}`); err == nil {
		t.Error("submit_lead offered without a lead store")
	}
	out, err := a.MCP().Call(ctx, "quote_top_up",
		`{"trade_model":"Nintendo Switch Lite","trade_condition":"good","target_model":"Nintendo Switch 2"}`)
	if err != nil {
		t.Fatalf("quote_top_up: %v", err)
	}
	if !strings.Contains(out, "440 dollars") {
		t.Errorf("quote_top_up = %s, want spoken 440 dollars", out)
	}
}

func TestNew_WithLeadStoreOffersSubmit(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), app.WithLeadStore(&mock.Store{}))
	out, err := a.MCP().Call(context.Background(), "submit_lead", `{"session_id":"nobody"}`)
	if err != nil {
		t.Fatalf("submit_lead: %v", err)
	}
	if !strings.Contains(out, `"ok":false`) {
		t.Errorf("submit_lead for an empty session = %s, want ok=false", out)
	}
}

func TestNew_LeadStoreBreaker(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	leads := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(leads.Close)

	cfg := testConfig()
	cfg.Lead.BaseURL = leads.URL
	cfg.Lead.APIKey = "k"
	cfg.Lead.BreakerFailures = 2
	cfg.Lead.BreakerReset = time.Hour
	a := newApp(t, cfg)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	for i := range 4 {
		body := fmt.Sprintf(`{"session_id":"b%d","user":"I have a PS4 Pro"}`, i)
		if code, out := post(t, srv, "/v1/turns", body); code != http.StatusOK {
			t.Fatalf("POST /v1/turns = %d, body %s", code, out)
		}
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("lead store hits = %d, want 2 before the breaker opened", n)
	}

	code, body := get(t, srv, "/readyz")
	if code != http.StatusOK {
		t.Errorf("GET /readyz = %d, want 200 while only the lead store is down", code)
	}
	if !strings.Contains(string(body), `"status":"degraded"`) {
		t.Errorf("readyz body = %s, want degraded", body)
	}
}

func TestNew_GridErrors(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Grid.Path = filepath.Join(t.TempDir(), "missing.csv")
	if _, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t))); err == nil {
		t.Error("expected error for missing grid file")
	}

	cfg = testConfig()
	cfg.Extraction.AliasFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t))); err == nil {
		t.Error("expected error for missing alias file")
	}
}

func TestLoadGrid_PostgresFallsBackToCSV(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gc := config.GridConfig{
		Path:        testGridPath,
		PostgresDSN: "postgres://tradein@localhost:notaport/grid",
		Table:       config.DefaultGridTable,
		Version:     "fallback",
	}
	g, err := app.LoadGrid(ctx, gc)
	if err != nil {
		t.Fatalf("LoadGrid: %v", err)
	}
	if g.Version() != "fallback" {
		t.Errorf("version = %q, want fallback", g.Version())
	}

	gc.Path = ""
	if _, err := app.LoadGrid(ctx, gc); err == nil {
		t.Error("expected error without a CSV fallback")
	}
}

func TestBuildEngine(t *testing.T) {
	t.Parallel()

	aliases := filepath.Join(t.TempDir(), "aliases.yaml")
	writeFile(t, aliases, "phrases:\n  - match: [\"game boy\"]\n    brand: Nintendo\n    model: Game Boy\n")

	tests := []struct {
		name string
		cfg  config.ExtractionConfig
	}{
		{"defaults", config.ExtractionConfig{}},
		{"threshold", config.ExtractionConfig{PhoneticThreshold: 0.9}},
		{"no phonetic", config.ExtractionConfig{DisablePhonetic: true}},
		{"alias file", config.ExtractionConfig{AliasFile: aliases}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, err := app.BuildEngine(tt.cfg)
			if err != nil {
				t.Fatalf("BuildEngine: %v", err)
			}
			if e == nil {
				t.Fatal("BuildEngine returned nil engine")
			}
		})
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	gridPath := filepath.Join(dir, "grid.csv")
	writeFile(t, gridPath, "product_family,product_model,variant,condition,trade_in_value_min_sgd,trade_in_value_max_sgd,brand_new_price_sgd,source,confidence,notes\n"+
		"Nintendo,Game Boy,,good,40,60,,survey,0.5,\n")
	aliasPath := filepath.Join(dir, "aliases.yaml")
	writeFile(t, aliasPath, "phrases:\n  - match: [\"game boy\"]\n    brand: Nintendo\n    model: Game Boy\n")

	lv := new(slog.LevelVar)
	old := testConfig()
	a := newApp(t, old, app.WithLeadStore(&mock.Store{}), app.WithLogLevel(lv))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Grid = config.GridConfig{Path: gridPath, Table: config.DefaultGridTable, Version: "2025-07"}
	next.Extraction.AliasFile = aliasPath
	next.Sessions.IdleTTL = time.Hour

	if err := a.ApplyConfig(context.Background(), old, next); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	if lv.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", lv.Level())
	}
	if v := a.Calculator().Grid().Version(); v != "2025-07" {
		t.Errorf("grid version = %q, want 2025-07", v)
	}

	code, body := post(t, srv, "/v1/turns", `{"session_id":"gb","user":"an old Game Boy"}`)
	if code != http.StatusOK {
		t.Fatalf("POST /v1/turns = %d, body %s", code, body)
	}
	var turn struct {
		Extracted map[string]any `json:"extracted"`
	}
	if err := json.Unmarshal(body, &turn); err != nil {
		t.Fatal(err)
	}
	if turn.Extracted["model"] != "Game Boy" {
		t.Errorf("extracted = %v, want model Game Boy from the reloaded aliases", turn.Extracted)
	}
}

func TestApplyConfig_FailedReloadKeepsGrid(t *testing.T) {
	t.Parallel()

	old := testConfig()
	a := newApp(t, old, app.WithLeadStore(&mock.Store{}))

	next := testConfig()
	next.Grid.Path = filepath.Join(t.TempDir(), "missing.csv")
	if err := a.ApplyConfig(context.Background(), old, next); err == nil {
		t.Fatal("expected reload error")
	}
	if v := a.Calculator().Grid().Version(); v != "test" {
		t.Errorf("grid version = %q, want the original test grid", v)
	}
}

func TestRun_Shutdown(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Sessions.IdleTTL = time.Minute
	a, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t)), app.WithLeadStore(&mock.Store{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	// Idempotent.
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}
