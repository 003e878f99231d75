package config

import (
	"testing"
	"time"
)

// setenv wraps t.Setenv for readability in table-ish tests.
func setenv(t *testing.T, k, v string) {
	t.Helper()
	t.Setenv(k, v)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("server defaults wrong: %+v", cfg)
	}
	if cfg.History.CacheTTL != 5*time.Minute {
		t.Fatalf("CacheTTL = %v", cfg.History.CacheTTL)
	}
	if cfg.History.PageSizeDefault != 20 || cfg.History.PageSizeMax != 100 {
		t.Fatalf("page sizes = %+v", cfg.History)
	}
	if cfg.History.SearchWindow != 200 || cfg.History.SubscribeWindow != 20 {
		t.Fatalf("windows = %+v", cfg.History)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("base path = %q", cfg.APIBasePath)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("idempotency ttl = %v", cfg.IdempotencyTTL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setenv(t, "CACHE_TTL", "90s")
	setenv(t, "PAGE_SIZE_DEFAULT", "10")
	setenv(t, "PAGE_SIZE_MAX", "50")
	setenv(t, "LOG_LEVEL", "warning") // normalized to warn
	setenv(t, "GIN_MODE", "bogus")    // normalized to release

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.History.CacheTTL != 90*time.Second {
		t.Fatalf("CacheTTL = %v", cfg.History.CacheTTL)
	}
	if cfg.History.PageSizeDefault != 10 || cfg.History.PageSizeMax != 50 {
		t.Fatalf("page sizes = %+v", cfg.History)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("gin mode = %q", cfg.GinMode)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"CACHE_TTL":         "-1s",
		"PAGE_SIZE_DEFAULT": "0",
		"SEARCH_WINDOW":     "0",
		"SUBSCRIBE_WINDOW":  "0",
		"RATE_BURST":        "0",
		"LOG_LEVEL":         "verbose",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			setenv(t, k, v)
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%s should fail validation", k, v)
			}
		})
	}
}

func TestLoad_PageSizeMaxBelowDefault(t *testing.T) {
	setenv(t, "PAGE_SIZE_DEFAULT", "50")
	setenv(t, "PAGE_SIZE_MAX", "10")
	if _, err := Load(); err == nil {
		t.Fatalf("PAGE_SIZE_MAX < PAGE_SIZE_DEFAULT should fail")
	}
}

func Test_normalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":         "",
		"/":        "",
		"api/v1":   "/api/v1",
		"/api/v1/": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func Test_splitCSV(t *testing.T) {
	got := splitCSV(" a, b ,,c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("splitCSV = %v", got)
	}
	if got := splitCSV(""); len(got) != 0 {
		t.Fatalf("splitCSV empty = %v", got)
	}
}
