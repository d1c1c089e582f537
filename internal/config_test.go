package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pkgconfig "github.com/starford/reblog/pkg/config"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
}

func TestHTTPConfig_PortRange(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		cfg := HTTPConfig{Port: port}
		if err := cfg.Validate(); err == nil {
			t.Errorf("port %d should fail validation", port)
		}
	}
	cfg := HTTPConfig{Port: 9000}
	if got := cfg.Address(); got != ":9000" {
		t.Errorf("Address() = %q", got)
	}
}

func TestContentConfig_PathRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Content.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty content path should fail validation")
	}
}

func TestContentConfig_NegativeWorkers(t *testing.T) {
	cfg := ContentConfig{Path: "posts", Workers: -2}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative workers should fail validation")
	}
}

func TestSiteConfig_Domain(t *testing.T) {
	cases := map[string]bool{
		"":                         true,
		"https://blog.example.com": true,
		"not a url":                false,
	}
	for domain, ok := range cases {
		cfg := SiteConfig{Domain: domain}
		err := cfg.Validate()
		if ok && err != nil {
			t.Errorf("domain %q: unexpected error %v", domain, err)
		}
		if !ok && err == nil {
			t.Errorf("domain %q: expected error", domain)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("REBLOG_TEST_DOMAIN", "https://blog.example.com")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `app:
  log_level: debug
  http:
    port: 9090
content:
  path: ./content
  watch: false
  workers: 4
  debounce: 1s
site:
  domain: ${REBLOG_TEST_DOMAIN}
render:
  highlight_style: monokai
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.Content.Path != "./content" || cfg.Content.Watch {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Content.Workers != 4 || cfg.Content.Debounce != time.Second {
		t.Errorf("unexpected content config: %+v", cfg.Content)
	}
	if cfg.Site.Domain != "https://blog.example.com" {
		t.Errorf("domain = %q", cfg.Site.Domain)
	}
	if cfg.Render.HighlightStyle != "monokai" {
		t.Errorf("highlight style = %q", cfg.Render.HighlightStyle)
	}
}

func TestLoadConfigFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("app:\n  http:\n    port: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := pkgconfig.Load(path, NewDefaultConfig()); err == nil {
		t.Fatal("expected validation error")
	}
}
