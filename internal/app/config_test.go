package app

import (
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"
)

func TestLoadConfigFile_YAML(t *testing.T) {
    dir := t.TempDir()
    p := filepath.Join(dir, "chatsave.yaml")
    content := `store:
  dir: /data/chats
  backend: bolt
  maxAge: 72h
render:
  escapeCode: true
scrape:
  attempts: 5
  delay: 500ms
  selectors:
    turn: div.turn
    content: [".body"]
gist:
  api: https://gh.example/api
`
    if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
        t.Fatalf("write: %v", err)
    }
    fc, err := LoadConfigFile(p)
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    cfg := DefaultConfig()
    ApplyFileConfig(&cfg, fc)
    if cfg.StoreDir != "/data/chats" || cfg.StoreBackend != "bolt" || cfg.StoreMaxAge != 72*time.Hour {
        t.Fatalf("store settings: %+v", cfg)
    }
    if !cfg.EscapeCode {
        t.Fatalf("expected EscapeCode from file")
    }
    if cfg.ScrapeAttempts != 5 || cfg.ScrapeDelay != 500*time.Millisecond {
        t.Fatalf("scrape settings: attempts=%d delay=%v", cfg.ScrapeAttempts, cfg.ScrapeDelay)
    }
    if cfg.ScrapeSelectors.Turn != "div.turn" || len(cfg.ScrapeSelectors.Content) != 1 {
        t.Fatalf("selectors: %+v", cfg.ScrapeSelectors)
    }
    // Unset selector fields fall back to the defaults.
    if cfg.ScrapeSelectors.RoleAttr != "data-turn-role" {
        t.Fatalf("RoleAttr=%q", cfg.ScrapeSelectors.RoleAttr)
    }
    if cfg.GistAPI != "https://gh.example/api" {
        t.Fatalf("GistAPI=%q", cfg.GistAPI)
    }
}

func TestLoadConfigFile_JSONAndFlagsWin(t *testing.T) {
    dir := t.TempDir()
    p := filepath.Join(dir, "chatsave.json")
    if err := os.WriteFile(p, []byte(`{"store":{"dir":"/from/file"},"listen":":7000"}`), 0o600); err != nil {
        t.Fatalf("write: %v", err)
    }
    fc, err := LoadConfigFile(p)
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    cfg := DefaultConfig()
    cfg.StoreDir = "/from/flag"
    ApplyFileConfig(&cfg, fc)
    if cfg.StoreDir != "/from/flag" {
        t.Fatalf("explicit flag overridden: %q", cfg.StoreDir)
    }
    if cfg.Listen != ":7000" {
        t.Fatalf("Listen=%q, want :7000", cfg.Listen)
    }
}

func TestLoadConfigFile_Invalid(t *testing.T) {
    p := filepath.Join(t.TempDir(), "broken.conf")
    if err := os.WriteFile(p, []byte("store: [unclosed"), 0o600); err != nil {
        t.Fatalf("write: %v", err)
    }
    if _, err := LoadConfigFile(p); err == nil || !strings.Contains(err.Error(), "parse config") {
        t.Fatalf("expected parse error, got %v", err)
    }
}

func TestValidateConfig(t *testing.T) {
    if err := ValidateConfig(DefaultConfig()); err != nil {
        t.Fatalf("defaults should validate: %v", err)
    }
    cases := map[string]func(*Config){
        "empty store dir": func(c *Config) { c.StoreDir = "  " },
        "unknown backend": func(c *Config) { c.StoreBackend = "sqlite" },
        "zero attempts":   func(c *Config) { c.ScrapeAttempts = 0 },
        "negative delay":  func(c *Config) { c.ScrapeDelay = -time.Second },
    }
    for name, mutate := range cases {
        cfg := DefaultConfig()
        mutate(&cfg)
        if err := ValidateConfig(cfg); err == nil {
            t.Fatalf("%s: expected validation error", name)
        }
    }
}

func TestVersionString(t *testing.T) {
    if v := VersionString(); !strings.Contains(v, BuildVersion) || !strings.HasPrefix(v, "chatsave ") {
        t.Fatalf("unexpected version string %q", v)
    }
    if !strings.Contains(DefaultUserAgent(), BuildVersion) {
        t.Fatalf("user agent should carry the version: %q", DefaultUserAgent())
    }
}
