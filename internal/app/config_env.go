package app

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
    if cfg == nil { return }

    if cfg.StoreDir == "" {
        cfg.StoreDir = os.Getenv("CHATSAVE_STORE_DIR")
    }
    if cfg.StoreBackend == "" {
        cfg.StoreBackend = os.Getenv("CHATSAVE_STORE_BACKEND")
    }
    if cfg.Listen == "" {
        cfg.Listen = os.Getenv("CHATSAVE_LISTEN")
    }
    if cfg.GistToken == "" {
        cfg.GistToken = os.Getenv("GITHUB_TOKEN")
    }
    if cfg.GistAPI == "" {
        cfg.GistAPI = os.Getenv("CHATSAVE_GIST_API")
    }
    if cfg.ScrapeAttempts == 0 {
        if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("CHATSAVE_SCRAPE_ATTEMPTS"))); err == nil && n > 0 {
            cfg.ScrapeAttempts = n
        }
    }
    if cfg.ScrapeDelay == 0 {
        if s := os.Getenv("CHATSAVE_SCRAPE_DELAY"); s != "" {
            if d, err := time.ParseDuration(s); err == nil {
                cfg.ScrapeDelay = d
            }
        }
    }

    setBool := func(dst *bool, envKey string) {
        if *dst { return }
        if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
            if s == "1" || s == "true" || s == "yes" || s == "on" {
                *dst = true
            }
        }
    }
    setBool(&cfg.EscapeCode, "CHATSAVE_ESCAPE_CODE")
    setBool(&cfg.Verbose, "VERBOSE")
}

// ApplyEnvOverrides forcefully overrides cfg fields with environment variables
// when the corresponding env vars are set. This lets env take precedence over
// values coming from a config file while flags remain highest precedence.
func ApplyEnvOverrides(cfg *Config) {
    if cfg == nil { return }

    if v := os.Getenv("CHATSAVE_STORE_DIR"); v != "" { cfg.StoreDir = v }
    if v := os.Getenv("CHATSAVE_STORE_BACKEND"); v != "" { cfg.StoreBackend = v }
    if v := os.Getenv("CHATSAVE_LISTEN"); v != "" { cfg.Listen = v }
    if v := os.Getenv("GITHUB_TOKEN"); v != "" { cfg.GistToken = v }
    if v := os.Getenv("CHATSAVE_GIST_API"); v != "" { cfg.GistAPI = v }

    if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("CHATSAVE_SCRAPE_ATTEMPTS"))); err == nil && n > 0 {
        cfg.ScrapeAttempts = n
    }
    if s := os.Getenv("CHATSAVE_SCRAPE_DELAY"); s != "" {
        if d, err := time.ParseDuration(s); err == nil {
            cfg.ScrapeDelay = d
        }
    }

    // Booleans override when env present and truthy/falsey
    setBool := func(dst *bool, envKey string) {
        if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
            switch s {
            case "1", "true", "yes", "on":
                *dst = true
            case "0", "false", "no", "off":
                *dst = false
            }
        }
    }
    setBool(&cfg.EscapeCode, "CHATSAVE_ESCAPE_CODE")
    setBool(&cfg.Verbose, "VERBOSE")
}
