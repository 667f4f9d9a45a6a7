package app

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    yaml "gopkg.in/yaml.v3"

    "github.com/hyperifyio/chatsave/internal/scrape"
    "github.com/hyperifyio/chatsave/internal/store"
)

// FileConfig represents the single-file configuration schema.
// Nested sections map naturally to flags/env.
type FileConfig struct {
    Store struct {
        Dir         string        `yaml:"dir" json:"dir"`
        Backend     string        `yaml:"backend" json:"backend"`
        StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
        MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
    } `yaml:"store" json:"store"`

    Render struct {
        EscapeCode bool `yaml:"escapeCode" json:"escapeCode"`
    } `yaml:"render" json:"render"`

    Scrape struct {
        Attempts  int           `yaml:"attempts" json:"attempts"`
        Delay     time.Duration `yaml:"delay" json:"delay"`
        Selectors struct {
            Turn           string   `yaml:"turn" json:"turn"`
            RoleAttr       string   `yaml:"roleAttr" json:"roleAttr"`
            Content        []string `yaml:"content" json:"content"`
            Timestamp      string   `yaml:"timestamp" json:"timestamp"`
            TimestampAttrs []string `yaml:"timestampAttrs" json:"timestampAttrs"`
            Title          []string `yaml:"title" json:"title"`
        } `yaml:"selectors" json:"selectors"`
    } `yaml:"scrape" json:"scrape"`

    Fetch struct {
        UserAgent   string        `yaml:"userAgent" json:"userAgent"`
        Timeout     time.Duration `yaml:"timeout" json:"timeout"`
        MaxAttempts int           `yaml:"maxAttempts" json:"maxAttempts"`
    } `yaml:"fetch" json:"fetch"`

    Gist struct {
        Token string `yaml:"token" json:"token"`
        API   string `yaml:"api" json:"api"`
    } `yaml:"gist" json:"gist"`

    Listen  string `yaml:"listen" json:"listen"`
    Verbose bool   `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
    var fc FileConfig
    b, err := os.ReadFile(path)
    if err != nil {
        return fc, err
    }
    switch ext := filepath.Ext(path); ext {
    case ".yaml", ".yml":
        if err := yaml.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse yaml: %w", err)
        }
    case ".json":
        if err := json.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse json: %w", err)
        }
    default:
        // Try YAML then JSON
        if err := yaml.Unmarshal(b, &fc); err != nil {
            if jerr := json.Unmarshal(b, &fc); jerr != nil {
                return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
            }
        }
    }
    return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields that
// are currently unset or still at their flag default.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
    if cfg == nil { return }
    defaults := DefaultConfig()

    if (cfg.StoreDir == "" || cfg.StoreDir == defaults.StoreDir) && fc.Store.Dir != "" { cfg.StoreDir = fc.Store.Dir }
    if (cfg.StoreBackend == "" || cfg.StoreBackend == defaults.StoreBackend) && fc.Store.Backend != "" { cfg.StoreBackend = fc.Store.Backend }
    if !cfg.StoreStrictPerms && fc.Store.StrictPerms { cfg.StoreStrictPerms = true }
    if cfg.StoreMaxAge == 0 && fc.Store.MaxAge > 0 { cfg.StoreMaxAge = fc.Store.MaxAge }

    if !cfg.EscapeCode && fc.Render.EscapeCode { cfg.EscapeCode = true }

    if (cfg.ScrapeAttempts == 0 || cfg.ScrapeAttempts == defaults.ScrapeAttempts) && fc.Scrape.Attempts > 0 { cfg.ScrapeAttempts = fc.Scrape.Attempts }
    if (cfg.ScrapeDelay == 0 || cfg.ScrapeDelay == defaults.ScrapeDelay) && fc.Scrape.Delay > 0 { cfg.ScrapeDelay = fc.Scrape.Delay }
    if cfg.ScrapeSelectors.Turn == "" {
        fs := fc.Scrape.Selectors
        if fs.Turn != "" || fs.RoleAttr != "" || len(fs.Content) > 0 || fs.Timestamp != "" || len(fs.TimestampAttrs) > 0 || len(fs.Title) > 0 {
            sel := scrape.DefaultSelectors()
            if fs.Turn != "" { sel.Turn = fs.Turn }
            if fs.RoleAttr != "" { sel.RoleAttr = fs.RoleAttr }
            if len(fs.Content) > 0 { sel.Content = append([]string{}, fs.Content...) }
            if fs.Timestamp != "" { sel.Timestamp = fs.Timestamp }
            if len(fs.TimestampAttrs) > 0 { sel.TimestampAttrs = append([]string{}, fs.TimestampAttrs...) }
            if len(fs.Title) > 0 { sel.Title = append([]string{}, fs.Title...) }
            cfg.ScrapeSelectors = sel
        }
    }

    if (cfg.UserAgent == "" || cfg.UserAgent == defaults.UserAgent) && fc.Fetch.UserAgent != "" { cfg.UserAgent = fc.Fetch.UserAgent }
    if (cfg.FetchTimeout == 0 || cfg.FetchTimeout == defaults.FetchTimeout) && fc.Fetch.Timeout > 0 { cfg.FetchTimeout = fc.Fetch.Timeout }
    if (cfg.FetchMaxAttempts == 0 || cfg.FetchMaxAttempts == defaults.FetchMaxAttempts) && fc.Fetch.MaxAttempts > 0 { cfg.FetchMaxAttempts = fc.Fetch.MaxAttempts }

    if cfg.GistToken == "" && fc.Gist.Token != "" { cfg.GistToken = fc.Gist.Token }
    if cfg.GistAPI == "" && fc.Gist.API != "" { cfg.GistAPI = fc.Gist.API }

    if (cfg.Listen == "" || cfg.Listen == defaults.Listen) && fc.Listen != "" { cfg.Listen = fc.Listen }
    if !cfg.Verbose && fc.Verbose { cfg.Verbose = true }
}

// ValidateConfig performs minimal schema validation for required settings.
func ValidateConfig(cfg Config) error {
    if strings.TrimSpace(cfg.StoreDir) == "" {
        return errors.New("config: store dir is required")
    }
    switch strings.ToLower(strings.TrimSpace(cfg.StoreBackend)) {
    case "", store.BackendDir, store.BackendBolt:
    default:
        return fmt.Errorf("config: unknown store backend %q", cfg.StoreBackend)
    }
    if cfg.ScrapeAttempts <= 0 {
        return errors.New("config: scrape attempts must be positive")
    }
    if cfg.ScrapeDelay < 0 || cfg.FetchTimeout < 0 || cfg.StoreMaxAge < 0 {
        return errors.New("config: negative durations are not allowed")
    }
    return nil
}
