package app

import (
	"time"

	"github.com/hyperifyio/chatsave/internal/scrape"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Storage
	StoreDir         string
	StoreBackend     string
	StoreStrictPerms bool
	StoreMaxAge      time.Duration

	// Rendering
	EscapeCode bool

	// DOM scraping
	ScrapeAttempts  int
	ScrapeDelay     time.Duration
	ScrapeSelectors scrape.Selectors

	// HTTP fetching
	UserAgent        string
	FetchTimeout     time.Duration
	FetchMaxAttempts int

	// Gist upload
	GistToken string
	GistAPI   string

	// HTTP API
	Listen string

	Verbose    bool
	ConfigPath string
}

const (
	storeDirDefault      = ".chatsave"
	listenDefault        = "127.0.0.1:8787"
	fetchTimeoutDefault  = 15 * time.Second
	fetchAttemptsDefault = 2
)

// DefaultUserAgent identifies chatsave in outgoing requests.
func DefaultUserAgent() string {
	return "chatsave/" + BuildVersion + " (+https://github.com/hyperifyio/chatsave)"
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	p := scrape.DefaultRetryPolicy()
	return Config{
		StoreDir:         storeDirDefault,
		StoreBackend:     "dir",
		ScrapeAttempts:   p.Attempts,
		ScrapeDelay:      p.Delay,
		UserAgent:        DefaultUserAgent(),
		FetchTimeout:     fetchTimeoutDefault,
		FetchMaxAttempts: fetchAttemptsDefault,
		Listen:           listenDefault,
	}
}
