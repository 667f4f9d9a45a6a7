package capture

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

var (
	installMu sync.Mutex
	active    *Interceptor
	previous  http.RoundTripper
)

// Install wraps http.DefaultTransport with an Interceptor delivering to h.
// Only one interceptor is active per process: a repeated call returns the
// active one and false without wrapping again.
func Install(h Handler, logger *zerolog.Logger) (*Interceptor, bool) {
	installMu.Lock()
	defer installMu.Unlock()
	if active != nil {
		active.logger().Debug().Msg("interceptor already installed")
		return active, false
	}
	previous = http.DefaultTransport
	active = &Interceptor{Next: previous, Handler: h, Log: logger}
	http.DefaultTransport = active
	active.logger().Info().Msg("network interceptor installed")
	return active, true
}

// Uninstall restores the transport that Install replaced. It reports whether
// an interceptor was removed; calling it again is a no-op.
func Uninstall() bool {
	installMu.Lock()
	defer installMu.Unlock()
	if active == nil {
		return false
	}
	http.DefaultTransport = previous
	active.logger().Info().Msg("network interceptor removed")
	active, previous = nil, nil
	return true
}

// Active returns the installed interceptor, if any.
func Active() (*Interceptor, bool) {
	installMu.Lock()
	defer installMu.Unlock()
	return active, active != nil
}
