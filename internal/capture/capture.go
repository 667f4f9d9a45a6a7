// Package capture observes HTTP traffic for conversation payload responses.
package capture

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/chatsave/internal/payload"
)

// Capture is one intercepted payload response.
type Capture struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Method     string    `json:"method"`
	ReceivedAt time.Time `json:"receivedAt"`
	// Payload is the response body as received.
	Payload []byte `json:"payload"`
}

// Handler receives captures. It runs on the goroutine performing the request.
type Handler func(ctx context.Context, c Capture)

// IsGetPromptURL reports whether url looks like the prompt-loading endpoint.
func IsGetPromptURL(url string) bool {
	if url == "" {
		return false
	}
	if strings.Contains(url, "MakerSuiteService/GetPrompt") {
		return true
	}
	if !strings.HasSuffix(url, "/GetPrompt") {
		return false
	}
	return strings.Contains(url, "makersuite") || strings.Contains(url, "alkali") || strings.Contains(url, "google")
}

var promptPageRe = regexp.MustCompile(`aistudio\.google\.com(?:/u/\d+)?/(?:app/)?prompts/([a-zA-Z0-9_-]+)`)

// ConversationIDFromURL extracts the prompt ID from a chat page URL.
func ConversationIDFromURL(pageURL string) (string, bool) {
	m := promptPageRe.FindStringSubmatch(pageURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// xssiPrefix guards some JSON responses against script inclusion.
const xssiPrefix = ")]}'"

// Interceptor is an http.RoundTripper that copies matching successful JSON
// array responses to Handler. The response returned to the caller is always
// the one produced by Next, with its body intact.
type Interceptor struct {
	Next    http.RoundTripper
	Handler Handler
	// Match selects requests to inspect. Nil uses IsGetPromptURL.
	Match func(url string) bool
	Log   *zerolog.Logger
	Now   func() time.Time
}

func (i *Interceptor) logger() *zerolog.Logger {
	if i.Log == nil {
		return &log.Logger
	}
	return i.Log
}

func (i *Interceptor) next() http.RoundTripper {
	if i.Next == nil {
		return http.DefaultTransport
	}
	return i.Next
}

func (i *Interceptor) matches(url string) bool {
	if i.Match == nil {
		return IsGetPromptURL(url)
	}
	return i.Match(url)
}

// RoundTrip implements http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := i.next().RoundTrip(req)
	if err != nil || resp == nil || !i.matches(req.URL.String()) {
		return resp, err
	}
	lg := i.logger().With().Str("url", req.URL.String()).Str("method", req.Method).Logger()
	if resp.StatusCode != http.StatusOK {
		lg.Warn().Int("status", resp.StatusCode).Msg("prompt request failed")
		return resp, nil
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		lg.Error().Err(readErr).Msg("reading prompt response")
		resp.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), errReader{readErr}))
		return resp, nil
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	raw := bytes.TrimSpace(bytes.TrimPrefix(bytes.TrimSpace(body), []byte(xssiPrefix)))
	v, err := payload.Decode(raw)
	if err != nil {
		lg.Error().Err(err).Int("bytes", len(body)).Msg("parsing prompt response")
		return resp, nil
	}
	if !v.IsSequence() {
		lg.Error().Str("kind", v.Kind().String()).Msg("prompt response is not an array")
		return resp, nil
	}
	lg.Debug().Int("length", v.Len()).Bool("title", v.Path(4, 0).Kind() == payload.String).
		Bool("conversation", v.At(13).IsSequence()).Msg("captured prompt response")
	if i.Handler != nil {
		i.Handler(req.Context(), Capture{
			ID:         uuid.New().String(),
			URL:        req.URL.String(),
			Method:     req.Method,
			ReceivedAt: i.now(),
			Payload:    raw,
		})
	}
	return resp, nil
}

func (i *Interceptor) now() time.Time {
	if i.Now == nil {
		return time.Now()
	}
	return i.Now()
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
