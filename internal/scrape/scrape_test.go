package scrape

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hyperifyio/chatsave/internal/transcript"
)

const chatPage = `<!doctype html>
<html>
  <head><title>Google AI Studio</title></head>
  <body>
    <ms-toolbar><h1>  Trip planning  </h1></ms-toolbar>
    <ms-chat-turn data-turn-role="User">
      <div class="turn-content"><p>How far is   Lisbon?</p></div>
      <span class="turn-timestamp" datetime="2024-05-01T10:00:00Z">10:00</span>
    </ms-chat-turn>
    <ms-chat-turn data-turn-role="MODEL">
      <button>Copy</button>
      <div class="turn-content">
        <p>About 300 km.</p>
        <pre><code>if a &lt; b {
    go()
}</code></pre>
        <script>console.log("hidden")</script>
        <span aria-hidden="true">ignored</span>
      </div>
      <time>10:01 AM</time>
    </ms-chat-turn>
    <ms-chat-turn>
      <div class="turn-content">no role here</div>
    </ms-chat-turn>
    <ms-chat-turn data-turn-role="model">
      <ms-text-chunk>   </ms-text-chunk>
    </ms-chat-turn>
    <ms-chat-turn data-turn-role="user">
      <ms-text-chunk>Thanks!</ms-text-chunk>
    </ms-chat-turn>
  </body>
</html>`

func newTestScraper(t *testing.T) *Scraper {
	t.Helper()
	lg := zerolog.Nop()
	s, err := New(Selectors{}, &lg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.Now = func() time.Time { return time.UnixMilli(42) }
	return s
}

func TestScrapeHTML_TurnsRolesAndTitle(t *testing.T) {
	tr, err := newTestScraper(t).ScrapeHTML([]byte(chatPage))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Title() != "Trip planning" {
		t.Fatalf("unexpected title %q", tr.Title())
	}
	if tr.ConversationID() != "generated_42" {
		t.Fatalf("unexpected id %q", tr.ConversationID())
	}
	turns := tr.Turns()
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d: %+v", len(turns), turns)
	}
	if turns[0].Role != transcript.RoleUser || turns[0].Content != "How far is Lisbon?" {
		t.Fatalf("unexpected first turn %+v", turns[0])
	}
	if turns[0].Timestamp != "2024-05-01T10:00:00Z" {
		t.Fatalf("expected timestamp from attribute, got %q", turns[0].Timestamp)
	}
	if turns[1].Role != transcript.RoleModel || turns[1].Timestamp != "10:01 AM" {
		t.Fatalf("unexpected second turn %+v", turns[1])
	}
	if turns[2].Role != transcript.RoleUser || turns[2].Content != "Thanks!" || turns[2].Timestamp != "" {
		t.Fatalf("unexpected third turn %+v", turns[2])
	}
}

func TestScrapeHTML_VisibleTextRules(t *testing.T) {
	tr, err := newTestScraper(t).ScrapeHTML([]byte(chatPage))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	model := tr.Turns()[1].Content
	if !strings.HasPrefix(model, "About 300 km.") {
		t.Fatalf("unexpected content start %q", model)
	}
	if !strings.Contains(model, "if a < b {\n    go()\n}") {
		t.Fatalf("expected preformatted block to keep indentation, got %q", model)
	}
	for _, banned := range []string{"Copy", "console.log", "ignored"} {
		if strings.Contains(model, banned) {
			t.Fatalf("did not expect %q in %q", banned, model)
		}
	}
}

func TestScrapeHTML_DefaultTitle(t *testing.T) {
	tr, err := newTestScraper(t).ScrapeHTML([]byte(`<ms-chat-turn data-turn-role="user"><div class="turn-content">x</div></ms-chat-turn>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Title() != transcript.DefaultTitle {
		t.Fatalf("expected default title, got %q", tr.Title())
	}
}

func TestNew_CustomSelectors(t *testing.T) {
	lg := zerolog.Nop()
	s, err := New(Selectors{Turn: "div.msg", RoleAttr: "data-author", Content: []string{".body"}, Title: []string{"header"}}, &lg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tr, err := s.ScrapeHTML([]byte(`<header>Custom</header><div class="msg" data-author="Model"><div class="body">Hi</div></div>`))
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if tr.Title() != "Custom" || tr.Len() != 1 || tr.Turns()[0].Role != transcript.RoleModel {
		t.Fatalf("unexpected transcript %q %+v", tr.Title(), tr.Turns())
	}
}

func TestNew_InvalidSelector(t *testing.T) {
	if _, err := New(Selectors{Turn: "div[", RoleAttr: "x"}, nil); err == nil {
		t.Fatalf("expected selector compile error")
	}
}

func TestScrapeWithRetry_ExhaustionYieldsEmptyTranscript(t *testing.T) {
	var calls int32
	src := SourceFunc(func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte(`<html><body><p>loading…</p></body></html>`), nil
	})
	tr, err := newTestScraper(t).ScrapeWithRetry(context.Background(), src, RetryPolicy{Attempts: 15, Delay: time.Millisecond})
	if err != nil {
		t.Fatalf("exhaustion must not be an error: %v", err)
	}
	if tr.Len() != 0 || !tr.Empty() {
		t.Fatalf("expected zero turns, got %d", tr.Len())
	}
	if got := atomic.LoadInt32(&calls); got != 15 {
		t.Fatalf("expected 15 attempts, got %d", got)
	}
}

func TestScrapeWithRetry_StopsOnFirstSuccess(t *testing.T) {
	var calls int32
	src := SourceFunc(func(ctx context.Context) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return []byte(`<body></body>`), nil
		}
		return []byte(chatPage), nil
	})
	tr, err := newTestScraper(t).ScrapeWithRetry(context.Background(), src, RetryPolicy{Attempts: 15, Delay: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Len() != 3 {
		t.Fatalf("expected 3 turns, got %d", tr.Len())
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected to stop after 3 attempts, got %d", got)
	}
}

func TestScrapeWithRetry_SnapshotErrorsAreRetried(t *testing.T) {
	var calls int32
	src := SourceFunc(func(ctx context.Context) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("page not ready")
		}
		return []byte(chatPage), nil
	})
	tr, err := newTestScraper(t).ScrapeWithRetry(context.Background(), src, RetryPolicy{Attempts: 3, Delay: time.Millisecond})
	if err != nil || tr.Len() != 3 {
		t.Fatalf("expected recovery after snapshot error, got %v / %d turns", err, tr.Len())
	}
}

func TestScrapeWithRetry_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	src := SourceFunc(func(ctx context.Context) ([]byte, error) { return []byte(`<body></body>`), nil })
	start := time.Now()
	tr, err := newTestScraper(t).ScrapeWithRetry(ctx, src, DefaultRetryPolicy())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if tr.Len() != 0 {
		t.Fatalf("expected empty transcript")
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Fatalf("retry loop did not stop on cancellation")
	}
}

func TestFileSource_RereadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(path, []byte(chatPage), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	tr, err := newTestScraper(t).ScrapeWithRetry(context.Background(), FileSource{Path: path}, RetryPolicy{Attempts: 1})
	if err != nil || tr.Len() != 3 {
		t.Fatalf("unexpected result: %v / %d", err, tr.Len())
	}
}
