package scrape

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/net/html"

	"github.com/hyperifyio/chatsave/internal/fetch"
	"github.com/hyperifyio/chatsave/internal/transcript"
)

// Source supplies the current state of a page, which may still be filling in
// between calls.
type Source interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]byte, error)

func (f SourceFunc) Snapshot(ctx context.Context) ([]byte, error) { return f(ctx) }

// FileSource re-reads a saved page on every snapshot.
type FileSource struct{ Path string }

func (f FileSource) Snapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(f.Path)
}

// URLSource fetches a live page on every snapshot.
type URLSource struct {
	Client *fetch.Client
	URL    string
}

func (u URLSource) Snapshot(ctx context.Context) ([]byte, error) {
	body, _, err := u.Client.Get(ctx, u.URL)
	return body, err
}

// RetryPolicy bounds how long to wait for turns to appear.
type RetryPolicy struct {
	// Attempts includes the first, immediate attempt.
	Attempts int
	// Delay separates attempts.
	Delay time.Duration
}

// DefaultRetryPolicy is 15 attempts one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 15, Delay: time.Second}
}

// ScrapeWithRetry snapshots src until turn containers appear or the attempts
// run out. Waiting is done on a timer and honours ctx. Exhausted attempts
// yield an empty transcript and a nil error; only ctx cancellation is an
// error.
func (s *Scraper) ScrapeWithRetry(ctx context.Context, src Source, p RetryPolicy) (transcript.Transcript, error) {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	lg := s.logger()
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		tr, found, err := s.attempt(ctx, src)
		switch {
		case err != nil:
			lg.Warn().Err(err).Int("attempt", attempt).Msg("page snapshot failed")
		case found > 0:
			lg.Debug().Int("attempt", attempt).Int("turns", tr.Len()).Msg("turn containers found")
			return tr, nil
		default:
			lg.Debug().Int("attempt", attempt).Int("max", p.Attempts).Msg("no turn containers yet")
		}
		if attempt == p.Attempts {
			break
		}
		if timer == nil {
			timer = time.NewTimer(p.Delay)
		} else {
			timer.Reset(p.Delay)
		}
		select {
		case <-ctx.Done():
			return transcript.New("", transcript.GeneratedID(s.now()), nil), ctx.Err()
		case <-timer.C:
		}
	}
	lg.Warn().Int("attempts", p.Attempts).Msg("no conversation turns found on page")
	return transcript.New("", transcript.GeneratedID(s.now()), nil), nil
}

func (s *Scraper) attempt(ctx context.Context, src Source) (transcript.Transcript, int, error) {
	if err := ctx.Err(); err != nil {
		return transcript.Transcript{}, 0, err
	}
	raw, err := src.Snapshot(ctx)
	if err != nil {
		return transcript.Transcript{}, 0, fmt.Errorf("snapshot: %w", err)
	}
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return transcript.Transcript{}, 0, fmt.Errorf("parse html: %w", err)
	}
	tr, found := s.scan(doc)
	return tr, found, nil
}
