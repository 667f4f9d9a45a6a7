// Package app wires extraction, scraping, rendering, storage and delivery
// into the operations exposed by the CLI and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/chatsave/internal/capture"
	"github.com/hyperifyio/chatsave/internal/extract"
	"github.com/hyperifyio/chatsave/internal/fetch"
	"github.com/hyperifyio/chatsave/internal/render"
	"github.com/hyperifyio/chatsave/internal/scrape"
	"github.com/hyperifyio/chatsave/internal/sink"
	"github.com/hyperifyio/chatsave/internal/store"
	"github.com/hyperifyio/chatsave/internal/transcript"
)

var (
	// ErrNoPayload is returned by Export when nothing has been captured yet.
	ErrNoPayload = errors.New("could not find conversation data")
	// ErrNoConversationID is returned when a page URL names no conversation.
	ErrNoConversationID = errors.New("could not extract conversation id from page url")
	// ErrNoContent is returned when a scrape finds no turns.
	ErrNoContent = errors.New("no conversation content found")
)

type App struct {
	cfg     Config
	log     *zerolog.Logger
	store   store.Store
	chain   *extract.Chain
	scraper *scrape.Scraper
	fetcher *fetch.Client
	now     func() time.Time
}

// Conversion is the result of turning a payload or page into Markdown.
type Conversion struct {
	Transcript transcript.Transcript
	// Strategy names the extraction strategy or "dom" for scraped pages.
	Strategy string
	Markdown string
}

// New opens the configured store and builds the pipeline. A nil logger uses
// the global logger.
func New(ctx context.Context, cfg Config, logger *zerolog.Logger) (*App, error) {
	if logger == nil {
		logger = &log.Logger
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.StoreBackend, cfg.StoreDir, cfg.StoreStrictPerms)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	scr, err := scrape.New(cfg.ScrapeSelectors, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("compile selectors: %w", err)
	}
	a := &App{
		cfg:     cfg,
		log:     logger,
		store:   st,
		chain:   &extract.Chain{Strategies: extract.DefaultStrategies(), Log: logger},
		scraper: scr,
		fetcher: newFetchClient(cfg, logger),
		now:     time.Now,
	}
	if cfg.StoreMaxAge > 0 {
		// Purge is best-effort; a failure must not block startup.
		n, err := st.PurgeOlderThan(ctx, cfg.StoreMaxAge)
		if err != nil {
			logger.Warn().Err(err).Msg("store purge failed; continuing")
		} else if n > 0 {
			logger.Info().Int("removed", n).Dur("maxAge", cfg.StoreMaxAge).Msg("purged expired conversations")
		}
	}
	return a, nil
}

func (a *App) Close() error {
	return a.store.Close()
}

// Config returns the configuration the app was built with.
func (a *App) Config() Config { return a.cfg }

// Store exposes the underlying store for listing and deletion.
func (a *App) Store() store.Store { return a.store }

// Fetcher returns the HTTP client used for URL sources.
func (a *App) Fetcher() *fetch.Client { return a.fetcher }

func (a *App) renderOptions(escape bool) render.Options {
	return render.Options{EscapeInsideCodeFences: escape}
}

// Convert extracts a transcript from a raw payload and renders it.
func (a *App) Convert(raw []byte, escape bool) (Conversion, error) {
	tr, name, err := a.chain.MatchBytes(raw)
	if err != nil {
		return Conversion{}, err
	}
	return Conversion{Transcript: tr, Strategy: name, Markdown: render.Render(tr, a.renderOptions(escape))}, nil
}

// ConvertURL fetches a raw payload from rawURL and converts it.
func (a *App) ConvertURL(ctx context.Context, rawURL string, escape bool) (Conversion, error) {
	body, _, err := a.fetcher.Get(ctx, rawURL)
	if err != nil {
		return Conversion{}, fmt.Errorf("fetch payload: %w", err)
	}
	return a.Convert(body, escape)
}

// Scrape waits for turns to appear in src using the configured retry policy.
// An exhausted scrape returns ErrNoContent together with the empty transcript.
func (a *App) Scrape(ctx context.Context, src scrape.Source, escape bool) (Conversion, error) {
	tr, err := a.scraper.ScrapeWithRetry(ctx, src, scrape.RetryPolicy{Attempts: a.cfg.ScrapeAttempts, Delay: a.cfg.ScrapeDelay})
	if err != nil {
		return Conversion{}, err
	}
	conv := Conversion{Transcript: tr, Strategy: "dom", Markdown: render.Render(tr, a.renderOptions(escape))}
	if tr.Empty() {
		return conv, ErrNoContent
	}
	return conv, nil
}

// HandleCapture stores raw as the last payload, then extracts, renders and
// saves the conversation. pageURL is the page the payload was captured on;
// when it names a conversation, that ID replaces a generated one. The raw
// payload stays stored even when extraction fails.
func (a *App) HandleCapture(ctx context.Context, raw []byte, pageURL string) (store.Record, error) {
	if err := a.store.SaveLastPayload(ctx, raw); err != nil {
		return store.Record{}, fmt.Errorf("save payload: %w", err)
	}
	conv, err := a.Convert(raw, a.cfg.EscapeCode)
	if err != nil {
		a.log.Warn().Err(err).Str("reason", string(extract.ReasonOf(err))).Msg("captured payload has no conversation")
		return store.Record{}, err
	}
	tr := conv.Transcript
	if id, ok := capture.ConversationIDFromURL(pageURL); ok && transcript.IsGeneratedID(tr.ConversationID()) {
		tr = transcript.New(tr.Title(), id, tr.Turns())
	}
	if pageURL == "" {
		pageURL = "unknown"
	}
	rec := store.Record{
		ID:         tr.ConversationID(),
		Title:      tr.Title(),
		SavedAt:    a.now().UTC(),
		URL:        pageURL,
		Markdown:   conv.Markdown,
		Turns:      tr.Len(),
		Transcript: tr,
	}
	if err := a.store.Save(ctx, rec); err != nil {
		return store.Record{}, fmt.Errorf("save conversation: %w", err)
	}
	a.log.Info().Str("id", rec.ID).Str("title", rec.Title).Int("turns", rec.Turns).Str("strategy", conv.Strategy).Msg("saved conversation")
	return rec, nil
}

// CaptureHandler adapts HandleCapture to the interceptor callback.
func (a *App) CaptureHandler(pageURL string) capture.Handler {
	return func(ctx context.Context, c capture.Capture) {
		if _, err := a.HandleCapture(ctx, c.Payload, pageURL); err != nil {
			a.log.Debug().Err(err).Str("capture", c.ID).Str("url", c.URL).Msg("capture not saved")
		}
	}
}

// Export renders the last captured payload for the conversation open at
// pageURL and publishes it through s.
func (a *App) Export(ctx context.Context, pageURL string, s sink.Sink) (sink.Result, error) {
	id, ok := capture.ConversationIDFromURL(pageURL)
	if !ok {
		return sink.Result{}, ErrNoConversationID
	}
	raw, err := a.store.LastPayload(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return sink.Result{}, ErrNoPayload
	}
	if err != nil {
		return sink.Result{}, fmt.Errorf("load payload: %w", err)
	}
	conv, err := a.Convert(raw, a.cfg.EscapeCode)
	if err != nil {
		return sink.Result{}, err
	}
	doc := sink.Document{
		Title:          conv.Transcript.Title(),
		ConversationID: id,
		Markdown:       conv.Markdown,
		Turns:          conv.Transcript.Len(),
		SourceURL:      pageURL,
		GeneratedAt:    a.now().UTC(),
	}
	return a.publish(ctx, s, doc)
}

// Publish sends a saved conversation through s.
func (a *App) Publish(ctx context.Context, rec store.Record, s sink.Sink) (sink.Result, error) {
	doc := sink.Document{
		Title:          rec.Title,
		ConversationID: rec.ID,
		Markdown:       rec.Markdown,
		Turns:          rec.Turns,
		GeneratedAt:    a.now().UTC(),
	}
	if rec.URL != "unknown" {
		doc.SourceURL = rec.URL
	}
	return a.publish(ctx, s, doc)
}

// PublishConversion sends a freshly converted conversation through s.
func (a *App) PublishConversion(ctx context.Context, conv Conversion, sourceURL string, s sink.Sink) (sink.Result, error) {
	doc := sink.Document{
		Title:          conv.Transcript.Title(),
		ConversationID: conv.Transcript.ConversationID(),
		Markdown:       conv.Markdown,
		Turns:          conv.Transcript.Len(),
		SourceURL:      sourceURL,
		GeneratedAt:    a.now().UTC(),
	}
	return a.publish(ctx, s, doc)
}

func (a *App) publish(ctx context.Context, s sink.Sink, doc sink.Document) (sink.Result, error) {
	res, err := s.Publish(ctx, doc)
	if err != nil {
		return sink.Result{}, fmt.Errorf("%s sink: %w", s.Name(), err)
	}
	if res.Location != "" {
		a.log.Info().Str("sink", s.Name()).Str("location", res.Location).Msg("published conversation")
	}
	return res, nil
}

// GistSink returns a gist sink configured from the app settings.
func (a *App) GistSink() sink.GistSink {
	return sink.GistSink{
		Token:      a.cfg.GistToken,
		BaseURL:    a.cfg.GistAPI,
		HTTPClient: newHTTPClient(a.cfg.FetchTimeout),
		UserAgent:  a.cfg.UserAgent,
		Log:        a.log,
	}
}

// FileSinkFor returns a file sink for path, choosing PDF output for .pdf.
func FileSinkFor(path string) sink.Sink {
	if isPDFPath(path) {
		return sink.PDFSink{Path: path}
	}
	return sink.FileSink{Path: path}
}
