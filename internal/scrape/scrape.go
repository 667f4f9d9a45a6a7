// Package scrape reads a conversation out of a rendered chat page.
package scrape

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"

	"github.com/hyperifyio/chatsave/internal/transcript"
)

// Selectors locate the parts of a rendered conversation. Selector strings use
// CSS syntax; comma groups are allowed.
type Selectors struct {
	// Turn matches the repeated turn containers, in document order.
	Turn string
	// RoleAttr is the attribute on a turn container naming its role.
	RoleAttr string
	// Content is tried in order inside a container; the first match wins.
	Content []string
	// Timestamp matches an optional element inside a container.
	Timestamp string
	// TimestampAttrs are read before falling back to the element's text.
	TimestampAttrs []string
	// Title is tried in order against the whole document.
	Title []string
}

// DefaultSelectors matches the AI Studio chat layout.
func DefaultSelectors() Selectors {
	return Selectors{
		Turn:           "ms-chat-turn",
		RoleAttr:       "data-turn-role",
		Content:        []string{".turn-content", "ms-cmark-node", "ms-text-chunk"},
		Timestamp:      ".turn-timestamp, time",
		TimestampAttrs: []string{"datetime", "title"},
		Title:          []string{"ms-toolbar h1", ".page-title h1", "h1"},
	}
}

type compiled struct {
	turn      cascadia.Selector
	content   []cascadia.Selector
	timestamp cascadia.Selector
	title     []cascadia.Selector
}

// Scraper turns an HTML snapshot into a transcript. It holds no per-call
// state and may be shared.
type Scraper struct {
	sel      Selectors
	compiled compiled
	// Log receives skipped-turn warnings. Nil uses the global logger.
	Log *zerolog.Logger
	// Now stamps generated conversation IDs. Nil uses time.Now.
	Now func() time.Time
}

// New compiles sel. A zero Selectors value uses DefaultSelectors.
func New(sel Selectors, logger *zerolog.Logger) (*Scraper, error) {
	if sel.Turn == "" {
		sel = DefaultSelectors()
	}
	s := &Scraper{sel: sel, Log: logger}
	var err error
	if s.compiled.turn, err = cascadia.Compile(sel.Turn); err != nil {
		return nil, fmt.Errorf("turn selector %q: %w", sel.Turn, err)
	}
	for _, c := range sel.Content {
		m, err := cascadia.Compile(c)
		if err != nil {
			return nil, fmt.Errorf("content selector %q: %w", c, err)
		}
		s.compiled.content = append(s.compiled.content, m)
	}
	if sel.Timestamp != "" {
		if s.compiled.timestamp, err = cascadia.Compile(sel.Timestamp); err != nil {
			return nil, fmt.Errorf("timestamp selector %q: %w", sel.Timestamp, err)
		}
	}
	for _, t := range sel.Title {
		m, err := cascadia.Compile(t)
		if err != nil {
			return nil, fmt.Errorf("title selector %q: %w", t, err)
		}
		s.compiled.title = append(s.compiled.title, m)
	}
	return s, nil
}

// Selectors returns the selectors the scraper was built with.
func (s *Scraper) Selectors() Selectors { return s.sel }

func (s *Scraper) logger() *zerolog.Logger {
	if s.Log == nil {
		return &log.Logger
	}
	return s.Log
}

func (s *Scraper) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// ScrapeHTML parses input and scrapes it.
func (s *Scraper) ScrapeHTML(input []byte) (transcript.Transcript, error) {
	doc, err := html.Parse(bytes.NewReader(input))
	if err != nil {
		return transcript.Transcript{}, fmt.Errorf("parse html: %w", err)
	}
	tr, _ := s.scan(doc)
	return tr, nil
}

// scan returns the transcript and the number of turn containers seen.
func (s *Scraper) scan(doc *html.Node) (transcript.Transcript, int) {
	lg := s.logger()
	containers := s.compiled.turn.MatchAll(doc)
	turns := make([]transcript.Turn, 0, len(containers))
	for i, c := range containers {
		role, ok := s.role(c)
		if !ok {
			lg.Warn().Int("turn", i).Str("attr", s.sel.RoleAttr).Msg("skipping turn without role attribute")
			continue
		}
		content := s.content(c)
		if content == "" {
			lg.Warn().Int("turn", i).Str("role", string(role)).Msg("skipping turn without content")
			continue
		}
		turns = append(turns, transcript.Turn{Role: role, Content: content, Timestamp: s.timestamp(c)})
	}
	lg.Debug().Int("containers", len(containers)).Int("turns", len(turns)).Msg("scanned document")
	return transcript.New(s.title(doc), transcript.GeneratedID(s.now()), turns), len(containers)
}

func (s *Scraper) role(n *html.Node) (transcript.Role, bool) {
	v, ok := attr(n, s.sel.RoleAttr)
	if !ok {
		return "", false
	}
	if cases.Fold().String(strings.TrimSpace(v)) == "user" {
		return transcript.RoleUser, true
	}
	return transcript.RoleModel, true
}

func (s *Scraper) content(n *html.Node) string {
	for _, m := range s.compiled.content {
		if el := m.MatchFirst(n); el != nil {
			return VisibleText(el)
		}
	}
	return ""
}

func (s *Scraper) timestamp(n *html.Node) string {
	if s.compiled.timestamp == nil {
		return ""
	}
	el := s.compiled.timestamp.MatchFirst(n)
	if el == nil {
		return ""
	}
	for _, a := range s.sel.TimestampAttrs {
		if v, ok := attr(el, a); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return VisibleText(el)
}

func (s *Scraper) title(doc *html.Node) string {
	for _, m := range s.compiled.title {
		if el := m.MatchFirst(doc); el != nil {
			if t := VisibleText(el); t != "" {
				return t
			}
		}
	}
	return transcript.DefaultTitle
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}
