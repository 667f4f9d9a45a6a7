// Package sink delivers rendered conversations to their destination.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrMissingToken is returned by sinks that need credentials they were not given.
var ErrMissingToken = errors.New("missing access token")

// Document is a rendered conversation ready for delivery.
type Document struct {
	Title          string
	ConversationID string
	Markdown       string
	Turns          int
	// SourceURL is the page the conversation was saved from, if known.
	SourceURL   string
	GeneratedAt time.Time
}

// Result describes where a document ended up.
type Result struct {
	// Location is a file path or URL; empty for stream sinks.
	Location string
}

// Sink accepts rendered text.
type Sink interface {
	Name() string
	Publish(ctx context.Context, doc Document) (Result, error)
}

// WriterSink writes the Markdown to W followed by a newline.
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) Name() string { return "writer" }

func (s WriterSink) Publish(_ context.Context, doc Document) (Result, error) {
	text := doc.Markdown
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if _, err := io.WriteString(s.W, text); err != nil {
		return Result{}, fmt.Errorf("write document: %w", err)
	}
	return Result{}, nil
}
