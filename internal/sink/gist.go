package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultGistAPI is the GitHub REST base URL.
	DefaultGistAPI = "https://api.github.com"
	// GistFileName is the single file each gist carries.
	GistFileName = "gemini_conversation.md"
	// DefaultSourceURL is used in the description when the page is unknown.
	DefaultSourceURL = "https://aistudio.google.com/"
)

// GistSink uploads the Markdown as a private GitHub gist.
type GistSink struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	Log        *zerolog.Logger
}

func (s GistSink) Name() string { return "gist" }

type gistFile struct {
	Content string `json:"content"`
}

type gistRequest struct {
	Description string              `json:"description"`
	Public      bool                `json:"public"`
	Files       map[string]gistFile `json:"files"`
}

type gistResponse struct {
	ID      string `json:"id"`
	HTMLURL string `json:"html_url"`
}

// Description is the gist description for doc.
func Description(doc Document) string {
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = "Gemini Conversation"
	}
	src := strings.TrimSpace(doc.SourceURL)
	if src == "" {
		src = DefaultSourceURL
	}
	return fmt.Sprintf("%s (saved from %s)", title, src)
}

func (s GistSink) Publish(ctx context.Context, doc Document) (Result, error) {
	if strings.TrimSpace(s.Token) == "" {
		return Result{}, ErrMissingToken
	}
	base := s.BaseURL
	if base == "" {
		base = DefaultGistAPI
	}
	body, err := json.Marshal(gistRequest{
		Description: Description(doc),
		Public:      false,
		Files:       map[string]gistFile{GistFileName: {Content: doc.Markdown}},
	})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/gists", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "token "+s.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Content-Type", "application/json")
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	hc := s.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("gist status: %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var gr gistResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return Result{}, fmt.Errorf("decode gist response: %w", err)
	}
	lg := s.Log
	if lg == nil {
		lg = &log.Logger
	}
	lg.Info().Str("gist", gr.ID).Str("url", gr.HTMLURL).Msg("gist created")
	return Result{Location: gr.HTMLURL}, nil
}
