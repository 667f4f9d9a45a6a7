package sink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileSink writes the Markdown to Path and, unless NoManifest is set, a
// machine-readable sidecar next to it.
type FileSink struct {
	Path       string
	NoManifest bool
}

func (s FileSink) Name() string { return "file" }

func (s FileSink) Publish(_ context.Context, doc Document) (Result, error) {
	if strings.TrimSpace(s.Path) == "" {
		return Result{}, fmt.Errorf("file sink: empty path")
	}
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, err
		}
	}
	if err := os.WriteFile(s.Path, []byte(doc.Markdown+"\n"), 0o644); err != nil {
		return Result{}, fmt.Errorf("write markdown: %w", err)
	}
	if !s.NoManifest {
		b, err := marshalManifestJSON(manifestFor(doc))
		if err != nil {
			return Result{}, err
		}
		if err := os.WriteFile(deriveManifestSidecarPath(s.Path), b, 0o644); err != nil {
			return Result{}, fmt.Errorf("write manifest: %w", err)
		}
	}
	return Result{Location: s.Path}, nil
}

// manifest records what was written, for auditing and de-duplication.
type manifest struct {
	Title          string    `json:"title"`
	ConversationID string    `json:"conversation_id"`
	SourceURL      string    `json:"source_url,omitempty"`
	Turns          int       `json:"turns"`
	SHA256         string    `json:"sha256"`
	Chars          int       `json:"chars"`
	GeneratedAt    time.Time `json:"generated_at"`
}

func manifestFor(doc Document) manifest {
	at := doc.GeneratedAt
	if at.IsZero() {
		at = time.Now()
	}
	return manifest{
		Title:          strings.TrimSpace(doc.Title),
		ConversationID: doc.ConversationID,
		SourceURL:      doc.SourceURL,
		Turns:          doc.Turns,
		SHA256:         computeSHA256Hex(doc.Markdown),
		Chars:          len(doc.Markdown),
		GeneratedAt:    at.UTC(),
	}
}

// computeSHA256Hex returns a lowercase hex-encoded SHA-256 of the given text.
func computeSHA256Hex(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func marshalManifestJSON(m manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// deriveManifestSidecarPath returns a sidecar JSON path next to the output Markdown.
func deriveManifestSidecarPath(outputPath string) string {
	return outputPath + ".manifest.json"
}
