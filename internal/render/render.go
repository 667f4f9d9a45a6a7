// Package render turns a transcript into a Markdown document.
package render

import (
    "strings"

    "github.com/hyperifyio/chatsave/internal/transcript"
)

const (
    fenceMarker = "```"
    separator   = "---"
)

// Options controls rendering.
type Options struct {
    // EscapeInsideCodeFences replaces & < > " ' with named entities on lines
    // inside fenced code blocks. Fence lines and prose are never escaped.
    EscapeInsideCodeFences bool
}

var entityReplacer = strings.NewReplacer(
    "&", "&amp;",
    "<", "&lt;",
    ">", "&gt;",
    `"`, "&quot;",
    "'", "&#39;",
)

// EscapeEntities replaces the five markup metacharacters with named entities.
func EscapeEntities(s string) string { return entityReplacer.Replace(s) }

// RoleLabel is the heading label for a role.
func RoleLabel(r transcript.Role) string {
    if r == transcript.RoleUser { return "User" }
    return "Model"
}

// RoleMarker is the heading glyph for a role.
func RoleMarker(r transcript.Role) string {
    if r == transcript.RoleUser { return "🧑" }
    return "✨"
}

// Heading returns the level-2 heading line of a turn.
func Heading(t transcript.Turn) string {
    h := "## " + RoleMarker(t.Role) + " " + RoleLabel(t.Role)
    if ts := strings.TrimSpace(t.Timestamp); ts != "" {
        h += " _(" + ts + ")_"
    }
    return h
}

// Render produces the document for tr. It is deterministic, never fails and
// never leaves a fenced block open.
func Render(tr transcript.Transcript, opts Options) string {
    title := strings.TrimSpace(tr.Title())
    if title == "" { title = transcript.DefaultTitle }

    lines := make([]string, 0, 2+tr.Len()*8)
    lines = append(lines, "# "+title, "")
    for _, turn := range tr.Turns() {
        lines = append(lines, Heading(turn), "")
        lines = appendContent(lines, turn.Content, opts)
        lines = append(lines, "", separator, "")
    }
    return strings.TrimSpace(strings.Join(lines, "\n"))
}

// appendContent emits content lines while tracking whether the cursor is
// inside a fenced block; an odd number of fences gets a closing fence.
func appendContent(lines []string, content string, opts Options) []string {
    if content == "" { return lines }
    inside := false
    for _, line := range strings.Split(content, "\n") {
        if strings.HasPrefix(strings.TrimSpace(line), fenceMarker) {
            inside = !inside
            lines = append(lines, line)
            continue
        }
        if inside && opts.EscapeInsideCodeFences {
            line = EscapeEntities(line)
        }
        lines = append(lines, line)
    }
    if inside {
        lines = append(lines, fenceMarker)
    }
    return lines
}
