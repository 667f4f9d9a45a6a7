package scrape

import (
	"strings"

	"golang.org/x/net/html"
)

// VisibleText returns the rendered text of n: scripts, styles and hidden
// subtrees are skipped, block elements break lines, and preformatted text
// keeps its whitespace. The result is trimmed.
func VisibleText(n *html.Node) string {
	var b strings.Builder
	collectText(&b, n, false)
	return normalizeLines(b.String())
}

func collectText(b *strings.Builder, n *html.Node, inPre bool) {
	if n.Type == html.ElementNode {
		if isHidden(n) {
			return
		}
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "template", "button", "mat-icon":
			return
		case "pre":
			inPre = true
			b.WriteString("\n")
		case "br":
			b.WriteString("\n")
		case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol", "blockquote", "table", "tr":
			b.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		if inPre {
			b.WriteString(n.Data)
		} else {
			writeInline(b, n.Data)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, inPre)
	}

	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "table":
			b.WriteString("\n\n")
		case "pre", "div", "li", "tr":
			b.WriteString("\n")
		case "td", "th":
			b.WriteString("\t")
		}
	}
}

// writeInline collapses whitespace runs the way a browser lays out inline
// text, dropping leading space at the start of a line.
func writeInline(b *strings.Builder, data string) {
	data = collapseSpaces(data)
	if cur := b.String(); cur == "" || strings.HasSuffix(cur, "\n") || strings.HasSuffix(cur, " ") {
		data = strings.TrimLeft(data, " ")
	}
	b.WriteString(data)
}

func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}

// isHidden reports elements a browser would not render.
func isHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(strings.TrimSpace(a.Val), "true") {
				return true
			}
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

// normalizeLines trims trailing space from every line, keeps leading
// indentation, and folds runs of blank lines into one.
func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\u00a0")
		if line == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
