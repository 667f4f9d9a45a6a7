package sink

import (
    "bufio"
    "context"
    "fmt"
    "strings"

    "github.com/jung-kurt/gofpdf"
)

// PDFSink renders the Markdown into a simple PDF at Path. Headings become
// bold lines, fenced blocks use a monospace font, and the rest flows as
// paragraphs. It does not perform full Markdown layout.
type PDFSink struct {
    Path string
}

func (s PDFSink) Name() string { return "pdf" }

func (s PDFSink) Publish(_ context.Context, doc Document) (Result, error) {
    if strings.TrimSpace(s.Path) == "" {
        return Result{}, fmt.Errorf("pdf sink: empty path")
    }
    if err := writeSimplePDF(doc.Title, doc.Markdown, s.Path); err != nil {
        return Result{}, fmt.Errorf("write pdf: %w", err)
    }
    return Result{Location: s.Path}, nil
}

// Core PDF fonts have no glyphs for the role markers.
var markerStripper = strings.NewReplacer("🧑 ", "", "✨ ", "")

func writeSimplePDF(title, markdown string, outPath string) error {
    pdf := gofpdf.New("P", "mm", "A4", "")
    tr := pdf.UnicodeTranslatorFromDescriptor("")
    pdf.SetTitle(title, true)
    pdf.SetFont("Helvetica", "", 11)
    pdf.AddPage()

    inFence := false
    scanner := bufio.NewScanner(strings.NewReader(markdown))
    scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
    for scanner.Scan() {
        line := scanner.Text()
        s := strings.TrimSpace(line)
        if strings.HasPrefix(s, "```") {
            inFence = !inFence
            if inFence {
                pdf.SetFont("Courier", "", 9)
            } else {
                pdf.SetFont("Helvetica", "", 11)
            }
            pdf.Ln(2)
            continue
        }
        if inFence {
            pdf.CellFormat(0, 4, tr(strings.ReplaceAll(line, "\t", "    ")), "", 1, "L", false, 0, "")
            continue
        }
        if s == "" {
            pdf.Ln(5)
            continue
        }
        if s == "---" {
            x, y := pdf.GetXY()
            w, _ := pdf.GetPageSize()
            _, _, right, _ := pdf.GetMargins()
            pdf.Line(x, y, w-right, y)
            pdf.Ln(3)
            continue
        }
        if strings.HasPrefix(s, "#") {
            i := 0
            for i < len(s) && s[i] == '#' { i++ }
            text := strings.TrimSpace(markerStripper.Replace(s[i:]))
            if text == "" { continue }
            size := 14.0
            if i >= 2 { size = 12.0 }
            pdf.SetFont("Helvetica", "B", size)
            pdf.CellFormat(0, 8, tr(text), "", 1, "L", false, 0, "")
            pdf.SetFont("Helvetica", "", 11)
            continue
        }
        pdf.MultiCell(0, 5, tr(s), "", "L", false)
    }
    if err := scanner.Err(); err != nil {
        return err
    }
    return pdf.OutputFileAndClose(outPath)
}
