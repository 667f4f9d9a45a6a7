package app

import (
    "crypto/sha256"
    "encoding/hex"
    "path/filepath"
    "strings"

    "golang.org/x/text/cases"
)

// DeriveOutputPath returns a stable output path under dir for a saved
// conversation. The filename uses a slugified title and a short hash of the
// conversation ID to avoid collisions between equally titled conversations.
func DeriveOutputPath(dir, title, id, ext string) string {
    root := strings.TrimSpace(dir)
    if root == "" { root = "." }
    title = strings.TrimSpace(title)
    if title == "" { title = "conversation" }
    if ext == "" { ext = ".md" }
    if !strings.HasPrefix(ext, ".") { ext = "." + ext }
    h := sha256.Sum256([]byte(strings.TrimSpace(id)))
    short := hex.EncodeToString(h[:])[:12]
    return filepath.Join(root, slugify(title)+"-"+short+ext)
}

// slugify lowercases s and keeps ASCII letters and digits, joining runs of
// anything else with a single dash.
func slugify(s string) string {
    s = cases.Fold().String(s)
    var b strings.Builder
    dash := false
    for _, r := range s {
        if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
            b.WriteRune(r)
            dash = false
            continue
        }
        if !dash && b.Len() > 0 {
            b.WriteByte('-')
            dash = true
        }
    }
    out := strings.TrimSuffix(b.String(), "-")
    if len(out) > 60 {
        out = strings.TrimSuffix(out[:60], "-")
    }
    if out == "" { out = "conversation" }
    return out
}

func isPDFPath(p string) bool {
    return strings.EqualFold(filepath.Ext(p), ".pdf")
}
