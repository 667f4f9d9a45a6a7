package render

import (
    "strings"
    "testing"

    "github.com/hyperifyio/chatsave/internal/transcript"
)

func countFenceLines(s string) int {
    n := 0
    for _, line := range strings.Split(s, "\n") {
        if strings.HasPrefix(strings.TrimSpace(line), "```") { n++ }
    }
    return n
}

func TestRender_HeadingsAndOrder(t *testing.T) {
    tr := transcript.New("T", "id", []transcript.Turn{
        {Role: transcript.RoleUser, Content: "Hi"},
        {Role: transcript.RoleModel, Content: "Hello"},
    })
    out := Render(tr, Options{})
    if !strings.HasPrefix(out, "# T\n\n## 🧑 User\n\nHi") {
        t.Fatalf("unexpected prefix:\n%s", out)
    }
    if !strings.Contains(out, "\n## ✨ Model\n\nHello") {
        t.Fatalf("expected model heading:\n%s", out)
    }
    want := "# T\n\n## 🧑 User\n\nHi\n\n---\n\n## ✨ Model\n\nHello\n\n---"
    if out != want {
        t.Fatalf("unexpected document:\n%q\nwant\n%q", out, want)
    }
}

func TestRender_TimestampSuffix(t *testing.T) {
    tr := transcript.New("T", "id", []transcript.Turn{
        {Role: transcript.RoleModel, Content: "x", Timestamp: "10:42 AM"},
    })
    out := Render(tr, Options{})
    if !strings.Contains(out, "## ✨ Model _(10:42 AM)_\n") {
        t.Fatalf("expected timestamp in heading:\n%s", out)
    }
}

func TestRender_DefaultTitleAndEmptyTranscript(t *testing.T) {
    out := Render(transcript.Transcript{}, Options{})
    if out != "# "+transcript.DefaultTitle {
        t.Fatalf("unexpected output %q", out)
    }
}

func TestRender_AutoClosesUnterminatedFence(t *testing.T) {
    tr := transcript.New("T", "id", []transcript.Turn{
        {Role: transcript.RoleModel, Content: "```js\ncode"},
    })
    for _, escape := range []bool{false, true} {
        out := Render(tr, Options{EscapeInsideCodeFences: escape})
        if got := countFenceLines(out); got != 2 {
            t.Fatalf("escape=%v: expected 2 fence lines, got %d:\n%s", escape, got, out)
        }
        if !strings.Contains(out, "```js\ncode\n```\n\n---") {
            t.Fatalf("escape=%v: expected closing fence before separator:\n%s", escape, out)
        }
    }
}

func TestRender_EscapesOnlyInsideFences(t *testing.T) {
    content := "<b>prose</b>\n```html\n<div class=\"a\">Tom's & Jerry</div>\n```\nafter <i>"
    tr := transcript.New("T", "id", []transcript.Turn{{Role: transcript.RoleModel, Content: content}})

    escaped := Render(tr, Options{EscapeInsideCodeFences: true})
    if !strings.Contains(escaped, "&lt;div class=&quot;a&quot;&gt;Tom&#39;s &amp; Jerry&lt;/div&gt;") {
        t.Fatalf("expected escaped fence body:\n%s", escaped)
    }
    if !strings.Contains(escaped, "<b>prose</b>") || !strings.Contains(escaped, "after <i>") {
        t.Fatalf("prose must stay literal:\n%s", escaped)
    }
    if !strings.Contains(escaped, "```html") {
        t.Fatalf("fence line must stay literal:\n%s", escaped)
    }

    literal := Render(tr, Options{})
    if !strings.Contains(literal, "<div class=\"a\">Tom's & Jerry</div>") {
        t.Fatalf("expected literal fence body:\n%s", literal)
    }
}

func TestRender_IndentedFenceToggles(t *testing.T) {
    content := "  ```\n<x>\n  ```\n<y>"
    tr := transcript.New("T", "id", []transcript.Turn{{Role: transcript.RoleUser, Content: content}})
    out := Render(tr, Options{EscapeInsideCodeFences: true})
    if !strings.Contains(out, "&lt;x&gt;") || !strings.Contains(out, "\n<y>") {
        t.Fatalf("unexpected escaping:\n%s", out)
    }
}

func TestRender_DeterministicAndFencesEven(t *testing.T) {
    contents := []string{
        "plain",
        "```",
        "```\n```\n```",
        "a\n```go\nfunc(){}\n```\nb\n```",
        "~~~\nnot a fence\n~~~",
        "`inline` and ``double``",
    }
    turns := make([]transcript.Turn, 0, len(contents))
    for i, c := range contents {
        role := transcript.RoleUser
        if i%2 == 1 { role = transcript.RoleModel }
        turns = append(turns, transcript.Turn{Role: role, Content: c})
    }
    tr := transcript.New("Fences", "id", turns)
    for _, escape := range []bool{false, true} {
        opts := Options{EscapeInsideCodeFences: escape}
        first := Render(tr, opts)
        for i := 0; i < 3; i++ {
            if again := Render(tr, opts); again != first {
                t.Fatalf("render not deterministic")
            }
        }
        if n := countFenceLines(first); n%2 != 0 {
            t.Fatalf("escape=%v: odd fence count %d:\n%s", escape, n, first)
        }
    }
}

func TestEscapeEntities(t *testing.T) {
    got := EscapeEntities(`&<>"'`)
    if got != "&amp;&lt;&gt;&quot;&#39;" {
        t.Fatalf("unexpected %q", got)
    }
}
