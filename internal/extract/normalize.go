package extract

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/hyperifyio/chatsave/internal/payload"
	"github.com/hyperifyio/chatsave/internal/transcript"
)

// maxContentDepth bounds recursion through nested candidates/content mappings.
const maxContentDepth = 4

// folded case-folds s. Casers are stateful, so one is built per call.
func folded(s string) string {
	return cases.Fold().String(s)
}

// normalizeRecords resolves role and content for every record of a chosen
// message sequence. Records whose trimmed content is empty are skipped.
func normalizeRecords(records []payload.Value) ([]transcript.Turn, []SkippedRecord) {
	turns := make([]transcript.Turn, 0, len(records))
	var skipped []SkippedRecord
	for i, rec := range records {
		if !rec.IsMapping() && !rec.IsSequence() {
			skipped = append(skipped, SkippedRecord{Index: i, Reason: "record is a " + rec.Kind().String()})
			continue
		}
		content := strings.TrimSpace(resolveContent(rec))
		if content == "" {
			skipped = append(skipped, SkippedRecord{Index: i, Reason: "no content"})
			continue
		}
		turns = append(turns, transcript.Turn{Role: resolveRole(rec), Content: content})
	}
	return turns, skipped
}

// resolveRole applies, in order: role, author, author_role, then the
// descriptor of a positional record. The result is always user or model.
func resolveRole(rec payload.Value) transcript.Role {
	if rec.IsSequence() {
		if desc, ok := rec.Path(2, 0).Str(); ok && strings.Contains(folded(desc), "user") {
			return transcript.RoleUser
		}
		return transcript.RoleModel
	}
	if r, ok := rec.GetStr("role"); ok && r != "" {
		return roleFromName(r)
	}
	if author, ok := rec.Get("author"); ok && payload.Truthy(author) {
		if s, ok := author.Str(); ok {
			return roleFromName(s)
		}
		if s, ok := author.GetStr("role"); ok {
			return roleFromName(s)
		}
	}
	if ar, ok := rec.GetStr("author_role"); ok && ar == "USER" {
		return transcript.RoleUser
	}
	return transcript.RoleModel
}

// roleFromName maps a free-form role label onto the two canonical roles.
func roleFromName(name string) transcript.Role {
	if folded(strings.TrimSpace(name)) == "user" {
		return transcript.RoleUser
	}
	return transcript.RoleModel
}

func resolveContent(rec payload.Value) string {
	if rec.IsSequence() {
		return positionalContent(rec)
	}
	return mappingContent(rec, 0)
}

// positionalContent reads offset 1. A record led by a timestamp token has no
// other text slot; any other record falls back to offset 3.
func positionalContent(rec payload.Value) string {
	if s, ok := rec.At(1).Str(); ok {
		return s
	}
	if isTimestampToken(rec.At(0)) {
		return ""
	}
	if rec.Len() > 3 {
		if s, ok := rec.At(3).Str(); ok {
			return s
		}
	}
	return ""
}

// isTimestampToken matches epoch-second strings of the current era.
func isTimestampToken(v payload.Value) bool {
	s, ok := v.Str()
	return ok && strings.Contains(s, "17")
}

func mappingContent(rec payload.Value, depth int) string {
	if depth > maxContentDepth {
		return ""
	}
	if s, ok := rec.GetStr("content"); ok && s != "" {
		return s
	}
	if parts, ok := rec.Get("parts"); ok && parts.IsSequence() {
		return joinParts(parts)
	}
	if cands, ok := rec.Get("candidates"); ok && cands.Len() > 0 {
		if first := cands.At(0); first.IsMapping() {
			return mappingContent(first, depth+1)
		}
	}
	if nested, ok := rec.Get("content"); ok && nested.IsMapping() {
		return mappingContent(nested, depth+1)
	}
	return ""
}

// joinParts concatenates string parts and {text} parts in order.
func joinParts(parts payload.Value) string {
	var b strings.Builder
	for _, p := range parts.Items() {
		if s, ok := p.Str(); ok {
			b.WriteString(s)
			continue
		}
		if s, ok := p.GetStr("text"); ok {
			b.WriteString(s)
		}
	}
	return b.String()
}

// looksLikeMessage reports whether v is a mapping exposing any of keys.
func looksLikeMessage(v payload.Value, keys ...string) bool {
	if !v.IsMapping() {
		return false
	}
	for _, k := range keys {
		if v.Has(k) {
			return true
		}
	}
	return false
}

// messagesField returns the messages or conversation sequence of a mapping.
func messagesField(v payload.Value) (payload.Value, bool) {
	for _, key := range []string{"messages", "conversation"} {
		if f, ok := v.Get(key); ok && f.IsSequence() {
			return f, true
		}
	}
	return payload.Value{}, false
}

// isFinalFlag reports whether a positional flag equals 1.
func isFinalFlag(v payload.Value) bool {
	n, ok := v.Num()
	return ok && n == 1
}
