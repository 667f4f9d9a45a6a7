package extract

import (
	"strings"

	"github.com/hyperifyio/chatsave/internal/payload"
	"github.com/hyperifyio/chatsave/internal/transcript"
)

const (
	// schema A: conversation groups live at [13], title at [4][0].
	schemaAMessages     = 13
	schemaARecordMinLen = 9
	schemaARoleOffset   = 8
	schemaAFinalOffset  = 16

	// schema B: [4] = [title, _, _, _, records]; records[0:2] are metadata.
	schemaBMeta         = 4
	schemaBRecords      = 4
	schemaBFirstMessage = 2
)

// scanOffsets are the top-level positions probed by the generic scan.
var scanOffsets = []int{0, 1, 2, 4, 12, 13}

// directMapping reads a mapping with conversationId/title/messages.
func directMapping(v payload.Value) (Outcome, bool) {
	if !v.IsMapping() {
		return Outcome{}, false
	}
	if !looksLikeMessage(v, "conversationId", "title", "messages", "conversation") {
		return Outcome{}, false
	}
	out := Outcome{}
	out.ConversationID, _ = v.GetStr("conversationId")
	out.Title, _ = v.GetStr("title")
	if msgs, ok := messagesField(v); ok {
		out.Turns, out.Skipped = normalizeRecords(msgs.Items())
	}
	return out, true
}

// positionalA reads [13] as groups of positional records where text is
// at 0, role at 8 and the final-output flag at 16.
func positionalA(v payload.Value) (Outcome, bool) {
	groups := v.At(schemaAMessages)
	if !groups.IsSequence() || groups.Len() == 0 || !groups.At(0).IsSequence() {
		return Outcome{}, false
	}
	out := Outcome{}
	index := 0
	for _, group := range groups.Items() {
		if !group.IsSequence() {
			continue
		}
		for _, rec := range group.Items() {
			i := index
			index++
			if !rec.IsSequence() || rec.Len() < schemaARecordMinLen {
				out.Skipped = append(out.Skipped, SkippedRecord{Index: i, Reason: "not a positional message record"})
				continue
			}
			text, _ := rec.At(0).Str()
			role, _ := rec.At(schemaARoleOffset).Str()
			switch folded(role) {
			case "model":
				if !isFinalFlag(rec.At(schemaAFinalOffset)) {
					out.Discarded++
					continue
				}
				if text == "" {
					out.Skipped = append(out.Skipped, SkippedRecord{Index: i, Reason: "no content"})
					continue
				}
				out.Turns = append(out.Turns, transcript.Turn{Role: transcript.RoleModel, Content: text})
			case "user":
				if strings.TrimSpace(text) == "" {
					out.Skipped = append(out.Skipped, SkippedRecord{Index: i, Reason: "no content"})
					continue
				}
				out.Turns = append(out.Turns, transcript.Turn{Role: transcript.RoleUser, Content: text})
			default:
				out.Skipped = append(out.Skipped, SkippedRecord{Index: i, Reason: "unknown role " + role})
			}
		}
	}
	if title, ok := v.Path(schemaBMeta, 0).Str(); ok {
		out.Title = title
	}
	return out, true
}

// positionalB reads [4][0] as title and [4][4] as records, skipping the
// first two metadata entries. Roles alternate per accepted record starting
// with the user; a rejected record does not advance the alternation.
func positionalB(v payload.Value) (Outcome, bool) {
	meta := v.At(schemaBMeta)
	title, ok := meta.At(0).Str()
	records := meta.At(schemaBRecords)
	if !ok {
		return Outcome{}, false
	}
	if !records.IsSequence() {
		return Outcome{Title: title}, false
	}
	out := Outcome{Title: title}
	role := transcript.RoleUser
	for i := schemaBFirstMessage; i < records.Len(); i++ {
		rec := records.At(i)
		if !payload.Truthy(rec) {
			continue
		}
		text, ok := rec.At(1).Str()
		if !rec.IsSequence() || !ok || strings.TrimSpace(text) == "" {
			out.Skipped = append(out.Skipped, SkippedRecord{Index: i, Reason: "no text at offset 1"})
			continue
		}
		out.Turns = append(out.Turns, transcript.Turn{Role: role, Content: text})
		if role == transcript.RoleUser {
			role = transcript.RoleModel
		} else {
			role = transcript.RoleUser
		}
	}
	return out, true
}

// positionalScan probes fixed offsets for a conversation mapping or a
// sequence of message mappings. Title and id seen on earlier mappings carry
// over.
func positionalScan(v payload.Value) (Outcome, bool) {
	if !v.IsSequence() {
		return Outcome{}, false
	}
	out := Outcome{}
	for _, off := range scanOffsets {
		item := v.At(off)
		switch {
		case item.IsMapping():
			if id, ok := item.GetStr("conversationId"); ok && id != "" {
				out.ConversationID = id
			}
			if title, ok := item.GetStr("title"); ok && title != "" {
				out.Title = title
			}
			if msgs, ok := messagesField(item); ok {
				out.Turns, out.Skipped = normalizeRecords(msgs.Items())
				return out, true
			}
		case item.IsSequence() && item.Len() > 0 && looksLikeMessage(item.At(0), "role", "author", "author_role"):
			out.Turns, out.Skipped = normalizeRecords(item.Items())
			return out, true
		}
	}
	return out, false
}

// deepScan accepts the first sequence whose first element looks like a
// message, looking at every top-level entry and at every field of
// mapping-shaped entries.
func deepScan(v payload.Value) (Outcome, bool) {
	var entries []payload.Value
	switch {
	case v.IsSequence():
		entries = v.Items()
	case v.IsMapping():
		for _, f := range v.Fields() {
			entries = append(entries, f.Value)
		}
	default:
		return Outcome{}, false
	}
	for _, entry := range entries {
		if isMessageList(entry) {
			return outcomeFromRecords(entry), true
		}
		for _, f := range entry.Fields() {
			if isMessageList(f.Value) {
				return outcomeFromRecords(f.Value), true
			}
		}
	}
	return Outcome{}, false
}

func isMessageList(v payload.Value) bool {
	return v.IsSequence() && v.Len() > 0 && looksLikeMessage(v.At(0), "role", "author", "parts", "content")
}

func outcomeFromRecords(seq payload.Value) Outcome {
	turns, skipped := normalizeRecords(seq.Items())
	return Outcome{Turns: turns, Skipped: skipped}
}
