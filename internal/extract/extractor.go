package extract

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/chatsave/internal/payload"
	"github.com/hyperifyio/chatsave/internal/transcript"
)

// Strategy is one structural hypothesis about a decoded payload.
// Implementations must be pure: no I/O, no retained state, no panics.
type Strategy interface {
	Name() string
	// Apply reports whether the hypothesis matched and, if so, what it found.
	// A match may still carry zero usable turns; the chain then moves on.
	// A strategy that does not match may still report a Title or
	// ConversationID it resolved; later matches inherit them.
	Apply(v payload.Value) (Outcome, bool)
}

// Outcome is what a matching strategy found before the transcript is built.
type Outcome struct {
	Title          string
	ConversationID string
	Turns          []transcript.Turn
	// Skipped lists records that failed role or content resolution.
	Skipped []SkippedRecord
	// Discarded counts intermediate model records that are never content.
	Discarded int
}

// SkippedRecord describes a message record that was excluded.
type SkippedRecord struct {
	Index  int
	Reason string
}

type strategyFunc struct {
	name string
	fn   func(payload.Value) (Outcome, bool)
}

func (s strategyFunc) Name() string { return s.name }
func (s strategyFunc) Apply(v payload.Value) (Outcome, bool) { return s.fn(v) }

// DefaultStrategies returns the strategies in priority order: the more
// specific schemas come first.
func DefaultStrategies() []Strategy {
	return []Strategy{
		strategyFunc{name: "direct-mapping", fn: directMapping},
		strategyFunc{name: "positional-a", fn: positionalA},
		strategyFunc{name: "positional-b", fn: positionalB},
		strategyFunc{name: "positional-scan", fn: positionalScan},
		strategyFunc{name: "deep-scan", fn: deepScan},
	}
}

// Chain runs strategies strictly in order and returns the first transcript
// with at least one non-empty turn. A Chain holds no per-call state and may be
// shared.
type Chain struct {
	Strategies []Strategy
	// Log receives strategy tracing and skipped-record warnings. Nil uses the
	// global logger.
	Log *zerolog.Logger
	// Now stamps generated conversation IDs. Nil uses time.Now.
	Now func() time.Time
}

// New returns a chain over DefaultStrategies.
func New(logger zerolog.Logger) *Chain {
	return &Chain{Strategies: DefaultStrategies(), Log: &logger}
}

func (c *Chain) logger() *zerolog.Logger {
	if c == nil || c.Log == nil {
		return &log.Logger
	}
	return c.Log
}

func (c *Chain) now() time.Time {
	if c == nil || c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Chain) strategies() []Strategy {
	if c == nil || len(c.Strategies) == 0 {
		return DefaultStrategies()
	}
	return c.Strategies
}

// apply runs one strategy; a panicking strategy counts as no match.
func (c *Chain) apply(s Strategy, v payload.Value) (out Outcome, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger().Error().Str("strategy", s.Name()).Interface("panic", r).Msg("strategy panicked")
			out, ok = Outcome{}, false
		}
	}()
	return s.Apply(v)
}

// ExtractBytes decodes raw payload text and extracts a transcript from it.
func (c *Chain) ExtractBytes(raw []byte) (transcript.Transcript, error) {
	tr, _, err := c.MatchBytes(raw)
	return tr, err
}

// Extract extracts a transcript from an already decoded payload.
func (c *Chain) Extract(v payload.Value) (transcript.Transcript, error) {
	tr, _, err := c.Match(v)
	return tr, err
}

// MatchBytes is ExtractBytes that also names the winning strategy.
func (c *Chain) MatchBytes(raw []byte) (transcript.Transcript, string, error) {
	v, err := payload.DecodeString(string(raw))
	if err != nil {
		c.logger().Warn().Err(err).Int("bytes", len(raw)).Msg("payload not decodable")
		return transcript.Transcript{}, "", &ExtractionError{Reason: NotDecodable, Err: err}
	}
	return c.Match(v)
}

// Match is Extract that also names the winning strategy.
func (c *Chain) Match(v payload.Value) (transcript.Transcript, string, error) {
	lg := c.logger()
	var carried Outcome
	for _, s := range c.strategies() {
		out, ok := c.apply(s, v)
		if carried.Title == "" {
			carried.Title = out.Title
		}
		if carried.ConversationID == "" {
			carried.ConversationID = out.ConversationID
		}
		if !ok {
			lg.Debug().Str("strategy", s.Name()).Msg("strategy did not match")
			continue
		}
		if out.Title == "" {
			out.Title = carried.Title
		}
		if out.ConversationID == "" {
			out.ConversationID = carried.ConversationID
		}
		for _, sk := range out.Skipped {
			lg.Warn().Str("strategy", s.Name()).Int("record", sk.Index).Str("reason", sk.Reason).Msg("skipping message record")
		}
		if out.Discarded > 0 {
			lg.Debug().Str("strategy", s.Name()).Int("count", out.Discarded).Msg("discarded intermediate model output")
		}
		id := out.ConversationID
		if id == "" {
			id = transcript.GeneratedID(c.now())
		}
		tr := transcript.New(out.Title, id, out.Turns)
		if tr.Empty() {
			lg.Debug().Str("strategy", s.Name()).Msg("strategy matched but produced no content")
			continue
		}
		lg.Debug().Str("strategy", s.Name()).Int("turns", tr.Len()).Str("title", tr.Title()).Msg("extracted transcript")
		return tr, s.Name(), nil
	}
	lg.Warn().Str("kind", v.Kind().String()).Msg("no recognized conversation schema")
	return transcript.Transcript{}, "", &ExtractionError{Reason: NoRecognizedSchema}
}
