// Package store persists saved conversations and the most recent raw payload.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperifyio/chatsave/internal/transcript"
)

// ErrNotFound is returned when a conversation or payload is absent.
var ErrNotFound = errors.New("not found")

// Record is one saved conversation.
type Record struct {
	ID         string                `json:"id"`
	Title      string                `json:"title"`
	SavedAt    time.Time             `json:"savedAt"`
	URL        string                `json:"url,omitempty"`
	Markdown   string                `json:"markdown"`
	Turns      int                   `json:"turns"`
	Transcript transcript.Transcript `json:"transcript"`
}

// Store is the persistence collaborator. Implementations are safe for
// concurrent use.
type Store interface {
	// Save inserts or replaces the record with the same ID. A zero SavedAt is
	// set to the current time.
	Save(ctx context.Context, r Record) error
	Get(ctx context.Context, id string) (Record, error)
	// List returns all records, newest SavedAt first.
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	SaveLastPayload(ctx context.Context, raw []byte) error
	LastPayload(ctx context.Context) ([]byte, error)
	// PurgeOlderThan removes records saved more than maxAge ago and reports
	// how many were removed. A non-positive maxAge removes nothing.
	PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendDir  = "dir"
	BackendBolt = "bolt"
)

// Open returns a store of the named backend rooted at dir.
func Open(backend, dir string, strictPerms bool) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendDir:
		return &DirStore{Dir: dir, StrictPerms: strictPerms}, nil
	case BackendBolt:
		return OpenBolt(BoltPath(dir), strictPerms)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func prepare(r Record) (Record, error) {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return r, errors.New("record id is empty")
	}
	if r.SavedAt.IsZero() {
		r.SavedAt = time.Now().UTC()
	}
	if r.Title == "" {
		r.Title = r.Transcript.Title()
	}
	if r.Turns == 0 {
		r.Turns = r.Transcript.Len()
	}
	return r, nil
}

func sortNewestFirst(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].SavedAt.Equal(recs[j].SavedAt) {
			return recs[i].SavedAt.After(recs[j].SavedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}
