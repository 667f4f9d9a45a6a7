package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperifyio/chatsave/internal/transcript"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	dirStore, err := Open(BackendDir, filepath.Join(t.TempDir(), "dir"), false)
	if err != nil {
		t.Fatalf("open dir: %v", err)
	}
	boltStore, err := Open(BackendBolt, filepath.Join(t.TempDir(), "bolt"), true)
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	t.Cleanup(func() {
		_ = dirStore.Close()
		_ = boltStore.Close()
	})
	return map[string]Store{BackendDir: dirStore, BackendBolt: boltStore}
}

func sampleRecord(id string, savedAt time.Time) Record {
	tr := transcript.New("Title "+id, id, []transcript.Turn{
		{Role: transcript.RoleUser, Content: "Hi"},
		{Role: transcript.RoleModel, Content: "Hello"},
	})
	return Record{ID: id, SavedAt: savedAt, URL: "https://aistudio.google.com/prompts/" + id, Markdown: "# Title " + id, Transcript: tr}
}

func TestStore_SaveGetListDelete(t *testing.T) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for name, s := range openBackends(t) {
		for i, id := range []string{"a", "b", "c"} {
			if err := s.Save(ctx, sampleRecord(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
				t.Fatalf("%s: save %s: %v", name, id, err)
			}
		}
		got, err := s.Get(ctx, "b")
		if err != nil {
			t.Fatalf("%s: get: %v", name, err)
		}
		if got.Title != "Title b" || got.Turns != 2 || got.Transcript.Len() != 2 {
			t.Fatalf("%s: unexpected record %+v", name, got)
		}
		if got.Transcript.Turns()[1].Content != "Hello" {
			t.Fatalf("%s: transcript not round-tripped", name)
		}

		list, err := s.List(ctx)
		if err != nil {
			t.Fatalf("%s: list: %v", name, err)
		}
		if len(list) != 3 || list[0].ID != "c" || list[2].ID != "a" {
			t.Fatalf("%s: expected newest first, got %v", name, ids(list))
		}
		if n, _ := s.Count(ctx); n != 3 {
			t.Fatalf("%s: expected count 3, got %d", name, n)
		}

		// Saving the same ID replaces the record.
		if err := s.Save(ctx, sampleRecord("a", base.Add(time.Hour))); err != nil {
			t.Fatalf("%s: resave: %v", name, err)
		}
		list, _ = s.List(ctx)
		if len(list) != 3 || list[0].ID != "a" {
			t.Fatalf("%s: expected replaced record first, got %v", name, ids(list))
		}

		if err := s.Delete(ctx, "b"); err != nil {
			t.Fatalf("%s: delete: %v", name, err)
		}
		if _, err := s.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound after delete, got %v", name, err)
		}
		if err := s.Delete(ctx, "b"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound on second delete, got %v", name, err)
		}
	}
}

func ids(recs []Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestStore_LastPayload(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		if _, err := s.LastPayload(ctx); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", name, err)
		}
		for _, p := range []string{`[1]`, `[2,3]`} {
			if err := s.SaveLastPayload(ctx, []byte(p)); err != nil {
				t.Fatalf("%s: save payload: %v", name, err)
			}
		}
		got, err := s.LastPayload(ctx)
		if err != nil || string(got) != `[2,3]` {
			t.Fatalf("%s: unexpected payload %q %v", name, got, err)
		}
		if n, _ := s.Count(ctx); n != 0 {
			t.Fatalf("%s: payload must not count as a conversation", name)
		}
	}
}

func TestStore_PurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	for name, s := range openBackends(t) {
		_ = s.Save(ctx, sampleRecord("old", now.Add(-48*time.Hour)))
		_ = s.Save(ctx, sampleRecord("new", now.Add(-time.Minute)))
		if n, err := s.PurgeOlderThan(ctx, 0); err != nil || n != 0 {
			t.Fatalf("%s: zero max age must not purge: %d %v", name, n, err)
		}
		n, err := s.PurgeOlderThan(ctx, 24*time.Hour)
		if err != nil || n != 1 {
			t.Fatalf("%s: expected one purged, got %d %v", name, n, err)
		}
		list, _ := s.List(ctx)
		if len(list) != 1 || list[0].ID != "new" {
			t.Fatalf("%s: unexpected remaining %v", name, ids(list))
		}
	}
}

func TestStore_RejectsEmptyID(t *testing.T) {
	for name, s := range openBackends(t) {
		if err := s.Save(context.Background(), Record{ID: "  "}); err == nil {
			t.Fatalf("%s: expected error for empty id", name)
		}
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open("redis", t.TempDir(), false); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestDirStore_SkipsMalformedAndStrictPerms(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s := &DirStore{Dir: dir, StrictPerms: true}
	ctx := context.Background()
	if err := s.Save(ctx, sampleRecord("x", time.Time{})); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "junk.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	list, err := s.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected malformed file skipped, got %d %v", len(list), err)
	}
	if list[0].SavedAt.IsZero() {
		t.Fatalf("expected SavedAt to be stamped")
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat dir: %v", err)
	}
	if got := info.Mode() & 0o777; got != 0o700 {
		t.Fatalf("dir mode = %o, want 0700", got)
	}
	finfo, err := os.Stat(s.recordPath("x"))
	if err != nil {
		t.Fatalf("stat file: %v", err)
	}
	if got := finfo.Mode() & 0o777; got != 0o600 {
		t.Fatalf("file mode = %o, want 0600", got)
	}
}

func TestDirStore_ReadsDoNotCreateDir(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "missing")
	s := &DirStore{Dir: dir, StrictPerms: true}
	if _, err := s.Get(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.LastPayload(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for last payload, got %v", err)
	}
	recs, err := s.List(ctx)
	if err != nil || len(recs) != 0 {
		t.Fatalf("expected empty list, got %v %v", recs, err)
	}
	if err := s.Delete(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("reads should not create the store dir: %v", err)
	}
	if err := s.SaveLastPayload(ctx, []byte("[]")); err != nil {
		t.Fatalf("save last payload: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("write should create the store dir: %v", err)
	}
}
