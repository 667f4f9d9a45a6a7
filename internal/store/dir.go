package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const lastPayloadFile = "last_payload.body"

// DirStore keeps each record as <sha256(id)>.json under Dir and the last raw
// payload as a separate body file. Writes go through a temp file and rename.
type DirStore struct {
	Dir string
	// StrictPerms, when true, enforces 0700 on the directory and 0600 on
	// files.
	StrictPerms bool

	mu sync.RWMutex
}

func (s *DirStore) checkDir() error {
	if s == nil || s.Dir == "" {
		return errors.New("store dir not configured")
	}
	return nil
}

// ensureDir creates the directory. Only write paths call it, under the write
// lock.
func (s *DirStore) ensureDir() error {
	if err := s.checkDir(); err != nil {
		return err
	}
	perm := os.FileMode(0o755)
	if s.StrictPerms {
		perm = 0o700
	}
	if err := os.MkdirAll(s.Dir, perm); err != nil {
		return err
	}
	if s.StrictPerms {
		if info, err := os.Stat(s.Dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(s.Dir, 0o700)
		}
	}
	return nil
}

func (s *DirStore) fileMode() os.FileMode {
	if s.StrictPerms {
		return 0o600
	}
	return 0o644
}

func recordKey(id string) string {
	h := sha256.Sum256([]byte(id))
	return hex.EncodeToString(h[:])
}

func (s *DirStore) recordPath(id string) string {
	return filepath.Join(s.Dir, recordKey(id)+".json")
}

func (s *DirStore) writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, s.fileMode()); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}

func (s *DirStore) Save(_ context.Context, r Record) error {
	r, err := prepare(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureDir(); err != nil {
		return err
	}
	b, err := json.Marshal(&r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.writeAtomic(s.recordPath(r.ID), b)
}

func (s *DirStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkDir(); err != nil {
		return Record{}, err
	}
	b, err := os.ReadFile(s.recordPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	return r, nil
}

func (s *DirStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs, err := s.walk(nil)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(recs)
	return recs, nil
}

// walk decodes every record file, skipping unreadable or malformed ones.
// visit, when set, may return true to delete the file.
func (s *DirStore) walk(visit func(path string, r Record) bool) ([]Record, error) {
	if err := s.checkDir(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.Dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	var out []Record
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.Dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil // skip unreadable
		}
		var r Record
		if err := json.Unmarshal(b, &r); err != nil || r.ID == "" {
			return nil // skip malformed
		}
		if visit != nil && visit(path, r) {
			_ = os.Remove(path)
			return nil
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *DirStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDir(); err != nil {
		return err
	}
	err := os.Remove(s.recordPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func (s *DirStore) Count(ctx context.Context) (int, error) {
	recs, err := s.List(ctx)
	return len(recs), err
}

func (s *DirStore) SaveLastPayload(_ context.Context, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureDir(); err != nil {
		return err
	}
	return s.writeAtomic(filepath.Join(s.Dir, lastPayloadFile), raw)
}

func (s *DirStore) LastPayload(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkDir(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.Dir, lastPayloadFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *DirStore) PurgeOlderThan(_ context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	removed := 0
	_, err := s.walk(func(_ string, r Record) bool {
		if now.Sub(r.SavedAt) <= maxAge {
			return false
		}
		removed++
		return true
	})
	return removed, err
}

func (s *DirStore) Close() error { return nil }
