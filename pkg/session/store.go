package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/snapdoc/snapdoc/pkg/logger"
)

type stateFile struct {
	Version  int       `json:"version"`
	Sessions []Session `json:"sessions"`
}

// Store is the durable user -> session map. Mutations mark the store dirty
// and arm a debounced snapshot write, so a burst of uploads collapses into
// one disk write; Close flushes synchronously.
type Store struct {
	mu        sync.RWMutex
	statePath string
	debounce  time.Duration
	sessions  map[string]Session

	dirty      bool
	flushTimer *time.Timer
	closed     bool
}

// NewStore loads the snapshot at statePath, starting empty when the file is
// missing or unreadable. A non-positive debounce makes every mutation flush
// synchronously.
func NewStore(statePath string, debounce time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(statePath), 0755); err != nil {
		return nil, fmt.Errorf("create session state dir: %w", err)
	}
	s := &Store{
		statePath: statePath,
		debounce:  debounce,
		sessions:  map[string]Session{},
	}
	s.load()
	return s, nil
}

func (s *Store) load() {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WarnCF("session", "Session snapshot unreadable, starting empty", map[string]interface{}{
				"path":  s.statePath,
				"error": err.Error(),
			})
		}
		return
	}
	var st stateFile
	if err := json.Unmarshal(data, &st); err != nil {
		logger.WarnCF("session", "Session snapshot corrupt, starting empty", map[string]interface{}{
			"path":  s.statePath,
			"error": err.Error(),
		})
		return
	}
	for _, sess := range st.Sessions {
		s.sessions[sess.UserKey] = sess
	}
	if len(s.sessions) > 0 {
		logger.InfoCF("session", "Rehydrated sessions", map[string]interface{}{
			"count": len(s.sessions),
		})
	}
}

func (s *Store) Get(userKey string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userKey]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// Put inserts or replaces the session for sess.UserKey.
func (s *Store) Put(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sess.UserKey] = sess.clone()
	s.markDirtyLocked()
}

// Remove deletes the session if present. Removing an absent key is a no-op.
func (s *Store) Remove(userKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[userKey]; !ok {
		return
	}
	delete(s.sessions, userKey)
	s.markDirtyLocked()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) UserKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	return keys
}

// markDirtyLocked arms the debounced flush. The timer is armed by the first
// mutation of a burst; later mutations within the window ride along.
func (s *Store) markDirtyLocked() {
	s.dirty = true
	if s.debounce <= 0 {
		if err := s.saveLocked(); err != nil {
			logger.ErrorCF("session", "Snapshot write failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return
	}
	if s.flushTimer != nil || s.closed {
		return
	}
	s.flushTimer = time.AfterFunc(s.debounce, s.flushNow)
}

func (s *Store) flushNow() {
	s.mu.Lock()
	s.flushTimer = nil
	if !s.dirty {
		s.mu.Unlock()
		return
	}
	err := s.saveLocked()
	s.mu.Unlock()
	if err != nil {
		logger.ErrorCF("session", "Snapshot write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Flush writes the snapshot immediately regardless of the debounce state.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// Close cancels any pending flush and writes a final snapshot.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	if !s.dirty {
		return nil
	}
	return s.saveLocked()
}

// saveLocked writes the full map as one JSON snapshot via tmp+rename, so a
// crash mid-write can never leave a torn file behind.
func (s *Store) saveLocked() error {
	sessions := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	st := stateFile{
		Version:  1,
		Sessions: sessions,
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session store: %w", err)
	}
	tmp := s.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write session temp: %w", err)
	}
	if err := os.Rename(tmp, s.statePath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace session state: %w", err)
	}
	s.dirty = false
	return nil
}
