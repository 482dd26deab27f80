// Package keystore implements API-key validation and the sliding-window
// rate limiter, built on the same stdlib-mutex-plus-map style used
// throughout this gateway's other in-memory caches.
package keystore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/nexusgate/oauth-llm-gateway/internal/store"
)

// RateLimitPolicy configures the sliding-window limiter for one key.
type RateLimitPolicy struct {
	Enabled     bool  `json:"enabled"`
	MaxRequests int   `json:"max_requests"`
	WindowMs    int64 `json:"window_ms"`
}

// ApiKey is one locally-issued client credential, as persisted to disk.
type ApiKey struct {
	Key          string          `json:"key"`
	Name         string          `json:"name,omitempty"`
	CreatedISO   string          `json:"created_iso"`
	LastUsedISO  string          `json:"last_used_iso,omitempty"`
	Requests     int64           `json:"requests"`
	RateLimit    RateLimitPolicy `json:"rate_limit"`
	UsageBuckets map[int64]int   `json:"usage_buckets"`
}

// keyEntry is the runtime holder for one ApiKey: the data plus the mutex
// that guards it. The mutex is never copied or serialized.
type keyEntry struct {
	mu   sync.Mutex
	data ApiKey
}

// RateLimitResult is the outcome of a check_rate_limit call.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetInS  int
	Reason    string
}

// bucketMs floors nowMs to the 10-second bucket boundary:
// floor(now_ms/10000)*10000.
func bucketMs(nowMs int64) int64 {
	return (nowMs / 10000) * 10000
}

// Store is the in-memory API key set with periodic disk flush. Mutations
// from Validate and CheckRateLimit are in-memory only; a background task
// (StartFlushLoop) flushes the whole set to disk every 60s and on
// explicit admin mutations.
type Store struct {
	fs *store.FileStore

	mu   sync.Mutex // guards `keys` map membership; per-entry mutex guards ApiKey internals
	keys map[string]*keyEntry
}

// New loads the key store from fs.
func New(fs *store.FileStore) (*Store, error) {
	s := &Store{fs: fs, keys: make(map[string]*keyEntry)}
	var loaded []ApiKey
	if err := fs.Load(&loaded); err != nil {
		return nil, err
	}
	for i := range loaded {
		if loaded[i].UsageBuckets == nil {
			loaded[i].UsageBuckets = make(map[int64]int)
		}
		s.keys[loaded[i].Key] = &keyEntry{data: loaded[i]}
	}
	return s, nil
}

// Create issues a new ApiKey, using suppliedKey if given (failing on
// collision) or a fresh random key otherwise.
func (s *Store) Create(name string, rl *RateLimitPolicy, suppliedKey string) (ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := suppliedKey
	if key != "" {
		if _, exists := s.keys[key]; exists {
			return ApiKey{}, fmt.Errorf("keystore: supplied key already exists")
		}
	} else {
		var err error
		key, err = generateKey()
		if err != nil {
			return ApiKey{}, err
		}
	}

	policy := RateLimitPolicy{Enabled: true, MaxRequests: 60, WindowMs: 60_000}
	if rl != nil {
		policy = *rl
	}

	data := ApiKey{
		Key:          key,
		Name:         name,
		CreatedISO:   time.Now().UTC().Format(time.RFC3339),
		RateLimit:    policy,
		UsageBuckets: make(map[int64]int),
	}
	s.keys[key] = &keyEntry{data: data}
	if err := s.persistLocked(); err != nil {
		return ApiKey{}, err
	}
	return data, nil
}

func generateKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("keystore: generate key: %w", err)
	}
	return "sk-" + hex.EncodeToString(buf), nil
}

// Lookup returns a copy of the ApiKey for key without mutating it.
func (s *Store) Lookup(key string) (ApiKey, bool) {
	s.mu.Lock()
	e, ok := s.keys[key]
	s.mu.Unlock()
	if !ok {
		return ApiKey{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data, true
}

// Validate reports whether key exists, updating last_used_iso and
// requests in memory only (no disk write).
func (s *Store) Validate(key string) bool {
	s.mu.Lock()
	e, ok := s.keys[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	e.data.LastUsedISO = time.Now().UTC().Format(time.RFC3339)
	e.data.Requests++
	e.mu.Unlock()
	return true
}

// CheckRateLimit runs the sliding-window algorithm against key's bucket
// map, mutating it in memory only.
func (s *Store) CheckRateLimit(key string) RateLimitResult {
	s.mu.Lock()
	e, ok := s.keys[key]
	s.mu.Unlock()
	if !ok {
		return RateLimitResult{Allowed: false, Reason: "unknown key"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.data.RateLimit.Enabled {
		return RateLimitResult{Allowed: true}
	}

	now := time.Now().UnixMilli()
	window := e.data.RateLimit.WindowMs
	cap := e.data.RateLimit.MaxRequests
	cutoff := now - window

	for ts := range e.data.UsageBuckets {
		if ts < cutoff {
			delete(e.data.UsageBuckets, ts)
		}
	}

	count := 0
	for _, n := range e.data.UsageBuckets {
		count += n
	}

	if count >= cap {
		// Guard against an empty bucket map after purge: fall back to the
		// full window when there is nothing left to anchor the reset on.
		oldest := now
		found := false
		for ts := range e.data.UsageBuckets {
			if !found || ts < oldest {
				oldest = ts
				found = true
			}
		}
		var resetInS int
		if found {
			resetMs := oldest + window - now
			resetInS = int((resetMs + 999) / 1000)
		} else {
			resetInS = int(window / 1000)
		}
		if resetInS < 0 {
			resetInS = 0
		}
		return RateLimitResult{Allowed: false, Limit: cap, ResetInS: resetInS, Reason: "rate_limit_exceeded"}
	}

	b := bucketMs(now)
	e.data.UsageBuckets[b]++
	return RateLimitResult{Allowed: true, Limit: cap, Remaining: cap - count - 1}
}

// UpdateRateLimit replaces key's rate limit policy and flushes to disk.
func (s *Store) UpdateRateLimit(key string, policy RateLimitPolicy) error {
	s.mu.Lock()
	e, ok := s.keys[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("keystore: unknown key")
	}
	s.mu.Unlock()

	e.mu.Lock()
	e.data.RateLimit = policy
	e.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// Delete removes key and flushes to disk.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; !ok {
		return fmt.Errorf("keystore: unknown key")
	}
	delete(s.keys, key)
	return s.persistLocked()
}

// StatsEntry is one row of the admin-facing stats view.
type StatsEntry struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Requests    int64  `json:"requests"`
	LastUsedISO string `json:"last_used_iso"`
}

// Stats returns a snapshot of every key's aggregate counters.
func (s *Store) Stats() []StatsEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StatsEntry, 0, len(s.keys))
	for _, e := range s.keys {
		e.mu.Lock()
		out = append(out, StatsEntry{Key: e.data.Key, Name: e.data.Name, Requests: e.data.Requests, LastUsedISO: e.data.LastUsedISO})
		e.mu.Unlock()
	}
	return out
}

// persistLocked snapshots the key map and flushes it to disk. Callers must
// hold s.mu.
func (s *Store) persistLocked() error {
	return s.fs.AtomicWrite(s.snapshotLocked())
}

func (s *Store) snapshotLocked() []ApiKey {
	out := make([]ApiKey, 0, len(s.keys))
	for _, e := range s.keys {
		e.mu.Lock()
		clone := e.data
		buckets := make(map[int64]int, len(e.data.UsageBuckets))
		for ts, n := range e.data.UsageBuckets {
			buckets[ts] = n
		}
		clone.UsageBuckets = buckets
		e.mu.Unlock()
		out = append(out, clone)
	}
	return out
}

// Flush writes the current key set to disk. It is the body of the
// periodic background task started by StartFlushLoop, and is also
// called synchronously after Create/Delete/UpdateRateLimit.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// StartFlushLoop starts the periodic flush task: started exactly once at
// gateway boot, stopped via the returned stop function.
func (s *Store) StartFlushLoop(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := s.Flush(); err != nil {
					fmt.Printf("⚠️ keystore: periodic flush failed: %v\n", err)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
