// Package identity implements the per-API-key identity cache: derived
// project_id/session_id pairs with independent expiries, keyed by the
// caller's API key.
package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

const (
	// ProjectTTL is how long a derived project_id remains valid.
	ProjectTTL = 12 * time.Hour
	// SessionTTL is how long a derived session_id remains valid.
	SessionTTL = 1 * time.Hour
)

// wordListA and wordListB are the two small fixed 5-word lists that
// project_id is built from: "<a>-<b>-<base36x5>".
var wordListA = [5]string{"amber", "cobalt", "delta", "ember", "flint"}
var wordListB = [5]string{"harbor", "meadow", "quartz", "summit", "willow"}

const base36alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// entry is one cached identity record.
type entry struct {
	projectID      string
	projectExpiry  time.Time
	sessionID      string
	sessionExpiry  time.Time
}

// Cache is the per-API-key identity store. It is unbounded in principle;
// entries are cheap enough that no eviction is implemented.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty identity Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Get returns the (project_id, session_id) pair for apiKey, regenerating
// whichever field is missing or expired. The two fields expire and renew
// independently.
func (c *Cache) Get(apiKey string) (projectID, sessionID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[apiKey]
	if !ok {
		e = &entry{}
		c.entries[apiKey] = e
	}

	now := time.Now()
	if e.projectID == "" || now.After(e.projectExpiry) {
		pid, genErr := generateProjectID()
		if genErr != nil {
			return "", "", fmt.Errorf("identity: generate project_id: %w", genErr)
		}
		e.projectID = pid
		e.projectExpiry = now.Add(ProjectTTL)
	}
	if e.sessionID == "" || now.After(e.sessionExpiry) {
		sid, genErr := generateSessionID()
		if genErr != nil {
			return "", "", fmt.Errorf("identity: generate session_id: %w", genErr)
		}
		e.sessionID = sid
		e.sessionExpiry = now.Add(SessionTTL)
	}
	return e.projectID, e.sessionID, nil
}

// generateProjectID builds a string matching ^[a-z]+-[a-z]+-[a-z0-9]{5}$.
func generateProjectID() (string, error) {
	a, err := randomIndex(len(wordListA))
	if err != nil {
		return "", err
	}
	b, err := randomIndex(len(wordListB))
	if err != nil {
		return "", err
	}
	suffix, err := randomBase36(5)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", wordListA[a], wordListB[b], suffix), nil
}

// generateSessionID returns the decimal text of a uniformly random integer
// in [-2^63+1, 0): the upstream protocol requires a negative session id.
func generateSessionID() (string, error) {
	// n ranges over [0, 2^63); 0 is redrawn, so -n lands in [-2^63+1, -1].
	max := new(big.Int).Lsh(big.NewInt(1), 63)
	for {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		if n.Sign() == 0 {
			continue
		}
		neg := new(big.Int).Neg(n)
		return neg.String(), nil
	}
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func randomBase36(length int) (string, error) {
	out := make([]byte, length)
	for i := range out {
		idx, err := randomIndex(len(base36alphabet))
		if err != nil {
			return "", err
		}
		out[i] = base36alphabet[idx]
	}
	return string(out), nil
}
