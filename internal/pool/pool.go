package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nexusgate/oauth-llm-gateway/internal/store"
)

// ErrNoCredentials is returned by GetToken when no enabled credential can
// be made valid.
var ErrNoCredentials = errors.New("pool: no credentials available")

const reloadInterval = 60 * time.Second

// Pool is the rotating, self-refreshing, self-disabling OAuth2 credential
// pool. All reads go through an in-memory snapshot (the `all` slice); all
// mutations take mu; refresh I/O happens outside mu after snapshotting the
// target credential, then a compare-update re-acquires mu to commit.
type Pool struct {
	mu       sync.Mutex
	fs       *store.FileStore
	endpoint OAuthEndpoint

	all         []Credential   // full persisted set, in file order
	enabledIdx  []int          // indices into `all` that are currently enabled
	cursor      int            // index into enabledIdx
	usageByRT   map[string]*usage
	lastReload  time.Time
}

// New loads the pool from fs (or starts empty if the file does not yet
// exist) and returns a ready-to-use Pool.
func New(fs *store.FileStore, endpoint OAuthEndpoint) (*Pool, error) {
	p := &Pool{
		fs:        fs,
		endpoint:  endpoint,
		usageByRT: make(map[string]*usage),
	}
	if err := p.reloadLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool) reloadLocked() error {
	var all []Credential
	if err := p.fs.Load(&all); err != nil {
		return err
	}
	p.all = all
	p.rebuildEnabledLocked()
	p.lastReload = time.Now()
	return nil
}

// rebuildEnabledLocked recomputes the enabled subsequence and clamps the
// cursor: after any mutation that shrinks the enabled set, the cursor is
// clamped back into range.
func (p *Pool) rebuildEnabledLocked() {
	p.enabledIdx = p.enabledIdx[:0]
	for i, c := range p.all {
		if c.Enabled {
			p.enabledIdx = append(p.enabledIdx, i)
			if _, ok := p.usageByRT[c.RefreshToken]; !ok {
				p.usageByRT[c.RefreshToken] = &usage{}
			}
		}
	}
	if len(p.enabledIdx) == 0 {
		p.cursor = 0
	} else if p.cursor >= len(p.enabledIdx) {
		p.cursor = p.cursor % len(p.enabledIdx)
	}
}

func (p *Pool) persistLocked() error {
	return p.fs.AtomicWrite(p.all)
}

// GetToken returns a ready-to-use access token, rotating the cursor and
// recording usage.
func (p *Pool) GetToken(ctx context.Context) (Credential, error) {
	p.mu.Lock()
	if time.Since(p.lastReload) > reloadInterval {
		if err := p.reloadLocked(); err != nil {
			log.Printf("❌ pool: reload failed: %v", err)
		}
	}
	attempts := len(p.enabledIdx)
	p.mu.Unlock()

	if attempts == 0 {
		return Credential{}, ErrNoCredentials
	}

	for i := 0; i < attempts; i++ {
		p.mu.Lock()
		if len(p.enabledIdx) == 0 {
			p.mu.Unlock()
			return Credential{}, ErrNoCredentials
		}
		cursor := p.cursor % len(p.enabledIdx)
		idx := p.enabledIdx[cursor]
		cred := p.all[idx]
		p.mu.Unlock()

		if !cred.needsRefresh(nowMs()) {
			return p.commitSuccess(idx, cred, cursor)
		}

		result, err := refresh(ctx, p.endpoint, cred.RefreshToken)
		if err == nil {
			refreshed, ok := p.applyRefresh(idx, cred.RefreshToken, result)
			if !ok {
				// credential vanished/changed concurrently; retry same slot
				continue
			}
			return p.commitSuccess(idx, refreshed, cursor)
		}

		if isForbidden(err) {
			log.Printf("🔒 pool: credential %s forbidden by identity provider, disabling", maskEmail(cred))
			p.disable(cred.RefreshToken)
			continue
		}

		log.Printf("⚠️ pool: transient refresh error for %s: %v", maskEmail(cred), err)
		p.advanceCursor(cursor)
	}

	return Credential{}, ErrNoCredentials
}

// applyRefresh commits a successful refresh result to `all` under the pool
// mutex, compare-updating on refresh token so a concurrent disable/delete
// between the snapshot and the refresh completing is respected.
func (p *Pool) applyRefresh(idx int, expectedRefreshToken string, result *RefreshResult) (Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx < 0 || idx >= len(p.all) || p.all[idx].RefreshToken != expectedRefreshToken {
		return Credential{}, false
	}
	c := &p.all[idx]
	c.AccessToken = result.AccessToken
	c.ExpiresInSeconds = result.ExpiresInSeconds
	c.IssuedAtMs = nowMs()
	if result.RefreshToken != "" && result.RefreshToken != c.RefreshToken {
		log.Printf("🔄 pool: identity provider rotated refresh token for %s", maskEmail(*c))
		delete(p.usageByRT, expectedRefreshToken)
		c.RefreshToken = result.RefreshToken
		p.usageByRT[c.RefreshToken] = &usage{}
	}
	if err := p.persistLocked(); err != nil {
		log.Printf("❌ pool: persist after refresh failed: %v", err)
	}
	return *c, true
}

// commitSuccess records usage and advances the cursor for a credential
// that is ready to use (already valid, or just refreshed).
func (p *Pool) commitSuccess(idx int, cred Credential, cursorAtPick int) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.usageByRT[cred.RefreshToken]
	if !ok {
		u = &usage{}
		p.usageByRT[cred.RefreshToken] = u
	}
	u.Requests++
	u.LastUsed = nowMs()

	if len(p.enabledIdx) > 0 {
		p.cursor = (cursorAtPick + 1) % len(p.enabledIdx)
	}
	return cred, nil
}

func (p *Pool) advanceCursor(cursorAtPick int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.enabledIdx) > 0 {
		p.cursor = (cursorAtPick + 1) % len(p.enabledIdx)
	}
}

func (p *Pool) disable(refreshToken string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.all {
		if p.all[i].RefreshToken == refreshToken {
			p.all[i].Enabled = false
		}
	}
	p.rebuildEnabledLocked()
	if err := p.persistLocked(); err != nil {
		log.Printf("❌ pool: persist after disable failed: %v", err)
	}
}

// OnUpstreamForbidden is called when Upstream rejected a request with HTTP
// 403 using cred. It disables cred permanently and returns the next viable
// token.
func (p *Pool) OnUpstreamForbidden(ctx context.Context, cred Credential) (Credential, error) {
	log.Printf("🔒 pool: upstream 403 for %s, disabling", maskEmail(cred))
	p.disable(cred.RefreshToken)
	return p.GetToken(ctx)
}

// Add appends a single credential to the pool and persists synchronously.
func (p *Pool) Add(cred Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.all {
		if c.RefreshToken == cred.RefreshToken {
			return fmt.Errorf("pool: refresh_token already present in pool")
		}
	}
	p.all = append(p.all, cred)
	p.rebuildEnabledLocked()
	return p.persistLocked()
}

// BulkAdd appends every credential in creds whose refresh token is not
// already present, returning the count actually inserted.
func (p *Pool) BulkAdd(creds []Credential) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]bool, len(p.all))
	for _, c := range p.all {
		seen[c.RefreshToken] = true
	}
	inserted := 0
	for _, c := range creds {
		if seen[c.RefreshToken] {
			continue
		}
		p.all = append(p.all, c)
		seen[c.RefreshToken] = true
		inserted++
	}
	if inserted == 0 {
		return 0, nil
	}
	p.rebuildEnabledLocked()
	return inserted, p.persistLocked()
}

// Import is the landing point for the (out-of-scope) OAuth callback
// handler: it wraps BulkAdd for a single freshly exchanged credential.
func (p *Pool) Import(cred Credential) error {
	_, err := p.BulkAdd([]Credential{cred})
	return err
}

// Delete removes the credential at index (in persisted file order).
func (p *Pool) Delete(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.all) {
		return fmt.Errorf("pool: index %d out of range", index)
	}
	rt := p.all[index].RefreshToken
	p.all = append(p.all[:index], p.all[index+1:]...)
	delete(p.usageByRT, rt)
	p.rebuildEnabledLocked()
	return p.persistLocked()
}

// Toggle sets the enabled flag for the credential at index and persists.
// It is the only way to bring a sticky-disabled credential back into
// rotation; disable never clears itself.
func (p *Pool) Toggle(index int, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.all) {
		return fmt.Errorf("pool: index %d out of range", index)
	}
	p.all[index].Enabled = enabled
	p.rebuildEnabledLocked()
	return p.persistLocked()
}

// UsageSnapshot returns totals and per-credential counters for
// observability. It is exposed for the (interface-only) admin surface.
func (p *Pool) UsageSnapshot() PoolUsage {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := PoolUsage{TotalCredentials: len(p.all), EnabledCount: len(p.enabledIdx)}
	for _, c := range p.all {
		u := p.usageByRT[c.RefreshToken]
		var requests, lastUsed int64
		if u != nil {
			requests, lastUsed = u.Requests, u.LastUsed
		}
		out.TotalRequests += requests
		out.Credentials = append(out.Credentials, CredentialUsage{
			Email:      c.Email,
			Enabled:    c.Enabled,
			Requests:   requests,
			LastUsedMs: lastUsed,
		})
	}
	return out
}

// EnabledCount reports how many credentials are currently in rotation,
// used by the healthz probe.
func (p *Pool) EnabledCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.enabledIdx)
}

// Endpoint exposes the identity provider endpoint so callers (e.g. the
// out-of-core OAuth callback landing point) can perform a code exchange
// through the same configuration the pool refreshes against.
func (p *Pool) Endpoint() OAuthEndpoint {
	return p.endpoint
}

func maskEmail(c Credential) string {
	if c.Email != "" {
		return c.Email
	}
	if len(c.RefreshToken) > 12 {
		return "…" + c.RefreshToken[len(c.RefreshToken)-12:]
	}
	return "unknown"
}
