// Package pool implements the rotating, self-refreshing, self-disabling
// OAuth2 credential pool at the core of this gateway: an explicit
// round-robin cursor with sticky disable driven by real HTTP status
// inspection rather than string-matching on error text.
package pool

import "time"

// Credential is one OAuth2 bearer credential harvested from the identity
// provider.
type Credential struct {
	AccessToken       string `json:"access_token"`
	RefreshToken      string `json:"refresh_token"`
	ExpiresInSeconds  int64  `json:"expires_in_seconds"`
	IssuedAtMs        int64  `json:"issued_at_ms"`
	Enabled           bool   `json:"enabled"`
	Email             string `json:"email,omitempty"`
	DisplayName       string `json:"display_name,omitempty"`
}

// refreshDeadlineMs is the moment, in unix-millis, at which this credential
// must be refreshed before use: issued_at + expires_in - 5 minute skew.
func (c *Credential) refreshDeadlineMs() int64 {
	return c.IssuedAtMs + c.ExpiresInSeconds*1000 - refreshSkewMs
}

// needsRefresh reports whether c must be refreshed before it can be
// returned to a caller at nowMs.
func (c *Credential) needsRefresh(nowMs int64) bool {
	return nowMs+refreshSkewMs >= c.IssuedAtMs+c.ExpiresInSeconds*1000
}

const refreshSkewMs = 5 * 60 * 1000

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// usage is the in-memory per-credential counter keyed by refresh token.
type usage struct {
	Requests  int64 `json:"requests"`
	LastUsed  int64 `json:"last_used_ms"`
}

// CredentialUsage is the read-only observability view of one credential.
type CredentialUsage struct {
	Email      string `json:"email"`
	Enabled    bool   `json:"enabled"`
	Requests   int64  `json:"requests"`
	LastUsedMs int64  `json:"last_used_ms"`
}

// PoolUsage is the aggregate observability snapshot returned by
// UsageSnapshot.
type PoolUsage struct {
	TotalCredentials int               `json:"total_credentials"`
	EnabledCount     int               `json:"enabled_count"`
	TotalRequests    int64             `json:"total_requests"`
	Credentials      []CredentialUsage `json:"credentials"`
}
