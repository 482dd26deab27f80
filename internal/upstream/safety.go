package upstream

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// SafetyChecker guards against a stalled or looping Upstream: repeated
// identical SSE frames or an inter-chunk timeout abort the stream with
// an upstream-interrupted error. The repeated-chunk detection technique
// traces back to LiteLLM's CustomStreamWrapper.
type SafetyChecker struct {
	lastChunkHash [32]byte
	haveHash      bool
	repeatCount   int
	maxRepeats    int
	lastChunkTime time.Time
	streamTimeout time.Duration
}

// NewSafetyChecker returns a checker with sane defaults: 10 identical
// repeats or a 5-minute inter-chunk gap aborts the stream.
func NewSafetyChecker() *SafetyChecker {
	return &SafetyChecker{
		maxRepeats:    10,
		streamTimeout: 5 * time.Minute,
		lastChunkTime: time.Now(),
	}
}

// CheckChunk records data as the most recent chunk and reports whether
// the stream should be aborted.
func (c *SafetyChecker) CheckChunk(data []byte) (abort bool, reason string) {
	now := time.Now()
	if now.Sub(c.lastChunkTime) > c.streamTimeout {
		return true, "no data received within stream timeout"
	}
	c.lastChunkTime = now

	hash := sha256.Sum256(data)
	if c.haveHash && hash == c.lastChunkHash {
		c.repeatCount++
		if c.repeatCount >= c.maxRepeats {
			return true, fmt.Sprintf("identical chunk repeated %d times", c.repeatCount)
		}
	} else {
		c.repeatCount = 0
	}
	c.lastChunkHash = hash
	c.haveHash = true
	return false, ""
}

// Reset clears repeat/timeout tracking, for reuse across requests.
func (c *SafetyChecker) Reset() {
	c.haveHash = false
	c.repeatCount = 0
	c.lastChunkTime = time.Now()
}
