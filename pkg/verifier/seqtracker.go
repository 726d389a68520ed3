// Copyright 2025 Agent Trust Protocol Contributors
//
// Heartbeat sequence tracking. Per design note on seq uniqueness: the
// Verifier holds no cross-call state, so this high-water-mark map is
// owned and seeded by the caller's chain-walk loop, keyed by the
// identity's genesis fingerprint, and fed block-ordered observations
// one at a time.

package verifier

import "sync"

// SeqTracker enforces strictly-increasing heartbeat sequence numbers
// per genesis fingerprint, in block order. It is not used internally
// by Verify; callers walking a chain in block order call Observe for
// each hb after Verify reports it cryptographically valid.
type SeqTracker struct {
	mu   sync.Mutex
	high map[string]uint64
	seen map[string]bool
}

// NewSeqTracker returns an empty tracker.
func NewSeqTracker() *SeqTracker {
	return &SeqTracker{high: make(map[string]uint64), seen: make(map[string]bool)}
}

// Observe records a heartbeat with seq for fingerprint, observed in
// block order. It returns true the first time a given seq exceeds the
// prior high-water mark (or is the first heartbeat seen for
// fingerprint); it returns false for any seq at or below the mark,
// which the caller must then reject as a replay.
func (t *SeqTracker) Observe(fingerprint string, seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.seen[fingerprint] {
		t.seen[fingerprint] = true
		t.high[fingerprint] = seq
		return true
	}
	if seq <= t.high[fingerprint] {
		return false
	}
	t.high[fingerprint] = seq
	return true
}

// HighWaterMark returns the highest seq observed for fingerprint and
// whether any heartbeat has been observed at all.
func (t *SeqTracker) HighWaterMark(fingerprint string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.high[fingerprint], t.seen[fingerprint]
}
