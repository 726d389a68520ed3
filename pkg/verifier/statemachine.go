// Copyright 2025 Agent Trust Protocol Contributors
//
// Identity chain state machine. Like SeqTracker, this is caller-owned
// state fed in block order: the Verifier itself holds nothing across
// calls. The caller walks inscriptions in (block height, block index)
// order, verifies each document cryptographically first, and then
// applies it here to resolve first-seen-wins conflicts and terminal
// revocation.

package verifier

// ChainStatus is the lifecycle state of one identity chain.
type ChainStatus string

const (
	// StatusEmpty means no identity has been seen for this chain.
	StatusEmpty ChainStatus = "empty"

	// StatusActive means the chain has a current key and accepts
	// supersessions.
	StatusActive ChainStatus = "active"

	// StatusRevoked is terminal and sticky: no later event changes it.
	StatusRevoked ChainStatus = "revoked"
)

// ChainMachine applies block-ordered events for a single identity
// chain. Apply methods return false when the event is stale or invalid
// under first-seen-wins ordering; the caller rejects such documents as
// chain-state violations rather than replaying them.
type ChainMachine struct {
	status  ChainStatus
	current string
	history map[string]bool
	depth   int
}

// NewChainMachine starts a machine in the empty state.
func NewChainMachine() *ChainMachine {
	return &ChainMachine{status: StatusEmpty, history: make(map[string]bool)}
}

// ApplyIdentity transitions empty -> active with fingerprint as the
// genesis key. A second identity for an already-started chain is a
// stale duplicate and returns false; the first-seen one stands.
func (m *ChainMachine) ApplyIdentity(fingerprint string) bool {
	if m.status != StatusEmpty {
		return false
	}
	m.status = StatusActive
	m.current = fingerprint
	m.history[fingerprint] = true
	m.depth = 1
	return true
}

// ApplySupersession rotates the chain's current key from targetF to
// newF. It returns false when the chain is not active or targetF does
// not name the current key - a second supersession off the same old
// state loses to the first-seen one.
func (m *ChainMachine) ApplySupersession(targetF, newF string) bool {
	if m.status != StatusActive || targetF != m.current {
		return false
	}
	m.current = newF
	m.history[newF] = true
	m.depth++
	return true
}

// ApplyRevocation kills the chain when signerF has ever been one of its
// keys (the poison pill). Revocation is terminal: once revoked, every
// later event - including another revocation - returns false.
func (m *ChainMachine) ApplyRevocation(signerF string) bool {
	if m.status != StatusActive || !m.history[signerF] {
		return false
	}
	m.status = StatusRevoked
	return true
}

// Status returns the chain's current lifecycle state.
func (m *ChainMachine) Status() ChainStatus {
	return m.status
}

// Current returns the chain's current key fingerprint, empty until an
// identity is applied.
func (m *ChainMachine) Current() string {
	return m.current
}

// Depth returns the number of accepted chain entries (genesis plus
// supersessions).
func (m *ChainMachine) Depth() int {
	return m.depth
}

// Member reports whether fingerprint has ever been a key of this chain.
func (m *ChainMachine) Member(fingerprint string) bool {
	return m.history[fingerprint]
}
