// Copyright 2025 Agent Trust Protocol Contributors
//
// Chain walking - Enumerates a fingerprint's supersession chain via the
// Explorer and re-verifies every entry against the node. The Explorer
// is a cache, never an oracle: every claim it makes about a fingerprint
// is cross-checked here, and a mismatch is fatal.

package verifier

import (
	"context"
	"fmt"

	"github.com/atp-protocol/atp-engine/pkg/atperrors"
	"github.com/atp-protocol/atp-engine/pkg/explorer"
	"github.com/atp-protocol/atp-engine/pkg/resolver"
	"github.com/atp-protocol/atp-engine/pkg/schema"
)

// ChainState is an identity chain as an append-only vector of entries,
// represented here as the set of fingerprints that have ever been the
// chain's current key (the "poison pill" set) plus the chain's present
// state.
type ChainState struct {
	GenesisFingerprint string
	CurrentFingerprint string
	CurrentKey         schema.Key
	History            map[string]schema.Key
	Depth              int
	Revoked            bool
}

// chainWalker enumerates a fingerprint's chain through the Explorer and
// re-verifies each entry against the node via the resolver.
type chainWalker struct {
	resolver *resolver.Resolver
	explorer *explorer.Client
}

func newChainWalker(res *resolver.Resolver, exp *explorer.Client) *chainWalker {
	return &chainWalker{resolver: res, explorer: exp}
}

// Walk fetches fingerprint's chain history from the Explorer and
// re-derives it from the node entry by entry.
func (w *chainWalker) Walk(ctx context.Context, fingerprint string) (*ChainState, *atperrors.Error) {
	hist, err := w.explorer.Chain(ctx, fingerprint)
	if err != nil {
		if aerr, ok := err.(*atperrors.Error); ok {
			return nil, aerr
		}
		return nil, atperrors.New(atperrors.NetworkUnavailable, fingerprint, err)
	}

	state := &ChainState{History: make(map[string]schema.Key, len(hist.Entries))}

	for i, entry := range hist.Entries {
		if i > 0 {
			prev := hist.Entries[i-1]
			if entry.BlockHeight < prev.BlockHeight ||
				(entry.BlockHeight == prev.BlockHeight && entry.BlockIndex < prev.BlockIndex) {
				return nil, atperrors.New(atperrors.ExplorerInconsistency, entry.Txid, fmt.Errorf("chain entries are not in block order at position %d", i))
			}
		}
		doc, _, ferr := w.resolver.FetchDoc(ctx, schema.ChainRef{ID: entry.Txid})
		if ferr != nil {
			if aerr, ok := ferr.(*atperrors.Error); ok {
				return nil, aerr
			}
			return nil, atperrors.New(atperrors.NetworkUnavailable, entry.Txid, ferr)
		}
		parsed, perr := schema.Parse(doc)
		if perr != nil {
			if aerr, ok := perr.(*atperrors.Error); ok {
				return nil, aerr
			}
			return nil, atperrors.New(atperrors.SchemaViolation, entry.Txid, perr)
		}

		var keys []schema.Key
		switch d := parsed.(type) {
		case *schema.Identity:
			if i != 0 {
				return nil, atperrors.New(atperrors.ChainStateViolation, entry.Txid, fmt.Errorf("identity document found mid-chain at position %d", i))
			}
			keys = d.K
		case *schema.Supersession:
			if i == 0 {
				return nil, atperrors.New(atperrors.ChainStateViolation, entry.Txid, fmt.Errorf("chain does not begin with an identity document"))
			}
			if d.Target.F != state.CurrentFingerprint {
				return nil, atperrors.New(atperrors.ChainStateViolation, entry.Txid, fmt.Errorf("supersession target %s does not match previous chain key %s", d.Target.F, state.CurrentFingerprint))
			}
			keys = d.K
		default:
			return nil, atperrors.New(atperrors.ChainStateViolation, entry.Txid, fmt.Errorf("unexpected document tag in chain"))
		}
		if len(keys) == 0 {
			return nil, atperrors.New(atperrors.SchemaViolation, entry.Txid, fmt.Errorf("no keys present"))
		}

		fp, ferr2 := fingerprintOf(keys[0])
		if ferr2 != nil {
			return nil, ferr2
		}
		if fp != entry.Fingerprint {
			return nil, atperrors.New(atperrors.ExplorerInconsistency, entry.Txid, fmt.Errorf("explorer claims fingerprint %s, node resolves to %s", entry.Fingerprint, fp))
		}

		if i == 0 {
			state.GenesisFingerprint = fp
		}
		state.History[fp] = keys[0]
		state.CurrentFingerprint = fp
		state.CurrentKey = keys[0]
		state.Depth = i + 1
	}

	if hist.RevokedAt != nil {
		if rerr := w.verifyRevocationEntry(ctx, hist.RevokedAt, state); rerr != nil {
			return nil, rerr
		}
		state.Revoked = true
	}
	return state, nil
}

// verifyRevocationEntry re-derives an Explorer-claimed revocation from
// the node: the inscription must decode to a revoke document whose
// signer is a member of the chain's history and whose signature
// verifies under that key. The revoked flag is never set on the
// Explorer's word alone.
func (w *chainWalker) verifyRevocationEntry(ctx context.Context, entry *explorer.ChainEntry, state *ChainState) *atperrors.Error {
	doc, format, ferr := w.resolver.FetchDoc(ctx, schema.ChainRef{ID: entry.Txid})
	if ferr != nil {
		if aerr, ok := ferr.(*atperrors.Error); ok {
			return aerr
		}
		return atperrors.New(atperrors.NetworkUnavailable, entry.Txid, ferr)
	}
	parsed, perr := schema.Parse(doc)
	if perr != nil {
		if aerr, ok := perr.(*atperrors.Error); ok {
			return aerr
		}
		return atperrors.New(atperrors.SchemaViolation, entry.Txid, perr)
	}
	rev, ok := parsed.(*schema.Revocation)
	if !ok {
		return atperrors.New(atperrors.ExplorerInconsistency, entry.Txid, fmt.Errorf("claimed revocation is not a revoke document"))
	}
	if rev.S == nil {
		return atperrors.New(atperrors.SchemaViolation, entry.Txid, fmt.Errorf("revocation carries no signature"))
	}
	key, found := state.History[rev.S.F]
	if !found {
		return atperrors.New(atperrors.NotAuthorized, entry.Txid, fmt.Errorf("revocation signer %s is not a member of the chain's supersession history", rev.S.F))
	}
	return verifySignature(rev, *rev.S, key, format)
}

// ChainState enumerates fingerprint's chain through the Explorer,
// re-verifying every entry against the node. Callers drive the
// revoked-is-terminal / first-seen-wins state machine of protocol
// section 4.6 themselves, in block order, using this as the source of
// per-identity chain facts; the Verifier holds no state across calls.
func (v *Verifier) ChainState(ctx context.Context, fingerprint string) (*ChainState, error) {
	if v.explorer == nil {
		return nil, atperrors.New(atperrors.NotAuthorized, fingerprint, fmt.Errorf("chain walking requires an explorer"))
	}
	walker := newChainWalker(v.resolver, v.explorer)
	state, err := walker.Walk(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	return state, nil
}
