package verifier

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/atp-protocol/atp-engine/pkg/atperrors"
	"github.com/atp-protocol/atp-engine/pkg/codec"
	"github.com/atp-protocol/atp-engine/pkg/crypto"
	"github.com/atp-protocol/atp-engine/pkg/envelope"
	"github.com/atp-protocol/atp-engine/pkg/explorer"
	"github.com/atp-protocol/atp-engine/pkg/resolver"
	"github.com/atp-protocol/atp-engine/pkg/schema"
)

// chainFetcher stands in for *rpcclient.Client, keyed by txid, so the
// chain walker's sequence of FetchDoc calls resolves deterministically
// without a live node.
type chainFetcher struct {
	txs map[string]*btcjson.TxRawResult
}

func (f *chainFetcher) GetRawTransactionVerbose(hash *chainhash.Hash) (*btcjson.TxRawResult, error) {
	tx, ok := f.txs[hash.String()]
	if !ok {
		return nil, atperrors.New(atperrors.UnresolvableReference, "", fmt.Errorf("no fixture registered for txid %s", hash.String()))
	}
	return tx, nil
}

func inscribe(t *testing.T, doc codec.Doc) *btcjson.TxRawResult {
	t.Helper()
	body, err := codec.EncodeDocument(doc, codec.FormatJSON)
	if err != nil {
		t.Fatalf("EncodeDocument: %v", err)
	}
	script, err := envelope.Build(body, codec.FormatJSON.ContentType())
	if err != nil {
		t.Fatalf("envelope.Build: %v", err)
	}
	return &btcjson.TxRawResult{Vin: []btcjson.Vin{{Witness: []string{hex.EncodeToString(script)}}}}
}

func identityDocFor(t *testing.T, kp *crypto.KeyPair) codec.Doc {
	t.Helper()
	d := &schema.Identity{
		Base: schema.Base{V: schema.Version, T: schema.TagIdentity},
		N:    "Shrike",
		K:    []schema.Key{{T: string(crypto.AlgEd25519), P: codec.B64Encode(kp.Public)}},
		S:    &schema.Signature{F: crypto.Fingerprint(crypto.AlgEd25519, kp.Public), Sig: codec.B64Encode([]byte("deadbeef"))},
	}
	doc, err := schema.ToDoc(d)
	if err != nil {
		t.Fatalf("ToDoc: %v", err)
	}
	return doc
}

func supersessionDocFor(t *testing.T, oldFP string, oldTxid string, newKP *crypto.KeyPair) codec.Doc {
	t.Helper()
	d := &schema.Supersession{
		Base:   schema.Base{V: schema.Version, T: schema.TagSupersession},
		Target: schema.Target{F: oldFP, Ref: schema.ChainRef{ID: oldTxid}},
		N:      "Shrike",
		K:      []schema.Key{{T: string(crypto.AlgEd25519), P: codec.B64Encode(newKP.Public)}},
		Reason: schema.ReasonKeyRotation,
		S: []schema.Signature{
			{F: oldFP, Sig: codec.B64Encode([]byte("deadbeef"))},
			{F: crypto.Fingerprint(crypto.AlgEd25519, newKP.Public), Sig: codec.B64Encode([]byte("deadbeef"))},
		},
	}
	doc, err := schema.ToDoc(d)
	if err != nil {
		t.Fatalf("ToDoc: %v", err)
	}
	return doc
}

// explorerChainServer serves a fixed ChainHistory from every
// /identity/{fp}/chain request, regardless of which fingerprint is
// queried - the tests below only exercise a single chain.
func explorerChainServer(t *testing.T, hist explorer.ChainHistory) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chain") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hist)
	}))
}

func signRevocation(t *testing.T, target schema.Target, signerFP string, signerKP *crypto.KeyPair) *schema.Revocation {
	t.Helper()
	d := &schema.Revocation{
		Base:   schema.Base{V: schema.Version, T: schema.TagRevocation},
		Target: target,
		Reason: schema.RevokeReasonKeyCompromised,
	}
	doc, err := schema.ToDoc(d)
	if err != nil {
		t.Fatalf("ToDoc: %v", err)
	}
	payload, err := codec.EncodeForSigning(doc, codec.FormatJSON)
	if err != nil {
		t.Fatalf("EncodeForSigning: %v", err)
	}
	sig, err := crypto.Sign(signerKP.Private, payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	d.S = &schema.Signature{F: signerFP, Sig: codec.B64Encode(sig)}
	return d
}

// buildTwoHopChain returns a genesis identity (kp0) superseded once to
// kp1, with both inscriptions registered in fetcher and both entries
// present in the returned Explorer chain history. kp1's fingerprint is
// the chain's current head.
func buildTwoHopChain(t *testing.T) (kp0, kp1 *crypto.KeyPair, fp0, fp1, txid0, txid1 string, fetcher *chainFetcher, hist explorer.ChainHistory) {
	t.Helper()
	var err error
	kp0, err = crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	kp1, err = crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	fp0 = crypto.Fingerprint(crypto.AlgEd25519, kp0.Public)
	fp1 = crypto.Fingerprint(crypto.AlgEd25519, kp1.Public)
	txid0 = strings.Repeat("a", 64)
	txid1 = strings.Repeat("b", 64)

	idDoc := identityDocFor(t, kp0)
	superDoc := supersessionDocFor(t, fp0, txid0, kp1)

	fetcher = &chainFetcher{txs: map[string]*btcjson.TxRawResult{
		txid0: inscribe(t, idDoc),
		txid1: inscribe(t, superDoc),
	}}

	hist = explorer.ChainHistory{Entries: []explorer.ChainEntry{
		{Txid: txid0, Fingerprint: fp0, Tag: "identity"},
		{Txid: txid1, Fingerprint: fp1, Tag: "supersession"},
	}}
	return
}

func TestChainWalkerWalksGenesisAndSupersession(t *testing.T) {
	_, _, fp0, fp1, _, _, fetcher, hist := buildTwoHopChain(t)

	srv := explorerChainServer(t, hist)
	defer srv.Close()

	res := resolver.NewWithClient(fetcher)
	exp := explorer.New(&explorer.Config{BaseURL: srv.URL})
	walker := newChainWalker(res, exp)

	state, werr := walker.Walk(context.Background(), fp1)
	if werr != nil {
		t.Fatalf("Walk: %v", werr)
	}
	if state.Depth != 2 {
		t.Errorf("depth = %d, want 2", state.Depth)
	}
	if state.GenesisFingerprint != fp0 {
		t.Errorf("genesis = %q, want %q", state.GenesisFingerprint, fp0)
	}
	if state.CurrentFingerprint != fp1 {
		t.Errorf("current = %q, want %q", state.CurrentFingerprint, fp1)
	}
	if _, ok := state.History[fp0]; !ok {
		t.Error("expected the genesis fingerprint to be present in chain history")
	}
	if _, ok := state.History[fp1]; !ok {
		t.Error("expected the current fingerprint to be present in chain history")
	}
	if state.Revoked {
		t.Error("chain with no revokedAt entry must not be marked revoked")
	}
}

// A supersession whose target fingerprint does not point at the
// previous chain entry breaks the chain linkage and must fail the walk.
func TestChainWalkerRejectsBrokenSupersessionLinkage(t *testing.T) {
	_, _, fp0, _, txid0, txid1, fetcher, hist := buildTwoHopChain(t)

	kpX, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	fpX := crypto.Fingerprint(crypto.AlgEd25519, kpX.Public)
	kp2, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	// A supersession targeting an unrelated fingerprint, spliced into
	// the chain where the legitimate one was.
	fetcher.txs[txid1] = inscribe(t, supersessionDocFor(t, fpX, txid0, kp2))
	hist.Entries[1].Fingerprint = crypto.Fingerprint(crypto.AlgEd25519, kp2.Public)

	srv := explorerChainServer(t, hist)
	defer srv.Close()

	walker := newChainWalker(resolver.NewWithClient(fetcher), explorer.New(&explorer.Config{BaseURL: srv.URL}))
	_, werr := walker.Walk(context.Background(), fp0)
	if werr == nil {
		t.Fatal("expected broken supersession linkage to fail the walk")
	}
	if werr.Kind != atperrors.ChainStateViolation {
		t.Errorf("kind = %v, want %v", werr.Kind, atperrors.ChainStateViolation)
	}
}

// Invariant 4 - a chain is revoked iff a valid revoke document exists.
// The walker must re-derive the Explorer's revocation claim from the
// node, not take it on faith.
func TestChainWalkerReverifiesRevocationEntry(t *testing.T) {
	kp0, _, fp0, fp1, _, txid1, fetcher, hist := buildTwoHopChain(t)

	txidRev := strings.Repeat("d", 64)
	rev := signRevocation(t, schema.Target{F: fp1, Ref: schema.ChainRef{ID: txid1}}, fp0, kp0)
	revDoc, err := schema.ToDoc(rev)
	if err != nil {
		t.Fatalf("ToDoc: %v", err)
	}
	fetcher.txs[txidRev] = inscribe(t, revDoc)
	hist.RevokedAt = &explorer.ChainEntry{Txid: txidRev, Fingerprint: fp0, Tag: "revocation"}

	srv := explorerChainServer(t, hist)
	defer srv.Close()

	walker := newChainWalker(resolver.NewWithClient(fetcher), explorer.New(&explorer.Config{BaseURL: srv.URL}))
	state, werr := walker.Walk(context.Background(), fp1)
	if werr != nil {
		t.Fatalf("Walk: %v", werr)
	}
	if !state.Revoked {
		t.Error("chain with a valid revocation entry must be marked revoked")
	}
}

// A revocation claim the node cannot substantiate - here, the claimed
// inscription is signed by a key outside the chain - must fail closed
// rather than mark the chain revoked.
func TestChainWalkerRejectsRevocationFromOutsideChain(t *testing.T) {
	_, _, _, fp1, _, txid1, fetcher, hist := buildTwoHopChain(t)

	kpX, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	fpX := crypto.Fingerprint(crypto.AlgEd25519, kpX.Public)
	txidRev := strings.Repeat("e", 64)
	rev := signRevocation(t, schema.Target{F: fp1, Ref: schema.ChainRef{ID: txid1}}, fpX, kpX)
	revDoc, err := schema.ToDoc(rev)
	if err != nil {
		t.Fatalf("ToDoc: %v", err)
	}
	fetcher.txs[txidRev] = inscribe(t, revDoc)
	hist.RevokedAt = &explorer.ChainEntry{Txid: txidRev, Fingerprint: fpX, Tag: "revocation"}

	srv := explorerChainServer(t, hist)
	defer srv.Close()

	walker := newChainWalker(resolver.NewWithClient(fetcher), explorer.New(&explorer.Config{BaseURL: srv.URL}))
	_, werr := walker.Walk(context.Background(), fp1)
	if werr == nil {
		t.Fatal("expected a revocation signed outside the chain to fail the walk")
	}
	if werr.Kind != atperrors.NotAuthorized {
		t.Errorf("kind = %v, want %v", werr.Kind, atperrors.NotAuthorized)
	}
}

// S4 - a revocation signed by a superseded historical key must still
// verify, via the Explorer-walked chain history, even though the
// target's directly-resolved current key no longer matches the signer.
func TestVerifyRevocationAcceptsPoisonPillFromHistoricalKey(t *testing.T) {
	kp0, _, fp0, fp1, _, txid1, fetcher, hist := buildTwoHopChain(t)

	srv := explorerChainServer(t, hist)
	defer srv.Close()

	res := resolver.NewWithClient(fetcher)
	exp := explorer.New(&explorer.Config{BaseURL: srv.URL})
	v := &Verifier{resolver: res, explorer: exp, config: DefaultConfig()}

	target := schema.Target{F: fp1, Ref: schema.ChainRef{ID: txid1}}
	d := signRevocation(t, target, fp0, kp0)

	verr := v.verifyRevocation(context.Background(), d, codec.FormatJSON)
	if verr != nil {
		t.Fatalf("expected revocation from a historical key to verify via chain history, got %v", verr)
	}
}

// The same historical-key fallback applies to attestation revocations:
// the attestor's current key may have rotated since the attestation was
// issued, and a revocation signed by the attestor's prior key must
// still be accepted if it appears in the attestor's chain history.
func TestVerifyAttestationRevocationAcceptsHistoricalAttestorKey(t *testing.T) {
	kp0, _, fp0, fp1, txid0, txid1, fetcher, hist := buildTwoHopChain(t)

	att := &schema.Attestation{
		Base: schema.Base{V: schema.Version, T: schema.TagAttestation},
		From: schema.Target{F: fp1, Ref: schema.ChainRef{ID: txid1}},
		To:   schema.Target{F: fp0, Ref: schema.ChainRef{ID: txid0}},
		S:    &schema.Signature{F: fp1, Sig: codec.B64Encode([]byte("deadbeef"))},
	}
	attDoc, err := schema.ToDoc(att)
	if err != nil {
		t.Fatalf("ToDoc: %v", err)
	}
	txidAtt := strings.Repeat("c", 64)
	fetcher.txs[txidAtt] = inscribe(t, attDoc)

	srv := explorerChainServer(t, hist)
	defer srv.Close()

	res := resolver.NewWithClient(fetcher)
	exp := explorer.New(&explorer.Config{BaseURL: srv.URL})
	v := &Verifier{resolver: res, explorer: exp, config: DefaultConfig()}

	ar := &schema.AttestationRevocation{
		Base:   schema.Base{V: schema.Version, T: schema.TagAttestationRevocation},
		Ref:    schema.ChainRef{ID: txidAtt},
		Reason: schema.AttRevokeReasonRetracted,
	}
	doc, err := schema.ToDoc(ar)
	if err != nil {
		t.Fatalf("ToDoc: %v", err)
	}
	payload, err := codec.EncodeForSigning(doc, codec.FormatJSON)
	if err != nil {
		t.Fatalf("EncodeForSigning: %v", err)
	}
	sig, err := crypto.Sign(kp0.Private, payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ar.S = &schema.Signature{F: fp0, Sig: codec.B64Encode(sig)}

	verr := v.verifyAttestationRevocation(context.Background(), ar, codec.FormatJSON)
	if verr != nil {
		t.Fatalf("expected attestation revocation from a historical attestor key to verify, got %v", verr)
	}
}

// Property 8 - when the Explorer's claimed fingerprint for a chain
// entry does not match what the node actually decodes, the walk must
// fail closed with ExplorerInconsistency rather than trust the
// Explorer's claim.
func TestChainWalkerRejectsExplorerFingerprintMismatch(t *testing.T) {
	_, _, fp0, _, _, _, fetcher, hist := buildTwoHopChain(t)
	hist.Entries[1].Fingerprint = "not-the-real-fingerprint"

	srv := explorerChainServer(t, hist)
	defer srv.Close()

	res := resolver.NewWithClient(fetcher)
	exp := explorer.New(&explorer.Config{BaseURL: srv.URL})
	walker := newChainWalker(res, exp)

	_, werr := walker.Walk(context.Background(), fp0)
	if werr == nil {
		t.Fatal("expected a fingerprint mismatch between explorer and node to fail the walk")
	}
	if werr.Kind != atperrors.ExplorerInconsistency {
		t.Errorf("kind = %v, want %v", werr.Kind, atperrors.ExplorerInconsistency)
	}
}

// S4, second half - once a chain carries a valid revocation, a
// heartbeat referencing any key in the chain is rejected, even with a
// cryptographically valid signature under the current key.
func TestVerifyHeartbeatRejectsRevokedChain(t *testing.T) {
	kp0, kp1, fp0, fp1, _, txid1, fetcher, hist := buildTwoHopChain(t)

	txidRev := strings.Repeat("f", 64)
	rev := signRevocation(t, schema.Target{F: fp1, Ref: schema.ChainRef{ID: txid1}}, fp0, kp0)
	revDoc, err := schema.ToDoc(rev)
	if err != nil {
		t.Fatalf("ToDoc: %v", err)
	}
	fetcher.txs[txidRev] = inscribe(t, revDoc)
	hist.RevokedAt = &explorer.ChainEntry{Txid: txidRev, Fingerprint: fp0, Tag: "revocation"}

	hb := &schema.Heartbeat{
		Base: schema.Base{V: schema.Version, T: schema.TagHeartbeat},
		F:    fp1,
		Ref:  schema.ChainRef{ID: txid1},
		Seq:  1,
	}
	hbDoc, err := schema.ToDoc(hb)
	if err != nil {
		t.Fatalf("ToDoc: %v", err)
	}
	payload, err := codec.EncodeForSigning(hbDoc, codec.FormatJSON)
	if err != nil {
		t.Fatalf("EncodeForSigning: %v", err)
	}
	sig, err := crypto.Sign(kp1.Private, payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	hb.S = &schema.Signature{F: fp1, Sig: codec.B64Encode(sig)}

	srv := explorerChainServer(t, hist)
	defer srv.Close()

	res := resolver.NewWithClient(fetcher)
	exp := explorer.New(&explorer.Config{BaseURL: srv.URL})
	v := &Verifier{resolver: res, explorer: exp, config: DefaultConfig()}

	verr := v.verifyHeartbeat(context.Background(), hb, codec.FormatJSON)
	if verr == nil {
		t.Fatal("expected a heartbeat on a revoked chain to be rejected")
	}
	if verr.Kind != atperrors.ChainStateViolation {
		t.Errorf("kind = %v, want %v", verr.Kind, atperrors.ChainStateViolation)
	}
}

func TestVerifyAgainstChainHistoryRejectsUnknownFingerprintWithoutExplorer(t *testing.T) {
	kp0, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	fp0 := crypto.Fingerprint(crypto.AlgEd25519, kp0.Public)
	v := &Verifier{config: DefaultConfig()}
	verr := v.verifyAgainstChainHistory(context.Background(), fp0, &schema.Revocation{}, schema.Signature{F: fp0}, codec.FormatJSON)
	if verr == nil || verr.Kind != atperrors.NotAuthorized {
		t.Fatalf("expected NotAuthorized without an explorer, got %v", verr)
	}
}
