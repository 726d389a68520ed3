// Copyright 2025 Agent Trust Protocol Contributors
//
// Resolver - Fetches an ATP document by chain reference over the node's
// JSON-RPC interface. The node is the sole source of truth; an Explorer
// (pkg/explorer) may suggest where to look, but every claim it makes is
// re-verified against documents fetched here (see the verifier's chain
// walker); this package itself never consults the Explorer.

package resolver

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/atp-protocol/atp-engine/pkg/atperrors"
	"github.com/atp-protocol/atp-engine/pkg/codec"
	"github.com/atp-protocol/atp-engine/pkg/crypto"
	"github.com/atp-protocol/atp-engine/pkg/envelope"
	"github.com/atp-protocol/atp-engine/pkg/metrics"
	"github.com/atp-protocol/atp-engine/pkg/schema"
)

// txidRe matches a 64-hex-character transaction id. A ref.id failing
// this is never treated as a file path or any other kind of locator.
var txidRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// RawTxFetcher is the slice of *rpcclient.Client this package depends
// on. Narrowing to an interface here, rather than holding the concrete
// client, lets tests substitute a fake node without a live Bitcoin RPC
// endpoint.
type RawTxFetcher interface {
	GetRawTransactionVerbose(txHash *chainhash.Hash) (*btcjson.TxRawResult, error)
}

// Resolver fetches ATP documents from a Bitcoin node over JSON-RPC.
type Resolver struct {
	client  RawTxFetcher
	metrics *metrics.Metrics
}

// New wraps an already-connected rpcclient.Client.
func New(client *rpcclient.Client) *Resolver {
	return &Resolver{client: client}
}

// NewWithClient wraps any RawTxFetcher, such as a test double standing
// in for a live node.
func NewWithClient(client RawTxFetcher) *Resolver {
	return &Resolver{client: client}
}

// WithMetrics records RPC latency against m. Returns r for chaining.
func (r *Resolver) WithMetrics(m *metrics.Metrics) *Resolver {
	r.metrics = m
	return r
}

// FetchDoc asserts ref.id is a TXID, fetches the raw transaction,
// extracts the first input's witness, parses an inscription envelope
// out of it, and decodes the payload. The returned document is
// unvalidated; callers run it through schema.Parse before trusting it.
// The wire format is returned alongside it so callers can recompute the
// encoded size for the size guard without re-deriving it from content
// type strings themselves.
func (r *Resolver) FetchDoc(ctx context.Context, ref schema.ChainRef) (codec.Doc, codec.Format, error) {
	if !txidRe.MatchString(ref.ID) {
		return nil, "", atperrors.New(atperrors.InvalidInput, "ref.id", fmt.Errorf("not a 64-hex-char txid: %q", ref.ID))
	}
	hash, err := chainhash.NewHashFromStr(ref.ID)
	if err != nil {
		return nil, "", atperrors.New(atperrors.InvalidInput, "ref.id", err)
	}

	tx, err := r.getRawTransactionVerbose(ctx, hash)
	if err != nil {
		return nil, "", atperrors.New(atperrors.NetworkUnavailable, "ref.id", err)
	}
	if len(tx.Vin) == 0 {
		return nil, "", atperrors.New(atperrors.UnresolvableReference, "ref.id", fmt.Errorf("transaction has no inputs"))
	}

	witness := make([][]byte, 0, len(tx.Vin[0].Witness))
	for _, w := range tx.Vin[0].Witness {
		raw, err := hex.DecodeString(w)
		if err != nil {
			return nil, "", atperrors.New(atperrors.UnresolvableReference, "ref.id", fmt.Errorf("invalid witness hex: %w", err))
		}
		witness = append(witness, raw)
	}

	env, err := envelope.ParseWitness(witness)
	if err != nil {
		return nil, "", atperrors.New(atperrors.UnresolvableReference, "ref.id", err)
	}

	format := formatOf(env.ContentType)
	if format == "" {
		return nil, "", atperrors.New(atperrors.InvalidInput, "content-type", fmt.Errorf("unsupported content type %q", env.ContentType))
	}

	if len(env.Body) > codec.MaxDocumentBytes {
		return nil, "", atperrors.New(atperrors.InvalidInput, "ref.id", fmt.Errorf("inscription body is %d bytes, exceeds %d byte limit", len(env.Body), codec.MaxDocumentBytes))
	}

	doc, err := codec.Decode(env.Body, format)
	if err != nil {
		return nil, "", atperrors.New(atperrors.CodecError, "", err)
	}
	return doc, format, nil
}

func formatOf(ct string) codec.Format {
	switch ct {
	case codec.FormatJSON.ContentType():
		return codec.FormatJSON
	case codec.FormatCBOR.ContentType():
		return codec.FormatCBOR
	default:
		return ""
	}
}

// getRawTransactionVerbose races the client's blocking call against ctx
// so cancellation takes effect even though RawTxFetcher has no native
// context support.
func (r *Resolver) getRawTransactionVerbose(ctx context.Context, hash *chainhash.Hash) (*btcjson.TxRawResult, error) {
	type result struct {
		tx  *btcjson.TxRawResult
		err error
	}
	start := time.Now()
	done := make(chan result, 1)
	go func() {
		tx, err := r.client.GetRawTransactionVerbose(hash)
		done <- result{tx, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if r.metrics != nil {
			r.metrics.ResolverLatency.WithLabelValues("getrawtransaction").Observe(time.Since(start).Seconds())
		}
		return res.tx, res.err
	}
}

// ResolvedIdentity is the outcome of ResolveIdentity: the chain's first
// key, its computed fingerprint, and the parsed variant the key came
// from (*schema.Identity or *schema.Supersession).
type ResolvedIdentity struct {
	Fingerprint string
	Key         schema.Key
	Variant     interface{}
}

// ResolveIdentity fetches ref, schema-validates it, requires t ∈ {id,
// super}, and returns the first key in k along with its computed
// fingerprint.
func (r *Resolver) ResolveIdentity(ctx context.Context, ref schema.ChainRef) (*ResolvedIdentity, error) {
	doc, _, err := r.FetchDoc(ctx, ref)
	if err != nil {
		return nil, err
	}
	parsed, err := schema.Parse(doc)
	if err != nil {
		return nil, err
	}

	var keys []schema.Key
	switch v := parsed.(type) {
	case *schema.Identity:
		keys = v.K
	case *schema.Supersession:
		keys = v.K
	default:
		return nil, atperrors.New(atperrors.InvalidInput, "ref", fmt.Errorf("document at %s is not an identity or supersession", ref.ID))
	}
	if len(keys) == 0 {
		return nil, atperrors.New(atperrors.SchemaViolation, "k", fmt.Errorf("no keys present"))
	}

	key := keys[0]
	pub, err := codec.B64Decode(key.P)
	if err != nil {
		return nil, atperrors.New(atperrors.SchemaViolation, "k[0].p", err)
	}
	fp := crypto.Fingerprint(crypto.Algorithm(key.T), pub)
	return &ResolvedIdentity{Fingerprint: fp, Key: key, Variant: parsed}, nil
}
