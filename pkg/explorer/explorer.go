// Copyright 2025 Agent Trust Protocol Contributors
//
// Explorer client - Queries the untrusted inscription indexer
// Every answer the Explorer gives is cross-checked against the node by
// the verifier; this client only transports and decodes responses.

package explorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/atp-protocol/atp-engine/pkg/atperrors"
	"github.com/atp-protocol/atp-engine/pkg/metrics"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns a Config with a 10s timeout and a
// "[Explorer] "-prefixed logger.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		Logger:  log.New(log.Writer(), "[Explorer] ", log.LstdFlags),
	}
}

// Client queries an Explorer instance over HTTPS.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
	metrics *metrics.Metrics
}

// New constructs a Client. cfg may be nil to accept all defaults; a
// zero-value BaseURL is allowed at construction time but every call
// will fail until one is set.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Explorer] ", log.LstdFlags)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// IdentityState is the Explorer's claim about a fingerprint's current
// chain state.
type IdentityState struct {
	GenesisFingerprint string `json:"genesisFingerprint"`
	CurrentFingerprint string `json:"currentFingerprint"`
	Status             string `json:"status"`
	ChainDepth         int    `json:"chainDepth"`
	LatestInscription  string `json:"latestInscriptionId"`
}

// ChainEntry is one entry in an Explorer-reported supersession chain.
type ChainEntry struct {
	Txid        string `json:"txid"`
	BlockHeight int64  `json:"blockHeight"`
	BlockIndex  int    `json:"blockIndex"`
	Fingerprint string `json:"fingerprint"`
	Tag         string `json:"tag"`
}

// ChainHistory is the Explorer's claimed ordered chain for a
// fingerprint, plus an optional terminal revocation entry.
type ChainHistory struct {
	Entries   []ChainEntry `json:"entries"`
	RevokedAt *ChainEntry  `json:"revokedAt,omitempty"`
}

// DocumentRecord is the Explorer's raw inscription record for a txid.
type DocumentRecord struct {
	Txid        string `json:"txid"`
	BlockHeight int64  `json:"blockHeight"`
	BlockIndex  int    `json:"blockIndex"`
	ContentType string `json:"contentType"`
	Body        string `json:"body"`
}

// Info describes indexer metadata and policy knobs.
type Info struct {
	Version   string `json:"version"`
	TipHeight int64  `json:"tipHeight"`
	Net       string `json:"net"`
}

// Identity queries GET /identity/{fp}.
func (c *Client) Identity(ctx context.Context, fingerprint string) (*IdentityState, error) {
	var out IdentityState
	if err := c.get(ctx, "identity", "/identity/"+fingerprint, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chain queries GET /identity/{fp}/chain.
func (c *Client) Chain(ctx context.Context, fingerprint string) (*ChainHistory, error) {
	var out ChainHistory
	if err := c.get(ctx, "chain", "/identity/"+fingerprint+"/chain", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Document queries GET /document/{txid}.
func (c *Client) Document(ctx context.Context, txid string) (*DocumentRecord, error) {
	var out DocumentRecord
	if err := c.get(ctx, "document", "/document/"+txid, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Info queries GET /info.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	var out Info
	if err := c.get(ctx, "info", "/info", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, out interface{}) error {
	start := time.Now()
	err := c.doGet(ctx, path, out)
	if c.metrics != nil {
		c.metrics.ExplorerLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			kind := "unknown"
			if aerr, ok := err.(*atperrors.Error); ok {
				kind = string(aerr.Kind)
			}
			c.metrics.ExplorerFailures.WithLabelValues(endpoint, kind).Inc()
		}
	}
	return err
}

func (c *Client) doGet(ctx context.Context, path string, out interface{}) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return atperrors.New(atperrors.InvalidInput, path, err)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return atperrors.New(atperrors.NetworkUnavailable, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return atperrors.New(atperrors.NetworkUnavailable, path, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 500 {
		return atperrors.New(atperrors.NetworkUnavailable, path, fmt.Errorf("explorer unavailable: status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return atperrors.New(atperrors.UnresolvableReference, path, fmt.Errorf("explorer rejected request: status %d: %s", resp.StatusCode, string(bytes.TrimSpace(body))))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return atperrors.New(atperrors.CodecError, path, fmt.Errorf("decode explorer response: %w", err))
	}
	c.logger.Printf("GET %s -> %d", path, resp.StatusCode)
	return nil
}
