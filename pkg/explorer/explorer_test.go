package explorer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atp-protocol/atp-engine/pkg/atperrors"
)

func TestIdentityDecodesSuccessResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/identity/fp1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"genesisFingerprint":"fp1","currentFingerprint":"fp2","status":"active","chainDepth":2,"latestInscriptionId":"abc"}`))
	}))
	defer srv.Close()

	c := New(&Config{BaseURL: srv.URL})
	state, err := c.Identity(context.Background(), "fp1")
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if state.CurrentFingerprint != "fp2" || state.ChainDepth != 2 {
		t.Errorf("unexpected state: %+v", state)
	}
}

func TestGetMaps5xxToNetworkUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(&Config{BaseURL: srv.URL})
	_, err := c.Info(context.Background())
	if err == nil {
		t.Fatal("expected an error for a 5xx response")
	}
	if !atperrors.Of(err, atperrors.NetworkUnavailable) {
		t.Errorf("expected NetworkUnavailable, got %v", err)
	}
}

func TestGetMaps4xxToUnresolvableReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(&Config{BaseURL: srv.URL})
	_, err := c.Chain(context.Background(), "fp1")
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	if !atperrors.Of(err, atperrors.UnresolvableReference) {
		t.Errorf("expected UnresolvableReference, got %v", err)
	}
}

func TestGetRejectsMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(&Config{BaseURL: srv.URL})
	_, err := c.Document(context.Background(), "txid")
	if err == nil {
		t.Fatal("expected a decode error")
	}
	if !atperrors.Of(err, atperrors.CodecError) {
		t.Errorf("expected CodecError, got %v", err)
	}
}
