// atp-verify is a demonstration CLI for the ATP document engine.
// It loads a document, either from a local file or by resolving a
// net:txid chain reference against a Bitcoin node, runs it through the
// verifier, and prints a one-line result.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/btcsuite/btcd/rpcclient"

	"github.com/atp-protocol/atp-engine/pkg/codec"
	"github.com/atp-protocol/atp-engine/pkg/config"
	"github.com/atp-protocol/atp-engine/pkg/explorer"
	"github.com/atp-protocol/atp-engine/pkg/resolver"
	"github.com/atp-protocol/atp-engine/pkg/schema"
	"github.com/atp-protocol/atp-engine/pkg/verifier"
)

func main() {
	var (
		file       = flag.String("file", "", "path to a local JSON document to verify")
		ref        = flag.String("ref", "", "chain reference to resolve and verify, as net:txid or plain txid")
		configPath = flag.String("config", "", "path to an ATP config YAML file")
	)
	flag.Parse()

	if *file == "" && *ref == "" {
		fmt.Fprintln(os.Stderr, "usage: atp-verify -file <path> | -ref <net:txid>")
		os.Exit(2)
	}

	cfg := config.DefaultATPConfig()
	if *configPath != "" {
		loaded, err := config.LoadATPConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	v, res, err := buildVerifier(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var doc codec.Doc
	var format codec.Format

	switch {
	case *file != "":
		raw, rerr := os.ReadFile(*file)
		if rerr != nil {
			fmt.Fprintf(os.Stderr, "error: reading %s: %v\n", *file, rerr)
			os.Exit(1)
		}
		doc, err = codec.DecodeJSON(raw)
		format = codec.FormatJSON
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: decoding %s: %v\n", *file, err)
			os.Exit(1)
		}
	case *ref != "":
		doc, format, err = res.FetchDoc(ctx, parseRef(*ref))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: resolving %s: %v\n", *ref, err)
			os.Exit(1)
		}
	}

	result, verr := v.Verify(ctx, doc, format)
	if verr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", verr)
		os.Exit(1)
	}

	printResult(result)
	if !result.Valid {
		os.Exit(1)
	}
}

func printResult(r *verifier.Result) {
	status := "VALID"
	if !r.Valid {
		status = "INVALID"
	}
	line := fmt.Sprintf("%s tag=%s", status, r.Tag)
	if r.Err != nil {
		line += fmt.Sprintf(" kind=%s field=%s err=%v", r.Err.Kind, r.Err.Field, r.Err.Unwrap())
	}
	for _, w := range r.Warnings {
		line += fmt.Sprintf(" warning=%q", w)
	}
	fmt.Println(line)
}

// parseRef splits at the last colon: CAIP-2 network identifiers carry a
// colon of their own (bip122:<hash>), so net:txid cannot be split at the
// first one.
func parseRef(s string) schema.ChainRef {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return schema.ChainRef{Net: s[:i], ID: s[i+1:]}
	}
	return schema.ChainRef{ID: s}
}

func rpcClient(cfg *config.ATPConfig) *rpcclient.Client {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Node.Host,
		User:         cfg.Node.User,
		Pass:         cfg.Node.Pass,
		HTTPPostMode: true,
		DisableTLS:   cfg.Node.DisableTLS,
	}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: connecting to node: %v\n", err)
		os.Exit(1)
	}
	return client
}

func buildVerifier(cfg *config.ATPConfig) (*verifier.Verifier, *resolver.Resolver, error) {
	res := resolver.New(rpcClient(cfg))

	var exp *explorer.Client
	if cfg.Explorer.Enabled {
		exp = explorer.New(&explorer.Config{
			BaseURL: cfg.Explorer.BaseURL,
			Timeout: time.Duration(cfg.Explorer.Timeout),
		})
	}

	vcfg := verifier.DefaultConfig()
	vcfg.TimestampDriftTolerance = time.Duration(cfg.Verifier.TimestampDriftTolerance)
	vcfg.RequireExplorer = cfg.Verifier.RequireExplorer

	return verifier.New(res, exp, vcfg, nil), res, nil
}
