// Copyright 2025 Ledgercore Contributors
//
// ledgerctl wires the catalog, off-chain store, key registry, and signer
// together and appends a handful of blocks, as a smoke test of the engine
// end to end. It is not a general-purpose CLI.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tamperledger/ledgercore/pkg/config"
	"github.com/tamperledger/ledgercore/pkg/database"
	"github.com/tamperledger/ledgercore/pkg/keyregistry"
	"github.com/tamperledger/ledgercore/pkg/ledger"
	"github.com/tamperledger/ledgercore/pkg/objectstore"
	"github.com/tamperledger/ledgercore/pkg/signing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client, err := database.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("connect to catalog: %w", err)
	}
	defer client.Close()

	if err := client.MigrateUp(ctx); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}

	store, err := objectstore.New(cfg.OffChainDir)
	if err != nil {
		return fmt.Errorf("open off-chain store: %w", err)
	}

	registry := keyregistry.New(client)
	engine := ledger.New(client, store, registry, cfg.OffChainThresholdBytes, cfg.InlineCharCeiling)

	km := signing.NewKeyManager("")
	if err := km.GenerateNewKey(signing.SchemeMLDSA87); err != nil {
		return fmt.Errorf("generate signer key: %w", err)
	}
	signer := km.Signer()

	if err := registry.Register(ctx, signer.PublicKeyText(), "ledgerctl-demo", keyregistry.RoleAdmin, "ledgerctl"); err != nil {
		return fmt.Errorf("register signer key: %w", err)
	}

	block, err := engine.Append(ctx, []byte("hello"), signer, ledger.AppendOptions{ContentCategory: "demo"})
	if err != nil {
		return fmt.Errorf("append first block: %w", err)
	}
	fmt.Printf("appended block %d (hash=%s)\n", block.BlockNumber, block.Hash)

	block, err = engine.Append(ctx, []byte("world"), signer, ledger.AppendOptions{ContentCategory: "demo"})
	if err != nil {
		return fmt.Errorf("append second block: %w", err)
	}
	fmt.Printf("appended block %d (hash=%s)\n", block.BlockNumber, block.Hash)

	result, err := engine.ValidateChainDetailed(ctx, ledger.ValidationFull)
	if err != nil {
		return fmt.Errorf("validate chain: %w", err)
	}
	fmt.Print(result.ValidationReport)
	return nil
}
