// Copyright 2025 Ledgercore Contributors
//
// Engine is the ledger's public API: append, validate, rollback, clear.
// Structured the way pkg/database.Client structures a stateful service — a
// struct holding its dependencies, a *log.Logger, functional options, and
// context-first methods — generalized from the teacher's single-resource
// wrapper to a component that coordinates the catalog, the object store,
// and the key registry under one writer lock (spec.md §2).

package ledger

import (
	"context"
	"log"
	"time"

	"github.com/tamperledger/ledgercore/pkg/database"
	"github.com/tamperledger/ledgercore/pkg/keyregistry"
	"github.com/tamperledger/ledgercore/pkg/objectstore"
	"github.com/tamperledger/ledgercore/pkg/signing"
)

// Engine coordinates block append, validation, rollback, and clear across
// the catalog store, the off-chain object store, and the key registry.
type Engine struct {
	client   *database.Client
	repos    *database.Repositories
	store    *objectstore.Store
	registry *keyregistry.Registry
	logger   *log.Logger
	writer   writerLock

	offChainThresholdBytes int
	inlineCharCeiling      int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an Engine wired to the given catalog client, off-chain store,
// and key registry. offChainThresholdBytes and inlineCharCeiling implement
// spec.md §4.2 step 3's sizing decision; pass 0 for either to use the
// spec's documented defaults (524288 bytes, 10000 characters).
func New(client *database.Client, store *objectstore.Store, registry *keyregistry.Registry, offChainThresholdBytes, inlineCharCeiling int, opts ...Option) *Engine {
	if offChainThresholdBytes <= 0 {
		offChainThresholdBytes = defaultOffChainThresholdBytes
	}
	if inlineCharCeiling <= 0 {
		inlineCharCeiling = defaultInlineCharCeiling
	}

	e := &Engine{
		client:                 client,
		repos:                  database.NewRepositories(client),
		store:                  store,
		registry:               registry,
		logger:                 log.New(log.Writer(), "[Ledger] ", log.LstdFlags),
		offChainThresholdBytes: offChainThresholdBytes,
		inlineCharCeiling:      inlineCharCeiling,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

const (
	defaultOffChainThresholdBytes = 524288
	defaultInlineCharCeiling      = 10000
	defaultMaxPayloadBytes        = 100 * 1024 * 1024
)

// EmergencySnapshot is injected into the key registry as its emergency-
// export callback (spec.md §4.5's force-delete snapshot); pkg/bundle
// implements it and is wired in by the caller composing the two packages,
// keeping pkg/ledger and pkg/keyregistry independent of pkg/bundle.
type EmergencySnapshot func(ctx context.Context) error

// Registry exposes the wired key registry, e.g. for callers that need to
// register the very first signer key before any block can be appended.
func (e *Engine) Registry() *keyregistry.Registry {
	return e.registry
}

// Store exposes the wired off-chain object store, e.g. for pkg/bundle's
// export/import/orphan-cleanup operations.
func (e *Engine) Store() *objectstore.Store {
	return e.store
}

// Client exposes the wired catalog client, e.g. for pkg/bundle.
func (e *Engine) Client() *database.Client {
	return e.client
}

// Repositories exposes the wired catalog repositories, e.g. for pkg/bundle.
func (e *Engine) Repositories() *database.Repositories {
	return e.repos
}

// signerVerify adapts pkg/signing.Verify to pkg/objectstore.Verifier, kept
// here rather than in objectstore so that package never imports signing.
func signerVerify(publicKeyText string, message, signature []byte) (bool, error) {
	return signing.Verify(publicKeyText, message, string(signature))
}

// now is the engine's clock, factored out for testability (not used to
// vary behavior in production; always time.Now().UTC()).
func (e *Engine) now() time.Time {
	return time.Now().UTC()
}
