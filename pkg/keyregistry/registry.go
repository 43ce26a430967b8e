// Copyright 2025 Ledgercore Contributors
//
// Registry manages the lifecycle of signer keys authorized to append
// blocks: registration, soft revocation, temporal authorization checks,
// and the three-level deletion API (spec.md §4.5). Repository access
// pattern grounded on pkg/database/repository_attestation.go; the
// functional-option constructor and log.Logger convention are grounded on
// pkg/database/client.go's WithLogger.

package keyregistry

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tamperledger/ledgercore/pkg/database"
	"github.com/tamperledger/ledgercore/pkg/signing"
)

// Role is the closed set of key roles.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// AuthorizedKey is the domain view of one registered signer key.
type AuthorizedKey struct {
	PublicKey    string
	OwnerName    string
	Role         Role
	CreatedBy    string
	CreatedAt    time.Time
	IsActive     bool
	RevokedAt    *time.Time
}

// DeletionImpact reports the effect of deleting a key, for the read-only
// impact-analysis level of the three-level deletion API.
type DeletionImpact struct {
	PublicKey        string
	BlocksSigned     int64
	WouldOrphanChain bool
}

// ForceDeleteRequest carries the admin-signed mandate required by the
// authorized-force-delete level of the deletion API.
type ForceDeleteRequest struct {
	TargetPublicKey string
	Reason          string
	Nonce           string
	AdminPublicKey  string
	AdminSignature  string
	Force           bool // if true, delete even when blocks still reference the key
}

// snapshotFunc captures an emergency chain export, injected rather than
// imported directly so this package never depends on pkg/bundle (which
// itself depends on this package for registry export data).
type snapshotFunc func(ctx context.Context) error

// Registry is the key registry service.
type Registry struct {
	repo      *database.AuthorizedKeyRepository
	client    *database.Client
	auditRepo *database.AuditRepository
	logger    *log.Logger
	snapshot  snapshotFunc
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithEmergencySnapshot injects the emergency-export callback invoked
// before an authorized force delete (spec.md §4.5).
func WithEmergencySnapshot(fn func(ctx context.Context) error) Option {
	return func(r *Registry) { r.snapshot = fn }
}

// New creates a Registry backed by client's authorized_keys and
// audit_records tables.
func New(client *database.Client, opts ...Option) *Registry {
	r := &Registry{
		repo:      database.NewAuthorizedKeyRepository(client),
		client:    client,
		auditRepo: database.NewAuditRepository(client),
		logger:    log.New(log.Writer(), "[KeyRegistry] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a new authorized key. ownerName is length-capped per
// spec.md §3/§8 (P9); the public key's textual form must be well-formed.
func (r *Registry) Register(ctx context.Context, publicKey, ownerName string, role Role, createdBy string) error {
	if !signing.WellFormedPublicKey(publicKey) {
		return invalidInput("malformed public key")
	}
	if len(ownerName) > 100 {
		return invalidInput("ownerName exceeds 100 characters")
	}
	if role != RoleAdmin && role != RoleUser {
		return invalidInput("unknown role %q", role)
	}

	now := time.Now().UTC()
	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return ioError(err, "begin transaction")
	}
	defer tx.Rollback()

	row := &database.AuthorizedKeyRow{
		PublicKey:    publicKey,
		AuthorizedAt: now,
		IsAdmin:      role == RoleAdmin,
	}
	row.Label.String, row.Label.Valid = ownerName, ownerName != ""

	if err := r.repo.Insert(ctx, tx, row); err != nil {
		return ioError(err, "register key")
	}
	if err := r.writeAudit(ctx, tx, "REGISTER_KEY", createdBy, publicKey, ownerName); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return ioError(err, "commit key registration")
	}
	return nil
}

// IsAuthorizedNow reports whether publicKey is a currently active key.
func (r *Registry) IsAuthorizedNow(ctx context.Context, publicKey string) (bool, error) {
	return r.WasAuthorizedAt(ctx, publicKey, time.Now().UTC())
}

// WasAuthorizedAt implements the temporal query from spec.md §4.5:
// createdAt <= t and (revokedAt == null or revokedAt > t).
func (r *Registry) WasAuthorizedAt(ctx context.Context, publicKey string, t time.Time) (bool, error) {
	ok, err := r.repo.WasAuthorizedAt(ctx, publicKey, t)
	if err != nil {
		return false, ioError(err, "check historical authorization")
	}
	return ok, nil
}

// Revoke soft-revokes a key; historical blocks it signed remain compliant
// because I4 checks revokedAt > blockTimestamp, not key activity at read time.
func (r *Registry) Revoke(ctx context.Context, publicKey, revokedBy string) error {
	now := time.Now().UTC()
	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return ioError(err, "begin transaction")
	}
	defer tx.Rollback()

	if err := r.repo.Revoke(ctx, tx, publicKey, now, revokedBy); err != nil {
		if err == database.ErrKeyNotFound {
			return notFound(publicKey)
		}
		return ioError(err, "revoke key")
	}
	if err := r.writeAudit(ctx, tx, "REVOKE_KEY", revokedBy, publicKey, ""); err != nil {
		return err
	}
	return mapCommit(tx.Commit())
}

// ImpactAnalysis is deletion level 1: a read-only report of what deleting
// publicKey would affect.
func (r *Registry) ImpactAnalysis(ctx context.Context, publicKey string) (*DeletionImpact, error) {
	count, err := r.repo.CountBlocksSigned(ctx, publicKey)
	if err != nil {
		return nil, ioError(err, "count blocks signed")
	}
	return &DeletionImpact{
		PublicKey:        publicKey,
		BlocksSigned:     count,
		WouldOrphanChain: count > 0,
	}, nil
}

// SafeDelete is deletion level 2: refuses if any historical block
// references the key.
func (r *Registry) SafeDelete(ctx context.Context, publicKey, actor string) error {
	impact, err := r.ImpactAnalysis(ctx, publicKey)
	if err != nil {
		return err
	}
	if impact.WouldOrphanChain {
		return stateConflict("key %s is referenced by %d blocks; use authorized force delete", publicKey, impact.BlocksSigned)
	}

	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return ioError(err, "begin transaction")
	}
	defer tx.Rollback()

	if err := r.repo.DeleteByPublicKey(ctx, tx, publicKey); err != nil {
		if err == database.ErrKeyNotFound {
			return notFound(publicKey)
		}
		return ioError(err, "delete key")
	}
	if err := r.writeAudit(ctx, tx, "SAFE_DELETE_KEY", actor, publicKey, ""); err != nil {
		return err
	}
	return mapCommit(tx.Commit())
}

// AuthorizedForceDelete is deletion level 3: requires a verified admin
// signature over (targetPub, reason, nonce) and takes an emergency chain
// snapshot before unlinking the key. With Force=true it deletes even when
// blocks still reference the key, knowingly breaking I4 for them; the
// validator subsequently reports those blocks as revoked rather than invalid.
func (r *Registry) AuthorizedForceDelete(ctx context.Context, req ForceDeleteRequest) error {
	message := []byte(req.TargetPublicKey + "|" + req.Reason + "|" + req.Nonce)
	ok, err := signing.Verify(req.AdminPublicKey, message, req.AdminSignature)
	if err != nil || !ok {
		r.logger.Printf("rejected force-delete of %s: admin signature did not verify", req.TargetPublicKey)
		return securityViolation("admin signature did not verify")
	}

	isAdmin, err := r.isAdmin(ctx, req.AdminPublicKey)
	if err != nil {
		return err
	}
	if !isAdmin {
		return securityViolation("admin key %s is not registered with ADMIN role", req.AdminPublicKey)
	}

	if !req.Force {
		impact, err := r.ImpactAnalysis(ctx, req.TargetPublicKey)
		if err != nil {
			return err
		}
		if impact.WouldOrphanChain {
			return stateConflict("key %s is referenced by %d blocks; set Force=true to override", req.TargetPublicKey, impact.BlocksSigned)
		}
	}

	if r.snapshot != nil {
		if err := r.snapshot(ctx); err != nil {
			return ioError(err, "emergency snapshot before force delete")
		}
	}

	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return ioError(err, "begin transaction")
	}
	defer tx.Rollback()

	if err := r.repo.DeleteByPublicKey(ctx, tx, req.TargetPublicKey); err != nil {
		if err == database.ErrKeyNotFound {
			return notFound(req.TargetPublicKey)
		}
		return ioError(err, "force delete key")
	}
	if err := r.writeAudit(ctx, tx, "FORCE_DELETE_KEY", req.AdminPublicKey, req.TargetPublicKey, req.Reason); err != nil {
		return err
	}
	return mapCommit(tx.Commit())
}

func (r *Registry) isAdmin(ctx context.Context, publicKey string) (bool, error) {
	row, err := r.repo.GetByPublicKey(ctx, publicKey)
	if err == database.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, ioError(err, "look up admin key")
	}
	return row.IsAdmin && !row.RevokedAt.Valid, nil
}

// List returns every registered key, active or revoked.
func (r *Registry) List(ctx context.Context) ([]*AuthorizedKey, error) {
	rows, err := r.repo.ListAll(ctx)
	if err != nil {
		return nil, ioError(err, "list authorized keys")
	}
	keys := make([]*AuthorizedKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, fromRow(row))
	}
	return keys, nil
}

func fromRow(row *database.AuthorizedKeyRow) *AuthorizedKey {
	role := RoleUser
	if row.IsAdmin {
		role = RoleAdmin
	}
	k := &AuthorizedKey{
		PublicKey: row.PublicKey,
		OwnerName: row.Label.String,
		Role:      role,
		CreatedAt: row.AuthorizedAt,
		IsActive:  !row.RevokedAt.Valid,
	}
	if row.RevokedAt.Valid {
		t := row.RevokedAt.Time
		k.RevokedAt = &t
	}
	return k
}

func (r *Registry) writeAudit(ctx context.Context, tx *database.Tx, action, actor, target, details string) error {
	audit := &database.AuditRecordRow{
		ID:         newAuditID(),
		OccurredAt: time.Now().UTC(),
		Action:     action,
	}
	audit.ActorPublicKey.String, audit.ActorPublicKey.Valid = actor, actor != ""
	audit.Target.String, audit.Target.Valid = target, target != ""
	audit.Details.String, audit.Details.Valid = details, details != ""

	if err := r.auditRepo.Insert(ctx, tx, audit); err != nil {
		return ioError(err, "write audit record")
	}
	return nil
}

func mapCommit(err error) error {
	if err != nil {
		return ioError(err, "commit transaction")
	}
	return nil
}

func invalidInput(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func securityViolation(format string, args ...interface{}) error {
	return &Error{Kind: KindSecurityViolation, Message: fmt.Sprintf(format, args...)}
}

func stateConflict(format string, args ...interface{}) error {
	return &Error{Kind: KindStateConflict, Message: fmt.Sprintf(format, args...)}
}

func notFound(publicKey string) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf("key %s not found", publicKey)}
}

func ioError(cause error, format string, args ...interface{}) error {
	return &Error{Kind: KindIOError, Message: fmt.Sprintf(format, args...), Cause: cause}
}
