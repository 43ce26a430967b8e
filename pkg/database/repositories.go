// Copyright 2025 Ledgercore Contributors
//
// Repositories - Convenience wrapper for all database repositories
// Provides a single point of access to all repository types

package database

// Repositories holds all repository instances.
type Repositories struct {
	Blocks        *BlockRepository
	OffChainData  *OffChainDataRepository
	AuthorizedKeys *AuthorizedKeyRepository
	Audit         *AuditRepository
}

// NewRepositories creates all repositories with the given client.
func NewRepositories(client *Client) *Repositories {
	return &Repositories{
		Blocks:         NewBlockRepository(client),
		OffChainData:   NewOffChainDataRepository(client),
		AuthorizedKeys: NewAuthorizedKeyRepository(client),
		Audit:          NewAuditRepository(client),
	}
}
