// Copyright 2025 Ledgercore Contributors

package keyregistry

import "github.com/google/uuid"

// newAuditID mints a synthetic identifier for one audit record, following
// the teacher's own convention of google/uuid for every synthetic ID.
func newAuditID() string {
	return uuid.NewString()
}
