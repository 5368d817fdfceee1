// Package lease provides per-(tenant, family) run leases so a sync job family
// never runs twice at the same time for one tenant.
package lease

import (
	"context"
	"time"
)

// Store grants exclusive, expiring leases by key.
type Store interface {
	// Acquire returns true when owner now holds key for ttl.
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Release drops key only if owner still holds it.
	Release(ctx context.Context, key, owner string) error
}

// Key builds the lease key of a tenant's job family.
func Key(tenantID, family string) string {
	return "sync_lease:" + tenantID + ":" + family
}
