// Package tenant models the multi-tenant scoping primitive shared across
// the cache, queue, session, and plugin subsystems. A nil *Tenant (or a
// zero ids.ID in a durable row) means "global/single-tenant".
package tenant

import (
	"github.com/rustpress/rustpress-core/internal/ids"
)

// Status is the tenant lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusTrial     Status = "trial"
)

// Tenant is a string slug plus status and a settings/quotas bag.
type Tenant struct {
	ID       ids.ID         `db:"id" json:"id"`
	Slug     string         `db:"slug" json:"slug"`
	Status   Status         `db:"status" json:"status"`
	Settings map[string]any `db:"-" json:"settings"`
}

// Active reports whether the tenant may currently transact.
func (t *Tenant) Active() bool {
	return t != nil && t.Status == StatusActive
}

// Scope returns the key fragment used to namespace a durable key by
// tenant, e.g. "tenant:<id>" or "" for the global scope.
func Scope(id ids.ID) string {
	if id.IsNil() {
		return ""
	}
	return "tenant:" + id.String()
}
