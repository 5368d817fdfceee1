package models

import "time"

// Integration is a tenant's connection to an external data source.
type Integration struct {
	ID               string     `json:"id" yaml:"id"`
	BusinessEntityID string     `json:"business_entity_id" yaml:"business_entity_id"`
	Type             string     `json:"type" yaml:"type"`
	Status           string     `json:"status" yaml:"status"`
	PropertyID       string     `json:"property_id,omitempty" yaml:"property_id"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty" yaml:"-"`
	CreatedAt        time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time  `json:"updated_at" yaml:"-"`
}
