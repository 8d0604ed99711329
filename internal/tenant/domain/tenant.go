// Package domain defines tenants and the tenant-bound execution context.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/tenantconfig/internal/errors"
)

// Tenant is a customer of the back office. Datasource names the database that
// holds its records; an empty value or "primary" means the shared database.
type Tenant struct {
	ID         uuid.UUID
	Name       string
	Datasource string
	Active     bool
	CreatedAt  time.Time
}

var (
	// ErrTenantNotFound indicates the requested tenant does not exist.
	ErrTenantNotFound = errors.Wrap(errors.ErrNotFound, "tenant not found")

	// ErrTenantAlreadyExists indicates a tenant with the same name exists.
	ErrTenantAlreadyExists = errors.Wrap(errors.ErrConflict, "tenant already exists")
)
