package config

import (
	"fmt"
	"sort"
	"time"
	_ "time/tzdata"
)

// Tenant is one league running on the shared deployment.
type Tenant struct {
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
	// BackendURL overrides backend.base_url for this tenant.
	BackendURL   string `yaml:"backend_url"`
	PrimaryColor string `yaml:"primary_color"`
	LogoURL      string `yaml:"logo_url"`
}

// ActiveTenant returns the tenant selected with TENANT. With no tenants
// configured the deployment is single-tenant and a zero Tenant is returned.
// With exactly one tenant it is used when TENANT is empty.
func (c *Config) ActiveTenant() (Tenant, error) {
	if len(c.Tenants) == 0 {
		if c.TenantSlug != "" {
			return Tenant{}, fmt.Errorf("tenant %q selected but no tenants are configured", c.TenantSlug)
		}
		return Tenant{}, nil
	}

	slug := c.TenantSlug
	if slug == "" {
		if len(c.Tenants) > 1 {
			return Tenant{}, fmt.Errorf("TENANT must be set to one of %v", c.TenantSlugs())
		}
		for only := range c.Tenants {
			slug = only
		}
	}

	tenant, ok := c.Tenants[slug]
	if !ok {
		return Tenant{}, fmt.Errorf("unknown tenant %q, expected one of %v", slug, c.TenantSlugs())
	}
	if tenant.Timezone != "" {
		if _, err := time.LoadLocation(tenant.Timezone); err != nil {
			return Tenant{}, fmt.Errorf("tenant %q has invalid timezone: %w", slug, err)
		}
	}
	return tenant, nil
}

// ActiveTenantSlug resolves the slug the same way ActiveTenant does.
func (c *Config) ActiveTenantSlug() string {
	if c.TenantSlug != "" || len(c.Tenants) != 1 {
		return c.TenantSlug
	}
	for only := range c.Tenants {
		return only
	}
	return ""
}

func (c *Config) TenantSlugs() []string {
	slugs := make([]string, 0, len(c.Tenants))
	for slug := range c.Tenants {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// BackendBaseURL is the tenant override if present, else backend.base_url.
func (c *Config) BackendBaseURL() string {
	if tenant, err := c.ActiveTenant(); err == nil && tenant.BackendURL != "" {
		return tenant.BackendURL
	}
	return c.Backend.BaseURL
}

// Location is the tenant's timezone, UTC when unset.
func (c *Config) Location() *time.Location {
	tenant, err := c.ActiveTenant()
	if err != nil || tenant.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tenant.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
