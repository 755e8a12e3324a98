// Package config loads and merges tenant configuration.
//
// A tenant's configuration is assembled from two YAML layers: a base
// defaults document shared by all tenants, and a per-environment overlay.
// The merged result is immutable for the lifetime of a run; every value a
// stage references via a config binding comes from here and nowhere else.
package config

import (
	"fmt"
	"strings"
)

// TenantConfig is the merged, immutable configuration for a single tenant
// run. Construct it with Load or NewTenantConfig; there is no mutation API.
type TenantConfig struct {
	values map[string]any
}

// TenantIDKey is the dotted path of the mandatory tenant identifier.
const TenantIDKey = "tenant.id"

// NewTenantConfig wraps an already-merged document. The map is copied so
// later changes by the caller cannot leak into the run.
func NewTenantConfig(values map[string]any) (*TenantConfig, error) {
	c := &TenantConfig{values: deepCopy(values)}
	if _, ok := c.GetString(TenantIDKey); !ok {
		return nil, fmt.Errorf("merged configuration is missing %q", TenantIDKey)
	}
	return c, nil
}

// TenantID returns the tenant identifier.
func (c *TenantConfig) TenantID() string {
	id, _ := c.GetString(TenantIDKey)
	return id
}

// Get resolves a dotted path (e.g. "network.cidr") against the merged
// document. The second return is false when any path segment is missing.
func (c *TenantConfig) Get(path string) (any, bool) {
	var cur any = c.values
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetString resolves a dotted path and requires the value to be a string.
func (c *TenantConfig) GetString(path string) (string, bool) {
	v, ok := c.Get(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Has reports whether the dotted path resolves to any value.
func (c *TenantConfig) Has(path string) bool {
	_, ok := c.Get(path)
	return ok
}

// Values returns a deep copy of the merged document, for callers that need
// to hand the whole tree to an evaluator.
func (c *TenantConfig) Values() map[string]any {
	return deepCopy(c.values)
}

func deepCopy(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if m, ok := v.(map[string]any); ok {
			out[k] = deepCopy(m)
			continue
		}
		out[k] = v
	}
	return out
}
