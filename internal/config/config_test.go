package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempYAML(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MergesOverlayOverDefaults(t *testing.T) {
	defaults := writeTempYAML(t, "defaults.yaml", `
tenant:
  id: alpha
region: eu-central-1
network:
  cidr: 10.0.0.0/16
  subnets: [a, b, c]
cluster:
  nodes: 3
`)
	overlay := writeTempYAML(t, "overlay.yaml", `
region: us-east-1
network:
  subnets: [x]
`)

	cfg, err := Load(defaults, overlay)
	require.NoError(t, err)

	assert.Equal(t, "alpha", cfg.TenantID())

	region, ok := cfg.GetString("region")
	require.True(t, ok)
	assert.Equal(t, "us-east-1", region)

	// Untouched nested keys survive the merge.
	cidr, ok := cfg.GetString("network.cidr")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0/16", cidr)

	// Lists are replaced, not appended.
	subnets, ok := cfg.Get("network.subnets")
	require.True(t, ok)
	assert.Equal(t, []any{"x"}, subnets)

	nodes, ok := cfg.Get("cluster.nodes")
	require.True(t, ok)
	assert.Equal(t, 3, nodes)
}

func TestLoad_DefaultsOnly(t *testing.T) {
	defaults := writeTempYAML(t, "defaults.yaml", `
tenant:
  id: beta
`)

	cfg, err := Load(defaults, "")
	require.NoError(t, err)
	assert.Equal(t, "beta", cfg.TenantID())
}

func TestLoad_MissingTenantID(t *testing.T) {
	defaults := writeTempYAML(t, "defaults.yaml", `region: eu-central-1`)

	_, err := Load(defaults, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant.id")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
}

func TestTenantConfig_Get(t *testing.T) {
	cfg, err := NewTenantConfig(map[string]any{
		"tenant": map[string]any{"id": "alpha"},
		"domain": "data.example.com",
		"deep":   map[string]any{"nested": map[string]any{"leaf": true}},
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		want any
		ok   bool
	}{
		{"top level", "domain", "data.example.com", true},
		{"nested", "deep.nested.leaf", true, true},
		{"missing leaf", "deep.nested.other", nil, false},
		{"missing branch", "nothere.at.all", nil, false},
		{"scalar traversed as map", "domain.sub", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cfg.Get(tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestTenantConfig_Immutable(t *testing.T) {
	src := map[string]any{
		"tenant": map[string]any{"id": "alpha"},
	}
	cfg, err := NewTenantConfig(src)
	require.NoError(t, err)

	// Mutating the source after construction must not leak into the config.
	src["tenant"].(map[string]any)["id"] = "mutated"
	assert.Equal(t, "alpha", cfg.TenantID())

	// Mutating a Values() copy must not either.
	cfg.Values()["tenant"].(map[string]any)["id"] = "mutated"
	assert.Equal(t, "alpha", cfg.TenantID())
}

func TestMerge_OverlayScalarWinsOverMap(t *testing.T) {
	got := merge(
		map[string]any{"a": map[string]any{"b": 1}},
		map[string]any{"a": "flat"},
	)
	assert.Equal(t, map[string]any{"a": "flat"}, got)
}
