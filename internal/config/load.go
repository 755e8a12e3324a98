package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the defaults and overlay YAML documents, merges them with
// overlay-wins semantics and returns the immutable TenantConfig.
//
// The overlay path may be empty, in which case the defaults document is
// used alone. Either way the merged result must carry the tenant id.
func Load(defaultsPath, overlayPath string) (*TenantConfig, error) {
	defaults, err := loadDocument(defaultsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load defaults layer: %w", err)
	}

	overlay := map[string]any{}
	if overlayPath != "" {
		overlay, err = loadDocument(overlayPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load overlay layer: %w", err)
		}
	}

	return NewTenantConfig(merge(defaults, overlay))
}

func loadDocument(path string) (map[string]any, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml from %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}
