package config

// merge combines a defaults document with an overlay. Maps are merged
// recursively; on any other conflict the overlay value wins. Lists are
// replaced wholesale, never concatenated, so an overlay can shrink a list.
func merge(defaults, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(overlay))
	for k, v := range defaults {
		out[k] = v
	}
	for k, ov := range overlay {
		dm, dok := out[k].(map[string]any)
		om, ook := ov.(map[string]any)
		if dok && ook {
			out[k] = merge(dm, om)
			continue
		}
		out[k] = ov
	}
	return out
}
