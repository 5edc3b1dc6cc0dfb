package comm

// spliceBuffers re-injects binary buffers into data["state"] at the
// locations named by data["buffer_paths"], the recursive splice
// algorithm grounded on original_source/euporie/comm/ipywidgets.py's
// JupyterWidget.process_data: each buffer_path is a list of keys
// (string map keys or integer list indices) locating where the
// corresponding buffer belongs in the state tree.
func spliceBuffers(data map[string]any, buffers [][]byte) error {
	rawPaths, _ := data["buffer_paths"].([]any)
	if len(rawPaths) == 0 || len(buffers) == 0 {
		return nil
	}
	state, _ := data["state"].(map[string]any)
	if state == nil {
		return nil
	}
	for i, rawPath := range rawPaths {
		if i >= len(buffers) {
			break
		}
		path := toPath(rawPath)
		if len(path) == 0 {
			continue
		}
		setAtPath(state, path, buffers[i])
	}
	return nil
}

func toPath(raw any) []any {
	arr, ok := raw.([]any)
	if !ok {
		return nil
	}
	return arr
}

// setAtPath walks path through nested maps/slices, setting the final
// key to value. Only the map-of-maps shape the ipywidgets protocol
// actually emits is handled; a path touching a slice index is resolved
// via a type assertion to []any, which is what JSON-decoded content
// produces for a list already present in state.
func setAtPath(root map[string]any, path []any, value any) {
	var parent any = root
	for _, key := range path[:len(path)-1] {
		switch p := parent.(type) {
		case map[string]any:
			k := keyString(key)
			parent = p[k]
		case []any:
			idx := keyIndex(key)
			if idx < 0 || idx >= len(p) {
				return
			}
			parent = p[idx]
		default:
			return
		}
	}
	last := path[len(path)-1]
	switch p := parent.(type) {
	case map[string]any:
		p[keyString(last)] = value
	case []any:
		idx := keyIndex(last)
		if idx >= 0 && idx < len(p) {
			p[idx] = value
		}
	}
}

func keyString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func keyIndex(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return -1
	}
}
