package render

import "strings"

// richness assigns the static mime preference order of spec §4.3: lower
// score wins. image/* < text/html < text/markdown < text/latex <
// text/x-python-traceback < stream/stderr < text/* < everything else.
//
// Open Question #2 is resolved in favor of html over markdown (both
// code paths in the original disagreed; html is picked here and this is
// the only place that decision lives).
func richness(mime string) int {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return 0
	case mime == "text/html":
		return 1
	case mime == "text/markdown":
		return 2
	case mime == "text/latex":
		return 3
	case mime == "text/x-python-traceback" || mime == "application/vnd.jupyter.stderr":
		return 4
	case mime == "stream/stderr":
		return 5
	case strings.HasPrefix(mime, "text/"):
		return 6
	default:
		return 7
	}
}

// sortByRichness returns mime keys from data ordered by ascending
// richness score, ties broken lexically for determinism.
func sortByRichness(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	// insertion sort: the candidate key sets are always small (a handful
	// of mime keys per output), so an O(n^2) sort costs nothing and
	// keeps this dependency-free.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0; j-- {
			a, b := keys[j-1], keys[j]
			if richness(a) > richness(b) || (richness(a) == richness(b) && a > b) {
				keys[j-1], keys[j] = keys[j], keys[j-1]
			} else {
				break
			}
		}
	}
	return keys
}
