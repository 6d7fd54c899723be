package embedder

import "strings"

// drops empty and whitespace-only inputs
func filterEmpty(texts []string) []string {
	out := make([]string, 0, len(texts))

	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}

	return out
}
