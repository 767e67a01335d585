// Package utils holds small helpers shared by the HTTP handlers.
package utils

import "strings"

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// ParseAssets parses a comma-separated asset list into upper-case tickers,
// keeping the first occurrence of duplicates.
func ParseAssets(s string) []string {
	values := ParseCSV(s)
	if values == nil {
		return nil
	}

	seen := make(map[string]bool, len(values))
	assets := make([]string, 0, len(values))
	for _, v := range values {
		asset := strings.ToUpper(v)
		if seen[asset] {
			continue
		}
		seen[asset] = true
		assets = append(assets, asset)
	}
	return assets
}
