package memory

import "strings"

// Normalize produces the canonical form of a query used for exact-match
// lookup: trimmed, case-folded, with runs of whitespace collapsed to a
// single space. Two queries that differ only in casing or incidental
// formatting therefore recall the same interaction.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
