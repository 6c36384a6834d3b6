package cli

import (
	"maps"
	"slices"
)

// sortedReactions lists reaction symbols ordered by the reacting user id so
// the output is stable.
func sortedReactions(reactions map[string]string) []string {
	out := make([]string, 0, len(reactions))
	for _, user := range slices.Sorted(maps.Keys(reactions)) {
		out = append(out, reactions[user])
	}
	return out
}
