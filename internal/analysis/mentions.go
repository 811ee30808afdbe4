package analysis

import (
	"strings"

	"github.com/MrWong99/cockpit/pkg/types"
)

// DetectMentions returns the ids of the roster users whose first name occurs
// anywhere in text, in roster order.
//
// Matching is a bare case-insensitive substring test on the first
// whitespace-separated token of each display name, so short or common names
// can over-match ("Ale" inside "quale"). Users with an empty name are never
// matched.
func DetectMentions(text string, roster []types.User) []string {
	lower := strings.ToLower(text)
	var ids []string
	for _, u := range roster {
		first := FirstName(u.Name)
		if first == "" {
			continue
		}
		if strings.Contains(lower, first) {
			ids = append(ids, u.ID)
		}
	}
	return ids
}

// FirstName returns the lowercased first token of a display name.
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// UserNames resolves ids to display names using roster. Unknown ids are
// skipped.
func UserNames(ids []string, roster []types.User) []string {
	var names []string
	for _, id := range ids {
		for _, u := range roster {
			if u.ID == id {
				names = append(names, u.Name)
				break
			}
		}
	}
	return names
}
