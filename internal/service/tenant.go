package service

import (
	"fmt"

	"metarepo/internal/model"
)

// AllowedGroups is the visibility set of p: its group ids plus its own
// username, which stands in for a single-user tenant it owns.
func AllowedGroups(p *model.Principal) []string {
	seen := map[string]bool{}
	var out []string
	for _, g := range append(p.GroupIDs(), p.Username) {
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}

// requirePrincipal rejects anonymous callers. An empty visibility set would
// otherwise mean "no tenant restriction" to the repository.
func requirePrincipal(p *model.Principal) error {
	if p == nil || p.Username == "" {
		return fmt.Errorf("%w: unauthenticated", model.ErrAuthorization)
	}
	return nil
}

func dedupe(ids []string) []string {
	if ids == nil {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
