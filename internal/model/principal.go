package model

import "time"

// Group is one identity-provider group membership.
type Group struct {
	IDMGroupID string `json:"idmGroupId"`
}

// Principal is the authenticated caller as reported by the identity service.
type Principal struct {
	Username    string  `json:"username"`
	OwnerGroups []Group `json:"ownerGroups"`
	// ExpiresAt is in milliseconds since the epoch.
	ExpiresAt int64 `json:"expiresAt"`
}

// GroupIDs returns the group ids of the principal in the order reported.
func (p *Principal) GroupIDs() []string {
	out := make([]string, 0, len(p.OwnerGroups))
	for _, g := range p.OwnerGroups {
		if g.IDMGroupID != "" {
			out = append(out, g.IDMGroupID)
		}
	}
	return out
}

// InGroup reports whether the principal belongs to group. With allowSelf the
// principal's own username counts as a group it owns.
func (p *Principal) InGroup(group string, allowSelf bool) bool {
	if group == "" {
		return false
	}
	if allowSelf && group == p.Username {
		return true
	}
	for _, g := range p.OwnerGroups {
		if g.IDMGroupID == group {
			return true
		}
	}
	return false
}

// Expired reports whether the session ended at or before now.
func (p *Principal) Expired(now time.Time) bool {
	return p.ExpiresAt <= now.UnixMilli()
}
