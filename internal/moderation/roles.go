package moderation

import "sort"

type roleIndex map[string]Role

func indexRoles(roles []Role) roleIndex {
	index := make(roleIndex, len(roles))
	for _, role := range roles {
		index[role.ID] = role
	}
	return index
}

func (idx roleIndex) managed(id string) bool {
	return idx[id].Managed
}

// highest returns the top position among the given roles; unknown ids count as 0.
func (idx roleIndex) highest(ids []string) int {
	top := 0
	for _, id := range ids {
		if role, ok := idx[id]; ok && role.Position > top {
			top = role.Position
		}
	}
	return top
}

// split separates a member's roles into managed roles they keep and the
// removable rest. The skip role is dropped from both.
func (idx roleIndex) split(current []string, skip string) (kept, removed []string) {
	for _, id := range current {
		if id == skip {
			continue
		}
		if idx.managed(id) {
			kept = append(kept, id)
			continue
		}
		removed = append(removed, id)
	}
	return sortedSet(kept), sortedSet(removed)
}

// restore builds the role set for a member coming out of a ban or freeze:
// the saved roles plus the member role, limited to roles that still exist,
// plus any managed roles the member holds now.
func (idx roleIndex) restore(saved, current []string, memberRole string) []string {
	var out []string
	for _, id := range append(append([]string{}, saved...), memberRole) {
		if id == "" {
			continue
		}
		if role, ok := idx[id]; ok && !role.Managed {
			out = append(out, id)
		}
	}
	for _, id := range current {
		if idx.managed(id) {
			out = append(out, id)
		}
	}
	return sortedSet(out)
}

func union(a, b []string) []string {
	return sortedSet(append(append([]string{}, a...), b...))
}

func sortedSet(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
