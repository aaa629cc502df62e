package auth

import "testing"

func TestIsAllowedGroup(t *testing.T) {
	tests := []struct {
		name      string
		groupID   string
		allowList []string
		want      bool
	}{
		{"member of single entry", "G1", []string{"G1"}, true},
		{"member of multiple entries", "G2", []string{"G1", "G2", "G3"}, true},
		{"not in list", "G4", []string{"G1", "G2"}, false},
		{"empty allow-list rejects", "G1", []string{}, false},
		{"nil allow-list rejects", "G1", nil, false},
		{"empty group id not in list", "", []string{"G1"}, false},
		{"case sensitive", "g1", []string{"G1"}, false},
		{"no prefix match", "G1", []string{"G10"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAllowedGroup(tt.groupID, tt.allowList); got != tt.want {
				t.Errorf("IsAllowedGroup(%q, %v) = %v, want %v", tt.groupID, tt.allowList, got, tt.want)
			}
		})
	}
}

// TestIsAllowedGroup_MatchesSetMembership は任意の組み合わせで G ∈ A と一致することを検証する。
func TestIsAllowedGroup_MatchesSetMembership(t *testing.T) {
	universe := []string{"A", "B", "C", "D"}
	// universeのすべての部分集合を許可リストとして試す
	for mask := 0; mask < 1<<len(universe); mask++ {
		var allowList []string
		members := make(map[string]bool)
		for i, id := range universe {
			if mask&(1<<i) != 0 {
				allowList = append(allowList, id)
				members[id] = true
			}
		}
		for _, g := range universe {
			if got := IsAllowedGroup(g, allowList); got != members[g] {
				t.Errorf("IsAllowedGroup(%q, %v) = %v, want %v", g, allowList, got, members[g])
			}
		}
	}
}

func TestHasAllowedMembership(t *testing.T) {
	tests := []struct {
		name      string
		groups    []Group
		allowList []string
		want      bool
	}{
		{"one of many matches", []Group{{ID: "G2"}, {ID: "G1"}}, []string{"G1"}, true},
		{"none match", []Group{{ID: "G2"}, {ID: "G3"}}, []string{"G1"}, false},
		{"no groups", nil, []string{"G1"}, false},
		{"empty allow-list", []Group{{ID: "G1"}}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasAllowedMembership(tt.groups, tt.allowList); got != tt.want {
				t.Errorf("HasAllowedMembership() = %v, want %v", got, tt.want)
			}
		})
	}
}
