package auth

// IsAllowedGroup はグループIDが許可リストに含まれるかを判定する。
// 認可判断の唯一の箇所。許可リストが空の場合は常にfalseを返す（fail closed）。
func IsAllowedGroup(groupID string, allowList []string) bool {
	for _, allowed := range allowList {
		if allowed == groupID {
			return true
		}
	}
	return false
}

// HasAllowedMembership は所属グループのいずれかが許可リストに含まれるかを判定する。
func HasAllowedMembership(groups []Group, allowList []string) bool {
	for _, g := range groups {
		if IsAllowedGroup(g.ID, allowList) {
			return true
		}
	}
	return false
}
