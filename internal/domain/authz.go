package domain

// Rostered 由拥有创建者和成员名单的实体实现 (Project, Room)。
type Rostered interface {
	OwnerID() uint
	HasMember(userID uint) bool
}

// IsAuthorized 判断用户是否属于该实体。
// 创建者始终被视为成员，即使已从名单中移除。
func IsAuthorized(entity Rostered, userID uint) bool {
	if entity == nil || userID == 0 {
		return false
	}
	return entity.OwnerID() == userID || entity.HasMember(userID)
}
