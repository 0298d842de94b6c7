// Пакет rbac - определение роли пользователя по группам IdP
// и проверка прав на операции с документами бронирований.
// Роль admin (сотрудник лаборатории) может генерировать и перегенерировать
// документы, readonly - только просматривать.
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleReadonly = "readonly"
	RoleAdmin    = "admin"
)

// Scope для service account (client credentials).
const (
	ScopeDocumentsRead  = "documents:read"
	ScopeDocumentsWrite = "documents:write"
)

// roleWeight - вес роли для сравнения.
var roleWeight = map[string]int{
	RoleReadonly: 1,
	RoleAdmin:    2,
}

// HighestRole возвращает максимальную роль из набора.
// Неизвестные роли игнорируются. Пустой результат - ролей нет.
func HighestRole(roles []string) string {
	highest := ""
	for _, r := range roles {
		if roleWeight[r] > roleWeight[highest] {
			highest = r
		}
	}
	return highest
}

// MapGroupsToRole определяет роль пользователя по его группам IdP.
// Если ни одна группа не совпала - возвращает пустую строку.
func MapGroupsToRole(groups []string, adminGroups, readonlyGroups []string) string {
	adminSet := toSet(adminGroups)
	readonlySet := toSet(readonlyGroups)

	var roles []string
	for _, g := range groups {
		if adminSet[g] {
			roles = append(roles, RoleAdmin)
		}
		if readonlySet[g] {
			roles = append(roles, RoleReadonly)
		}
	}
	return HighestRole(roles)
}

// Allows сообщает, достаточно ли роли have для операции, требующей need.
func Allows(have, need string) bool {
	w, ok := roleWeight[need]
	if !ok {
		return false
	}
	return roleWeight[have] >= w
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
