// Пакет rbac — роли пользователей и правила доступа к записям
// традиционного знания. Все функции пакета чистые: решение зависит только
// от принципала, записи и текущего времени.
package rbac

// Роли пользователей.
const (
	RoleUser                     = "user"
	RoleProfessional             = "professional"
	RoleResearcher               = "researcher"
	RoleReviewer                 = "reviewer"
	RoleEditor                   = "editor"
	RoleAdmin                    = "admin"
	RoleIndigenousRepresentative = "indigenous_representative"
)

// RoleAnonymous — роль, сообщаемая в ответах для неаутентифицированного вызова.
const RoleAnonymous = "anonymous"

// Roles — все допустимые роли.
var Roles = []string{
	RoleUser, RoleProfessional, RoleResearcher, RoleReviewer,
	RoleEditor, RoleAdmin, RoleIndigenousRepresentative,
}

// SelfRegistrationRoles — роли, доступные при самостоятельной регистрации.
var SelfRegistrationRoles = []string{RoleUser, RoleProfessional}

// researcherRoles — роли, которым открыт уровень researchers_only.
var researcherRoles = toSet([]string{RoleResearcher, RoleReviewer, RoleEditor, RoleAdmin})

// creatorRoles — роли, которым разрешено создавать записи.
var creatorRoles = toSet([]string{RoleResearcher, RoleIndigenousRepresentative, RoleAdmin})

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsSelfRegistrationRole проверяет, доступна ли роль при регистрации.
func IsSelfRegistrationRole(role string) bool {
	for _, r := range SelfRegistrationRoles {
		if r == role {
			return true
		}
	}
	return false
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
