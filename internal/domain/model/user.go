package model

import "time"

// User — учётная запись пользователя каталога.
// Хранится в таблице users.
type User struct {
	// ID — UUID пользователя
	ID       string `json:"id"`
	Username string `json:"username"`
	// Email — в нижнем регистре, уникальный
	Email string `json:"email"`
	// PasswordHash — bcrypt-хеш, наружу не отдаётся
	PasswordHash string                 `json:"-"`
	Role         string                 `json:"role"`
	Profile      Profile                `json:"profile"`
	Permissions  Permissions            `json:"permissions"`
	Affiliation  *IndigenousAffiliation `json:"indigenousAffiliation,omitempty"`
	IsActive     bool                   `json:"isActive"`
	LastLogin    *time.Time             `json:"lastLogin,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// Profile — профиль пользователя.
type Profile struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Affiliation string `json:"affiliation,omitempty"`
	Institution string `json:"institution,omitempty"`
}

// Permissions — флаги дополнительных прав.
type Permissions struct {
	CanReview                    bool `json:"canReview"`
	CanEdit                      bool `json:"canEdit"`
	CanApprove                   bool `json:"canApprove"`
	CanAccessRestrictedKnowledge bool `json:"canAccessRestrictedKnowledge"`
	CanManageIPR                 bool `json:"canManageIPR"`
}

// IndigenousAffiliation — принадлежность к коренной общине.
type IndigenousAffiliation struct {
	Community          string `json:"community"`
	IndigenousGroup    string `json:"indigenousGroup,omitempty"`
	Role               string `json:"role,omitempty"`
	VerificationStatus string `json:"verificationStatus,omitempty"`
}

// FullName возвращает "Имя Фамилия" или username, если профиль не заполнен.
func (u *User) FullName() string {
	if u.Profile.FirstName != "" && u.Profile.LastName != "" {
		return u.Profile.FirstName + " " + u.Profile.LastName
	}
	return u.Username
}
