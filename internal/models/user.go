package models

import "time"

// Roles in ascending privilege.
const (
	RoleViewer = "VIEWER"
	RoleWriter = "WRITER"
	RoleAdmin  = "ADMIN"
)

var roleRank = map[string]int{RoleViewer: 1, RoleWriter: 2, RoleAdmin: 3}

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	_, ok := roleRank[r]
	return ok
}

// RoleAtLeast reports whether role grants at least min.
func RoleAtLeast(role, min string) bool {
	return roleRank[role] >= roleRank[min] && roleRank[min] > 0
}

// UserModel mirrors an identity-provider account. ClerkID is the provider
// subject.
type UserModel struct {
	Base
	ClerkID    string     `json:"clerkId"    gorm:"size:191;uniqueIndex;not null"`
	Email      string     `json:"email"      gorm:"size:191;index"`
	Name       string     `json:"name"       gorm:"size:191"`
	ImageURL   string     `json:"imageUrl"   gorm:"size:512"`
	Role       string     `json:"role"       gorm:"size:16;not null"`
	LastSeenAt *time.Time `json:"lastSeenAt"`
}

func (UserModel) TableName() string { return "users" }

// AuthorSummary is the public projection of a post author.
type AuthorSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

func (u *UserModel) Summary() *AuthorSummary {
	if u == nil {
		return nil
	}
	return &AuthorSummary{ID: u.ID, Name: u.Name, ImageURL: u.ImageURL}
}
