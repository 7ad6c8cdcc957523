package models

import "time"

// Family member roles
const (
	RoleOwner  = "owner"
	RoleParent = "parent"
)

// Family represents a group of parents managing children together
type Family struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	FamilyCode string    `json:"family_code"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FamilyMember represents the relationship between a user and a family
type FamilyMember struct {
	ID        int64     `json:"id"`
	FamilyID  int64     `json:"family_id"`
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// FamilyWithMembers combines a family with its parent accounts
type FamilyWithMembers struct {
	Family  Family         `json:"family"`
	Members []FamilyMember `json:"members"`
	Users   []User         `json:"users"`
}
