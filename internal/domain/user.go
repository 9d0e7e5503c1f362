package domain

import "time"

// User represents the authenticated identity as returned by the backend
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	CompanyID    string    `json:"companyId"`
	ProfileImage string    `json:"profileImage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	IsActive     bool      `json:"isActive"`
}

// Company represents the organization a user belongs to
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Role is a named bundle of module permissions
type Role struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsSystemRole bool   `json:"isSystemRole"`
}

// ModulePermission grants a set of action verbs on one application module
type ModulePermission struct {
	Module         string   `json:"module"`
	AllowedActions []string `json:"allowedActions"`
}

// RolePermission is one persisted grant row tying a role to a module's
// allowed actions
type RolePermission struct {
	ID             string   `json:"id"`
	RoleID         string   `json:"roleId"`
	Module         string   `json:"module"`
	AllowedActions []string `json:"allowedActions"`
}

// PermissionList is the full permission payload for an identity
type PermissionList struct {
	Permissions   []ModulePermission `json:"permissions"`
	HasSystemRole bool               `json:"hasSystemRole"`
}
