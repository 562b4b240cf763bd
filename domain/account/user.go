// Package account holds marketplace users as seen by the messaging backend.
package account

import (
	"fmt"
	"moonshop/domain/chat"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleVendor Role = "vendor"
	RoleBuyer  Role = "buyer"
)

// User is a marketplace account. PasswordHash never leaves the service layer.
type User struct {
	ID           chat.UserID
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Avatar       string
	CreatedAt    time.Time
}

// ProfileUpdate carries the editable fields of a user.
// Empty fields keep their current value.
type ProfileUpdate struct {
	Name         string
	Email        string
	Avatar       string
	PasswordHash string
}

// DefaultAvatar derives a generated avatar URL from the display name.
func DefaultAvatar(name string) string {
	seed := strings.Join(strings.Fields(name), "")
	return fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/svg?seed=%s", seed)
}
