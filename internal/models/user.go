package models

import (
	"errors"
	"strings"
	"time"
)

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	NameTag      string `json:"name_tag"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
	// BudgetingEnabled is flipped transactionally alongside budget
	// creation/deletion, never as an independent write.
	BudgetingEnabled bool      `json:"budgeting_enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (u *User) Validate() error {
	if len(strings.TrimSpace(u.Username)) < 3 {
		return errors.New("username too short")
	}
	if !strings.Contains(u.Email, "@") {
		return errors.New("invalid email")
	}
	if len(strings.TrimSpace(u.NameTag)) < 2 {
		return errors.New("name tag too short")
	}
	if u.Role == "" {
		u.Role = "user"
	}
	return nil
}
