package models

import "time"

// Expense represents a financial expense record.
type Expense struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	Mode        string    `json:"mode"`
	Amount      float64   `json:"amount"`
	Date        time.Time `json:"date"`
	Comments    string    `json:"comments,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ExpenseFilter narrows a listing. Zero fields match everything.
type ExpenseFilter struct {
	Start       *time.Time
	End         *time.Time
	Category    string
	Subcategory string
	Mode        string
}

// User represents a user account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Relation     string    `json:"relation"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SessionUser is the identity copy held by a session.
type SessionUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Relation string `json:"relation"`
	IsAdmin  bool   `json:"isAdmin"`
}

// UserSummary is what the auth endpoints return.
type UserSummary struct {
	SessionUser
	CreatedAt time.Time `json:"createdAt"`
}

// Summary strips credentials from u.
func (u *User) Summary() UserSummary {
	return UserSummary{SessionUser: u.SessionUser(), CreatedAt: u.CreatedAt}
}

// SessionUser returns the identity fields stored alongside a session.
func (u *User) SessionUser() SessionUser {
	return SessionUser{ID: u.ID, Name: u.Name, Relation: u.Relation, IsAdmin: u.IsAdmin}
}

// Session represents a user session.
type Session struct {
	Token        string      `json:"-"`
	UserID       string      `json:"userId"`
	User         SessionUser `json:"user"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	LastActivity time.Time   `json:"lastActivity"`
}

// Config is the single expense configuration document.
type Config struct {
	ID            string              `json:"id"`
	Categories    []string            `json:"categories"`
	Subcategories map[string][]string `json:"subcategories"`
	Modes         []string            `json:"modes"`
	UpdatedBy     string              `json:"updatedBy,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// Normalize replaces nil collections with empty ones so they encode as
// [] and {} rather than null.
func (c *Config) Normalize() {
	if c.Categories == nil {
		c.Categories = []string{}
	}
	if c.Subcategories == nil {
		c.Subcategories = map[string][]string{}
	}
	for k, v := range c.Subcategories {
		if v == nil {
			c.Subcategories[k] = []string{}
		}
	}
	if c.Modes == nil {
		c.Modes = []string{}
	}
}

// ConfigPatch carries the fields of a config update. Nil means "leave as is".
type ConfigPatch struct {
	Categories    *[]string            `json:"categories"`
	Subcategories *map[string][]string `json:"subcategories"`
	Modes         *[]string            `json:"modes"`
}

