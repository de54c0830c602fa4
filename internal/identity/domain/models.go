package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	slipdomain "github.com/slipvault/slipvault/internal/slip/domain"
)

// User is a registered principal. CompanyID is the user's current company
// membership; slips carry their own snapshot of it.
type User struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	Email        string          `gorm:"not null;uniqueIndex" json:"email"`
	Name         string          `json:"name"`
	PasswordHash string          `gorm:"not null" json:"-"`
	Role         slipdomain.Role `gorm:"not null" json:"role"`
	CompanyID    *snowflake.ID   `gorm:"index" json:"company_id,omitempty"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

// Actor maps the user onto the acting principal passed to slip operations.
func (u User) Actor() slipdomain.Actor {
	return slipdomain.Actor{ID: u.ID, Role: u.Role, CompanyID: u.CompanyID}
}

type Company struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

// Session is an opaque-token login session.
type Session struct {
	Token     string       `gorm:"primaryKey" json:"-"`
	UserID    snowflake.ID `gorm:"not null;index" json:"user_id"`
	ExpiresAt time.Time    `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

type RegisterInput struct {
	Email       string
	Name        string
	Password    string
	CompanyName string
}

type InviteInput struct {
	Email string
	Name  string
	Role  slipdomain.Role
}

// UpdateProfileInput carries a profile edit. CompanyName renames the
// actor's company when they belong to one and is ignored otherwise.
type UpdateProfileInput struct {
	Name        string
	CompanyName string
}

type Service interface {
	// Register creates a user. A non-empty company name also creates the
	// company and makes the user its admin.
	Register(ctx context.Context, in RegisterInput) (User, error)

	Login(ctx context.Context, email, password string) (Session, User, error)
	Logout(ctx context.Context, token string) error

	// Authenticate resolves a session token to its user. Expired sessions
	// are treated as absent.
	Authenticate(ctx context.Context, token string) (User, error)

	// Invite creates a user in the actor's company with the given role
	// and a starter password. Only company admins may invite; a taken
	// email is rejected.
	Invite(ctx context.Context, actor slipdomain.Actor, in InviteInput) (User, error)

	// UpdateProfile edits the actor's own name and, when they belong to
	// a company, its name.
	UpdateProfile(ctx context.Context, actor slipdomain.Actor, in UpdateProfileInput) (User, error)

	// ResetPassword replaces the actor's own password. The new password
	// and its confirmation must match and meet the minimum length.
	ResetPassword(ctx context.Context, actor slipdomain.Actor, password, confirm string) error

	// LeaveCompany drops the actor's company membership. Slips keep
	// their company snapshot.
	LeaveCompany(ctx context.Context, actor slipdomain.Actor) error

	// RemoveFromCompany drops another member's company membership and
	// reassigns their slips to the acting admin.
	RemoveFromCompany(ctx context.Context, actor slipdomain.Actor, userID snowflake.ID) error
}

var (
	ErrEmailTaken         = errors.New("email_taken")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrSessionInvalid     = errors.New("session_invalid")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrAlreadyInCompany   = errors.New("already_in_company")
	ErrNotInCompany       = errors.New("not_in_company")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrPasswordMismatch   = errors.New("password_mismatch")
	ErrPasswordTooShort   = errors.New("password_too_short")
)
