package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertUser(ctx context.Context, db *gorm.DB, user *User) error
	FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	UpdateUser(ctx context.Context, db *gorm.DB, user *User) error

	InsertCompany(ctx context.Context, db *gorm.DB, company *Company) error
	UpdateCompanyName(ctx context.Context, db *gorm.DB, id snowflake.ID, name string) error

	InsertSession(ctx context.Context, db *gorm.DB, session *Session) error
	FindSession(ctx context.Context, db *gorm.DB, token string) (*Session, error)
	DeleteSession(ctx context.Context, db *gorm.DB, token string) error
	DeleteUserSessions(ctx context.Context, db *gorm.DB, userID snowflake.ID) error
}
