package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Role is the closed set of principal roles. Capabilities are defined by
// the explicit policy table, not by any hierarchy between roles.
type Role string

const (
	RoleUser         Role = "USER"
	RoleContributor  Role = "CONTRIBUTOR"
	RoleAccountant   Role = "ACCOUNTANT"
	RoleCompanyAdmin Role = "COMPANY_ADMIN"
	RoleAdmin        Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleContributor, RoleAccountant, RoleCompanyAdmin, RoleAdmin:
		return true
	default:
		return false
	}
}

// Actor is the acting principal. Core operations take the actor explicitly;
// it is never read from ambient context.
type Actor struct {
	ID        snowflake.ID
	Role      Role
	CompanyID *snowflake.ID
}

// Slip is a single uploaded receipt record.
//
// CompanyID is a snapshot of the owner's company at creation time and is
// not resynced if the owner later changes company.
type Slip struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID          snowflake.ID      `gorm:"not null;index" json:"user_id"`
	CompanyID       *snowflake.ID     `gorm:"index" json:"company_id,omitempty"`
	Title           string            `gorm:"not null" json:"title"`
	Place           *string           `json:"place,omitempty"`
	Date            *time.Time        `json:"date,omitempty"`
	AmountBeforeTax *decimal.Decimal  `gorm:"type:decimal(14,2)" json:"amount_before_tax,omitempty"`
	TaxAmount       *decimal.Decimal  `gorm:"type:decimal(14,2)" json:"tax_amount,omitempty"`
	AmountAfterTax  *decimal.Decimal  `gorm:"type:decimal(14,2)" json:"amount_after_tax,omitempty"`
	Currency        *string           `json:"currency,omitempty"`
	Summary         *string           `json:"summary,omitempty"`
	Extraction      datatypes.JSONMap `gorm:"type:jsonb" json:"extraction,omitempty"`
	Photos          []Photo           `gorm:"constraint:OnDelete:CASCADE" json:"photos,omitempty"`
	Tags            []Tag             `gorm:"many2many:slip_tags" json:"tags,omitempty"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null" json:"updated_at"`
}

// Photo is an opaque storage reference attached to a slip.
type Photo struct {
	ID     snowflake.ID `gorm:"primaryKey" json:"id"`
	SlipID snowflake.ID `gorm:"not null;index" json:"slip_id"`
	URL    string       `gorm:"not null" json:"url"`
}

// Tag is a user-scoped label, unique per (user, name).
type Tag struct {
	ID     snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID snowflake.ID `gorm:"not null;uniqueIndex:idx_tags_user_name" json:"user_id"`
	Name   string       `gorm:"not null;uniqueIndex:idx_tags_user_name" json:"name"`
}

// Permissions is the allowed action set for one actor on one slip.
type Permissions struct {
	CanRead   bool
	CanWrite  bool
	CanDelete bool
}

// Scope is the record visibility used for list and search queries.
type Scope int

const (
	ScopeSelf Scope = iota
	ScopeCompany
)

// Policy decides the allowed action set for a slip given its current owner
// and the record's company snapshot.
type Policy interface {
	Permissions(actor Actor, ownerID snowflake.ID, companyID *snowflake.ID) Permissions
	Visibility(actor Actor) Scope
}

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotFound      = errors.New("not_found")
	ErrTitleRequired = errors.New("title_required")
	ErrInvalidActor  = errors.New("invalid_actor")
)
