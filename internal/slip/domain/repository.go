package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ListFilter narrows a visibility-scoped listing.
type ListFilter struct {
	Search   string
	Tag      string
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}

type Repository interface {
	// Insert and Update replace the slip's tag set with tagNames. Tags
	// that do not exist yet are created under actorID, the acting user,
	// which may differ from the slip's owner.
	Insert(ctx context.Context, db *gorm.DB, slip *Slip, actorID snowflake.ID, tagNames []string) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Slip, error)
	Update(ctx context.Context, db *gorm.DB, slip *Slip, actorID snowflake.ID, tagNames []string) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	// ListOwned returns the owner's slips; ListCompany returns every slip
	// whose company snapshot matches.
	ListOwned(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, filter ListFilter) ([]*Slip, error)
	ListCompany(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter ListFilter) ([]*Slip, error)

	// FindDuplicate scans the owner's slips for an exact date and amount
	// match whose place contains the candidate as a substring. Collation
	// follows the underlying store.
	FindDuplicate(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, place string, date time.Time, amount decimal.Decimal) (*Slip, error)

	// TransferOwnership moves every slip owned by fromUser to toUser.
	TransferOwnership(ctx context.Context, db *gorm.DB, fromUser, toUser snowflake.ID) error
}
