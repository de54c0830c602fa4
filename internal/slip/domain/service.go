package domain

import (
	"context"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// SlipInput carries the mutable fields of a slip. The tag list replaces the
// record's tag set wholesale: an empty list clears all tags.
type SlipInput struct {
	Title           string
	Place           *string
	Date            *time.Time
	AmountBeforeTax *decimal.Decimal
	TaxAmount       *decimal.Decimal
	AmountAfterTax  *decimal.Decimal
	Currency        *string
	Summary         *string
	PhotoURL        *string
	Tags            []string
	Extraction      map[string]any
}

// DuplicateMatch describes an existing slip that plausibly represents the
// same purchase. It is advisory: callers must allow saving anyway.
type DuplicateMatch struct {
	ID             snowflake.ID     `json:"id"`
	Title          string           `json:"title"`
	Date           *time.Time       `json:"date,omitempty"`
	AmountAfterTax *decimal.Decimal `json:"amount_after_tax,omitempty"`
}

type CreateResponse struct {
	Slip      Slip            `json:"slip"`
	Duplicate *DuplicateMatch `json:"duplicate,omitempty"`
}

type ListRequest struct {
	Search   string
	Tag      string
	DateFrom *time.Time
	DateTo   *time.Time
	PageSize int
	Offset   int
}

type Service interface {
	Create(ctx context.Context, actor Actor, in SlipInput) (CreateResponse, error)
	Get(ctx context.Context, actor Actor, id snowflake.ID) (Slip, error)
	List(ctx context.Context, actor Actor, req ListRequest) ([]Slip, error)
	Update(ctx context.Context, actor Actor, id snowflake.ID, in SlipInput) (Slip, error)
	Delete(ctx context.Context, actor Actor, id snowflake.ID) error

	CheckDuplicate(ctx context.Context, actor Actor, place string, date *time.Time, amount *decimal.Decimal) (*DuplicateMatch, error)

	// ExportCSV writes the actor's visible slips as CSV, newest first.
	ExportCSV(ctx context.Context, actor Actor, w io.Writer) error

	// TransferOwnership reassigns every slip owned by fromUser to the
	// acting company admin. Used when a user is removed from a company.
	TransferOwnership(ctx context.Context, actor Actor, fromUser snowflake.ID) error
}
