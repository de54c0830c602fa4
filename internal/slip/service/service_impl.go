package service

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/slipvault/slipvault/internal/clock"
	"github.com/slipvault/slipvault/internal/observability"
	slipdomain "github.com/slipvault/slipvault/internal/slip/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    slipdomain.Repository
	Policy  slipdomain.Policy
	Metrics *observability.Metrics
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    slipdomain.Repository
	policy  slipdomain.Policy
	metrics *observability.Metrics
}

func NewService(p ServiceParam) slipdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("slip.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		policy:  p.Policy,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, actor slipdomain.Actor, in slipdomain.SlipInput) (slipdomain.CreateResponse, error) {
	if !actor.Role.Valid() {
		return slipdomain.CreateResponse{}, slipdomain.ErrInvalidActor
	}
	if actor.Role == slipdomain.RoleAccountant {
		s.metrics.AuthzDenied(ctx)
		return slipdomain.CreateResponse{}, slipdomain.ErrUnauthorized
	}
	if strings.TrimSpace(in.Title) == "" {
		return slipdomain.CreateResponse{}, slipdomain.ErrTitleRequired
	}

	// Advisory only: the caller is told about a plausible duplicate but the
	// slip is saved regardless.
	dup, err := s.CheckDuplicate(ctx, actor, deref(in.Place), in.Date, in.AmountAfterTax)
	if err != nil {
		return slipdomain.CreateResponse{}, err
	}

	now := s.clock.Now()
	slip := slipdomain.Slip{
		ID:              s.genID.Generate(),
		UserID:          actor.ID,
		CompanyID:       actor.CompanyID,
		Title:           in.Title,
		Place:           in.Place,
		Date:            in.Date,
		AmountBeforeTax: in.AmountBeforeTax,
		TaxAmount:       in.TaxAmount,
		AmountAfterTax:  in.AmountAfterTax,
		Currency:        in.Currency,
		Summary:         in.Summary,
		Extraction:      datatypes.JSONMap(in.Extraction),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.PhotoURL != nil && *in.PhotoURL != "" {
		slip.Photos = []slipdomain.Photo{{
			ID:     s.genID.Generate(),
			SlipID: slip.ID,
			URL:    *in.PhotoURL,
		}}
	}

	if err := s.repo.Insert(ctx, s.db, &slip, actor.ID, in.Tags); err != nil {
		s.log.Error("insert slip", zap.Error(err))
		return slipdomain.CreateResponse{}, err
	}

	s.metrics.SlipCreated(ctx)
	if dup != nil {
		s.metrics.DuplicateFlagged(ctx)
		s.log.Info("duplicate flagged",
			zap.Int64("slip_id", slip.ID.Int64()),
			zap.Int64("match_id", dup.ID.Int64()),
		)
	}
	return slipdomain.CreateResponse{Slip: slip, Duplicate: dup}, nil
}

func (s *Service) Get(ctx context.Context, actor slipdomain.Actor, id snowflake.ID) (slipdomain.Slip, error) {
	slip, err := s.find(ctx, id)
	if err != nil {
		return slipdomain.Slip{}, err
	}
	if !s.policy.Permissions(actor, slip.UserID, slip.CompanyID).CanRead {
		s.metrics.AuthzDenied(ctx)
		return slipdomain.Slip{}, slipdomain.ErrUnauthorized
	}
	return *slip, nil
}

func (s *Service) List(ctx context.Context, actor slipdomain.Actor, req slipdomain.ListRequest) ([]slipdomain.Slip, error) {
	if !actor.Role.Valid() {
		return nil, slipdomain.ErrInvalidActor
	}

	filter := slipdomain.ListFilter{
		Search:   req.Search,
		Tag:      req.Tag,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
		Limit:    req.PageSize,
		Offset:   req.Offset,
	}

	var (
		slips []*slipdomain.Slip
		err   error
	)
	if s.policy.Visibility(actor) == slipdomain.ScopeCompany {
		slips, err = s.repo.ListCompany(ctx, s.db, *actor.CompanyID, filter)
	} else {
		slips, err = s.repo.ListOwned(ctx, s.db, actor.ID, filter)
	}
	if err != nil {
		return nil, err
	}

	out := make([]slipdomain.Slip, 0, len(slips))
	for _, slip := range slips {
		out = append(out, *slip)
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, actor slipdomain.Actor, id snowflake.ID, in slipdomain.SlipInput) (slipdomain.Slip, error) {
	slip, err := s.find(ctx, id)
	if err != nil {
		return slipdomain.Slip{}, err
	}
	if !s.policy.Permissions(actor, slip.UserID, slip.CompanyID).CanWrite {
		s.metrics.AuthzDenied(ctx)
		return slipdomain.Slip{}, slipdomain.ErrUnauthorized
	}
	if strings.TrimSpace(in.Title) == "" {
		return slipdomain.Slip{}, slipdomain.ErrTitleRequired
	}

	slip.Title = in.Title
	slip.Place = in.Place
	slip.Date = in.Date
	slip.AmountBeforeTax = in.AmountBeforeTax
	slip.TaxAmount = in.TaxAmount
	slip.AmountAfterTax = in.AmountAfterTax
	slip.Currency = in.Currency
	slip.Summary = in.Summary
	if in.Extraction != nil {
		slip.Extraction = datatypes.JSONMap(in.Extraction)
	}
	switch {
	case in.PhotoURL == nil:
		// Stored photos stay untouched.
		slip.Photos = nil
	case *in.PhotoURL == "":
		slip.Photos = []slipdomain.Photo{}
	default:
		slip.Photos = []slipdomain.Photo{{URL: *in.PhotoURL}}
	}
	slip.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, slip, actor.ID, in.Tags); err != nil {
		s.log.Error("update slip", zap.Int64("slip_id", id.Int64()), zap.Error(err))
		return slipdomain.Slip{}, err
	}

	s.metrics.SlipUpdated(ctx)
	return *slip, nil
}

func (s *Service) Delete(ctx context.Context, actor slipdomain.Actor, id snowflake.ID) error {
	slip, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !s.policy.Permissions(actor, slip.UserID, slip.CompanyID).CanDelete {
		s.metrics.AuthzDenied(ctx)
		return slipdomain.ErrUnauthorized
	}

	if err := s.repo.Delete(ctx, s.db, id); err != nil {
		s.log.Error("delete slip", zap.Int64("slip_id", id.Int64()), zap.Error(err))
		return err
	}

	s.metrics.SlipDeleted(ctx)
	return nil
}

func (s *Service) CheckDuplicate(ctx context.Context, actor slipdomain.Actor, place string, date *time.Time, amount *decimal.Decimal) (*slipdomain.DuplicateMatch, error) {
	if !actor.Role.Valid() {
		return nil, slipdomain.ErrInvalidActor
	}
	// All three fields are required for a meaningful comparison.
	if strings.TrimSpace(place) == "" || date == nil || amount == nil {
		return nil, nil
	}

	match, err := s.repo.FindDuplicate(ctx, s.db, actor.ID, place, *date, *amount)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, nil
	}
	return &slipdomain.DuplicateMatch{
		ID:             match.ID,
		Title:          match.Title,
		Date:           match.Date,
		AmountAfterTax: match.AmountAfterTax,
	}, nil
}

var exportHeader = []string{"Date", "Title", "Place", "Amount", "Currency", "Tags", "Summary"}

func (s *Service) ExportCSV(ctx context.Context, actor slipdomain.Actor, w io.Writer) error {
	slips, err := s.List(ctx, actor, slipdomain.ListRequest{})
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, slip := range slips {
		var date string
		if slip.Date != nil {
			date = slip.Date.Format("2006-01-02")
		}
		var amount string
		if slip.AmountAfterTax != nil {
			amount = slip.AmountAfterTax.StringFixed(2)
		}
		tags := make([]string, 0, len(slip.Tags))
		for _, tag := range slip.Tags {
			tags = append(tags, tag.Name)
		}
		row := []string{
			date,
			slip.Title,
			deref(slip.Place),
			amount,
			deref(slip.Currency),
			strings.Join(tags, ";"),
			deref(slip.Summary),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Service) TransferOwnership(ctx context.Context, actor slipdomain.Actor, fromUser snowflake.ID) error {
	if actor.Role != slipdomain.RoleCompanyAdmin && actor.Role != slipdomain.RoleAdmin {
		s.metrics.AuthzDenied(ctx)
		return slipdomain.ErrUnauthorized
	}
	if actor.ID == fromUser {
		return nil
	}
	if err := s.repo.TransferOwnership(ctx, s.db, fromUser, actor.ID); err != nil {
		s.log.Error("transfer ownership",
			zap.Int64("from_user", fromUser.Int64()),
			zap.Int64("to_user", actor.ID.Int64()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) find(ctx context.Context, id snowflake.ID) (*slipdomain.Slip, error) {
	slip, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if slip == nil {
		return nil, slipdomain.ErrNotFound
	}
	return slip, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
