package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	slipdomain "github.com/slipvault/slipvault/internal/slip/domain"
)

const dateLayout = "2006-01-02"

type slipRequest struct {
	Title           string           `json:"title"`
	Place           *string          `json:"place"`
	Date            *string          `json:"date"`
	AmountBeforeTax *decimal.Decimal `json:"amount_before_tax"`
	TaxAmount       *decimal.Decimal `json:"tax_amount"`
	AmountAfterTax  *decimal.Decimal `json:"amount_after_tax"`
	Currency        *string          `json:"currency"`
	Summary         *string          `json:"summary"`
	PhotoURL        *string          `json:"photo_url"`
	Tags            []string         `json:"tags"`
	Extraction      map[string]any   `json:"extraction"`
}

func (r slipRequest) toInput() (slipdomain.SlipInput, error) {
	in := slipdomain.SlipInput{
		Title:           strings.TrimSpace(r.Title),
		Place:           r.Place,
		AmountBeforeTax: r.AmountBeforeTax,
		TaxAmount:       r.TaxAmount,
		AmountAfterTax:  r.AmountAfterTax,
		Currency:        r.Currency,
		Summary:         r.Summary,
		PhotoURL:        r.PhotoURL,
		Tags:            r.Tags,
		Extraction:      r.Extraction,
	}
	if r.Date != nil && strings.TrimSpace(*r.Date) != "" {
		parsed, err := time.ParseInLocation(dateLayout, strings.TrimSpace(*r.Date), time.UTC)
		if err != nil {
			return slipdomain.SlipInput{}, newValidationError("date", "invalid_date", "date must be YYYY-MM-DD")
		}
		in.Date = &parsed
	}
	return in, nil
}

func (s *Server) CreateSlip(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req slipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	in, err := req.toInput()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.slipSvc.Create(c.Request.Context(), actor, in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSlip(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseSlipID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	slip, err := s.slipSvc.Get(c.Request.Context(), actor, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": slip})
}

func (s *Server) ListSlips(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query struct {
		Search   string `form:"search"`
		Tag      string `form:"tag"`
		DateFrom string `form:"date_from"`
		DateTo   string `form:"date_to"`
		PageSize int    `form:"page_size"`
		Offset   int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dateFrom, err := parseOptionalDate(query.DateFrom, "date_from")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	dateTo, err := parseOptionalDate(query.DateTo, "date_to")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	slips, err := s.slipSvc.List(c.Request.Context(), actor, slipdomain.ListRequest{
		Search:   strings.TrimSpace(query.Search),
		Tag:      strings.TrimSpace(query.Tag),
		DateFrom: dateFrom,
		DateTo:   dateTo,
		PageSize: query.PageSize,
		Offset:   query.Offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": slips})
}

func (s *Server) UpdateSlip(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseSlipID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req slipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	in, err := req.toInput()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	slip, err := s.slipSvc.Update(c.Request.Context(), actor, id, in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": slip})
}

func (s *Server) DeleteSlip(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseSlipID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.slipSvc.Delete(c.Request.Context(), actor, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type duplicateCheckRequest struct {
	Place          string           `json:"place"`
	Date           *string          `json:"date"`
	AmountAfterTax *decimal.Decimal `json:"amount_after_tax"`
}

func (s *Server) CheckDuplicate(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req duplicateCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var date *time.Time
	if req.Date != nil && strings.TrimSpace(*req.Date) != "" {
		parsed, err := time.ParseInLocation(dateLayout, strings.TrimSpace(*req.Date), time.UTC)
		if err != nil {
			AbortWithError(c, newValidationError("date", "invalid_date", "date must be YYYY-MM-DD"))
			return
		}
		date = &parsed
	}

	match, err := s.slipSvc.CheckDuplicate(c.Request.Context(), actor, req.Place, date, req.AmountAfterTax)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"duplicate": match}})
}

func (s *Server) ExportSlips(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="slips.csv"`)
	if err := s.slipSvc.ExportCSV(c.Request.Context(), actor, c.Writer); err != nil {
		AbortWithError(c, err)
		return
	}
}

func parseSlipID(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		return 0, newValidationError("id", "invalid_id", "invalid slip id")
	}
	return id, nil
}

func parseOptionalDate(value, field string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return nil, newValidationError(field, "invalid_"+field, field+" must be YYYY-MM-DD")
	}
	return &parsed, nil
}
