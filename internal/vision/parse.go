package vision

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/slipvault/slipvault/internal/extraction"
)

// slipPayload mirrors the JSON object the prompt asks the model for. Field
// names match the wire contract exactly; unknown keys are ignored.
type slipPayload struct {
	Place          string   `json:"place"`
	Date           string   `json:"date"`
	AmountAfterTax *float64 `json:"amountAfterTax"`
	Currency       string   `json:"currency"`
	Summary        string   `json:"summary"`
	Tags           []string `json:"tags"`
}

var payloadDateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
}

// parseFields cleans model output (code fences, surrounding prose) and maps
// the JSON keys 1:1 onto extraction fields. Missing keys stay absent; an
// unparseable date drops only the date.
func parseFields(text string) (extraction.Fields, error) {
	cleaned, err := cleanModelJSON(text)
	if err != nil {
		return extraction.Fields{}, err
	}

	var payload slipPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return extraction.Fields{}, fmt.Errorf("unmarshaling model response: %w", err)
	}

	var fields extraction.Fields
	if place := strings.TrimSpace(payload.Place); place != "" {
		fields.Place = &place
	}
	if date := parsePayloadDate(payload.Date); date != nil {
		fields.Date = date
	}
	if payload.AmountAfterTax != nil {
		amount := decimal.NewFromFloat(*payload.AmountAfterTax)
		fields.Amount = &amount
	}
	if currency := strings.TrimSpace(payload.Currency); currency != "" {
		fields.Currency = &currency
	}
	if summary := strings.TrimSpace(payload.Summary); summary != "" {
		fields.Summary = &summary
	}
	for _, tag := range payload.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			fields.Tags = append(fields.Tags, tag)
		}
	}
	return fields, nil
}

// cleanModelJSON strips markdown code fences and anything outside the
// outermost JSON object.
func cleanModelJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	end := strings.LastIndex(text, "}")
	if end == -1 || end < start {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	return text[start : end+1], nil
}

func parsePayloadDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, format := range payloadDateFormats {
		if parsed, err := time.Parse(format, raw); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}
	return nil
}
