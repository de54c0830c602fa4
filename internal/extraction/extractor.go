package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category maps a tag name to the keyword substrings that imply it.
type Category struct {
	Name     string   `mapstructure:"name" json:"name"`
	Keywords []string `mapstructure:"keywords" json:"keywords"`
}

// Fields is the result of heuristic extraction over raw OCR text. Every
// field is independently optional; a fully empty result is a valid outcome
// and means the caller should fall back to manual entry.
type Fields struct {
	Place    *string          `json:"place,omitempty"`
	Date     *time.Time       `json:"date,omitempty"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Currency *string          `json:"currency,omitempty"`
	Tags     []string         `json:"tags,omitempty"`
	Summary  *string          `json:"summary,omitempty"`
}

var (
	amountPattern = regexp.MustCompile(`\d+[.,]\d{2}`)

	// Date shapes tried in priority order: D/M/Y, Y/M/D, then "12 Jan 2024".
	dayFirstPattern  = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4}|\d{2})\b`)
	yearFirstPattern = regexp.MustCompile(`\b(\d{4})[/-](\d{1,2})[/-](\d{1,2})\b`)
	monthNamePattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+(\d{4})\b`)

	monthsByPrefix = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March,
		"apr": time.April, "may": time.May, "jun": time.June,
		"jul": time.July, "aug": time.August, "sep": time.September,
		"oct": time.October, "nov": time.November, "dec": time.December,
	}

	currencySymbols = []string{"$", "€", "£", "R"}
)

const summaryLimit = 200

// Extract derives all fields from raw receipt text. It never fails; absent
// signals produce absent fields.
func Extract(raw string, categories []Category) Fields {
	fields := Fields{
		Place:  Place(raw),
		Date:   Date(raw),
		Amount: Amount(raw),
		Tags:   Tags(raw, categories),
	}
	currency := Currency(raw)
	fields.Currency = &currency
	if summary := Summary(raw); summary != "" {
		fields.Summary = &summary
	}
	return fields
}

// Amount returns the largest decimal-with-two-fraction-digits value in the
// text. Receipts print the grand total as the largest decimal-like number
// more often than not; this is a heuristic, not a guarantee.
func Amount(raw string) *decimal.Decimal {
	var best *decimal.Decimal
	for _, loc := range amountPattern.FindAllStringIndex(raw, -1) {
		// Exactly two fraction digits: reject matches followed by more digits.
		if loc[1] < len(raw) && raw[loc[1]] >= '0' && raw[loc[1]] <= '9' {
			continue
		}
		candidate := strings.ReplaceAll(raw[loc[0]:loc[1]], ",", ".")
		value, err := decimal.NewFromString(candidate)
		if err != nil {
			continue
		}
		if best == nil || value.GreaterThan(*best) {
			best = &value
		}
	}
	return best
}

// Date returns the first date-shaped substring that parses as a calendar
// date, or nil. The three patterns are mutually exclusive and tried in
// priority order; a shape that matches but fails to parse yields nil rather
// than falling through.
func Date(raw string) *time.Time {
	if m := dayFirstPattern.FindStringSubmatch(raw); m != nil {
		return buildDate(m[3], m[2], m[1])
	}
	if m := yearFirstPattern.FindStringSubmatch(raw); m != nil {
		return buildDate(m[1], m[2], m[3])
	}
	if m := monthNamePattern.FindStringSubmatch(raw); m != nil {
		day, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		month := monthsByPrefix[strings.ToLower(m[2])]
		year, err := strconv.Atoi(m[3])
		if err != nil {
			return nil
		}
		return checkedDate(year, month, day)
	}
	return nil
}

// Place returns the first non-empty line that is neither date-shaped nor a
// plain number: the best-effort merchant name.
func Place(raw string) *string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if dayFirstPattern.MatchString(line) || yearFirstPattern.MatchString(line) || monthNamePattern.MatchString(line) {
			continue
		}
		if isPlainNumber(line) {
			continue
		}
		return &line
	}
	return nil
}

// Currency returns the first known symbol contained in the text, or "$"
// when none match.
func Currency(raw string) string {
	for _, symbol := range currencySymbols {
		if strings.Contains(raw, symbol) {
			return symbol
		}
	}
	return "$"
}

// Tags returns every category with at least one keyword substring hit in
// the lowercased text.
func Tags(raw string, categories []Category) []string {
	lowered := strings.ToLower(raw)
	var tags []string
	for _, category := range categories {
		for _, keyword := range category.Keywords {
			if strings.Contains(lowered, keyword) {
				tags = append(tags, category.Name)
				break
			}
		}
	}
	return tags
}

// Summary returns the first 200 characters of the text, with an ellipsis
// when truncated.
func Summary(raw string) string {
	trimmed := strings.TrimSpace(raw)
	runes := []rune(trimmed)
	if len(runes) <= summaryLimit {
		return trimmed
	}
	return string(runes[:summaryLimit]) + "..."
}

func buildDate(yearStr, monthStr, dayStr string) *time.Time {
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return nil
	}
	if len(yearStr) == 2 {
		year += 2000
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return nil
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return nil
	}
	return checkedDate(year, time.Month(month), day)
}

// checkedDate rejects shapes like 45/13/2024 that time.Date would silently
// normalize into a different day.
func checkedDate(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return nil
	}
	return &t
}

func isPlainNumber(line string) bool {
	candidate := strings.ReplaceAll(line, ",", ".")
	_, err := strconv.ParseFloat(candidate, 64)
	return err == nil
}
