package vision

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldsStripsCodeFences(t *testing.T) {
	text := "```json\n{\"place\":\"Engen Cape Town\",\"date\":\"2024-01-12\",\"amountAfterTax\":45.0,\"currency\":\"R\",\"summary\":\"Fuel\",\"tags\":[\"Transport\"]}\n```"

	fields, err := parseFields(text)
	require.NoError(t, err)

	require.NotNil(t, fields.Place)
	assert.Equal(t, "Engen Cape Town", *fields.Place)
	require.NotNil(t, fields.Date)
	assert.Equal(t, time.Date(2024, time.January, 12, 0, 0, 0, 0, time.UTC), *fields.Date)
	require.NotNil(t, fields.Amount)
	assert.True(t, fields.Amount.Equal(decimal.RequireFromString("45")))
	require.NotNil(t, fields.Currency)
	assert.Equal(t, "R", *fields.Currency)
	assert.Equal(t, []string{"Transport"}, fields.Tags)
}

func TestParseFieldsIgnoresSurroundingProse(t *testing.T) {
	text := "Here is the extracted data:\n{\"place\":\"Cafe Uno\"}\nLet me know if you need anything else."

	fields, err := parseFields(text)
	require.NoError(t, err)
	require.NotNil(t, fields.Place)
	assert.Equal(t, "Cafe Uno", *fields.Place)
	assert.Nil(t, fields.Date)
	assert.Nil(t, fields.Amount)
	assert.Nil(t, fields.Currency)
	assert.Nil(t, fields.Summary)
	assert.Empty(t, fields.Tags)
}

func TestParseFieldsMissingKeysStayAbsent(t *testing.T) {
	fields, err := parseFields(`{"unknown":"key"}`)
	require.NoError(t, err)
	assert.Nil(t, fields.Place)
	assert.Nil(t, fields.Date)
	assert.Nil(t, fields.Amount)
}

func TestParseFieldsUnparseableDateDropsOnlyDate(t *testing.T) {
	fields, err := parseFields(`{"place":"Spar","date":"sometime last week","amountAfterTax":12.5}`)
	require.NoError(t, err)
	require.NotNil(t, fields.Place)
	assert.Nil(t, fields.Date)
	require.NotNil(t, fields.Amount)
}

func TestParseFieldsRejectsNonJSON(t *testing.T) {
	_, err := parseFields("I could not read this receipt.")
	require.Error(t, err)

	_, err = parseFields("```json\nnot json\n```")
	require.Error(t, err)
}

func TestDisabledAnalyzerReturnsTypedFailure(t *testing.T) {
	_, err := disabled{}.Analyze(context.Background(), []byte("img"), "image/png")
	require.Error(t, err)

	var extractionErr *ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.NotEmpty(t, extractionErr.Reason)
}
