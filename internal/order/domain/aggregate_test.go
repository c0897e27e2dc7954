package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateGroupsByArticleAndNormalizedLabel(t *testing.T) {
	shirt := decimal.RequireFromString("12.50")
	boots := decimal.RequireFromString("40.00")

	lines, total := Aggregate([]Contribution{
		{ArticleID: 2, ArticleName: "Shirt", UnitPrice: shirt, SizeID: 10, SizeLabel: "m", Quantity: 2},
		{ArticleID: 2, ArticleName: "Shirt", UnitPrice: shirt, SizeID: 11, SizeLabel: " M ", Quantity: 1},
		{ArticleID: 2, ArticleName: "Shirt", UnitPrice: shirt, SizeID: 12, SizeLabel: "L", Quantity: 1},
		{ArticleID: 1, ArticleName: "Boots", UnitPrice: boots, SizeID: 20, SizeLabel: "42", Quantity: 1},
	})

	require.Len(t, lines, 3)
	assert.Equal(t, "Boots", lines[0].ArticleName)
	assert.Equal(t, "Shirt", lines[1].ArticleName)
	assert.Equal(t, "L", lines[1].SizeLabel)
	assert.Equal(t, "M", lines[2].SizeLabel)
	assert.Equal(t, int64(3), lines[2].Quantity)
	assert.Equal(t, "37.50", lines[2].Subtotal.StringFixed(2))
	assert.Equal(t, "102.50", total.StringFixed(2))
}

func TestAggregateEmpty(t *testing.T) {
	lines, total := Aggregate(nil)
	assert.Empty(t, lines)
	assert.True(t, total.IsZero())
}

func TestStructuredErrorsMatchSentinels(t *testing.T) {
	var err error = &MissingKitError{Employees: []EmployeeRef{{EmployeeID: 1}}}
	assert.ErrorIs(t, err, ErrMissingKit)
	assert.NotErrorIs(t, err, ErrSizesPending)

	err = &SizesPendingError{Pending: []PendingSize{{EmployeeID: 1, ArticleID: 2}}}
	assert.ErrorIs(t, err, ErrSizesPending)
	assert.Contains(t, err.Error(), "sizes_pending")
}
