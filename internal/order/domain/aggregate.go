package domain

import (
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/dotation/internal/catalog/domain"
)

// Contribution is what one member adds to the order for one kit line.
type Contribution struct {
	ArticleID   snowflake.ID
	ArticleName string
	UnitPrice   decimal.Decimal
	SizeID      snowflake.ID
	SizeLabel   string
	Quantity    int64
}

// AggregatedLine is one (article, size label) bucket of the order.
type AggregatedLine struct {
	ArticleID   snowflake.ID
	ArticleName string
	SizeID      snowflake.ID
	SizeLabel   string
	Quantity    int64
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal
}

type aggregateKey struct {
	articleID snowflake.ID
	label     string
}

// Aggregate groups contributions by article and normalized size label, sorted
// by article name then label, and returns the lines with their total.
func Aggregate(contributions []Contribution) ([]AggregatedLine, decimal.Decimal) {
	buckets := make(map[aggregateKey]*AggregatedLine)
	for _, c := range contributions {
		label := catalogdomain.NormalizeSizeLabel(c.SizeLabel)
		key := aggregateKey{articleID: c.ArticleID, label: label}
		line, ok := buckets[key]
		if !ok {
			line = &AggregatedLine{
				ArticleID:   c.ArticleID,
				ArticleName: c.ArticleName,
				SizeID:      c.SizeID,
				SizeLabel:   label,
				UnitPrice:   c.UnitPrice,
			}
			buckets[key] = line
		}
		line.Quantity += c.Quantity
	}

	lines := make([]AggregatedLine, 0, len(buckets))
	total := decimal.Zero
	for _, line := range buckets {
		line.Subtotal = line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)).Round(2)
		total = total.Add(line.Subtotal)
		lines = append(lines, *line)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ArticleName != lines[j].ArticleName {
			return lines[i].ArticleName < lines[j].ArticleName
		}
		if lines[i].SizeLabel != lines[j].SizeLabel {
			return lines[i].SizeLabel < lines[j].SizeLabel
		}
		return lines[i].ArticleID < lines[j].ArticleID
	})
	return lines, total
}
