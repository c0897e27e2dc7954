package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	rosterdomain "github.com/smallbiznis/dotation/internal/roster/domain"
	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTenureMonths(t *testing.T) {
	cases := []struct {
		name string
		hire time.Time
		now  time.Time
		want int
	}{
		{"same day", date(2025, 1, 10), date(2025, 1, 10), 0},
		{"exact months", date(2025, 1, 10), date(2025, 4, 10), 3},
		{"day not reached", date(2025, 1, 10), date(2025, 4, 9), 2},
		{"end of month short", date(2025, 1, 31), date(2025, 2, 28), 0},
		{"end of month long", date(2025, 1, 31), date(2025, 3, 31), 2},
		{"across years", date(2023, 11, 5), date(2025, 2, 5), 15},
		{"time of day not reached", date(2025, 1, 10).Add(12 * time.Hour), date(2025, 4, 10).Add(11 * time.Hour), 2},
		{"future hire", date(2025, 6, 1), date(2025, 5, 20), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TenureMonths(tc.hire, tc.now))
		})
	}
}

func TestClassify(t *testing.T) {
	now := date(2025, 6, 15)
	wage := decimal.RequireFromString("1000.00")
	rules := Rules{MinTenureMonths: 3, MaxWageMultiple: 2}

	entry := func(salary string, hire time.Time, active bool) rosterdomain.RosterEntry {
		return rosterdomain.RosterEntry{
			Employee: rosterdomain.Employee{
				ID:       1,
				HireDate: hire,
				Salary:   decimal.RequireFromString(salary),
				Active:   active,
			},
			AreaName: "Bodega",
		}
	}

	got, outcome := Classify(entry("1500.00", date(2025, 1, 1), true), wage, rules, now)
	assert.Equal(t, OutcomeEligible, outcome)
	assert.Equal(t, "1.50", got.MultipleOfW.StringFixed(2))
	assert.Equal(t, 5, got.TenureMonths)

	_, outcome = Classify(entry("2000.00", date(2025, 3, 15), true), wage, rules, now)
	assert.Equal(t, OutcomeEligible, outcome)

	_, outcome = Classify(entry("2000.01", date(2025, 1, 1), true), wage, rules, now)
	assert.Equal(t, OutcomeSalaryAboveLimit, outcome)

	_, outcome = Classify(entry("1500.00", date(2025, 3, 16), true), wage, rules, now)
	assert.Equal(t, OutcomeInsufficientTenure, outcome)

	_, outcome = Classify(entry("1500.00", date(2020, 1, 1), false), wage, rules, now)
	assert.Equal(t, OutcomeInactive, outcome)

	_, outcome = Classify(entry("0", date(2020, 1, 1), true), wage, rules, now)
	assert.Equal(t, OutcomeNoSalary, outcome)

	_, outcome = Classify(entry("100.00", date(2020, 1, 1), true), decimal.Zero, rules, now)
	assert.Equal(t, OutcomeSalaryAboveLimit, outcome)
}
