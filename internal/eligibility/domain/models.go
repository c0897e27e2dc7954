package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	rosterdomain "github.com/smallbiznis/dotation/internal/roster/domain"
)

type Outcome string

const (
	OutcomeEligible           Outcome = "eligible"
	OutcomeInactive           Outcome = "inactive"
	OutcomeNoSalary           Outcome = "no_salary"
	OutcomeInsufficientTenure Outcome = "insufficient_tenure"
	OutcomeSalaryAboveLimit   Outcome = "salary_above_limit"
)

// Rules are the policy knobs of a classification.
type Rules struct {
	MinTenureMonths int
	MaxWageMultiple int
}

// EligibleEmployee is a roster entry that qualifies for a cycle.
type EligibleEmployee struct {
	EmployeeID   snowflake.ID    `json:"employee_id"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	AreaID       snowflake.ID    `json:"area_id"`
	AreaName     string          `json:"area_name"`
	GenderID     int64           `json:"gender_id"`
	HireDate     time.Time       `json:"hire_date"`
	Salary       decimal.Decimal `json:"salary"`
	TenureMonths int             `json:"tenure_months"`
	MultipleOfW  decimal.Decimal `json:"multiple_of_w"`
}

// AreaGroup is the per-area slice of a preview.
type AreaGroup struct {
	AreaID    snowflake.ID       `json:"area_id"`
	AreaName  string             `json:"area_name"`
	Count     int                `json:"count"`
	Employees []EligibleEmployee `json:"employees"`
}

type Preview struct {
	DeliveryDate  time.Time       `json:"delivery_date"`
	Year          int             `json:"year"`
	WageThreshold decimal.Decimal `json:"wage_threshold"`
	MaxSalary     decimal.Decimal `json:"max_salary"`
	Total         int             `json:"total"`
	Areas         []AreaGroup     `json:"areas"`
}

// TenureMonths counts whole months between hire and now. A month only
// completes once now reaches the hire day-of-month and time of day.
func TenureMonths(hire, now time.Time) int {
	hire = hire.UTC()
	now = now.UTC()

	months := (now.Year()-hire.Year())*12 + int(now.Month()-hire.Month())
	if months > 0 && beforeInMonth(now, hire) {
		months--
	} else if months < 0 && beforeInMonth(hire, now) {
		months++
	}
	return months
}

func beforeInMonth(a, b time.Time) bool {
	if a.Day() != b.Day() {
		return a.Day() < b.Day()
	}
	ah, am, as := a.Clock()
	bh, bm, bs := b.Clock()
	aClock := time.Duration(ah)*time.Hour + time.Duration(am)*time.Minute + time.Duration(as)*time.Second + time.Duration(a.Nanosecond())
	bClock := time.Duration(bh)*time.Hour + time.Duration(bm)*time.Minute + time.Duration(bs)*time.Second + time.Duration(b.Nanosecond())
	return aClock < bClock
}

// Classify decides whether entry qualifies against wage under rules.
func Classify(entry rosterdomain.RosterEntry, wage decimal.Decimal, rules Rules, now time.Time) (EligibleEmployee, Outcome) {
	tenure := TenureMonths(entry.HireDate, now)
	candidate := EligibleEmployee{
		EmployeeID:   entry.ID,
		FirstName:    entry.FirstName,
		LastName:     entry.LastName,
		AreaID:       entry.AreaID,
		AreaName:     entry.AreaName,
		GenderID:     entry.GenderID,
		HireDate:     entry.HireDate,
		Salary:       entry.Salary,
		TenureMonths: tenure,
	}

	switch {
	case !entry.Active:
		return candidate, OutcomeInactive
	case !entry.Salary.IsPositive():
		return candidate, OutcomeNoSalary
	case tenure < rules.MinTenureMonths:
		return candidate, OutcomeInsufficientTenure
	case !wage.IsPositive():
		return candidate, OutcomeSalaryAboveLimit
	case entry.Salary.GreaterThan(wage.Mul(decimal.NewFromInt(int64(rules.MaxWageMultiple)))):
		return candidate, OutcomeSalaryAboveLimit
	}

	candidate.MultipleOfW = entry.Salary.DivRound(wage, 2)
	return candidate, OutcomeEligible
}
