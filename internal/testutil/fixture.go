// Package testutil builds in-memory sqlite databases seeded for service tests.
package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/dotation/internal/catalog/domain"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	kitdomain "github.com/smallbiznis/dotation/internal/kit/domain"
	"github.com/smallbiznis/dotation/internal/migration"
	rosterdomain "github.com/smallbiznis/dotation/internal/roster/domain"
	wagedomain "github.com/smallbiznis/dotation/internal/wagethreshold/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// OpenDB opens a private in-memory database with every table of the engine.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, migration.AutoMigrate(conn))

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// Fixture seeds rows with generated ids.
type Fixture struct {
	t    *testing.T
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &Fixture{t: t, DB: OpenDB(t), Node: node}
}

func (f *Fixture) create(value any) {
	f.t.Helper()
	require.NoError(f.t, f.DB.Create(value).Error)
}

func (f *Fixture) Area(name string) rosterdomain.Area {
	area := rosterdomain.Area{ID: f.Node.Generate(), Name: name}
	f.create(&area)
	return area
}

// EmployeeSpec describes an employee; zero values get sensible defaults.
type EmployeeSpec struct {
	FirstName string
	LastName  string
	HireDate  time.Time
	Salary    string
	AreaID    snowflake.ID
	GenderID  int64
	Inactive  bool
}

func (f *Fixture) Employee(spec EmployeeSpec) rosterdomain.Employee {
	if spec.FirstName == "" {
		spec.FirstName = "Ana"
	}
	if spec.LastName == "" {
		spec.LastName = "Perez"
	}
	if spec.Salary == "" {
		spec.Salary = "1000.00"
	}
	if spec.GenderID == 0 {
		spec.GenderID = 1
	}
	employee := rosterdomain.Employee{
		ID:        f.Node.Generate(),
		FirstName: spec.FirstName,
		LastName:  spec.LastName,
		HireDate:  spec.HireDate,
		Salary:    decimal.RequireFromString(spec.Salary),
		AreaID:    spec.AreaID,
		GenderID:  spec.GenderID,
		Active:    !spec.Inactive,
	}
	f.create(&employee)
	return employee
}

func (f *Fixture) Article(name, price string, requiresSize bool) catalogdomain.Article {
	article := catalogdomain.Article{
		ID:           f.Node.Generate(),
		Name:         name,
		Category:     "uniform",
		UnitPrice:    decimal.RequireFromString(price),
		RequiresSize: requiresSize,
	}
	f.create(&article)
	return article
}

func (f *Fixture) Size(label string, genderID int64) catalogdomain.Size {
	size := catalogdomain.Size{
		ID:          f.Node.Generate(),
		Label:       label,
		ArticleType: "Clothing",
		GenderID:    genderID,
	}
	f.create(&size)
	return size
}

func (f *Fixture) RecordSize(employeeID, articleID, sizeID snowflake.ID) {
	f.create(&catalogdomain.EmployeeArticleSize{
		ID:         f.Node.Generate(),
		EmployeeID: employeeID,
		ArticleID:  articleID,
		SizeID:     sizeID,
		UpdatedAt:  time.Now().UTC(),
	})
}

func (f *Fixture) Kit(areaID snowflake.ID, name string, active bool) kitdomain.Kit {
	kit := kitdomain.Kit{ID: f.Node.Generate(), Name: name, AreaID: areaID, Active: active}
	f.create(&kit)
	return kit
}

func (f *Fixture) KitLine(kitID, articleID snowflake.ID, quantity int) kitdomain.KitLine {
	line := kitdomain.KitLine{ID: f.Node.Generate(), KitID: kitID, ArticleID: articleID, Quantity: quantity}
	f.create(&line)
	return line
}

func (f *Fixture) WageThreshold(year int, value string) wagedomain.WageThreshold {
	now := time.Now().UTC()
	row := wagedomain.WageThreshold{
		Year:         year,
		MonthlyValue: decimal.RequireFromString(value),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.create(&row)
	return row
}

// ActiveCycle inserts an active cycle whose window is [deliveryDate-1 month, deliveryDate].
func (f *Fixture) ActiveCycle(name string, deliveryDate time.Time) cycledomain.Cycle {
	now := time.Now().UTC()
	cycle := cycledomain.Cycle{
		ID:                   f.Node.Generate(),
		Name:                 name,
		Slug:                 strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		DeliveryDate:         deliveryDate,
		WindowStart:          deliveryDate.AddDate(0, -1, 0),
		WindowEnd:            deliveryDate,
		State:                cycledomain.CycleStateActive,
		AppliedWageThreshold: decimal.RequireFromString("1000.00"),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	f.create(&cycle)
	return cycle
}

// Member places an employee in a cycle in state processed.
func (f *Fixture) Member(cycleID snowflake.ID, employee rosterdomain.Employee, kitID *snowflake.ID) cycledomain.Membership {
	now := time.Now().UTC()
	member := cycledomain.Membership{
		ID:                 f.Node.Generate(),
		CycleID:            cycleID,
		EmployeeID:         employee.ID,
		KitID:              kitID,
		State:              cycledomain.MemberStateProcessed,
		SalaryAtAssignment: employee.Salary,
		AreaID:             employee.AreaID,
		AssignedAt:         now,
		UpdatedAt:          now,
	}
	f.create(&member)
	return member
}

func (f *Fixture) Count(table string) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.DB.Table(table).Count(&n).Error)
	return n
}
