package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/dotation/internal/catalog/domain"
	catalogservice "github.com/smallbiznis/dotation/internal/catalog/service"
	"github.com/smallbiznis/dotation/internal/clock"
	rosterdomain "github.com/smallbiznis/dotation/internal/roster/domain"
	rosterrepo "github.com/smallbiznis/dotation/internal/roster/repository"
	"github.com/smallbiznis/dotation/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*testutil.Fixture, catalogdomain.Service) {
	t.Helper()
	f := testutil.NewFixture(t)
	svc := catalogservice.NewService(catalogservice.ServiceParam{
		DB:         f.DB,
		Log:        zap.NewNop(),
		GenID:      f.Node,
		RosterRepo: rosterrepo.Provide(),
		Clock:      clock.NewFakeClock(time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)),
	})
	return f, svc
}

func TestUpsertSizesLastSelectionWins(t *testing.T) {
	f, svc := newService(t)
	ctx := context.Background()

	area := f.Area("Bodega")
	emp := f.Employee(testutil.EmployeeSpec{AreaID: area.ID})
	shirt := f.Article("Camisa", "25000.00", true)
	trousers := f.Article("Pantalon", "30000.00", true)
	small, medium, large := f.Size("S", 1), f.Size("M", 1), f.Size("L", 1)

	n, err := svc.UpsertSizes(ctx, emp.ID, []catalogdomain.SizeSelection{
		{ArticleID: shirt.ID, SizeID: small.ID},
		{ArticleID: trousers.ID, SizeID: large.ID},
		{ArticleID: shirt.ID, SizeID: medium.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sizes, err := svc.ListSizes(ctx, emp.ID)
	require.NoError(t, err)
	require.Len(t, sizes, 2)
	assert.Equal(t, "Camisa", sizes[0].ArticleName)
	assert.Equal(t, "M", sizes[0].SizeLabel)
	assert.Equal(t, "Pantalon", sizes[1].ArticleName)
	assert.Equal(t, "L", sizes[1].SizeLabel)

	stored, err := svc.UpsertSize(ctx, emp.ID, shirt.ID, large.ID)
	require.NoError(t, err)
	assert.Equal(t, large.ID, stored.SizeID)
	assert.EqualValues(t, 2, f.Count("employee_article_sizes"))

	selected, err := svc.SelectedSizes(ctx, f.DB, []snowflake.ID{emp.ID})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	got := selected[catalogdomain.SizeKey{EmployeeID: emp.ID, ArticleID: shirt.ID}]
	assert.Equal(t, "L", got.Label)
}

func TestUpsertSizesValidation(t *testing.T) {
	f, svc := newService(t)
	ctx := context.Background()

	area := f.Area("Bodega")
	emp := f.Employee(testutil.EmployeeSpec{AreaID: area.ID})
	shirt := f.Article("Camisa", "25000.00", true)
	medium := f.Size("M", 1)

	tests := []struct {
		name       string
		employeeID snowflake.ID
		selections []catalogdomain.SizeSelection
		wantErr    error
	}{
		{name: "no employee", selections: []catalogdomain.SizeSelection{{ArticleID: shirt.ID, SizeID: medium.ID}}, wantErr: catalogdomain.ErrInvalidEmployee},
		{name: "empty", employeeID: emp.ID, wantErr: catalogdomain.ErrEmptySelection},
		{name: "zero article", employeeID: emp.ID, selections: []catalogdomain.SizeSelection{{SizeID: medium.ID}}, wantErr: catalogdomain.ErrInvalidArticle},
		{name: "zero size", employeeID: emp.ID, selections: []catalogdomain.SizeSelection{{ArticleID: shirt.ID}}, wantErr: catalogdomain.ErrInvalidSize},
		{name: "unknown employee", employeeID: f.Node.Generate(), selections: []catalogdomain.SizeSelection{{ArticleID: shirt.ID, SizeID: medium.ID}}, wantErr: rosterdomain.ErrEmployeeNotFound},
		{name: "unknown article", employeeID: emp.ID, selections: []catalogdomain.SizeSelection{{ArticleID: f.Node.Generate(), SizeID: medium.ID}}, wantErr: catalogdomain.ErrArticleNotFound},
		{name: "unknown size", employeeID: emp.ID, selections: []catalogdomain.SizeSelection{{ArticleID: shirt.ID, SizeID: f.Node.Generate()}}, wantErr: catalogdomain.ErrSizeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpsertSizes(ctx, tt.employeeID, tt.selections)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.EqualValues(t, 0, f.Count("employee_article_sizes"))
}

func TestEnsurePlaceholderSize(t *testing.T) {
	f, svc := newService(t)
	ctx := context.Background()

	first, err := svc.EnsurePlaceholderSize(ctx, f.DB, "SIN_TALLA", 1)
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.ArticleTypeGeneral, first.ArticleType)

	again, err := svc.EnsurePlaceholderSize(ctx, f.DB, "SIN_TALLA", 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := svc.EnsurePlaceholderSize(ctx, f.DB, "  ", 2)
	require.NoError(t, err)
	assert.Equal(t, "SIN_TALLA", other.Label)
	assert.NotEqual(t, first.ID, other.ID)

	assert.EqualValues(t, 2, f.Count("sizes"))
}

func TestNormalizeSizeLabel(t *testing.T) {
	assert.Equal(t, "XL", catalogdomain.NormalizeSizeLabel(" xl "))
	assert.Equal(t, catalogdomain.NormalizeSizeLabel("m"), catalogdomain.NormalizeSizeLabel("M"))
}
