package repository_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/dotation/pkg/db/option"
	"github.com/smallbiznis/dotation/pkg/db/pagination"
	"github.com/smallbiznis/dotation/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type article struct {
	ID       int64  `gorm:"primaryKey;autoIncrement:false"`
	Name     string `gorm:"type:text;not null"`
	Category string `gorm:"type:text"`
	Stock    int    `gorm:"not null"`
}

func (article) TableName() string { return "articles" }

func openStore(t *testing.T) (*gorm.DB, repository.Repository[article]) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&article{}))
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn, repository.ProvideStore[article](conn)
}

func seed(t *testing.T, repo repository.Repository[article]) {
	t.Helper()
	require.NoError(t, repo.BatchCreate(context.Background(), []*article{
		{ID: 1, Name: "Botas", Category: "calzado", Stock: 5},
		{ID: 2, Name: "Casco", Category: "proteccion", Stock: 0},
		{ID: 3, Name: "Guantes", Category: "proteccion", Stock: 12},
		{ID: 4, Name: "Camisa", Category: "uniforme", Stock: 7},
	}))
}

func TestFindOne(t *testing.T) {
	_, repo := openStore(t)
	seed(t, repo)
	ctx := context.Background()

	got, err := repo.FindOne(ctx, &article{Category: "proteccion"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 2, got.ID)

	missing, err := repo.FindOne(ctx, &article{Name: "Chaleco"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindWithOptions(t *testing.T) {
	_, repo := openStore(t)
	seed(t, repo)
	ctx := context.Background()

	byStock := option.WithSortBy(option.WithQuerySortBy("stock", "desc", map[string]bool{"stock": true}))
	items, err := repo.Find(ctx, nil, byStock)
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, "Guantes", items[0].Name)
	assert.Equal(t, "Casco", items[3].Name)

	items, err = repo.Find(ctx, nil,
		option.WithSortBy(option.WithQuerySortBy("name", "asc", map[string]bool{"name": true})),
		option.ApplyPagination(pagination.Pagination{Page: 2, PageSize: 2}),
	)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Casco", items[0].Name)
	assert.Equal(t, "Guantes", items[1].Name)

	items, err = repo.Find(ctx, &article{Category: "proteccion"},
		option.ApplyOperator(option.Condition{Field: "stock", Operator: option.GTE, Value: 1}),
	)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Guantes", items[0].Name)

	items, err = repo.Find(ctx, nil,
		option.ApplyOperator(option.Condition{Field: "id", Operator: option.IN, Value: []int64{1, 4}}),
		option.WithOrder("id", true),
	)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.EqualValues(t, 4, items[0].ID)
	assert.EqualValues(t, 1, items[1].ID)
}

func TestSortByRejectsUnknownColumn(t *testing.T) {
	_, repo := openStore(t)
	seed(t, repo)

	items, err := repo.Find(context.Background(), nil,
		option.WithSortBy(option.WithQuerySortBy("stock; DROP TABLE articles", "desc", map[string]bool{"name": true})),
		option.WithLimit(1),
	)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Botas", items[0].Name)
}

func TestWriteOperations(t *testing.T) {
	_, repo := openStore(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &article{ID: 10, Name: "Chaleco", Category: "proteccion", Stock: 1}))
	require.NoError(t, repo.Update(ctx, 10, map[string]any{"stock": 9}))

	got, err := repo.FindOne(ctx, &article{ID: 10})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 9, got.Stock)

	count, err := repo.Count(ctx, &article{Category: "proteccion"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	require.NoError(t, repo.Delete(ctx, 10))
	count, err = repo.Count(ctx, &article{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	assert.NoError(t, repo.BatchCreate(ctx, nil))
}

func TestWithTrxRollsBack(t *testing.T) {
	conn, repo := openStore(t)
	ctx := context.Background()
	errAbort := errors.New("abort")

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := repo.WithTrx(tx).Create(ctx, &article{ID: 20, Name: "Gorra", Stock: 3}); err != nil {
			return err
		}
		inside, err := repo.WithTrx(tx).FindOne(ctx, &article{ID: 20})
		require.NoError(t, err)
		require.NotNil(t, inside)
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	got, err := repo.WithTrx(nil).FindOne(ctx, &article{ID: 20})
	require.NoError(t, err)
	assert.Nil(t, got)
}
