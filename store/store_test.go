package store_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/consql"
	"github.com/syssam/consql/cursor"
	"github.com/syssam/consql/dialect"
	"github.com/syssam/consql/dialect/sql"
	"github.com/syssam/consql/entity"
	"github.com/syssam/consql/schema"
	"github.com/syssam/consql/schema/field"
	"github.com/syssam/consql/schema/mixin"
	"github.com/syssam/consql/sqlt"
	"github.com/syssam/consql/store"
	"github.com/syssam/consql/token"
)

var now = time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)

var account = schema.MustNew("Account",
	schema.Fields(
		field.Int("id"),
		field.String("status").Required().Enum("authorized", "banned"),
		field.Time("updated_at").Tags(mixin.TagTouch),
	),
	schema.Attributes(store.AttrShard),
)

type fixture struct {
	store *store.Store
	mock  sqlmock.Sqlmock
}

func newFixture(t *testing.T, opts ...store.Option) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r, err := sqlt.New(dialect.Postgres)
	require.NoError(t, err)
	p, err := cursor.NewPager(token.NewCodec("secret"), cursor.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	opts = append([]store.Option{store.WithClock(func() time.Time { return now })}, opts...)
	return &fixture{
		store: store.New(sql.OpenDB(dialect.Postgres, db), r, p, opts...),
		mock:  mock,
	}
}

func newAccount(t *testing.T, data map[string]any) *entity.Entity {
	t.Helper()
	e, err := entity.New(account, data)
	require.NoError(t, err)
	return e
}

const saveAccount = `INSERT INTO "accounts" ("id", "status", "updated_at")
VALUES ($1, $2, $3)
ON CONFLICT ("id") DO UPDATE SET "updated_at" = EXCLUDED."updated_at"
RETURNING *`

func TestSave(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e := newAccount(t, map[string]any{"id": 1, "status": "authorized"})

	f.mock.ExpectQuery(saveAccount).
		WithArgs(1, "authorized", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "updated_at"}).
			AddRow(int64(1), "authorized", now))

	require.NoError(t, f.store.Save(context.Background(), e))
	assert.Empty(t, e.Snapshot())
	assert.Equal(t, 1, e.Value("id"))
	assert.Equal(t, now, e.Value("updated_at"))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSaveDirtyColumnsAndShard(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e := newAccount(t, map[string]any{"id": 1, "status": "authorized", "updated_at": now})
	require.NoError(t, e.Set("status", "banned"))

	f.mock.ExpectQuery(`INSERT INTO "eu"."accounts" ("id", "status", "updated_at")
VALUES ($1, $2, $3)
ON CONFLICT ("id") DO UPDATE SET "status" = EXCLUDED."status"
RETURNING *`).
		WithArgs(1, "banned", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "updated_at", "extra"}).
			AddRow(int64(1), "banned", now, "ignored"))

	require.NoError(t, f.store.Save(context.Background(), e, store.Shard("eu")))
	assert.Equal(t, "banned", e.Value("status"))
	assert.Empty(t, e.Snapshot())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSaveErrors(t *testing.T) {
	t.Parallel()

	t.Run("constraint", func(t *testing.T) {
		f := newFixture(t)
		e := newAccount(t, map[string]any{"id": 1, "status": "authorized"})
		f.mock.ExpectQuery(saveAccount).
			WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "accounts_pkey"`))

		err := f.store.Save(context.Background(), e)
		require.Error(t, err)
		assert.True(t, consql.IsMutationError(err))
		assert.True(t, consql.IsConstraintError(err))
		assert.NotEmpty(t, e.Snapshot(), "failed save keeps the dirty set")
	})

	t.Run("no row", func(t *testing.T) {
		f := newFixture(t)
		e := newAccount(t, map[string]any{"id": 1, "status": "authorized"})
		f.mock.ExpectQuery(saveAccount).
			WillReturnRows(sqlmock.NewRows([]string{"id", "status", "updated_at"}))

		err := f.store.Save(context.Background(), e)
		require.Error(t, err)
		assert.True(t, consql.IsNotFound(err))
	})

	t.Run("invalid reload", func(t *testing.T) {
		f := newFixture(t)
		e := newAccount(t, map[string]any{"id": 1, "status": "authorized"})
		f.mock.ExpectQuery(saveAccount).
			WillReturnRows(sqlmock.NewRows([]string{"id", "status", "updated_at"}).
				AddRow(int64(1), "deleted", now))

		err := f.store.Save(context.Background(), e)
		require.Error(t, err)
		assert.True(t, consql.IsInvalidField(err))
	})
}

func TestSaveNestedVars(t *testing.T) {
	t.Parallel()

	profile := schema.MustNew("Profile", schema.Fields(field.String("bio"), field.Strings("tags")))
	user := schema.MustNew("User", schema.Fields(
		field.Int("id"),
		field.Other("profile", (*entity.Entity)(nil)).Tags(store.TagVars),
		field.Strings("roles"),
	))
	p, err := entity.New(profile, map[string]any{"bio": "hi"})
	require.NoError(t, err)
	u, err := entity.New(user, map[string]any{"id": 3, "profile": p, "roles": []string{"admin"}})
	require.NoError(t, err)
	require.NoError(t, p.Set("bio", "hello"))

	f := newFixture(t)
	f.mock.ExpectQuery(`INSERT INTO "users" ("id", "profile", "roles")
VALUES ($1, $2, $3)
ON CONFLICT ("id") DO UPDATE SET "profile" = EXCLUDED."profile"
RETURNING *`).
		WithArgs(3, `{"bio":"hello","tags":null}`, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "profile", "roles"}).
			AddRow(int64(3), []byte(`{"bio":"hello","tags":null}`), []byte(`{admin,ops}`)))

	require.NoError(t, f.store.Save(context.Background(), u))
	assert.Same(t, p, u.Value("profile"), "nested entities are kept")
	assert.Equal(t, []string{"admin", "ops"}, u.Value("roles"))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRemove(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e := newAccount(t, map[string]any{"id": 9, "status": "banned"})

	const rm = "DELETE FROM \"accounts\"\nWHERE \"id\" = $1\nRETURNING *"
	f.mock.ExpectQuery(rm).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "updated_at"}).
			AddRow(int64(9), "banned", now))
	require.NoError(t, f.store.Remove(context.Background(), e))
	assert.Equal(t, now, e.Value("updated_at"))

	f.mock.ExpectQuery(rm).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "updated_at"}))
	err := f.store.Remove(context.Background(), e)
	require.Error(t, err)
	assert.True(t, consql.IsNotFound(err))
	var nf *consql.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []any{9}, nf.Key())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

const listBanned = `SELECT * FROM "eu"."accounts"
WHERE "status" = $1
ORDER BY "id" DESC
LIMIT $2`

func TestList(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mock.ExpectQuery(listBanned).
		WithArgs("banned", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "updated_at"}).
			AddRow(int64(2), "banned", nil).
			AddRow(int64(1), "banned", "2024-03-04 05:06:07+00:00"))

	page, err := f.store.List(context.Background(), account, map[string]any{
		"limit":  2,
		"sort":   "-id",
		"filter": map[string]any{"status": "banned"},
	}, store.Shard("eu"))
	require.NoError(t, err)
	assert.True(t, page.IsFull())
	require.Equal(t, 2, page.Len())
	w := page.Window()
	assert.Equal(t, 2, w[0].Value("id"))
	assert.True(t, now.Equal(w[1].Value("updated_at").(time.Time)))
	shard, ok := w[0].Attr(store.AttrShard)
	assert.True(t, ok)
	assert.Equal(t, "eu", shard)
	assert.Empty(t, w[0].Snapshot())

	tok, err := page.Token()
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())

	f.mock.ExpectQuery(`SELECT * FROM "accounts"
LIMIT $1`).WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "updated_at"}))
	next, err := f.store.List(context.Background(), account, map[string]any{"cursor": tok})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Limit(), "limit resumes from the token")
	assert.False(t, next.IsFull())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestListErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.store.List(context.Background(), account, map[string]any{"sort": 1})
	assert.True(t, consql.IsUsageError(err))
	_, err = f.store.List(context.Background(), account, map[string]any{"sort": []any{"id", 2}})
	assert.True(t, consql.IsUsageError(err))

	f.mock.ExpectQuery("SELECT * FROM \"accounts\"\nLIMIT $1").
		WillReturnError(errors.New("connection reset"))
	_, err = f.store.List(context.Background(), account, nil)
	require.Error(t, err)
	assert.True(t, consql.IsQueryError(err))

	f.mock.ExpectQuery("SELECT * FROM \"accounts\"\nLIMIT $1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(int64(1), "deleted"))
	_, err = f.store.List(context.Background(), account, nil)
	require.Error(t, err)
	assert.True(t, consql.IsInvalidField(err))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

// memCache is a map backed consql.Cache.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
}

func newMemCache() *memCache { return &memCache{entries: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	return c.entries[key], nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *memCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *memCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func TestListCache(t *testing.T) {
	t.Parallel()

	cache := newMemCache()
	f := newFixture(t, store.WithCache(cache, time.Minute))
	params := map[string]any{"limit": 2, "sort": "-id", "filter": map[string]any{"status": "banned"}}

	f.mock.ExpectQuery(listBanned).
		WithArgs("banned", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "updated_at"}).
			AddRow(int64(2), "banned", now))

	for range 3 {
		page, err := f.store.List(context.Background(), account, params, store.Shard("eu"))
		require.NoError(t, err)
		require.Equal(t, 1, page.Len())
		assert.Equal(t, 2, page.Window()[0].Value("id"))
		assert.True(t, now.Equal(page.Window()[0].Value("updated_at").(time.Time)))
	}
	assert.Equal(t, 1, cache.len())
	require.NoError(t, f.mock.ExpectationsWereMet())

	e := newAccount(t, map[string]any{"id": 2, "status": "banned"})
	f.mock.ExpectQuery(saveAccount).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "updated_at"}).
			AddRow(int64(2), "banned", now))
	require.NoError(t, f.store.Save(context.Background(), e))
	assert.Zero(t, cache.len(), "save invalidates the table")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

const listAccounts = "SELECT * FROM \"accounts\"\nLIMIT $1"

func accountRows(status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "status", "updated_at"}).AddRow(int64(1), status, now)
}

func TestUsingTx(t *testing.T) {
	t.Parallel()

	cache := newMemCache()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	drv := sql.OpenDB(dialect.Postgres, db)
	r, err := sqlt.New(dialect.Postgres)
	require.NoError(t, err)
	p, err := cursor.NewPager(token.NewCodec("secret"))
	require.NoError(t, err)
	s := store.New(drv, r, p, store.WithClock(func() time.Time { return now }), store.WithCache(cache, 0))

	mock.ExpectBegin()
	mock.ExpectQuery(saveAccount).WillReturnRows(accountRows("banned"))
	mock.ExpectQuery(listAccounts).WillReturnRows(accountRows("banned"))
	mock.ExpectQuery(listAccounts).WillReturnRows(accountRows("authorized"))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, newAccount(t, map[string]any{"id": 1, "status": "banned"}), store.Using(tx)))
	page, err := s.List(ctx, account, nil, store.Using(tx))
	require.NoError(t, err)
	assert.Equal(t, "banned", page.Window()[0].Value("status"))
	assert.Zero(t, cache.len(), "listings in a transaction are not cached")

	page, err = s.List(ctx, account, nil)
	require.NoError(t, err)
	assert.Equal(t, "authorized", page.Window()[0].Value("status"), "outside the transaction")
	assert.Equal(t, 1, cache.len())

	require.NoError(t, tx.Commit())
	s.Invalidate(ctx, account)
	assert.Zero(t, cache.len())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreTx(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	t.Run("commit", func(t *testing.T) {
		cache := newMemCache()
		f := newFixture(t, store.WithCache(cache, time.Minute))
		f.mock.ExpectBegin()
		f.mock.ExpectQuery(saveAccount).WillReturnRows(accountRows("banned"))
		f.mock.ExpectQuery(listAccounts).WillReturnRows(accountRows("authorized"))
		f.mock.ExpectCommit()

		tx, err := f.store.Tx(ctx)
		require.NoError(t, err)
		require.NoError(t, f.store.Save(ctx, newAccount(t, map[string]any{"id": 1, "status": "banned"}), store.Using(tx)))
		_, err = f.store.List(ctx, account, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, cache.len(), "a listing between write and commit caches the old rows")

		require.NoError(t, tx.Commit())
		assert.Zero(t, cache.len(), "commit drops the tables written in the transaction")
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		cache := newMemCache()
		f := newFixture(t, store.WithCache(cache, time.Minute))
		f.mock.ExpectBegin()
		f.mock.ExpectQuery(saveAccount).WillReturnRows(accountRows("banned"))
		f.mock.ExpectQuery(listAccounts).WillReturnRows(accountRows("authorized"))
		f.mock.ExpectRollback()

		tx, err := f.store.Tx(ctx)
		require.NoError(t, err)
		require.NoError(t, f.store.Save(ctx, newAccount(t, map[string]any{"id": 1, "status": "banned"}), store.Using(tx)))
		_, err = f.store.List(ctx, account, nil)
		require.NoError(t, err)

		require.NoError(t, tx.Rollback())
		assert.Equal(t, 1, cache.len(), "rolled back writes keep committed listings")
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("commit_error", func(t *testing.T) {
		cache := newMemCache()
		f := newFixture(t, store.WithCache(cache, time.Minute))
		f.mock.ExpectBegin()
		f.mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

		tx, err := f.store.Tx(ctx)
		require.NoError(t, err)
		assert.Error(t, tx.Commit())
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("unsupported", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectBegin()
		tx, err := f.store.Tx(ctx)
		require.NoError(t, err)

		_, err = store.New(tx, nil, nil).Tx(ctx)
		assert.True(t, consql.IsUsageError(err))
	})
}

func TestListCacheFillSurvivesCancel(t *testing.T) {
	t.Parallel()

	cache := newMemCache()
	f := newFixture(t, store.WithCache(cache, time.Minute))
	f.mock.ExpectQuery(listAccounts).WillReturnRows(accountRows("authorized"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page, err := f.store.List(ctx, account, nil)
	require.NoError(t, err, "the shared fill does not run on the caller's cancellation")
	assert.Equal(t, 1, page.Len())
	assert.Equal(t, 1, cache.len())
	require.NoError(t, f.mock.ExpectationsWereMet())
}
