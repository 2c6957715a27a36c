package host

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-sitesettings/logger"
	"github.com/gaborage/go-sitesettings/multitenant"
	"github.com/gaborage/go-sitesettings/sitesettings"
)

const storeSource = `site_settings:
  servers:
    - host: db.prod:3307
      user: wp
      pass: "s3cret pass"
      dbname: wordpress
      sites:
        "https://example.com": 1
    - driver: pgx
      host: pg.staging
      user: wp
      password: it's
      dbname: wp
      sslmode: disable
      table_prefix: stg_
      sites:
        "https://staging.example.com": 1
`

func resolvedContext(t *testing.T, requestURL string) (context.Context, *multitenant.Resolution) {
	t.Helper()
	model, err := sitesettings.Parse([]byte(storeSource))
	require.NoError(t, err)
	res, ok := multitenant.Resolve(model, requestURL)
	require.True(t, ok)
	return multitenant.WithResolution(context.Background(), res), res
}

func newMockStore(t *testing.T, cfg StoreConfig) (*SQLStore, sqlmock.Sqlmock, *[]string) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	var opened []string
	store := NewSQLStore(cfg, logger.New("disabled", true))
	store.open = func(driver, dsn string) (*sql.DB, error) {
		opened = append(opened, driver+" "+dsn)
		return db, nil
	}
	return store, mock, &opened
}

func TestSQLStoreQueryTenantRecordMySQL(t *testing.T) {
	store, mock, opened := newMockStore(t, StoreConfig{TablePrefix: "wp_"})
	ctx, _ := resolvedContext(t, "https://example.com/")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT blog_id, domain, path FROM wp_blogs WHERE blog_id = ?")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"blog_id", "domain", "path"}).AddRow(2, "example.com", "/blog/"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT blog_id, domain, path FROM wp_blogs WHERE blog_id = ?")).
		WithArgs(9).
		WillReturnError(sql.ErrNoRows)

	record, err := store.QueryTenantRecord(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, &TenantRecord{ID: 2, Domain: "example.com", Path: "/blog/"}, record)

	record, err = store.QueryTenantRecord(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, record)

	// The pool is reused across lookups on the same server.
	assert.Len(t, *opened, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreQueryTenantRecordPostgresPrefixOverride(t *testing.T) {
	store, mock, opened := newMockStore(t, StoreConfig{Driver: DriverMySQL, TablePrefix: "wp_"})
	ctx, _ := resolvedContext(t, "https://staging.example.com/")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT blog_id, domain, path FROM stg_blogs WHERE blog_id = $1")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"blog_id", "domain", "path"}).AddRow(3, "staging.example.com", "/shop/"))

	record, err := store.QueryTenantRecord(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "/shop/", record.Path)

	require.Len(t, *opened, 1)
	assert.Equal(t, "pgx host=pg.staging port=5432 user=wp password='it\\'s' dbname=wp sslmode=disable", (*opened)[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreQueryTenantRecordPostgresDefault(t *testing.T) {
	store, mock, _ := newMockStore(t, StoreConfig{Driver: DriverPostgres, TablePrefix: "wp_"})
	ctx, _ := resolvedContext(t, "https://example.com/")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT blog_id, domain, path FROM wp_blogs WHERE blog_id = $1")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"blog_id", "domain", "path"}).AddRow(2, "example.com", "/blog/"))

	record, err := store.QueryTenantRecord(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, &TenantRecord{ID: 2, Domain: "example.com", Path: "/blog/"}, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantQueryPlaceholders(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{driver: DriverMySQL, want: "SELECT blog_id, domain, path FROM wp_blogs WHERE blog_id = ?"},
		{driver: DriverPostgres, want: "SELECT blog_id, domain, path FROM wp_blogs WHERE blog_id = $1"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			query, args, err := tenantQuery(tt.driver, "wp_", 2)
			require.NoError(t, err)
			assert.Equal(t, tt.want, query)
			assert.Equal(t, []any{2}, args)
		})
	}
}

func TestSQLStoreQueryError(t *testing.T) {
	store, mock, _ := newMockStore(t, StoreConfig{TablePrefix: "wp_"})
	ctx, _ := resolvedContext(t, "https://example.com/")

	boom := errors.New("connection refused")
	mock.ExpectQuery("SELECT").WillReturnError(boom)

	_, err := store.QueryTenantRecord(ctx, 2)
	assert.ErrorIs(t, err, boom)
}

func TestSQLStoreRequiresResolution(t *testing.T) {
	store := NewSQLStore(StoreConfig{}, logger.New("disabled", true))
	_, err := store.QueryTenantRecord(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNoResolution)
}

func TestSQLStoreClose(t *testing.T) {
	store, mock, _ := newMockStore(t, StoreConfig{TablePrefix: "wp_"})
	ctx, _ := resolvedContext(t, "https://example.com/")

	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrNoRows)
	mock.ExpectClose()

	_, err := store.QueryTenantRecord(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDSNMySQL(t *testing.T) {
	_, res := resolvedContext(t, "https://example.com/")

	dsn, err := DSN(DriverMySQL, res.Server)
	require.NoError(t, err)

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "wp", parsed.User)
	assert.Equal(t, "s3cret pass", parsed.Passwd)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "db.prod:3307", parsed.Addr)
	assert.Equal(t, "wordpress", parsed.DBName)
}

func TestDSNUnsupportedDriver(t *testing.T) {
	_, res := resolvedContext(t, "https://example.com/")
	_, err := DSN("oracle", res.Server)
	assert.Error(t, err)
}

func TestQuoteDSN(t *testing.T) {
	tests := map[string]string{
		"":           "''",
		"plain_db-1": "plain_db-1",
		"with space": "'with space'",
		`back\slash`: `'back\\slash'`,
	}
	for in, want := range tests {
		assert.Equal(t, want, quoteDSN(in), in)
	}
}
