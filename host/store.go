package host

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/gaborage/go-sitesettings/logger"
	"github.com/gaborage/go-sitesettings/multitenant"
	"github.com/gaborage/go-sitesettings/sitesettings"
)

// Supported tenant store drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
)

// Connection parameter keys read from a server declaration.
const (
	paramDriver      = "driver"
	paramHost        = "host"
	paramPort        = "port"
	paramUser        = "user"
	paramPass        = "pass"
	paramPassword    = "password"
	paramDBName      = "dbname"
	paramSSLMode     = "sslmode"
	paramTablePrefix = "table_prefix"
)

// StoreConfig configures the SQL tenant store.
type StoreConfig struct {
	Driver          string
	TablePrefix     string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// SQLStore reads tenant records from the database of the server a request
// resolved to. Each distinct server connection gets its own lazily opened pool.
type SQLStore struct {
	cfg  StoreConfig
	log  logger.Logger
	open func(driver, dsn string) (*sql.DB, error)

	mu    sync.Mutex
	pools map[string]*sql.DB
}

var _ TenantStore = (*SQLStore)(nil)

// NewSQLStore creates a store. Pools are opened on first use.
func NewSQLStore(cfg StoreConfig, log logger.Logger) *SQLStore {
	if cfg.Driver == "" {
		cfg.Driver = DriverMySQL
	}
	return &SQLStore{
		cfg:   cfg,
		log:   log,
		open:  openDB,
		pools: make(map[string]*sql.DB),
	}
}

// QueryTenantRecord looks the tenant up in the database of the resolved server.
func (s *SQLStore) QueryTenantRecord(ctx context.Context, tenantID int) (*TenantRecord, error) {
	res, ok := multitenant.ResolutionFrom(ctx)
	if !ok {
		return nil, ErrNoResolution
	}

	driver := s.driver(res.Server)
	db, err := s.pool(driver, res.Server)
	if err != nil {
		return nil, err
	}

	query, args, err := tenantQuery(driver, s.tablePrefix(res.Server), tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to build tenant query: %w", err)
	}

	var record TenantRecord
	err = db.QueryRowContext(ctx, query, args...).Scan(&record.ID, &record.Domain, &record.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant %d: %w", tenantID, err)
	}
	return &record, nil
}

// Close closes every pool the store opened.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for key, db := range s.pools {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.pools, key)
	}
	return errors.Join(errs...)
}

func (s *SQLStore) driver(server *sitesettings.ServerDeclaration) string {
	if d := server.StringSetting(paramDriver); d != "" {
		return d
	}
	return s.cfg.Driver
}

func (s *SQLStore) tablePrefix(server *sitesettings.ServerDeclaration) string {
	if p, ok := server.Setting(paramTablePrefix); ok && p != nil {
		return server.StringSetting(paramTablePrefix)
	}
	return s.cfg.TablePrefix
}

func (s *SQLStore) pool(driver string, server *sitesettings.ServerDeclaration) (*sql.DB, error) {
	dsn, err := DSN(driver, server)
	if err != nil {
		return nil, err
	}
	key := driver + "|" + dsn

	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.pools[key]; ok {
		return db, nil
	}

	db, err := s.open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s tenant store: %w", driver, err)
	}
	if s.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	}
	if s.cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)
	}
	s.pools[key] = db

	s.log.Info().
		Str("driver", driver).
		Str("host", server.StringSetting(paramHost)).
		Str("database", server.StringSetting(paramDBName)).
		Msg("Opened tenant store pool")
	return db, nil
}

func tenantQuery(driver, tablePrefix string, tenantID int) (string, []any, error) {
	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		placeholder = sq.Dollar
	}
	return sq.Select("blog_id", "domain", "path").
		From(tablePrefix + "blogs").
		Where(sq.Eq{"blog_id": tenantID}).
		PlaceholderFormat(placeholder).
		ToSql()
}

// DSN builds the data source name for a server's connection parameters.
func DSN(driver string, server *sitesettings.ServerDeclaration) (string, error) {
	password := server.StringSetting(paramPass)
	if password == "" {
		password = server.StringSetting(paramPassword)
	}

	switch driver {
	case DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.User = server.StringSetting(paramUser)
		cfg.Passwd = password
		cfg.Net = "tcp"
		cfg.Addr = hostAddr(server.StringSetting(paramHost), server.StringSetting(paramPort), "3306")
		cfg.DBName = server.StringSetting(paramDBName)
		return cfg.FormatDSN(), nil

	case DriverPostgres:
		host, port := splitAddr(server.StringSetting(paramHost), server.StringSetting(paramPort), "5432")
		parts := []string{
			"host=" + quoteDSN(host),
			"port=" + quoteDSN(port),
			"user=" + quoteDSN(server.StringSetting(paramUser)),
			"password=" + quoteDSN(password),
			"dbname=" + quoteDSN(server.StringSetting(paramDBName)),
		}
		if mode := server.StringSetting(paramSSLMode); mode != "" {
			parts = append(parts, "sslmode="+quoteDSN(mode))
		}
		return strings.Join(parts, " "), nil

	default:
		return "", fmt.Errorf("unsupported tenant store driver %q", driver)
	}
}

func openDB(driver, dsn string) (*sql.DB, error) {
	if driver == DriverPostgres {
		cfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, err
		}
		return stdlib.OpenDB(*cfg), nil
	}
	return sql.Open(driver, dsn)
}

// splitAddr separates an optional port from host, falling back to port and then def.
func splitAddr(host, port, def string) (string, string) {
	if h, p, err := net.SplitHostPort(host); err == nil {
		return h, p
	}
	if port == "" {
		port = def
	}
	if _, err := strconv.Atoi(port); err != nil {
		port = def
	}
	return host, port
}

func hostAddr(host, port, def string) string {
	if host == "" {
		host = "localhost"
	}
	h, p := splitAddr(host, port, def)
	return net.JoinHostPort(h, p)
}

// quoteDSN quotes a value for a libpq keyword/value connection string.
func quoteDSN(value string) string {
	if value == "" {
		return "''"
	}

	plain := true
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') &&
			(r < '0' || r > '9') && r != '.' && r != '_' && r != '-' {
			plain = false
			break
		}
	}
	if plain {
		return value
	}

	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "'", `\'`)
	return "'" + escaped + "'"
}
