// Package postgres keeps step records in a PostgreSQL table, one row per
// (run, node) pair.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/lib/pq"
	"github.com/spf13/cast"

	"github.com/warriorguo/graphflow/store"
)

var _ store.Store = &recordStore{}

const (
	DefaultTable          = "graphflow_step_records"
	defaultConnectTimeout = 5 * time.Second
)

var (
	tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)
	sslModes  = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
)

// Config describes where the record table lives.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Table is created on open when missing. Defaults to DefaultTable.
	Table string
	// MaxOpenConns caps the pool, 0 leaves database/sql's default.
	MaxOpenConns int
	// ConnectTimeout bounds the first ping.
	ConnectTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           5432,
		User:           "postgres",
		Password:       "postgres",
		Database:       "graphflow",
		SSLMode:        "disable",
		Table:          DefaultTable,
		ConnectTimeout: defaultConnectTimeout,
	}
}

// Validate fills in the optional fields and checks the rest.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.NotValidf("empty host")
	case c.Port <= 0 || c.Port > 65535:
		return errors.NotValidf("port %d", c.Port)
	case c.User == "":
		return errors.NotValidf("empty user")
	case c.Database == "":
		return errors.NotValidf("empty database")
	case c.MaxOpenConns < 0:
		return errors.NotValidf("max open conns %d", c.MaxOpenConns)
	}

	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if !contains(sslModes, c.SSLMode) {
		return errors.NotValidf("sslmode %q", c.SSLMode)
	}
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if !tableName.MatchString(c.Table) {
		return errors.NotValidf("table name %q", c.Table)
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	return nil
}

// DSN renders c as a libpq key/value connection string.
func (c *Config) DSN() string {
	pairs := []struct{ k, v string }{
		{"host", c.Host},
		{"port", cast.ToString(c.Port)},
		{"user", c.User},
		{"password", c.Password},
		{"dbname", c.Database},
		{"sslmode", c.SSLMode},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.v == "" {
			continue
		}
		parts = append(parts, p.k+"="+quoteValue(p.v))
	}
	return strings.Join(parts, " ")
}

// ParseDSN reads either a key/value connection string
// ("host=db port=5432 password='a b'") or a postgres:// URL. Keys it
// does not know are ignored; missing ones keep their DefaultConfig value.
func ParseDSN(dsn string) (*Config, error) {
	dsn = strings.TrimSpace(dsn)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		converted, err := pq.ParseURL(dsn)
		if err != nil {
			return nil, errors.NewNotValid(err, "postgres url")
		}
		dsn = converted
	}

	pairs, err := splitConnString(dsn)
	if err != nil {
		return nil, errors.Trace(err)
	}

	config := DefaultConfig()
	for key, value := range pairs {
		switch key {
		case "host":
			config.Host = value
		case "port":
			port, err := cast.ToIntE(value)
			if err != nil {
				return nil, errors.NotValidf("port %q", value)
			}
			config.Port = port
		case "user":
			config.User = value
		case "password":
			config.Password = value
		case "dbname":
			config.Database = value
		case "sslmode":
			config.SSLMode = value
		case "connect_timeout":
			secs, err := cast.ToIntE(value)
			if err != nil {
				return nil, errors.NotValidf("connect_timeout %q", value)
			}
			config.ConnectTimeout = time.Duration(secs) * time.Second
		}
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return config, nil
}

// statements are rendered once per table.
type statements struct {
	migrate string
	get     string
	upsert  string
	remove  string
	list    string
}

func newStatements(table string) statements {
	return statements{
		migrate: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_path TEXT NOT NULL,
	node_id  TEXT NOT NULL,
	record   BYTEA NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_path, node_id)
)`, table),
		get: fmt.Sprintf(`SELECT record FROM %s WHERE run_path = $1 AND node_id = $2`, table),
		upsert: fmt.Sprintf(`INSERT INTO %s (run_path, node_id, record) VALUES ($1, $2, $3)
ON CONFLICT (run_path, node_id) DO UPDATE SET record = EXCLUDED.record, saved_at = now()`, table),
		remove: fmt.Sprintf(`DELETE FROM %s WHERE run_path = $1 AND node_id = $2`, table),
		list:   fmt.Sprintf(`SELECT node_id FROM %s WHERE run_path = $1 ORDER BY node_id`, table),
	}
}

type recordStore struct {
	db    *sql.DB
	stmts statements
	// owned is false when the pool was handed in by the caller.
	owned bool
}

// NewPostgresStore connects with config, or DefaultConfig when nil, and
// creates the record table.
func NewPostgresStore(config *Config) (store.Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Annotatef(err, "postgres config")
	}

	connector, err := pq.NewConnector(config.DSN())
	if err != nil {
		return nil, errors.Annotatef(err, "postgres connector")
	}
	db := sql.OpenDB(connector)
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "ping postgres at %s:%d", config.Host, config.Port)
	}

	s := &recordStore{db: db, stmts: newStatements(config.Table), owned: true}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, errors.Trace(err)
	}
	return s, nil
}

func NewPostgresStoreFromDSN(dsn string) (store.Store, error) {
	config, err := ParseDSN(dsn)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewPostgresStore(config)
}

// NewPostgresStoreWithDB uses an existing pool, which Close leaves open.
// An empty table selects DefaultTable.
func NewPostgresStoreWithDB(ctx context.Context, db *sql.DB, table string) (store.Store, error) {
	if db == nil {
		return nil, errors.NotValidf("nil db")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, errors.NotValidf("table name %q", table)
	}

	s := &recordStore{db: db, stmts: newStatements(table)}
	if err := s.migrate(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	return s, nil
}

func (s *recordStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.stmts.migrate); err != nil {
		return errors.Annotatef(err, "create record table")
	}
	return nil
}

func (s *recordStore) Get(ctx context.Context, runPath, nodeID string) ([]byte, error) {
	var record []byte
	err := s.db.QueryRowContext(ctx, s.stmts.get, runPath, nodeID).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "load record %s/%s", runPath, nodeID)
	}
	return record, nil
}

func (s *recordStore) Set(ctx context.Context, runPath, nodeID string, record []byte) error {
	if record == nil {
		record = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, s.stmts.upsert, runPath, nodeID, record); err != nil {
		return errors.Annotatef(err, "save record %s/%s", runPath, nodeID)
	}
	return nil
}

func (s *recordStore) Remove(ctx context.Context, runPath, nodeID string) error {
	if _, err := s.db.ExecContext(ctx, s.stmts.remove, runPath, nodeID); err != nil {
		return errors.Annotatef(err, "remove record %s/%s", runPath, nodeID)
	}
	return nil
}

func (s *recordStore) List(ctx context.Context, runPath string, iterator func(nodeID string) bool) error {
	rows, err := s.db.QueryContext(ctx, s.stmts.list, runPath)
	if err != nil {
		return errors.Annotatef(err, "list records of %s", runPath)
	}
	defer rows.Close()

	for rows.Next() {
		var nodeID string
		if err := rows.Scan(&nodeID); err != nil {
			return errors.Trace(err)
		}
		if !iterator(nodeID) {
			return nil
		}
	}
	return errors.Trace(rows.Err())
}

func (s *recordStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// quoteValue quotes v the way libpq expects when it holds spaces,
// quotes or backslashes.
func quoteValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// splitConnString parses key=value pairs. Values may be single-quoted,
// and a backslash escapes the next character either way.
func splitConnString(s string) (map[string]string, error) {
	pairs := make(map[string]string)
	r := []rune(s)
	i := 0
	skipSpace := func() {
		for i < len(r) && (r[i] == ' ' || r[i] == '\t' || r[i] == '\n') {
			i++
		}
	}

	for {
		skipSpace()
		if i >= len(r) {
			return pairs, nil
		}

		start := i
		for i < len(r) && r[i] != '=' && r[i] != ' ' {
			i++
		}
		key := string(r[start:i])
		skipSpace()
		if i >= len(r) || r[i] != '=' {
			return nil, errors.NotValidf("connection string: missing '=' after %q", key)
		}
		i++
		skipSpace()

		var value strings.Builder
		if i < len(r) && r[i] == '\'' {
			i++
			closed := false
			for i < len(r) {
				c := r[i]
				i++
				if c == '\\' && i < len(r) {
					value.WriteRune(r[i])
					i++
					continue
				}
				if c == '\'' {
					closed = true
					break
				}
				value.WriteRune(c)
			}
			if !closed {
				return nil, errors.NotValidf("connection string: unterminated quote for %q", key)
			}
		} else {
			for i < len(r) && r[i] != ' ' && r[i] != '\t' && r[i] != '\n' {
				if r[i] == '\\' && i+1 < len(r) {
					i++
				}
				value.WriteRune(r[i])
				i++
			}
		}
		pairs[key] = value.String()
	}
}
