package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"server-catalog/pkg/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and addresses the backing database.
type Options struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type DB struct {
	*bun.DB
}

func NewDB(opts Options) (*DB, error) {
	var db *bun.DB

	switch opts.Driver {
	case DriverPostgres:
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			opts.User,
			opts.Password,
			opts.Host,
			opts.Port,
			opts.DBName,
			opts.SSLMode,
		)
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverSQLite, "":
		path := opts.Path
		if path == "" {
			path = "catalog.db"
		}
		sqldb, err := sql.Open("sqlite3", path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// One connection serializes writers and keeps in-memory databases alive.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Debug("Database opened", "driver", opts.Driver)

	return &DB{db}, nil
}

// NewMemoryDB opens a private in-memory SQLite database with the schema
// already created.
func NewMemoryDB(ctx context.Context) (*DB, error) {
	db, err := NewDB(Options{
		Driver: DriverSQLite,
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *DB) InitSchema(ctx context.Context) error {
	tables := []interface{}{
		(*models.LogicalRow)(nil),
		(*models.StatusRow)(nil),
		(*models.EndpointRow)(nil),
		(*models.OverrideRow)(nil),
		(*models.MetadataRow)(nil),
	}
	for _, model := range tables {
		_, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []struct {
		model  interface{}
		name   string
		column string
	}{
		{(*models.LogicalRow)(nil), "logicals_tier_idx", "tier"},
		{(*models.EndpointRow)(nil), "endpoints_logical_id_idx", "logical_id"},
		{(*models.OverrideRow)(nil), "endpoint_overrides_logical_id_idx", "logical_id"},
	}
	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.column).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}
