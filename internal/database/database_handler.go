package database

import (
	"fmt"
	"strings"
	"time"

	"blocksync/internal/domain"
	"blocksync/internal/support"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqliteBusyTimeoutMs = 5000

type Config struct {
	ExistingDB  *gorm.DB
	Dialector   gorm.Dialector
	Logger      logger.Interface
	AutoMigrate bool
	Migrations  []any
}

type Option func(*Config)

// SetupDB opens the store at location (a SQLite path/DSN or a postgres:// URL),
// creates the schema and applies backend specific settings.
func SetupDB(location string, opts ...Option) (*gorm.DB, error) {
	cfg := defaultConfig(location)
	for _, opt := range opts {
		opt(&cfg)
	}

	var db *gorm.DB
	switch {
	case cfg.ExistingDB != nil:
		db = cfg.ExistingDB
	case cfg.Dialector != nil:
		gormCfg := &gorm.Config{}
		if cfg.Logger != nil {
			gormCfg.Logger = cfg.Logger
		}
		opened, err := gorm.Open(cfg.Dialector, gormCfg)
		if err != nil {
			return nil, fmt.Errorf("database: open connection: %w", err)
		}
		db = opened
	default:
		return nil, fmt.Errorf("database: no dialector or existing connection provided")
	}

	if err := configureBackend(db); err != nil {
		return nil, err
	}

	if cfg.AutoMigrate && len(cfg.Migrations) > 0 {
		if err := db.AutoMigrate(cfg.Migrations...); err != nil {
			return nil, fmt.Errorf("database: auto migrate: %w", err)
		}
		log.Debug("Database migration completed.", "backend", db.Dialector.Name())
	}

	return db, nil
}

// DialectorFor picks the gorm dialector matching the store location.
func DialectorFor(location string) gorm.Dialector {
	lower := strings.ToLower(location)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return postgres.Open(location)
	}
	return sqlite.Open(location)
}

func defaultConfig(location string) Config {
	cfg := Config{
		Logger:      silentLogger(),
		AutoMigrate: true,
		Migrations:  defaultMigrations(),
	}
	if location != "" {
		cfg.Dialector = DialectorFor(location)
	}
	return cfg
}

func silentLogger() logger.Interface {
	return QueryLogger(false)
}

// QueryLogger bridges gorm's logger onto the process logger. verbose logs
// every statement; otherwise gorm stays silent.
func QueryLogger(verbose bool) logger.Interface {
	level := logger.Silent
	if verbose {
		level = logger.Info
	}
	return logger.New(
		log.Default(),
		logger.Config{
			LogLevel:                  level,
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
		},
	)
}

func defaultMigrations() []any {
	return []any{
		domain.BlockRecord{},
	}
}

type poolSettings struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

func poolSettingsFromEnv() poolSettings {
	maxOpen := support.GetEnvInt("DB_MAX_OPEN_CONNS", 4)
	maxIdle := support.GetEnvInt("DB_MAX_IDLE_CONNS", maxOpen)
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	return poolSettings{
		MaxOpen:     maxOpen,
		MaxIdle:     maxIdle,
		MaxLifetime: time.Duration(support.GetEnvInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second,
		MaxIdleTime: time.Duration(support.GetEnvInt("DB_CONN_MAX_IDLE_TIME", 60)) * time.Second,
	}
}

// configureBackend applies per-dialect connection settings. Postgres pools are
// sized from DB_* env vars. SQLite gets WAL journaling, a busy timeout and a
// single connection so that this process is the only writer.
func configureBackend(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database: get sql.DB: %w", err)
	}

	if db.Dialector.Name() != "sqlite" {
		pool := poolSettingsFromEnv()
		if pool.MaxOpen > 0 {
			sqlDB.SetMaxOpenConns(pool.MaxOpen)
		}
		if pool.MaxIdle >= 0 {
			sqlDB.SetMaxIdleConns(pool.MaxIdle)
		}
		if pool.MaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(pool.MaxLifetime)
		}
		if pool.MaxIdleTime > 0 {
			sqlDB.SetConnMaxIdleTime(pool.MaxIdleTime)
		}
		return nil
	}

	sqlDB.SetMaxOpenConns(1)

	stmts := []string{
		`PRAGMA journal_mode = wal`,
		fmt.Sprintf(`PRAGMA busy_timeout = %d`, sqliteBusyTimeoutMs),
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("database: %s: %w", stmt, err)
		}
	}
	return nil
}

func WithExistingDB(db *gorm.DB) Option {
	return func(cfg *Config) {
		cfg.ExistingDB = db
	}
}

func WithDialector(d gorm.Dialector) Option {
	return func(cfg *Config) {
		cfg.Dialector = d
	}
}

func WithLogger(l logger.Interface) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

func WithAutoMigrate(enabled bool) Option {
	return func(cfg *Config) {
		cfg.AutoMigrate = enabled
	}
}

func WithMigrations(models ...any) Option {
	return func(cfg *Config) {
		if len(models) == 0 {
			cfg.Migrations = nil
			return
		}
		cfg.Migrations = append([]any(nil), models...)
	}
}
