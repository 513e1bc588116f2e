package modstore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Opens a database connection pool from a URL-ish string.
//
// Supported forms are "sqlite://<path>", "sqlite=<path>", "postgres://..." (or "postgresql://..."), and "postgres=<dsn>". SQLite is always limited to a single open connection.
func SetupDatabase(dburl string, maxConnections int, logger *slog.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var dial gorm.Dialector

	isSqlite := false
	openConns := maxConnections
	var sqlitePath string
	if strings.HasPrefix(dburl, "sqlite://") {
		sqlitePath = dburl[len("sqlite://"):]
		isSqlite = true
	} else if strings.HasPrefix(dburl, "sqlite=") {
		sqlitePath = dburl[len("sqlite="):]
		isSqlite = true
	} else if strings.HasPrefix(dburl, "postgresql://") || strings.HasPrefix(dburl, "postgres://") {
		// can pass entire URL, with prefix, to gorm driver
		dial = postgres.Open(dburl)
	} else if strings.HasPrefix(dburl, "postgres=") {
		dial = postgres.Open(dburl[len("postgres="):])
	} else {
		// don't echo the URL back, it may contain a password
		return nil, fmt.Errorf("unsupported or unrecognized database URL scheme")
	}

	if isSqlite {
		// in-memory databases have no directory to create
		if !strings.Contains(sqlitePath, ":memory:") && !strings.Contains(sqlitePath, "mode=memory") {
			if err := os.MkdirAll(filepath.Dir(sqlitePath), os.ModePerm); err != nil {
				return nil, fmt.Errorf("creating sqlite directory: %w", err)
			}
		}
		dial = sqlite.Open(sqlitePath)
		openConns = 1
	}

	db, err := gorm.Open(dial, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 slogGorm.New(slogGorm.WithLogger(logger.With("component", "gorm"))),
	})
	if err != nil {
		return nil, err
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	if openConns <= 0 {
		openConns = 1
	}
	sqldb.SetMaxIdleConns(openConns)
	sqldb.SetMaxOpenConns(openConns)
	sqldb.SetConnMaxIdleTime(time.Hour)

	if isSqlite {
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("PRAGMA synchronous=normal;").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("PRAGMA busy_timeout=10000;").Error; err != nil {
			return nil, err
		}
	}

	return db, nil
}

// Creates or updates all tables and indexes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(allModels...)
}
