package configlibsql

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const (
	defaultBusyTimeoutMs = 5000
	// connections in the pool of a local database, sqlite still allows one
	// writer at a time
	maxOpenConns = 8
)

// Struct is the database section of a config file. Either File (a local
// sqlite database, ":memory:" included) or Url (a remote libsql database)
// must be set, Url wins when both are.
type Struct struct {
	File          string `json:"file"`
	Url           string `json:"url"`
	AuthToken     string `json:"auth_token"`
	BusyTimeoutMs int    `json:"busy_timeout_ms"`
}

func (config Struct) OpenDB() (*sql.DB, error) {
	if config.Url != "" {
		return config.openRemote()
	}
	if config.File == "" {
		return nil, fmt.Errorf("a database path or url was not specified")
	}

	busyTimeout := config.BusyTimeoutMs
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeoutMs
	}

	if config.File == ":memory:" {
		db, err := sql.Open("sqlite", ":memory:")
		if err != nil {
			return nil, err
		}
		// every connection to :memory: is its own database
		db.SetMaxOpenConns(1)
		_, err = db.Exec("PRAGMA foreign_keys = ON")
		if err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}

	dbpath, err := filepath.Abs(config.File)
	if err != nil {
		return nil, err
	}
	err = os.MkdirAll(filepath.Dir(dbpath), 0755)
	if err != nil {
		return nil, err
	}

	// WAL lets readers proceed while a transaction is open. Transactions
	// begin immediate so concurrent writers wait on busy_timeout for the
	// write lock instead of failing with SQLITE_BUSY on upgrade.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate",
		dbpath, busyTimeout,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpenConns)
	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (config Struct) openRemote() (*sql.DB, error) {
	link, err := url.Parse(config.Url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if config.AuthToken != "" {
		query := link.Query()
		query.Set("authToken", config.AuthToken)
		link.RawQuery = query.Encode()
	}
	return sql.Open("libsql", link.String())
}
