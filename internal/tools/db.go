package tools

import (
	"database/sql"
	"embed"
	"io/fs"
	"path"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

//go:embed migration/*
var migrationFiles embed.FS

// ConnectSqlite opens the results database and applies the embedded migrations.
func ConnectSqlite(filePath string, l *logrus.Logger) (*sql.DB, error) {
	db, err := connectWithBackoff("sqlite3", filePath, 3, l)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer, and each :memory: connection is its own database
	db.SetMaxOpenConns(1)

	err = RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func RunMigrations(db *sql.DB) error {
	dirEntries, err := fs.ReadDir(migrationFiles, "migration")
	if err != nil {
		return err
	}
	for _, entry := range dirEntries {
		fileData, err := fs.ReadFile(migrationFiles, path.Join("migration", entry.Name()))
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(fileData)); err != nil {
			return err
		}
	}
	return nil
}

func connectWithBackoff(driver string, connStr string, maxRetries int, l *logrus.Logger) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i < maxRetries; i++ {
		db, err = sql.Open(driver, connStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				return db, nil
			}
			db.Close()
		}
		l.WithError(err).Warnf("Failed attempt %d to connect to %s", i+1, driver)
		if i < maxRetries-1 {
			time.Sleep(time.Duration(i+1) * (3 * time.Second))
		}
	}
	return nil, err
}
