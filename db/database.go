package db

import (
	"database/sql"
	"fmt"
	"time"

	"trackmarket/config"
	"trackmarket/logger"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// DSN builds the MySQL connection string shared by database/sql and GORM.
func DSN(cfg *config.Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	var err error
	DB, err = sql.Open("mysql", DSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxIdleConns(10)
	DB.SetMaxOpenConns(50)
	DB.SetConnMaxLifetime(time.Hour)

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Successfully connected to the database.")
	return nil
}

// InitDB creates the tables owned by the SQL repositories. Users are migrated
// by GORM, see AutoMigrateModels.
func InitDB() error {
	for name, query := range map[string]string{
		"accounts":     createAccountsTable,
		"tracks":       createTracksTable,
		"transactions": createTransactionsTable,
	} {
		if _, err := DB.Exec(query); err != nil {
			return fmt.Errorf("failed to create %s table: %w", name, err)
		}
	}
	logger.Info("Database schema ensured.")
	return nil
}

const createAccountsTable = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id BIGINT PRIMARY KEY,
	available BIGINT NOT NULL DEFAULT 0,
	updated_at DATETIME(3) NOT NULL,
	CONSTRAINT chk_available_non_negative CHECK (available >= 0)
);`

const createTracksTable = `
CREATE TABLE IF NOT EXISTS tracks (
	id VARCHAR(64) PRIMARY KEY,
	user_id BIGINT NOT NULL,
	title VARCHAR(255) NOT NULL,
	artist VARCHAR(255) NOT NULL DEFAULT '',
	genre VARCHAR(100) NOT NULL DEFAULT '',
	file_name VARCHAR(255) NOT NULL DEFAULT '',
	file_size BIGINT NOT NULL DEFAULT 0,
	duration_sec INT NOT NULL DEFAULT 0,
	price BIGINT NOT NULL,
	status VARCHAR(16) NOT NULL,
	object_key VARCHAR(767) NOT NULL DEFAULT '',
	cdn_url VARCHAR(1024) NOT NULL DEFAULT '',
	created_at DATETIME(3) NOT NULL,
	updated_at DATETIME(3) NOT NULL,
	sold_at DATETIME(3) NULL,
	INDEX idx_tracks_user_status (user_id, status)
);`

const createTransactionsTable = `
CREATE TABLE IF NOT EXISTS transactions (
	id VARCHAR(64) PRIMARY KEY,
	user_id BIGINT NOT NULL,
	type VARCHAR(16) NOT NULL,
	amount BIGINT NOT NULL,
	status VARCHAR(16) NOT NULL,
	description VARCHAR(512) NOT NULL DEFAULT '',
	method VARCHAR(16) NOT NULL DEFAULT '',
	bank VARCHAR(100) NOT NULL DEFAULT '',
	account VARCHAR(100) NOT NULL DEFAULT '',
	track_id VARCHAR(64) NOT NULL DEFAULT '',
	attempts INT NOT NULL DEFAULT 0,
	created_at DATETIME(3) NOT NULL,
	completed_at DATETIME(3) NULL,
	INDEX idx_tx_user_created (user_id, created_at),
	INDEX idx_tx_status_type (status, type)
);`
