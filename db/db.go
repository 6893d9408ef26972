package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// Db is the global database connection object
	Db *gorm.DB
	// Path is the default path to the SQLite database file
	Path = filepath.Join(os.Getenv("HOME"), ".unihub/device.db")
)

// InitDB initializes the database by creating the necessary directory,
// opening the database connection, migrating tables, and configuring the logger.
func InitDB() error {
	if err := createDBDirectory(); err != nil {
		return err
	}

	if err := openDatabase(); err != nil {
		return err
	}

	if err := migrateTables(); err != nil {
		return err
	}

	configureLogger()

	log.Info().Str("path", Path).Msg("Database initialized successfully")
	return nil
}

// GetDB returns the global connection opened by InitDB.
func GetDB() *gorm.DB { return Db }

// createDBDirectory creates the directory for the database file if it does not exist.
func createDBDirectory() error {
	dir := filepath.Dir(Path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error().Err(err).Msg("Failed to create database directory")
			return err
		}
	}
	return nil
}

func openDatabase() error {
	var err error
	Db, err = gorm.Open(sqlite.Open(Path), &gorm.Config{})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize database")
		return err
	}
	return nil
}

// Migrate creates the key/value table on an arbitrary connection.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	return conn.AutoMigrate(&Entry{})
}

func migrateTables() error {
	if err := Migrate(Db); err != nil {
		log.Error().Err(err).Msg("Failed to auto-migrate database")
		return err
	}
	return nil
}

// configureLogger silences GORM unless zerolog is enabled.
func configureLogger() {
	if zerolog.GlobalLevel() == zerolog.Disabled {
		Db.Logger = Db.Logger.LogMode(logger.Silent)
	} else {
		Db.Logger = Db.Logger.LogMode(logger.Info)
	}
}

// CloseDB closes the database connection.
func CloseDB() error {
	if Db == nil {
		return nil
	}
	sqlDB, err := Db.DB()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get raw database connection")
		return err
	}
	return sqlDB.Close()
}
