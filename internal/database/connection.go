package database

import (
	"fmt"
	"net/url"
	"time"

	"vizmigrate/pkg/types"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the metadata database holding the slices table
func Connect(config *types.Database) (*gorm.DB, error) {
	dialector, err := dialectorFor(config)
	if err != nil {
		return nil, err
	}

	// SQL goes through logrus so it lands in the log file, not on stdout.
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(logrus.StandardLogger(), gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", config.Type, err)
	}

	logrus.Infof("Connected to %s database: %s", config.Type, describe(config))
	return db, nil
}

func dialectorFor(config *types.Database) (gorm.Dialector, error) {
	switch config.Type {
	case "mysql":
		return mysql.Open(buildDSN(config)), nil
	case "postgres":
		return postgres.Open(buildDSN(config)), nil
	case "sqlserver":
		return sqlserver.Open(buildDSN(config)), nil
	case "sqlite":
		return sqlite.Open(buildDSN(config)), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", config.Type)
	}
}

// buildDSN constructs the driver connection string for the configured type
func buildDSN(config *types.Database) string {
	port := config.Port
	if port == 0 {
		port = defaultPort(config.Type)
	}

	switch config.Type {
	case "postgres":
		sslMode := config.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			config.Host, port, config.User, config.Password, config.Name, sslMode)
	case "sqlserver":
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(config.User, config.Password),
			Host:     fmt.Sprintf("%s:%d", config.Host, port),
			RawQuery: url.Values{"database": {config.Name}}.Encode(),
		}
		return u.String()
	case "sqlite":
		return config.Path
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			config.User,
			config.Password,
			config.Host,
			port,
			config.Name,
		)
	}
}

func defaultPort(dbType string) int {
	switch dbType {
	case "postgres":
		return 5432
	case "sqlserver":
		return 1433
	default:
		return 3306
	}
}

// describe names the database without credentials, for logs
func describe(config *types.Database) string {
	if config.Type == "sqlite" {
		return config.Path
	}
	return fmt.Sprintf("%s@%s/%s", config.User, config.Host, config.Name)
}

// TestConnection tests the database connection
func TestConnection(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// CloseConnection closes the database connection
func CloseConnection(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}
