package database

import (
	"fmt"

	"vizmigrate/pkg/types"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EnsureSchema creates the slices table if it doesn't exist. Existing tables
// are left as they are; only missing columns and indexes are added.
func EnsureSchema(db *gorm.DB) error {
	exists, err := CheckTableExists(db, types.Slice{}.TableName())
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(&types.Slice{}); err != nil {
		return fmt.Errorf("failed to migrate slices schema: %w", err)
	}

	if exists {
		logrus.Infof("Table %s already exists, schema checked", types.Slice{}.TableName())
	} else {
		logrus.Infof("Table %s created", types.Slice{}.TableName())
	}
	return nil
}

// CheckTableExists checks if a table exists in the database
func CheckTableExists(db *gorm.DB, tableName string) (bool, error) {
	if db == nil {
		return false, fmt.Errorf("no database connection")
	}
	return db.Migrator().HasTable(tableName), nil
}
