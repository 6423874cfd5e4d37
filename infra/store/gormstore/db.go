// Package gormstore implements the hub's durable stores on GORM over SQLite.
package gormstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/webitel/im-chat-hub/internal/domain/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to dsn and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open %s: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gormstore: pool: %w", err)
	}
	// [SINGLE_WRITER] SQLite serializes writes; ":memory:" is also per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Entities()...); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return db, nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// wrap maps GORM failures onto the hub error taxonomy.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.NewNotFoundError(strings.TrimPrefix(op, "find ") + " not found")
	}
	return model.NewPersistenceError("store unavailable", fmt.Errorf("%s: %w", op, err))
}
