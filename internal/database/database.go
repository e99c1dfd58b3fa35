package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"roommap/server/internal/models"
)

var ErrInvalidListing = errors.New("invalid listing")

// Database stores fetched listings and the favorites set.
type Database struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewDatabase opens (or creates) the SQLite database at dbPath. Use ":memory:" for
// a throwaway store.
func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on&_busy_timeout=5000"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return &Database{db: db, logger: logger}, nil
}

// RunMigrations creates or updates the listings and favorites tables.
func (d *Database) RunMigrations() error {
	if err := d.db.AutoMigrate(&models.PropertyRecord{}, &models.Favorite{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// GetDB exposes the handle for transactional callers.
func (d *Database) GetDB() *gorm.DB {
	return d.db
}

// Transaction runs fc inside a database transaction.
func (d *Database) Transaction(fc func(tx *gorm.DB) error) error {
	return d.db.Transaction(fc)
}

// UpsertListings inserts the records or replaces the stored copy of each one.
func UpsertListings(tx *gorm.DB, records []*models.PropertyRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now()
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: missing id at address %q", ErrInvalidListing, r.Address)
		}
		r.UpdatedAt = now
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		UpdateAll: true,
	}).CreateInBatches(records, 200).Error
}

// UpsertListings is the non-transactional form of the package function.
func (d *Database) UpsertListings(records []*models.PropertyRecord) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		return UpsertListings(tx, records)
	})
}

// AllListings returns every stored listing, oldest first.
func (d *Database) AllListings() ([]models.PropertyRecord, error) {
	var records []models.PropertyRecord
	if err := d.db.Order("rowid").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load listings: %w", err)
	}
	return records, nil
}

// SetFavorite adds or removes a listing from the favorites set.
func (d *Database) SetFavorite(listingID string, favorite bool) error {
	if listingID == "" {
		return errors.New("empty listing id")
	}
	if !favorite {
		return d.db.Delete(&models.Favorite{}, "listing_id = ?", listingID).Error
	}
	return d.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Favorite{ListingID: listingID, CreatedAt: time.Now()}).Error
}

// FavoriteIDs returns the favorites set.
func (d *Database) FavoriteIDs() (map[string]struct{}, error) {
	var ids []string
	if err := d.db.Model(&models.Favorite{}).Pluck("listing_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsRetryable reports whether a failed write may succeed when tried again. Lock
// contention is retryable; constraint violations and malformed data are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidListing) {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return true
}
