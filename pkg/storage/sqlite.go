package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/amosWeiskopf/sitescribe/internal/models"
)

// PageRow is the database form of a page record. The nested parts of the
// record are stored as JSON columns.
type PageRow struct {
	URL       string `gorm:"primaryKey"`
	SessionID string `gorm:"index"`
	Title     string
	Metadata  map[string]string    `gorm:"serializer:json"`
	Content   []models.ContentNode `gorm:"serializer:json"`
	Verses    []models.Verse       `gorm:"serializer:json"`
	Images    []models.Image       `gorm:"serializer:json"`
	Links     []string             `gorm:"serializer:json"`
	Timestamp string
	UpdatedAt time.Time
}

// TableName pins the table name.
func (PageRow) TableName() string { return "page_records" }

func rowFromRecord(sessionID string, r *models.PageRecord) *PageRow {
	return &PageRow{
		URL:       r.URL,
		SessionID: sessionID,
		Title:     r.Title,
		Metadata:  r.Metadata,
		Content:   r.Content,
		Verses:    r.Verses,
		Images:    r.Images,
		Links:     r.Links,
		Timestamp: r.Timestamp,
	}
}

func (row *PageRow) record() *models.PageRecord {
	return &models.PageRecord{
		URL:       row.URL,
		Title:     row.Title,
		Metadata:  row.Metadata,
		Content:   row.Content,
		Verses:    row.Verses,
		Images:    row.Images,
		Links:     row.Links,
		Timestamp: row.Timestamp,
	}
}

// SQLiteSink stores page records in a SQLite database, one row per URL.
// Persisting a URL again replaces its row.
type SQLiteSink struct {
	db        *gorm.DB
	sessionID string
}

// OpenSQLite opens (and migrates) the database at path. sessionID tags every
// row written through the returned sink.
func OpenSQLite(path, sessionID string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Workers persist concurrently; writers queue on the busy timeout.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&PageRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLiteSink{db: db, sessionID: sessionID}, nil
}

// Persist upserts record keyed by its URL.
func (s *SQLiteSink) Persist(ctx context.Context, record *models.PageRecord) error {
	row := rowFromRecord(s.sessionID, record)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		UpdateAll: true,
	}).Create(row).Error
}

// Records returns every stored page record, sorted by URL.
func (s *SQLiteSink) Records(ctx context.Context) ([]*models.PageRecord, error) {
	var rows []PageRow
	if err := s.db.WithContext(ctx).Order("url").Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]*models.PageRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].record())
	}
	return records, nil
}

// Count returns the number of stored records.
func (s *SQLiteSink) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&PageRow{}).Count(&n).Error
	return n, err
}

// Close releases the database handle.
func (s *SQLiteSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
