package analytics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RequestLog stores one usage event for an issued key.
type RequestLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	KeyID      string    `gorm:"index" json:"key_id"`
	Endpoint   string    `json:"endpoint"`
	Status     int       `json:"status"` // HTTP status reported by the consuming system
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// Store is the sqlite-backed usage log.
type Store struct {
	db *gorm.DB
}

// Open connects to the sqlite database at path and migrates the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "analytics.db"
	}
	dir := filepath.Dir(path)
	if dir != "." {
		os.MkdirAll(dir, 0755)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RequestLog{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Record appends one usage event.
func (s *Store) Record(keyID, endpoint string, status int, duration time.Duration) error {
	return s.db.Create(&RequestLog{
		KeyID:      keyID,
		Endpoint:   endpoint,
		Status:     status,
		DurationMs: duration.Milliseconds(),
	}).Error
}

// Summary aggregates usage for one key.
type Summary struct {
	Total    int64 `json:"total"`
	Success  int64 `json:"success"`
	Today    int64 `json:"today"`
	ThisWeek int64 `json:"this_week"`
}

func (s *Store) Summary(keyID string) (Summary, error) {
	var out Summary
	base := s.db.Model(&RequestLog{}).Where("key_id = ?", keyID)

	if err := base.Session(&gorm.Session{}).Count(&out.Total).Error; err != nil {
		return out, err
	}
	if err := base.Session(&gorm.Session{}).Where("status >= 200 AND status < 400").Count(&out.Success).Error; err != nil {
		return out, err
	}

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := base.Session(&gorm.Session{}).Where("created_at >= ?", dayStart).Count(&out.Today).Error; err != nil {
		return out, err
	}
	if err := base.Session(&gorm.Session{}).Where("created_at >= ?", now.AddDate(0, 0, -7)).Count(&out.ThisWeek).Error; err != nil {
		return out, err
	}
	return out, nil
}

// Recent returns the newest events across all keys, capped at limit.
func (s *Store) Recent(limit int) ([]RequestLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []RequestLog
	err := s.db.Order("id desc").Limit(limit).Find(&logs).Error
	return logs, err
}
